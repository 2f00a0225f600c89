package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/field-tracker/internal/export"
	"github.com/roman-kulish/field-tracker/internal/session"
	"github.com/roman-kulish/field-tracker/internal/storage"
)

const (
	CommandRecord   = "record"
	CommandSessions = "sessions"
	CommandExport   = "export"
	CommandDelete   = "delete"
)

// CommandsUsage lists the sub-commands for the usage message
const CommandsUsage = `  record     record telemetry from the configured transport until interrupted
  sessions   list recorded sessions
  export     export a session: export [-id ID] [-f json|csv|xlsx|pdf] [-o FILE]
  delete     delete a session: delete -id ID`

// Run executes the sub-command in args, "record" if none is given
func Run(ctx context.Context, config *Config, logger *slog.Logger, args []string) error {
	return run(ctx, config, logger, args, os.Stdout)
}

func run(ctx context.Context, config *Config, logger *slog.Logger, args []string, stdout io.Writer) (err error) {
	command := CommandRecord
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	store, err := storage.New(config.Storage.Backend, config.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer func() {
		if cErr := store.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing storage: %w", cErr)
		}
	}()

	rec := session.NewRecorder(store, session.WithLogger(logger))
	if err = rec.Load(ctx); err != nil {
		if command != CommandRecord {
			return err
		}

		// the store starts empty, recording can proceed once the unreadable
		// store is out of the way
		moved, mErr := storage.MoveAside(config.Storage.Path, time.Now())
		if mErr != nil {
			return fmt.Errorf("keeping unreadable session store: %w", errors.Join(err, mErr))
		}
		logger.Warn(fmt.Sprintf("starting with an empty session store: %s", err.Error()), slog.String("movedTo", moved))
		err = nil
	}

	switch command {
	case CommandRecord:
		return NewOrchestrator(config, rec, logger).Run(ctx)

	case CommandSessions:
		return listSessions(rec, stdout)

	case CommandExport:
		return exportSession(config, rec, args, stdout)

	case CommandDelete:
		return deleteSession(ctx, rec, args, stdout)

	default:
		return fmt.Errorf("unknown command '%s'", command)
	}
}

func listSessions(rec *session.Recorder, stdout io.Writer) error {
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEVICE\tSTARTED\tDURATION\tPACKETS\tSIZE")

	for _, s := range rec.Sessions() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID,
			s.DeviceID,
			humanize.Time(s.StartTime.Time()),
			s.Duration(),
			len(s.Packets),
			session.HumanSize(&s),
		)
	}

	return tw.Flush()
}

func exportSession(config *Config, rec *session.Recorder, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(CommandExport, flag.ContinueOnError)
	fs.SetOutput(stdout)

	var id, formatName, output string
	fs.StringVar(&id, "id", "", "Session ID, defaults to the most recent session")
	fs.StringVar(&formatName, "f", config.Export.Format, "Export format. [json, csv, xlsx, pdf]")
	fs.StringVar(&output, "o", "", "Path to the output file, defaults to a file in the export directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	s, err := findSession(rec, id)
	if err != nil {
		return err
	}

	if output == "" {
		if err = os.MkdirAll(config.Export.Directory, 0o755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
		output = filepath.Join(config.Export.Directory, export.FileName(s, format))
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}

	if err = export.Write(f, s, format); err != nil {
		_ = f.Close()
		_ = os.Remove(output)
		return fmt.Errorf("exporting session %s: %w", s.ID, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}

	fmt.Fprintf(stdout, "exported session %s to %s\n", s.ID, output)
	return nil
}

func deleteSession(ctx context.Context, rec *session.Recorder, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(CommandDelete, flag.ContinueOnError)
	fs.SetOutput(stdout)

	var id string
	fs.StringVar(&id, "id", "", "Session ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if id == "" {
		fs.Usage()
		return errors.New("session id is required")
	}

	if err := rec.DeleteSession(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "deleted session %s\n", id)
	return nil
}

func findSession(rec *session.Recorder, id string) (*session.Session, error) {
	if id != "" {
		return rec.Session(id)
	}

	sessions := rec.Sessions()
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no recorded sessions: %w", session.ErrSessionNotFound)
	}
	return &sessions[len(sessions)-1], nil
}
