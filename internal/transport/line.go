package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
)

// WithLineLogger sets the logger for the line source
func WithLineLogger(logger *slog.Logger) func(*LineSource) {
	return func(s *LineSource) {
		s.logger = logger.With(
			slog.String("transport", "line"),
			slog.String("deviceID", s.deviceID),
		)
	}
}

// WithLineFailureThreshold sets the number of consecutive rejected payloads
// reported as a degraded link
func WithLineFailureThreshold(threshold int) func(*LineSource) {
	return func(s *LineSource) {
		s.failures.threshold = int32(threshold)
	}
}

// LineSource reads newline delimited payloads from a stream such as a serial
// gateway, stdin or a capture being replayed. The link is up while the
// stream is readable.
type LineSource struct {
	deviceID string
	r        io.Reader
	handler  Handler

	failures failureMonitor
	logger   *slog.Logger
}

// NewLineSource creates a LineSource with a discard logger
func NewLineSource(deviceID string, r io.Reader, h Handler, options ...func(*LineSource)) *LineSource {
	s := LineSource{
		deviceID: deviceID,
		r:        r,
		handler:  h,
		failures: failureMonitor{threshold: FailureThreshold},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Run reports the link as connected, hands every non-empty line to the
// handler and reports the link as disconnected once the stream ends or ctx
// is cancelled. If the reader is an io.Closer it is closed on cancellation to
// unblock the pending read.
func (s *LineSource) Run(ctx context.Context) error {
	s.logger.Info("link connected")
	s.handler.OnConnected(s.deviceID)

	defer func() {
		s.handler.OnDisconnected(context.WithoutCancel(ctx), s.deviceID)
		s.logger.Info("link disconnected")
	}()

	lines := make(chan []byte)
	done := make(chan error, 1)

	go s.scan(ctx, lines, done)

	for {
		select {
		case <-ctx.Done():
			if c, ok := s.r.(io.Closer); ok {
				_ = c.Close()
			}
			return nil

		case line := <-lines:
			s.failures.record(s.logger, s.handler.OnPayloadReceived(ctx, line), line)

		case err := <-done:
			return err
		}
	}
}

func (s *LineSource) scan(ctx context.Context, lines chan<- []byte, done chan<- error) {
	scanner := bufio.NewScanner(s.r)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		select {
		case lines <- bytes.Clone(line):
		case <-ctx.Done():
			done <- nil
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stream: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}
