package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/field-tracker/internal/session"
	"github.com/roman-kulish/field-tracker/internal/storage"
)

const capture = `{"sender":1,"recipient":255,"message":"19:42:58 | 0.000000,0.000000 | 0.00,0.00,0 | 19.45,74.55,19.12,72.39,1005.47,65.08 | 0,0,0","SNR":9.75,"RSSI":-33,"FreqErr":662}
{"sender":1,"recipient":255,"message":"19:42:59 | garbled","SNR":1.5,"RSSI":-90,"FreqErr":700}

{"sender":1,"recipient":255,"message":"19:43:01 | -33.868812,151.209296 | 42.50,1.20,7 | 19.50,74.10,19.20,72.00,1005.40,65.50 | 72,0,1","SNR":9.5,"RSSI":-35,"FreqErr":650}
`

func testConfig(t *testing.T, backend string) *Config {
	t.Helper()

	dir := t.TempDir()
	capturePath := filepath.Join(dir, "capture.jsonl")
	require.NoError(t, os.WriteFile(capturePath, []byte(capture), 0o644))

	cfg := NewConfig()
	cfg.Storage.Backend = backend
	cfg.Storage.Path = filepath.Join(dir, "data", "sessions.store")
	cfg.Transport.Line.Path = capturePath
	cfg.Transport.DeviceID = "tracker-1"
	cfg.Export.Directory = filepath.Join(dir, "exports")
	require.NoError(t, cfg.Validate())
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runCommand(t *testing.T, cfg *Config, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	err := run(context.Background(), cfg, discardLogger(), args, &out)
	return out.String(), err
}

func loadSessions(t *testing.T, cfg *Config) []session.Session {
	t.Helper()

	store, err := storage.New(cfg.Storage.Backend, cfg.Storage.Path)
	require.NoError(t, err)
	defer store.Close()

	sessions, err := store.Load(context.Background())
	require.NoError(t, err)
	return sessions
}

func TestRun_RecordExportDelete(t *testing.T) {
	for _, backend := range []string{storage.BackendFile, storage.BackendSqlite} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)

			_, err := runCommand(t, cfg, CommandRecord)
			require.NoError(t, err)

			sessions := loadSessions(t, cfg)
			require.Len(t, sessions, 1)
			recorded := sessions[0]
			assert.Equal(t, "tracker-1", recorded.DeviceID)
			require.Len(t, recorded.Packets, 2, "the garbled payload is discarded")
			assert.Equal(t, "19:43:01", recorded.Packets[1].DeviceTime)

			out, err := runCommand(t, cfg, CommandSessions)
			require.NoError(t, err)
			assert.Contains(t, out, recorded.ID)
			assert.Contains(t, out, "tracker-1")

			csvPath := filepath.Join(t.TempDir(), "session.csv")
			out, err = runCommand(t, cfg, CommandExport, "-f", "csv", "-o", csvPath)
			require.NoError(t, err)
			assert.Contains(t, out, csvPath)

			content, err := os.ReadFile(csvPath)
			require.NoError(t, err)
			lines := strings.Split(strings.TrimSpace(string(content)), "\n")
			require.Len(t, lines, 3)
			assert.True(t, strings.HasPrefix(lines[0], "Time,Latitude,Longitude,"))
			assert.Contains(t, lines[2], ",-33.87, 151.21,42.50,1.20,7,")

			// default format and location
			_, err = runCommand(t, cfg, CommandExport, "-id", recorded.ID)
			require.NoError(t, err)
			exported, err := os.ReadFile(filepath.Join(cfg.Export.Directory, "session_"+recorded.StartTime.Time().Format("20060102_150405")+".json"))
			require.NoError(t, err)
			assert.Contains(t, string(exported), recorded.ID)

			out, err = runCommand(t, cfg, CommandDelete, "-id", recorded.ID)
			require.NoError(t, err)
			assert.Contains(t, out, recorded.ID)
			assert.Empty(t, loadSessions(t, cfg))
		})
	}
}

func TestRun_RecordWithoutStartOnConnect(t *testing.T) {
	cfg := testConfig(t, storage.BackendFile)
	cfg.Recording.StartOnConnect = false

	_, err := runCommand(t, cfg, CommandRecord)
	require.NoError(t, err)
	assert.Empty(t, loadSessions(t, cfg))
}

func TestRun_RecordFromStdin(t *testing.T) {
	cfg := testConfig(t, storage.BackendFile)
	cfg.Transport.Line.Path = StdinPath

	store, err := storage.New(cfg.Storage.Backend, cfg.Storage.Path)
	require.NoError(t, err)
	defer store.Close()

	rec := session.NewRecorder(store)
	o := NewOrchestrator(cfg, rec, discardLogger(), WithStdin(strings.NewReader(capture)))
	require.NoError(t, o.Run(context.Background()))

	require.Len(t, rec.Sessions(), 1)
	assert.Len(t, rec.Sessions()[0].Packets, 2)
}

func TestRun_Errors(t *testing.T) {
	cfg := testConfig(t, storage.BackendFile)

	_, err := runCommand(t, cfg, "replay")
	assert.Error(t, err)

	_, err = runCommand(t, cfg, CommandExport)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = runCommand(t, cfg, CommandExport, "-f", "kml")
	assert.Error(t, err)

	_, err = runCommand(t, cfg, CommandDelete)
	assert.Error(t, err)

	_, err = runCommand(t, cfg, CommandDelete, "-id", "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	cfg.Transport.Line.Path = filepath.Join(t.TempDir(), "missing.jsonl")
	_, err = runCommand(t, cfg, CommandRecord)
	assert.Error(t, err)
}

func TestRun_CorruptStore(t *testing.T) {
	cfg := testConfig(t, storage.BackendFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755))
	require.NoError(t, os.WriteFile(cfg.Storage.Path, []byte("{corrupt"), 0o644))

	_, err := runCommand(t, cfg, CommandSessions)
	assert.ErrorIs(t, err, session.ErrReadFailed)

	// recording proceeds with an empty store, the unreadable one is kept
	_, err = runCommand(t, cfg, CommandRecord)
	require.NoError(t, err)
	assert.Len(t, loadSessions(t, cfg), 1)

	kept, err := filepath.Glob(cfg.Storage.Path + ".unreadable-*")
	require.NoError(t, err)
	require.Len(t, kept, 1)
	content, err := os.ReadFile(kept[0])
	require.NoError(t, err)
	assert.Equal(t, "{corrupt", string(content))
}

func TestRun_NewerStoreIsNotOverwritten(t *testing.T) {
	cfg := testConfig(t, storage.BackendFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755))
	newer := `{"version": 99, "sessions": []}`
	require.NoError(t, os.WriteFile(cfg.Storage.Path, []byte(newer), 0o644))

	_, err := runCommand(t, cfg, CommandRecord)
	require.NoError(t, err)

	kept, err := filepath.Glob(cfg.Storage.Path + ".unreadable-*")
	require.NoError(t, err)
	require.Len(t, kept, 1)
	content, err := os.ReadFile(kept[0])
	require.NoError(t, err)
	assert.Equal(t, newer, string(content))
}

func TestRun_LegacyStoreKeepsIDs(t *testing.T) {
	cfg := testConfig(t, storage.BackendFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755))
	legacy := `[{"startTime":721468800,"endTime":721468900,"packets":[]},{"startTime":721468800}]`
	require.NoError(t, os.WriteFile(cfg.Storage.Path, []byte(legacy), 0o644))

	first, err := runCommand(t, cfg, CommandSessions)
	require.NoError(t, err)
	second, err := runCommand(t, cfg, CommandSessions)
	require.NoError(t, err)

	start := session.NewTimestamp(time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC).Add(721468800 * time.Second))
	firstID := session.LegacyID(0, start)
	assert.Equal(t, first, second)
	assert.Contains(t, first, firstID)
	assert.Contains(t, first, session.LegacyID(1, start))

	csvPath := filepath.Join(t.TempDir(), "legacy.csv")
	_, err = runCommand(t, cfg, CommandExport, "-id", firstID, "-f", "csv", "-o", csvPath)
	require.NoError(t, err)
	assert.FileExists(t, csvPath)

	_, err = runCommand(t, cfg, CommandDelete, "-id", firstID)
	require.NoError(t, err)

	remaining := loadSessions(t, cfg)
	require.Len(t, remaining, 1)
	assert.Equal(t, session.LegacyID(1, start), remaining[0].ID, "derived IDs are written on the next persist")
}
