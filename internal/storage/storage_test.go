package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/field-tracker/internal/session"
	"github.com/roman-kulish/field-tracker/internal/telemetry"
)

func fixtureSession(id string, start time.Time, packets ...session.Packet) session.Session {
	end := session.NewTimestamp(start.Add(time.Minute))
	if packets == nil {
		packets = []session.Packet{}
	}
	return session.Session{
		ID:        id,
		StartTime: session.NewTimestamp(start),
		EndTime:   &end,
		DeviceID:  "tracker-1",
		Packets:   packets,
	}
}

func fixturePacket(t string, lat, lon float64, withLinkQuality bool) session.Packet {
	p := session.Packet{
		Time:       t,
		DeviceTime: "09:59:59",
		Location:   telemetry.Location{Latitude: lat, Longitude: lon},
		Altitude:   3,
		Speed:      4,
		Satellites: 5,
		Environment: telemetry.Environment{
			Temperature:         19.45,
			Humidity:            74.55,
			ExternalTemperature: 19.12,
			ExternalHumidity:    72.39,
			Pressure:            1005.47,
			ApproxAltitude:      65.08,
		},
		Health: telemetry.Health{HeartRateLast: 60, ButtonPressed: 1},
	}
	if withLinkQuality {
		p.LinkQuality = &telemetry.LinkQuality{SNR: 9.75, RSSI: -33, FreqErr: 662}
	}
	return p
}

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	dir := t.TempDir()
	stores := map[string]Store{
		BackendFile:   NewFileStore(filepath.Join(dir, "sessions.json")),
		BackendSqlite: NewSqliteStore(filepath.Join(dir, "sessions.db")),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStores_RoundTrip(t *testing.T) {
	start := time.Date(2023, time.November, 11, 10, 0, 0, 0, time.UTC)
	sessions := []session.Session{
		fixtureSession("b", start,
			fixturePacket("10:00:01", 1, 2, true),
			fixturePacket("10:00:02", -33.8688, 151.2093, false),
		),
		fixtureSession("a", start.Add(time.Hour)),
	}

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, sessions))

			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, sessions, loaded)
		})
	}
}

func TestStores_SaveReplacesSnapshot(t *testing.T) {
	start := time.Date(2023, time.November, 11, 10, 0, 0, 0, time.UTC)
	first := []session.Session{
		fixtureSession("a", start, fixturePacket("10:00:01", 1, 2, true)),
		fixtureSession("b", start),
	}
	second := []session.Session{fixtureSession("b", start)}

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, first))
			require.NoError(t, store.Save(ctx, second))

			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			require.Len(t, loaded, 1)
			assert.Equal(t, "b", loaded[0].ID)

			require.NoError(t, store.Save(ctx, nil))
			loaded, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, loaded)
		})
	}
}

func TestStores_SkipOpenSessions(t *testing.T) {
	start := time.Date(2023, time.November, 11, 10, 0, 0, 0, time.UTC)
	closed := fixtureSession("closed", start)
	open := fixtureSession("open", start)
	open.EndTime = nil

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, []session.Session{open, closed}))

			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			require.Len(t, loaded, 1)
			assert.Equal(t, "closed", loaded[0].ID)
		})
	}
}

func TestStores_LoadMissing(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			loaded, err := store.Load(context.Background())
			assert.NoError(t, err)
			assert.Empty(t, loaded)
		})
	}
}

func TestFileStore_LeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "nested", "sessions.json"))

	start := time.Date(2023, time.November, 11, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(context.Background(), []session.Session{fixtureSession("a", start)}))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sessions.json", entries[0].Name())
}

func TestFileStore_FailedSaveKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store := NewFileStore(path)

	start := time.Date(2023, time.November, 11, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(context.Background(), []session.Session{fixtureSession("a", start)}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Save(ctx, nil), context.Canceled)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a", loaded[0].ID)
}

func TestFileStore_LoadLegacy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	legacy := `[
		{"id": "a", "startTime": 721468800, "endTime": 721472400, "packets": []},
		{"startTime": 721476000}
	]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	loaded, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "a", loaded[0].ID)
	require.NotNil(t, loaded[0].EndTime)
	assert.Equal(t, time.Hour, loaded[0].Duration())

	assert.Empty(t, loaded[1].ID)
	assert.Nil(t, loaded[1].EndTime)

	session.Normalize(&loaded[1], 1)
	assert.Equal(t, session.LegacyID(1, loaded[1].StartTime), loaded[1].ID)
	assert.Equal(t, loaded[1].StartTime, *loaded[1].EndTime)
}

func TestFileStore_LoadInvalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		target  error
	}{
		{name: "corrupt", content: `{"version": 2, "sessions": [`},
		{name: "empty", content: ``},
		{name: "newer version", content: `{"version": 3, "sessions": []}`, target: ErrUnsupportedVersion},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sessions.json")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))

			_, err := NewFileStore(path).Load(context.Background())
			require.Error(t, err)
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			}
		})
	}
}

func TestSqliteStore_CloseIsIdempotent(t *testing.T) {
	store := NewSqliteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, store.Save(context.Background(), nil))

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestNew(t *testing.T) {
	s, err := New(BackendFile, "sessions.json")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = New(BackendSqlite, "sessions.db")
	require.NoError(t, err)
	assert.IsType(t, &SqliteStore{}, s)

	_, err = New("redis", "x")
	assert.Error(t, err)
}

func TestMoveAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.db")
	now := time.Date(2024, time.March, 2, 15, 4, 5, 0, time.UTC)

	moved, err := MoveAside(path, now)
	require.NoError(t, err)
	assert.Empty(t, moved, "nothing to move")

	require.NoError(t, os.WriteFile(path, []byte("db"), 0o644))
	require.NoError(t, os.WriteFile(path+"-wal", []byte("wal"), 0o644))

	moved, err = MoveAside(path, now)
	require.NoError(t, err)
	assert.Equal(t, path+".unreadable-20240302T150405", moved)

	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+"-wal")
	content, err := os.ReadFile(moved)
	require.NoError(t, err)
	assert.Equal(t, "db", string(content))
	content, err = os.ReadFile(moved + "-wal")
	require.NoError(t, err)
	assert.Equal(t, "wal", string(content))
	assert.NoFileExists(t, moved+"-shm")
}

func TestSyncDir(t *testing.T) {
	assert.NoError(t, syncDir(t.TempDir()))
	assert.ErrorIs(t, syncDir(filepath.Join(t.TempDir(), "missing")), os.ErrNotExist)
}
