package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roman-kulish/field-tracker/internal/session"
)

// snapshotVersion is written to every snapshot. Version 1 stores were a bare
// JSON array of sessions.
const snapshotVersion = 2

// ErrUnsupportedVersion is returned by FileStore.Load for snapshots written by
// a newer release
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// FileStore keeps the session store in a single JSON file. Save writes a
// temporary file next to the target, syncs it and renames it over the
// target, so a crash leaves either the old or the new snapshot.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save replaces the snapshot with the closed sessions in sessions
func (s *FileStore) Save(ctx context.Context, sessions []session.Session) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	p, err := json.Marshal(fileSnapshot{Version: snapshotVersion, Sessions: session.Closed(sessions)})
	if err != nil {
		return fmt.Errorf("marshaling sessions: %w", err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(p); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err = os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	if err = syncDir(dir); err != nil {
		return fmt.Errorf("syncing directory: %w", err)
	}
	return nil
}

// syncDir flushes the directory entry so that a rename survives power loss
func syncDir(dir string) (err error) {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer closeWithError(d, &err)

	return d.Sync()
}

// Load reads the snapshot. A missing file is an empty store.
func (s *FileStore) Load(ctx context.Context) ([]session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	return decodeSnapshot(p)
}

// Close is a no-op; FileStore holds no open resources between calls
func (s *FileStore) Close() error {
	return nil
}

func decodeSnapshot(p []byte) ([]session.Session, error) {
	p = bytes.TrimSpace(p)

	if bytes.HasPrefix(p, []byte("[")) {
		var sessions []session.Session
		if err := json.Unmarshal(p, &sessions); err != nil {
			return nil, fmt.Errorf("decoding legacy snapshot: %w", err)
		}
		return sessions, nil
	}

	var snapshot fileSnapshot
	if err := json.Unmarshal(p, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snapshot.Version > snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d: %w", snapshot.Version, ErrUnsupportedVersion)
	}
	return snapshot.Sessions, nil
}
