// Package storage provides durable backends for the session store
package storage

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/roman-kulish/field-tracker/internal/session"
)

const (
	BackendFile   = "file"
	BackendSqlite = "sqlite"
)

// Store is a session.Persister that holds resources until closed
type Store interface {
	session.Persister

	// Close releases resources held by the store. It is safe to call Close
	// multiple times.
	Close() error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SqliteStore)(nil)
)

// New returns the store for backend at path
func New(backend, path string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path), nil
	case BackendSqlite:
		return NewSqliteStore(path), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// sidecarSuffixes are files Sqlite keeps next to the database in WAL mode
var sidecarSuffixes = []string{"-wal", "-shm"}

// MoveAside renames an unreadable store at path, and its Sqlite sidecar
// files, to "<path>.unreadable-<timestamp>" so that the next save starts a
// fresh store instead of overwriting it. It returns the new path, or "" if
// nothing exists at path.
func MoveAside(path string, now time.Time) (string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	target := fmt.Sprintf("%s.unreadable-%s", path, now.Format("20060102T150405"))
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("moving aside %s: %w", path, err)
	}

	for _, suffix := range sidecarSuffixes {
		err := os.Rename(path+suffix, target+suffix)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return target, fmt.Errorf("moving aside %s: %w", path+suffix, err)
		}
	}

	return target, nil
}
