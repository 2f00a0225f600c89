package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/field-tracker/internal/session"
)

// SqliteStore keeps the session store in a Sqlite database. Every Save
// replaces the stored sessions inside a single transaction.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the database at dbPath. The
// database is opened and its schema created on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
			s.writeDBErr = fmt.Errorf("creating database directory: %w", err)
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// Save replaces all stored sessions with the closed sessions in sessions
func (s *SqliteStore) Save(ctx context.Context, sessions []session.Session) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, deletePacketsSQL); err != nil {
		return fmt.Errorf("deleting packets: %w", err)
	}
	if _, err = tx.ExecContext(ctx, deleteSessionsSQL); err != nil {
		return fmt.Errorf("deleting sessions: %w", err)
	}

	sessionStmt, err := tx.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(sessionStmt, &err)

	packetStmt, err := tx.PrepareContext(ctx, insertPacketSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(packetStmt, &err)

	for i, sess := range session.Closed(sessions) {
		data := toSessionData(i, &sess)
		if _, err = sessionStmt.ExecContext(ctx, data.ID, data.Position, data.StartTime, data.EndTime, data.DeviceID); err != nil {
			return fmt.Errorf("inserting session %s: %w", sess.ID, err)
		}

		for seq := range sess.Packets {
			p := toPacketData(sess.ID, seq, &sess.Packets[seq])
			_, err = packetStmt.ExecContext(
				ctx,
				p.SessionID,
				p.Seq,
				p.Time,
				p.DeviceTime,
				p.Latitude,
				p.Longitude,
				p.Altitude,
				p.Speed,
				p.Satellites,
				p.Temperature,
				p.Humidity,
				p.ExternalTemperature,
				p.ExternalHumidity,
				p.Pressure,
				p.ApproxAltitude,
				p.HeartRate,
				p.FallDetected,
				p.ButtonPressed,
				p.SNR,
				p.RSSI,
				p.FreqErr,
			)
			if err != nil {
				return fmt.Errorf("inserting packet %d of session %s: %w", seq, sess.ID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Load reads all stored sessions in closure order. A database that does not
// exist yet is an empty store.
func (s *SqliteStore) Load(ctx context.Context) (sessions []session.Session, err error) {
	if _, err = os.Stat(s.dbPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	index := make(map[string]int)
	for rows.Next() {
		var data sessionData
		if err = rows.Scan(&data.ID, &data.StartTime, &data.EndTime, &data.DeviceID); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}

		var sess *session.Session
		if sess, err = fromSessionData(&data); err != nil {
			return
		}

		index[sess.ID] = len(sessions)
		sessions = append(sessions, *sess)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating sessions: %w", err)
		return
	}

	if err = s.loadPackets(ctx, db, sessions, index); err != nil {
		return
	}
	return
}

func (s *SqliteStore) loadPackets(ctx context.Context, db *sql.DB, sessions []session.Session, index map[string]int) (err error) {
	rows, err := db.QueryContext(ctx, selectPacketsSQL)
	if err != nil {
		return fmt.Errorf("querying packets: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d packetData
		err = rows.Scan(
			&d.SessionID,
			&d.Time,
			&d.DeviceTime,
			&d.Latitude,
			&d.Longitude,
			&d.Altitude,
			&d.Speed,
			&d.Satellites,
			&d.Temperature,
			&d.Humidity,
			&d.ExternalTemperature,
			&d.ExternalHumidity,
			&d.Pressure,
			&d.ApproxAltitude,
			&d.HeartRate,
			&d.FallDetected,
			&d.ButtonPressed,
			&d.SNR,
			&d.RSSI,
			&d.FreqErr,
		)
		if err != nil {
			return fmt.Errorf("scanning packet: %w", err)
		}

		i, ok := index[d.SessionID]
		if !ok {
			continue
		}
		sessions[i].Packets = append(sessions[i].Packets, fromPacketData(&d))
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterating packets: %w", err)
	}
	return nil
}

// Close releases database connections. It is safe to call Close multiple
// times.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
