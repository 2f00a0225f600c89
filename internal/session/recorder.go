package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/field-tracker/internal/metrics"
	"github.com/roman-kulish/field-tracker/internal/telemetry"
)

// State of the recorder
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventType identifies a recorder state change
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventPacketRecorded EventType = "packet_recorded"
	EventSessionEnded   EventType = "session_ended"
	EventSessionDeleted EventType = "session_deleted"
)

// Event is delivered to the notifier after a state change has been applied
type Event struct {
	Type      EventType
	SessionID string
	Packets   int // Packets in the session after the change
}

// WithLogger sets the logger for the recorder
func WithLogger(logger *slog.Logger) func(*Recorder) {
	return func(r *Recorder) {
		r.logger = logger.With(slog.String("component", "recorder"))
	}
}

// WithClock sets the clock used for session and packet timestamps
func WithClock(clock func() time.Time) func(*Recorder) {
	return func(r *Recorder) {
		r.clock = clock
	}
}

// WithNotifier registers a function called after every state change. It is
// called outside the recorder lock, so it may call back into the recorder.
func WithNotifier(fn func(Event)) func(*Recorder) {
	return func(r *Recorder) {
		r.notifiers = append(r.notifiers, fn)
	}
}

// Recorder owns the open session and the ordered list of closed sessions.
// All methods are serialized by an internal mutex.
type Recorder struct {
	mu       sync.Mutex
	current  *Session
	sessions []Session

	persister Persister
	clock     func() time.Time
	notifiers []func(Event)
	logger    *slog.Logger
}

// NewRecorder creates an idle Recorder with an empty store. Call Load to read
// previously persisted sessions.
func NewRecorder(p Persister, options ...func(*Recorder)) *Recorder {
	r := Recorder{
		persister: p,
		clock:     time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Load replaces the in-memory store with the persisted one. A failure leaves
// the store empty and is returned as a PersistenceError wrapping
// ErrReadFailed; it is not fatal and recording can proceed.
func (r *Recorder) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = nil

	sessions, err := r.persister.Load(ctx)
	if err != nil {
		r.logger.Error(fmt.Sprintf("failed to load sessions: %s", err.Error()))
		return &PersistenceError{Op: ErrReadFailed, Err: err}
	}

	for i := range sessions {
		Normalize(&sessions[i], i)
	}
	r.sessions = sessions

	r.logger.Info("sessions loaded", slog.Int("count", len(sessions)))
	return nil
}

// StartSession opens a new session. If a session is already open it returns
// that session's ID together with ErrAlreadyRecording; no second session is
// created.
func (r *Recorder) StartSession(deviceID string) (string, error) {
	r.mu.Lock()

	if r.current != nil {
		id := r.current.ID
		r.mu.Unlock()
		return id, ErrAlreadyRecording
	}

	r.current = &Session{
		ID:        uuid.NewString(),
		StartTime: NewTimestamp(r.clock()),
		DeviceID:  deviceID,
		Packets:   []Packet{},
	}
	ev := Event{Type: EventSessionStarted, SessionID: r.current.ID}
	r.mu.Unlock()

	r.logger.Info("session started", slog.String("session", ev.SessionID), slog.String("deviceID", deviceID))
	r.notify(ev)
	return ev.SessionID, nil
}

// Ingest appends a sample to the open session, stamped with the current
// recording time. It returns ErrNotRecording and changes nothing when idle.
func (r *Recorder) Ingest(s *telemetry.Sample) error {
	if s == nil {
		return errors.New("nil sample")
	}

	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return ErrNotRecording
	}

	r.current.Packets = append(r.current.Packets, NewPacket(r.clock(), s))
	ev := Event{Type: EventPacketRecorded, SessionID: r.current.ID, Packets: len(r.current.Packets)}
	r.mu.Unlock()

	metrics.PacketRecorded()
	r.notify(ev)
	return nil
}

// EndSession closes the open session, appends it to the store and persists
// the whole store. It returns the closed session, or nil when idle.
//
// A persistence failure is returned as a PersistenceError wrapping
// ErrWriteFailed; the session stays in memory and is written by the next
// successful persist.
func (r *Recorder) EndSession(ctx context.Context) (*Session, error) {
	r.mu.Lock()

	if r.current == nil {
		r.mu.Unlock()
		return nil, nil
	}

	closed := r.current
	end := NewTimestamp(r.clock())
	if end.Time().Before(closed.StartTime.Time()) {
		end = closed.StartTime
	}
	closed.EndTime = &end

	r.sessions = append(r.sessions, *closed)
	r.current = nil

	err := r.persistLocked(ctx)
	ev := Event{Type: EventSessionEnded, SessionID: closed.ID, Packets: len(closed.Packets)}
	r.mu.Unlock()

	r.logger.Info("session ended",
		slog.String("session", closed.ID),
		slog.Int("packets", len(closed.Packets)),
		slog.Duration("duration", closed.Duration()))
	metrics.SessionClosed()
	r.notify(ev)

	return closed.Clone(), err
}

// Persist writes the full store. It is used on host suspension after
// EndSession, and may be called by the caller to retry a failed write.
func (r *Recorder) Persist(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.persistLocked(ctx)
}

// DeleteSession removes a closed session from the store and persists the
// result. The in-memory removal stands even if persisting fails.
func (r *Recorder) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()

	if r.current != nil && r.current.ID == id {
		r.mu.Unlock()
		return fmt.Errorf("deleting session %s: %w", id, ErrSessionOpen)
	}

	idx := slices.IndexFunc(r.sessions, func(s Session) bool { return s.ID == id })
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("deleting session %s: %w", id, ErrSessionNotFound)
	}

	r.sessions = slices.Delete(r.sessions, idx, idx+1)
	err := r.persistLocked(ctx)
	r.mu.Unlock()

	r.logger.Info("session deleted", slog.String("session", id))
	r.notify(Event{Type: EventSessionDeleted, SessionID: id})
	return err
}

// State returns StateRecording while a session is open
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return StateRecording
	}
	return StateIdle
}

// Current returns a copy of the open session, or nil when idle
func (r *Recorder) Current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return nil
	}
	return r.current.Clone()
}

// Sessions returns copies of all closed sessions in closure order
func (r *Recorder) Sessions() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]Session, len(r.sessions))
	for i := range r.sessions {
		sessions[i] = *r.sessions[i].Clone()
	}
	return sessions
}

// Session returns a copy of the closed session with the given ID
func (r *Recorder) Session(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.sessions {
		if r.sessions[i].ID == id {
			return r.sessions[i].Clone(), nil
		}
	}
	if r.current != nil && r.current.ID == id {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionOpen)
	}
	return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
}

func (r *Recorder) persistLocked(ctx context.Context) error {
	started := time.Now()

	if err := r.persister.Save(ctx, r.sessions); err != nil {
		metrics.ObservePersist(false, time.Since(started))
		r.logger.Error(fmt.Sprintf("failed to persist sessions: %s", err.Error()), slog.Int("sessions", len(r.sessions)))
		return &PersistenceError{Op: ErrWriteFailed, Err: err}
	}

	metrics.ObservePersist(true, time.Since(started))
	r.logger.Debug("sessions persisted", slog.Int("sessions", len(r.sessions)))
	return nil
}

func (r *Recorder) notify(ev Event) {
	for _, fn := range r.notifiers {
		fn(ev)
	}
}
