// Package tracker connects transport and host lifecycle events to the
// session recorder
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roman-kulish/field-tracker/internal/metrics"
	"github.com/roman-kulish/field-tracker/internal/session"
	"github.com/roman-kulish/field-tracker/internal/telemetry"
	"github.com/roman-kulish/field-tracker/internal/transport"
)

var (
	_ transport.Handler  = (*Tracker)(nil)
	_ telemetry.Provider = (*Tracker)(nil)
)

// WithLogger sets the logger for the tracker
func WithLogger(logger *slog.Logger) func(*Tracker) {
	return func(t *Tracker) {
		t.logger = logger.With(slog.String("component", "tracker"))
	}
}

// Tracker decodes payloads, keeps the latest sample for display and feeds
// the recorder. Link loss and host suspension close the open session;
// nothing here starts one implicitly.
type Tracker struct {
	rec *session.Recorder

	mu       sync.RWMutex
	latest   *telemetry.Sample
	deviceID string

	logger *slog.Logger
}

// New creates a Tracker with a discard logger
func New(rec *session.Recorder, options ...func(*Tracker)) *Tracker {
	t := Tracker{
		rec:    rec,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

// OnPayloadReceived decodes a raw gateway envelope and handles it like
// OnEnvelope
func (t *Tracker) OnPayloadReceived(ctx context.Context, payload []byte) error {
	metrics.PayloadReceived()

	env, err := telemetry.ParseEnvelope(payload)
	if err != nil {
		metrics.DecodeError("envelope")
		return err
	}

	return t.OnEnvelope(ctx, env)
}

// OnEnvelope decodes the message body and, when a session is open, records
// the sample. A rejected message leaves all state untouched. A sample that
// arrives while idle only updates the latest sample and is not an error.
func (t *Tracker) OnEnvelope(ctx context.Context, env *telemetry.Envelope) error {
	sample, err := telemetry.Decode(env)
	if err != nil {
		metrics.DecodeError(decodeErrorReason(err))
		return err
	}

	t.mu.Lock()
	t.latest = sample
	t.mu.Unlock()

	err = t.rec.Ingest(sample)
	switch {
	case errors.Is(err, session.ErrNotRecording):
		metrics.PacketNotRecorded()
		t.logger.DebugContext(ctx, "sample not recorded, no open session")
		return nil
	case err != nil:
		return fmt.Errorf("recording sample: %w", err)
	}

	return nil
}

// OnConnected records the device ID used for subsequent sessions. It does
// not start recording.
func (t *Tracker) OnConnected(deviceID string) {
	t.mu.Lock()
	t.deviceID = deviceID
	t.mu.Unlock()

	t.logger.Info("device connected", slog.String("deviceID", deviceID))
}

// OnDisconnected closes the open session, if any. Persistence failures are
// logged by the recorder; the closed session stays in memory.
func (t *Tracker) OnDisconnected(ctx context.Context, deviceID string) {
	t.logger.Info("device disconnected", slog.String("deviceID", deviceID))

	closed, err := t.rec.EndSession(ctx)
	if closed != nil && err == nil {
		t.logger.Info("session saved", slog.String("session", closed.ID))
	}
}

// OnSuspend closes the open session and forces a full persist. The returned
// error is the result of the forced persist.
func (t *Tracker) OnSuspend(ctx context.Context) error {
	t.logger.Info("host suspending")

	if _, err := t.rec.EndSession(ctx); err != nil {
		t.logger.Warn(fmt.Sprintf("ending session on suspend: %s", err.Error()))
	}

	return t.rec.Persist(ctx)
}

// OnResume is accepted for symmetry with OnSuspend. Recording is not
// restarted; the caller has to start it explicitly.
func (t *Tracker) OnResume() {
	t.logger.Info("host resumed", slog.String("state", t.rec.State().String()))
}

// StartRecording opens a session for the last connected device. When a
// session is already open its ID is returned with session.ErrAlreadyRecording.
func (t *Tracker) StartRecording() (string, error) {
	t.mu.RLock()
	deviceID := t.deviceID
	t.mu.RUnlock()

	return t.rec.StartSession(deviceID)
}

// StopRecording closes the open session. It returns nil, nil when idle.
func (t *Tracker) StopRecording(ctx context.Context) (*session.Session, error) {
	return t.rec.EndSession(ctx)
}

// Get returns a copy of the most recently decoded sample, or nil if none has
// been decoded yet. It is updated regardless of the recording state.
func (t *Tracker) Get() *telemetry.Sample {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.latest == nil {
		return nil
	}
	s := *t.latest
	return &s
}

func decodeErrorReason(err error) string {
	switch {
	case errors.Is(err, telemetry.ErrStructureMismatch):
		return "structure"
	case errors.Is(err, telemetry.ErrFieldParse):
		return "field"
	case errors.Is(err, telemetry.ErrInvalidEnvelope):
		return "envelope"
	default:
		return "unknown"
	}
}
