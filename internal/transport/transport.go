// Package transport delivers raw telemetry payloads and link events from a
// radio gateway to a Handler
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

const (
	// FailureThreshold is the default number of consecutive rejected payloads
	// after which a degraded link is reported
	FailureThreshold = 5
)

// ErrBrokenPipe is returned when the underlying stream fails while reading
var ErrBrokenPipe = errors.New("broken pipe")

// Handler receives payloads and link events. Implementations must be safe for
// concurrent use: MQTT callbacks run on client goroutines.
type Handler interface {
	// OnPayloadReceived handles one raw payload. A returned error counts as a
	// rejected payload but does not stop the source.
	OnPayloadReceived(ctx context.Context, payload []byte) error

	// OnConnected is called when the device link comes up
	OnConnected(deviceID string)

	// OnDisconnected is called when the device link goes down. ctx is not
	// cancelled by source shutdown so that final writes can complete.
	OnDisconnected(ctx context.Context, deviceID string)
}

// failureMonitor counts consecutive rejected payloads and warns once each
// time the threshold is reached
type failureMonitor struct {
	threshold int32
	count     atomic.Int32
}

func (m *failureMonitor) record(logger *slog.Logger, err error, payload []byte) {
	if err == nil {
		if m.count.Swap(0) >= m.threshold && m.threshold > 0 {
			logger.Info("link recovered")
		}
		return
	}

	n := m.count.Add(1)
	logger.Warn(fmt.Sprintf("payload rejected: %s", err.Error()), slog.String("payload", string(payload)))

	if n == m.threshold {
		logger.Warn("link degraded", slog.Int("consecutiveFailures", int(n)))
	}
}

func (m *failureMonitor) consecutive() int {
	return int(m.count.Load())
}
