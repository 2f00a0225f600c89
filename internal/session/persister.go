package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Persister stores the full list of closed sessions as a single durable unit.
// The recorder always hands over the complete list; implementations must
// replace the previous snapshot atomically so that a crash mid-write leaves
// the previous snapshot readable.
type Persister interface {
	// Save replaces the stored snapshot with sessions.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessions: Closed sessions in closure order. Open sessions are never
	//     written, implementations skip them.
	//
	// Returns:
	//   - error: If the snapshot could not be written. The previous snapshot
	//     must remain intact in that case.
	Save(ctx context.Context, sessions []Session) error

	// Load reads the stored snapshot.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - sessions: Stored sessions in closure order, empty if nothing was
	//     stored yet
	//   - error: If the snapshot exists but could not be read or decoded
	Load(ctx context.Context) (sessions []Session, err error)
}

// legacyNamespace scopes the IDs derived for sessions stored without one
var legacyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:field-tracker:session"))

// Normalize fills defaults for fields that older stores did not write: a
// missing end time is set to the start time and a missing packet list
// becomes empty. A missing ID is derived from position, the session's index
// in the store, and its start time, so the same store yields the same IDs on
// every load.
func Normalize(s *Session, position int) {
	if s.ID == "" {
		s.ID = LegacyID(position, s.StartTime)
	}
	if s.EndTime == nil {
		end := s.StartTime
		s.EndTime = &end
	}
	if s.Packets == nil {
		s.Packets = []Packet{}
	}
}

// Closed filters out open sessions
func Closed(sessions []Session) []Session {
	closed := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if !s.IsOpen() {
			closed = append(closed, s)
		}
	}
	return closed
}

// LegacyID returns the ID of a session stored without one
func LegacyID(position int, start Timestamp) string {
	return uuid.NewSHA1(legacyNamespace, []byte(fmt.Sprintf("%d/%s", position, start))).String()
}
