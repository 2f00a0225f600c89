package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/roman-kulish/field-tracker/internal/session"
)

// WriteJSON writes the full structured form of a closed session, the same
// encoding the file store persists
func WriteJSON(w io.Writer, s *session.Session) error {
	if err := checkClosed(s); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return nil
}

// ReadJSON reads a session written by WriteJSON or by an older release.
// Missing fields are filled in by session.Normalize as for the first
// session of a store.
func ReadJSON(r io.Reader) (*session.Session, error) {
	var s session.Session
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}

	session.Normalize(&s, 0)
	return &s, nil
}
