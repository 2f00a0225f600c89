package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// referenceEpoch is 2001-01-01T00:00:00Z, the epoch used by the legacy store
// which encoded dates as a floating point number of seconds since it.
var referenceEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// Timestamp is a session boundary with second precision. It marshals as an
// RFC 3339 string and unmarshals from either an RFC 3339 string or a number of
// seconds since referenceEpoch.
type Timestamp time.Time

// NewTimestamp truncates t to whole seconds
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.Truncate(time.Second))
}

// Time returns the underlying time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

func (t Timestamp) String() string {
	return time.Time(t).Format(time.RFC3339)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(bytes []byte) error {
	raw := strings.TrimSpace(string(bytes))
	if raw == "null" {
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var v string
		if err := json.Unmarshal(bytes, &v); err != nil {
			return err
		}

		parsed, err := parseTimestamp(v)
		if err != nil {
			return fmt.Errorf("session.Timestamp: failed to parse: %w", err)
		}
		*t = NewTimestamp(parsed)
		return nil
	}

	var seconds float64
	if err := json.Unmarshal(bytes, &seconds); err != nil {
		return fmt.Errorf("session.Timestamp: failed to parse: %w", err)
	}
	*t = NewTimestamp(referenceEpoch.Add(time.Duration(seconds * float64(time.Second))))
	return nil
}

func parseTimestamp(v string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateTime}

	var err error
	for _, layout := range layouts {
		var parsed time.Time
		if parsed, err = time.ParseInLocation(layout, v, time.Local); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, err
}
