// Package export renders closed sessions for archival and for humans.
//
// JSON is the only lossless format and can be read back with ReadJSON. CSV,
// XLSX and PDF round values for display and must never be the only copy of
// a session.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roman-kulish/field-tracker/internal/session"
)

// Format of an export
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

var validFormats = map[Format]func(io.Writer, *session.Session) error{
	FormatJSON: WriteJSON,
	FormatCSV:  WriteCSV,
	FormatXLSX: WriteXLSX,
	FormatPDF:  WritePDF,
}

// ErrUnknownFormat is returned for a format without a writer
var ErrUnknownFormat = errors.New("unknown export format")

// header is the column layout of tabular exports
var header = []string{
	"Time",
	"Latitude",
	"Longitude",
	"Altitude",
	"Speed",
	"Satellites",
	"Temperature",
	"Humidity",
	"ExternalTemperature",
	"ExternalHumidity",
	"Pressure",
	"ApproxAltitude",
	"HeartRate",
	"FallDetected",
	"ButtonPressed",
}

// ParseFormat parses a case-insensitive format name
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validFormats[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	return f, nil
}

// Write exports s in format f. Open sessions are rejected with
// session.ErrSessionOpen.
func Write(w io.Writer, s *session.Session, f Format) error {
	fn, ok := validFormats[f]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	return fn(w, s)
}

// FileName returns the conventional file name for an export of s, derived
// from its start time, e.g. "session_20231111_100000.csv"
func FileName(s *session.Session, f Format) string {
	return fmt.Sprintf("session_%s.%s", s.StartTime.Time().Format("20060102_150405"), f)
}

func checkClosed(s *session.Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	if s.IsOpen() {
		return fmt.Errorf("exporting session %s: %w", s.ID, session.ErrSessionOpen)
	}
	return nil
}
