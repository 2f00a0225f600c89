package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roman-kulish/field-tracker/internal/session"
)

// WriteCSV writes a header row and one row per packet. Floats are rounded to
// two decimals. Rows keep the legacy layout with a space before the
// longitude, so fields are joined by hand rather than quoted.
func WriteCSV(w io.Writer, s *session.Session) error {
	if err := checkClosed(s); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(header, ",") + "\n"); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i := range s.Packets {
		if _, err := bw.WriteString(csvRow(&s.Packets[i]) + "\n"); err != nil {
			return fmt.Errorf("writing packet %d: %w", i, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing: %w", err)
	}
	return nil
}

func csvRow(p *session.Packet) string {
	fields := []string{
		p.Time,
		formatFloat(p.Location.Latitude),
		" " + formatFloat(p.Location.Longitude),
		formatFloat(p.Altitude),
		formatFloat(p.Speed),
		strconv.Itoa(p.Satellites),
		formatFloat(p.Environment.Temperature),
		formatFloat(p.Environment.Humidity),
		formatFloat(p.Environment.ExternalTemperature),
		formatFloat(p.Environment.ExternalHumidity),
		formatFloat(p.Environment.Pressure),
		formatFloat(p.Environment.ApproxAltitude),
		strconv.Itoa(p.Health.HeartRateLast),
		strconv.Itoa(p.Health.FallDetected),
		strconv.Itoa(p.Health.ButtonPressed),
	}
	return strings.Join(fields, ",")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
