package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"

	"github.com/roman-kulish/field-tracker/internal/session"
)

type pdfColumn struct {
	title string
	width float64
	value func(p *session.Packet) string
}

var pdfColumns = []pdfColumn{
	{"Time", 20, func(p *session.Packet) string { return p.Time }},
	{"Latitude", 25, func(p *session.Packet) string { return strconv.FormatFloat(p.Location.Latitude, 'f', 6, 64) }},
	{"Longitude", 25, func(p *session.Packet) string { return strconv.FormatFloat(p.Location.Longitude, 'f', 6, 64) }},
	{"Alt (m)", 18, func(p *session.Packet) string { return formatFloat(p.Altitude) }},
	{"Speed", 16, func(p *session.Packet) string { return formatFloat(p.Speed) }},
	{"Sats", 12, func(p *session.Packet) string { return strconv.Itoa(p.Satellites) }},
	{"Temp", 16, func(p *session.Packet) string { return formatFloat(p.Environment.Temperature) }},
	{"hPa", 20, func(p *session.Packet) string { return formatFloat(p.Environment.Pressure) }},
	{"HR", 12, func(p *session.Packet) string { return strconv.Itoa(p.Health.HeartRateLast) }},
	{"Flags", 16, func(p *session.Packet) string { return pdfFlags(p) }},
}

// WritePDF renders a printable session report: a summary followed by a
// packet table
func WritePDF(w io.Writer, s *session.Session) error {
	if err := checkClosed(s); err != nil {
		return err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Session "+s.ID, true)
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Tracking Session Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Session: %s", s.ID))
	pdf.Ln(5)
	if s.DeviceID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Device: %s", s.DeviceID))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Start: %s", s.StartTime))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("End: %s", s.EndTime))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Duration: %s", s.Duration()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Packets: %d (%s)", len(s.Packets), session.HumanSize(s)))
	pdf.Ln(8)

	printHeader := func() {
		pdf.SetFont("Arial", "B", 9)
		for _, c := range pdfColumns {
			pdf.CellFormat(c.width, 6, c.title, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}

	// repeat the table header on every page
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			printHeader()
		}
	})
	printHeader()

	for i := range s.Packets {
		for _, c := range pdfColumns {
			pdf.CellFormat(c.width, 6, c.value(&s.Packets[i]), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	return nil
}

func pdfFlags(p *session.Packet) string {
	switch {
	case p.Health.IsFallDetected() && p.Health.IsButtonPressed():
		return "F,B"
	case p.Health.IsFallDetected():
		return "F"
	case p.Health.IsButtonPressed():
		return "B"
	default:
		return ""
	}
}
