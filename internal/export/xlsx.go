package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/roman-kulish/field-tracker/internal/session"
)

const (
	summarySheet = "summary"
	packetsSheet = "packets"
)

// WriteXLSX writes a workbook with a summary sheet and a packets sheet using
// the tabular column layout. Cells hold numbers, not rounded strings.
func WriteXLSX(w io.Writer, s *session.Session) (err error) {
	if err = checkClosed(s); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if err = f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err = f.NewSheet(packetsSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	summary := [][]any{
		{"Session", s.ID},
		{"Device", s.DeviceID},
		{"Start", s.StartTime.String()},
		{"End", s.EndTime.String()},
		{"Duration", s.Duration().String()},
		{"Packets", len(s.Packets)},
		{"Size", session.HumanSize(s)},
	}
	for i, row := range summary {
		if err = setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err = setRow(f, packetsSheet, 1, headerRow); err != nil {
		return err
	}

	for i, p := range s.Packets {
		row := []any{
			p.Time,
			p.Location.Latitude,
			p.Location.Longitude,
			p.Altitude,
			p.Speed,
			p.Satellites,
			p.Environment.Temperature,
			p.Environment.Humidity,
			p.Environment.ExternalTemperature,
			p.Environment.ExternalHumidity,
			p.Environment.Pressure,
			p.Environment.ApproxAltitude,
			p.Health.HeartRateLast,
			p.Health.FallDetected,
			p.Health.ButtonPressed,
		}
		if err = setRow(f, packetsSheet, i+2, row); err != nil {
			return err
		}
	}

	err = f.SetDocProps(&excelize.DocProperties{
		Title:   "Session " + s.ID,
		Created: s.StartTime.Time().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("setting document properties: %w", err)
	}

	if err = f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err = f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, row, err)
	}
	return nil
}
