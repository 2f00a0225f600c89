package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/field-tracker/internal/session"
	"github.com/roman-kulish/field-tracker/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) && *err == nil {
		*err = rErr
	}
}

func toSessionData(position int, s *session.Session) *sessionData {
	end := s.StartTime
	if s.EndTime != nil {
		end = *s.EndTime
	}

	return &sessionData{
		ID:        s.ID,
		Position:  position,
		StartTime: s.StartTime.String(),
		EndTime:   end.String(),
		DeviceID:  s.DeviceID,
	}
}

func fromSessionData(d *sessionData) (*session.Session, error) {
	start, err := time.Parse(time.RFC3339, d.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parsing start time of session %s: %w", d.ID, err)
	}

	end, err := time.Parse(time.RFC3339, d.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parsing end time of session %s: %w", d.ID, err)
	}

	endTime := session.NewTimestamp(end)
	return &session.Session{
		ID:        d.ID,
		StartTime: session.NewTimestamp(start),
		EndTime:   &endTime,
		DeviceID:  d.DeviceID,
		Packets:   []session.Packet{},
	}, nil
}

func toPacketData(sessionID string, seq int, p *session.Packet) *packetData {
	var snr *float64
	var rssi, freqErr *int
	if p.LinkQuality != nil {
		snr, rssi, freqErr = &p.LinkQuality.SNR, &p.LinkQuality.RSSI, &p.LinkQuality.FreqErr
	}

	return &packetData{
		SessionID:           sessionID,
		Seq:                 seq,
		Time:                p.Time,
		DeviceTime:          p.DeviceTime,
		Latitude:            p.Location.Latitude,
		Longitude:           p.Location.Longitude,
		Altitude:            p.Altitude,
		Speed:               p.Speed,
		Satellites:          p.Satellites,
		Temperature:         p.Environment.Temperature,
		Humidity:            p.Environment.Humidity,
		ExternalTemperature: p.Environment.ExternalTemperature,
		ExternalHumidity:    p.Environment.ExternalHumidity,
		Pressure:            p.Environment.Pressure,
		ApproxAltitude:      p.Environment.ApproxAltitude,
		HeartRate:           p.Health.HeartRateLast,
		FallDetected:        p.Health.FallDetected,
		ButtonPressed:       p.Health.ButtonPressed,

		SNR: sql.NullFloat64{
			Float64: toSQLNullType[float64](snr),
			Valid:   snr != nil,
		},
		RSSI: sql.NullInt64{
			Int64: toSQLNullType[int64](rssi),
			Valid: rssi != nil,
		},
		FreqErr: sql.NullInt64{
			Int64: toSQLNullType[int64](freqErr),
			Valid: freqErr != nil,
		},
	}
}

func fromPacketData(d *packetData) session.Packet {
	p := session.Packet{
		Time:       d.Time,
		DeviceTime: d.DeviceTime,
		Location: telemetry.Location{
			Latitude:  d.Latitude,
			Longitude: d.Longitude,
		},
		Altitude:   d.Altitude,
		Speed:      d.Speed,
		Satellites: d.Satellites,
		Environment: telemetry.Environment{
			Temperature:         d.Temperature,
			Humidity:            d.Humidity,
			ExternalTemperature: d.ExternalTemperature,
			ExternalHumidity:    d.ExternalHumidity,
			Pressure:            d.Pressure,
			ApproxAltitude:      d.ApproxAltitude,
		},
		Health: telemetry.Health{
			HeartRateLast: d.HeartRate,
			FallDetected:  d.FallDetected,
			ButtonPressed: d.ButtonPressed,
		},
	}

	// link quality is written as a whole, SNR alone tells whether it exists
	if d.SNR.Valid {
		p.LinkQuality = &telemetry.LinkQuality{
			SNR:     d.SNR.Float64,
			RSSI:    int(d.RSSI.Int64),
			FreqErr: int(d.FreqErr.Int64),
		}
	}
	return p
}

func toSQLNullType[T float64 | int64, Y float64 | int | int64](f *Y) T {
	if f == nil {
		return 0
	}
	return T(*f)
}
