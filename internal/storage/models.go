package storage

import (
	"database/sql"

	"github.com/roman-kulish/field-tracker/internal/session"
)

type sessionData struct {
	ID        string
	Position  int
	StartTime string
	EndTime   string
	DeviceID  string
}

type packetData struct {
	SessionID           string
	Seq                 int
	Time                string
	DeviceTime          string
	Latitude            float64
	Longitude           float64
	Altitude            float64
	Speed               float64
	Satellites          int
	Temperature         float64
	Humidity            float64
	ExternalTemperature float64
	ExternalHumidity    float64
	Pressure            float64
	ApproxAltitude      float64
	HeartRate           int
	FallDetected        int
	ButtonPressed       int
	SNR                 sql.NullFloat64
	RSSI                sql.NullInt64
	FreqErr             sql.NullInt64
}

// fileSnapshot is the on-disk layout of FileStore
type fileSnapshot struct {
	Version  int               `json:"version"`
	Sessions []session.Session `json:"sessions"`
}
