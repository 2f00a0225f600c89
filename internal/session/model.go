package session

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/field-tracker/internal/telemetry"
)

// PacketTimeLayout is the layout of Packet.Time, the recording time assigned
// by the recorder
const PacketTimeLayout = time.TimeOnly

// Packet is one decoded sample stamped with the time it was recorded. The
// device-reported clock is kept separately in DeviceTime.
type Packet struct {
	Time        string                 `json:"time"`                  // Recording time, HH:MM:SS
	Location    telemetry.Location     `json:"location"`              // GPS position
	Altitude    float64                `json:"altitude"`              // GPS altitude in meters
	Speed       float64                `json:"speed"`                 // Ground speed
	Satellites  int                    `json:"satellites"`            // Satellites in view
	Environment telemetry.Environment  `json:"environment"`           // Environmental sensors
	Health      telemetry.Health       `json:"health"`                // Health sensors
	DeviceTime  string                 `json:"deviceTime,omitempty"`  // Device wall clock as received
	LinkQuality *telemetry.LinkQuality `json:"linkQuality,omitempty"` // Radio link metrics, if recorded
}

// NewPacket stamps a sample with the recording time
func NewPacket(recordedAt time.Time, s *telemetry.Sample) Packet {
	lq := s.LinkQuality
	return Packet{
		Time:        recordedAt.Format(PacketTimeLayout),
		Location:    s.Location,
		Altitude:    s.Altitude,
		Speed:       s.Speed,
		Satellites:  s.Satellites,
		Environment: s.Environment,
		Health:      s.Health,
		DeviceTime:  s.Time,
		LinkQuality: &lq,
	}
}

// Equal reports whether two packets share recording time and location
func (p Packet) Equal(o Packet) bool {
	return p.Time == o.Time && p.Location == o.Location
}

// Sample returns the telemetry carried by the packet
func (p Packet) Sample() telemetry.Sample {
	s := telemetry.Sample{
		Time:        p.DeviceTime,
		Location:    p.Location,
		Altitude:    p.Altitude,
		Speed:       p.Speed,
		Satellites:  p.Satellites,
		Environment: p.Environment,
		Health:      p.Health,
	}
	if p.LinkQuality != nil {
		s.LinkQuality = *p.LinkQuality
	}
	return s
}

// Session is one continuous recording interval. It is open while EndTime is
// nil; closed sessions are never mutated.
type Session struct {
	ID        string     `json:"id"`
	StartTime Timestamp  `json:"startTime"`
	EndTime   *Timestamp `json:"endTime,omitempty"`
	DeviceID  string     `json:"deviceID,omitempty"`
	Packets   []Packet   `json:"packets"`
}

// IsOpen reports whether the session is still recording
func (s *Session) IsOpen() bool {
	return s.EndTime == nil
}

// Duration returns the time between start and end, zero for open sessions
func (s *Session) Duration() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Time().Sub(s.StartTime.Time())
}

// Path returns packet locations in recording order
func (s *Session) Path() []telemetry.Location {
	path := make([]telemetry.Location, len(s.Packets))
	for i, p := range s.Packets {
		path[i] = p.Location
	}
	return path
}

// Clone returns a copy that shares nothing mutable with s
func (s *Session) Clone() *Session {
	c := *s
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	c.Packets = slices.Clone(s.Packets)
	for i := range c.Packets {
		if lq := c.Packets[i].LinkQuality; lq != nil {
			v := *lq
			c.Packets[i].LinkQuality = &v
		}
	}
	if c.Packets == nil {
		c.Packets = []Packet{}
	}
	return &c
}

// SizeEstimate returns the size in bytes of the structured encoding of s
func SizeEstimate(s *Session) int {
	p, err := json.Marshal(s)
	if err != nil {
		return 0
	}
	return len(p)
}

// HumanSize returns SizeEstimate formatted for display, e.g. "1.2 KiB"
func HumanSize(s *Session) string {
	return humanize.IBytes(uint64(SizeEstimate(s)))
}
