package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// SegmentDelimiter separates the top level segments of a message
	SegmentDelimiter = " | "

	// FieldDelimiter separates sub-fields within a segment
	FieldDelimiter = ","

	numSegments = 5
)

var errNotFinite = errors.New("value is not finite")

// Field names used in FieldParseError and StructureError
const (
	FieldTime                = "time"
	FieldLatitude            = "latitude"
	FieldLongitude           = "longitude"
	FieldAltitude            = "altitude"
	FieldSpeed               = "speed"
	FieldSatellites          = "satellites"
	FieldTemperature         = "temperature"
	FieldHumidity            = "humidity"
	FieldExternalTemperature = "externalTemperature"
	FieldExternalHumidity    = "externalHumidity"
	FieldPressure            = "pressure"
	FieldApproxAltitude      = "approxAltitude"
	FieldHeartRate           = "heartRate"
	FieldFallDetected        = "fallDetected"
	FieldButtonPressed       = "buttonPressed"
)

// Envelope is the JSON object the radio gateway emits for every received
// message, e.g.
//
//	{"sender":1, "recipient":255, "message":"19:42:58 | ...", "SNR":9.75, "RSSI":-33, "FreqErr":662}
type Envelope struct {
	Sender    int     `json:"sender"`
	Recipient int     `json:"recipient"`
	Message   string  `json:"message"`
	SNR       float64 `json:"SNR"`
	RSSI      int     `json:"RSSI"`
	FreqErr   int     `json:"FreqErr"`
}

// ParseEnvelope decodes a raw transport payload into an Envelope
func ParseEnvelope(raw []byte) (*Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidEnvelope)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return &env, nil
}

// Decode turns an envelope into a Sample. The message body must have exactly
// five segments:
//
//	<time> | <lat>,<lon> | <altitude>,<speed>,<satellites> | <temp>,<humidity>,<extTemp>,<extHumidity>,<pressure>,<approxAltitude> | <heartRate>,<fallDetected>,<buttonPressed>
//
// Either every field parses and a complete Sample is returned, or nil and an
// error matching ErrStructureMismatch or ErrFieldParse. Decode has no side
// effects and is safe for concurrent use.
func Decode(env *Envelope) (*Sample, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrInvalidEnvelope)
	}

	s, err := DecodeMessage(env.Message)
	if err != nil {
		return nil, err
	}

	s.LinkQuality = LinkQuality{
		SNR:     env.SNR,
		RSSI:    env.RSSI,
		FreqErr: env.FreqErr,
	}
	return s, nil
}

// DecodeMessage decodes a message body without an envelope. LinkQuality of the
// result is zero.
func DecodeMessage(message string) (*Sample, error) {
	segments := strings.Split(message, SegmentDelimiter)
	if len(segments) != numSegments {
		return nil, &StructureError{Segment: "message", Want: numSegments, Got: len(segments)}
	}

	timeValue := strings.TrimSpace(segments[0])
	if timeValue == "" {
		return nil, &FieldParseError{Field: FieldTime, Value: segments[0]}
	}

	location, err := splitSegment("location", segments[1], 2)
	if err != nil {
		return nil, err
	}
	motion, err := splitSegment("motion", segments[2], 3)
	if err != nil {
		return nil, err
	}
	environment, err := splitSegment("environment", segments[3], 6)
	if err != nil {
		return nil, err
	}
	health, err := splitSegment("health", segments[4], 3)
	if err != nil {
		return nil, err
	}

	coords, err := parseFloats(location, FieldLatitude, FieldLongitude)
	if err != nil {
		return nil, err
	}
	motionValues, err := parseFloats(motion[:2], FieldAltitude, FieldSpeed)
	if err != nil {
		return nil, err
	}
	satellites, err := parseInts(motion[2:], FieldSatellites)
	if err != nil {
		return nil, err
	}
	if satellites[0] < 0 {
		return nil, &FieldParseError{Field: FieldSatellites, Value: motion[2]}
	}
	env, err := parseFloats(environment,
		FieldTemperature,
		FieldHumidity,
		FieldExternalTemperature,
		FieldExternalHumidity,
		FieldPressure,
		FieldApproxAltitude,
	)
	if err != nil {
		return nil, err
	}
	hv, err := parseInts(health, FieldHeartRate, FieldFallDetected, FieldButtonPressed)
	if err != nil {
		return nil, err
	}

	return &Sample{
		Time: timeValue,
		Location: Location{
			Latitude:  coords[0],
			Longitude: coords[1],
		},
		Altitude:   motionValues[0],
		Speed:      motionValues[1],
		Satellites: satellites[0],
		Environment: Environment{
			Temperature:         env[0],
			Humidity:            env[1],
			ExternalTemperature: env[2],
			ExternalHumidity:    env[3],
			Pressure:            env[4],
			ApproxAltitude:      env[5],
		},
		Health: Health{
			HeartRateLast: hv[0],
			FallDetected:  hv[1],
			ButtonPressed: hv[2],
		},
	}, nil
}

// Format renders the message body of a Sample using the same grammar Decode
// accepts. Floats are written with the shortest representation that parses
// back to the identical value.
func Format(s *Sample) string {
	f := func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	i := strconv.Itoa

	segments := []string{
		s.Time,
		strings.Join([]string{f(s.Location.Latitude), f(s.Location.Longitude)}, FieldDelimiter),
		strings.Join([]string{f(s.Altitude), f(s.Speed), i(s.Satellites)}, FieldDelimiter),
		strings.Join([]string{
			f(s.Environment.Temperature),
			f(s.Environment.Humidity),
			f(s.Environment.ExternalTemperature),
			f(s.Environment.ExternalHumidity),
			f(s.Environment.Pressure),
			f(s.Environment.ApproxAltitude),
		}, FieldDelimiter),
		strings.Join([]string{i(s.Health.HeartRateLast), i(s.Health.FallDetected), i(s.Health.ButtonPressed)}, FieldDelimiter),
	}
	return strings.Join(segments, SegmentDelimiter)
}

// splitSegment splits a segment into exactly want sub-fields
func splitSegment(name, segment string, want int) ([]string, error) {
	fields := strings.Split(segment, FieldDelimiter)
	if len(fields) != want {
		return nil, &StructureError{Segment: name, Want: want, Got: len(fields)}
	}
	return fields, nil
}

func parseFloats(values []string, names ...string) ([]float64, error) {
	result := make([]float64, len(names))
	for i, name := range names {
		v, err := strconv.ParseFloat(strings.TrimSpace(values[i]), 64)
		if err != nil {
			return nil, &FieldParseError{Field: name, Value: values[i], Err: err}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &FieldParseError{Field: name, Value: values[i], Err: errNotFinite}
		}
		result[i] = v
	}
	return result, nil
}

func parseInts(values []string, names ...string) ([]int, error) {
	result := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(strings.TrimSpace(values[i]))
		if err != nil {
			return nil, &FieldParseError{Field: name, Value: values[i], Err: err}
		}
		result[i] = v
	}
	return result, nil
}
