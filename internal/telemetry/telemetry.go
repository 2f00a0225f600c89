package telemetry

// Location is a GPS fix in decimal degrees. The device reports (0, 0) when it
// has no fix; the value is kept as is and IsZero lets callers apply their own
// policy.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether the location is the no-fix sentinel.
func (l Location) IsZero() bool {
	return l.Latitude == 0 && l.Longitude == 0
}

// Environment holds the environmental sensor block of a message
type Environment struct {
	Temperature         float64 `json:"temperature"`         // Internal temperature in °C
	Humidity            float64 `json:"humidity"`            // Internal relative humidity in %
	ExternalTemperature float64 `json:"externalTemperature"` // External probe temperature in °C
	ExternalHumidity    float64 `json:"externalHumidity"`    // External probe relative humidity in %
	Pressure            float64 `json:"pressure"`            // Barometric pressure in hPa
	ApproxAltitude      float64 `json:"approxAltitude"`      // Barometric altitude estimate in meters
}

// Health holds the wearer health block of a message. FallDetected and
// ButtonPressed are 0/1 flags.
type Health struct {
	HeartRateLast int `json:"heartrateValueLast"`
	FallDetected  int `json:"fallDetected"`
	ButtonPressed int `json:"buttonPressed"`
}

// IsFallDetected reports whether the fall flag is raised
func (h Health) IsFallDetected() bool {
	return h.FallDetected != 0
}

// IsButtonPressed reports whether the panic button flag is raised
func (h Health) IsButtonPressed() bool {
	return h.ButtonPressed != 0
}

// LinkQuality is copied verbatim from the radio envelope
type LinkQuality struct {
	SNR     float64 `json:"snr"`     // Signal-to-noise ratio in dB
	RSSI    int     `json:"rssi"`    // Received signal strength in dBm
	FreqErr int     `json:"freqErr"` // Frequency error in Hz
}

// Sample is one fully decoded telemetry message. It is never partially
// populated: Decode either fills every field or returns an error.
type Sample struct {
	Time        string      `json:"time"`        // Device wall clock, HH:MM:SS, not validated
	Location    Location    `json:"location"`    // GPS position
	Altitude    float64     `json:"altitude"`    // GPS altitude in meters
	Speed       float64     `json:"speed"`       // Ground speed
	Satellites  int         `json:"satellites"`  // Satellites in view
	Environment Environment `json:"environment"` // Environmental sensors
	Health      Health      `json:"health"`      // Health sensors
	LinkQuality LinkQuality `json:"linkQuality"` // Radio link metrics from the envelope
}
