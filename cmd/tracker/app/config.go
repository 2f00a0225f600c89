package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/field-tracker/internal/export"
	"github.com/roman-kulish/field-tracker/internal/storage"
)

const (
	TransportLine = "line"
	TransportMQTT = "mqtt"

	// StdinPath selects standard input as the line transport stream
	StdinPath = "-"
)

// Environment variables overriding the configuration file
const (
	EnvLogLevel     = "TRACKER_LOG_LEVEL"
	EnvStoragePath  = "TRACKER_STORAGE_PATH"
	EnvMQTTBroker   = "TRACKER_MQTT_BROKER"
	EnvMQTTUsername = "TRACKER_MQTT_USERNAME"
	EnvMQTTPassword = "TRACKER_MQTT_PASSWORD"
)

var validTransports = map[string]struct{}{
	TransportLine: {},
	TransportMQTT: {},
}

var validBackends = map[string]struct{}{
	storage.BackendFile:   {},
	storage.BackendSqlite: {},
}

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Storage   StorageConfig   `yaml:"storage"`
	Transport TransportConfig `yaml:"transport"`
	Recording RecordingConfig `yaml:"recording"`
	Export    ExportConfig    `yaml:"export"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      string `yaml:"logLevel"`
	LogFile       string `yaml:"logFile"`       // optional rotating log file, in addition to stdout
	LogMaxSizeMB  int    `yaml:"logMaxSizeMB"`  // size in megabytes before the log file is rotated
	LogMaxBackups int    `yaml:"logMaxBackups"` // rotated files to keep
	LogMaxAgeDays int    `yaml:"logMaxAgeDays"` // days to keep rotated files
}

// Level returns the parsed log level, INFO if it is not valid
func (s *Settings) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// StorageConfig represents session store settings
type StorageConfig struct {
	Backend string `yaml:"backend"` // file or sqlite
	Path    string `yaml:"path"`
}

// TransportConfig represents the radio gateway connection
type TransportConfig struct {
	Type     string     `yaml:"type"`     // line or mqtt
	DeviceID string     `yaml:"deviceID"` // reported for link events, defaults to the line path or MQTT topic
	Line     LineConfig `yaml:"line"`
	MQTT     MQTTConfig `yaml:"mqtt"`
}

// LineConfig represents a newline delimited stream of envelopes
type LineConfig struct {
	Path string `yaml:"path"` // serial device, capture file or "-" for stdin
}

// MQTTConfig represents an MQTT broker the gateway publishes to
type MQTTConfig struct {
	Broker         string       `yaml:"broker"`
	Topic          string       `yaml:"topic"`
	ClientID       string       `yaml:"clientID"`
	Username       string       `yaml:"username"`
	Password       string       `yaml:"password"`
	QoS            byte         `yaml:"qos"`
	ConnectTimeout TimeDuration `yaml:"connectTimeout"`
}

// RecordingConfig represents the record command policy
type RecordingConfig struct {
	StartOnConnect bool `yaml:"startOnConnect"` // open a session every time the link comes up
}

// ExportConfig represents export settings
type ExportConfig struct {
	Directory string `yaml:"directory"`
	Format    string `yaml:"format"` // default export format
}

// MetricsConfig represents the Prometheus endpoint
type MetricsConfig struct {
	Listen string `yaml:"listen"` // e.g. ":9100", empty disables the endpoint
}

// NewConfig returns a configuration with defaults
func NewConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:      "INFO",
			LogMaxSizeMB:  10,
			LogMaxBackups: 3,
			LogMaxAgeDays: 28,
		},
		Storage: StorageConfig{
			Backend: storage.BackendFile,
			Path:    "data/sessions.json",
		},
		Transport: TransportConfig{
			Type: TransportLine,
			Line: LineConfig{Path: StdinPath},
			MQTT: MQTTConfig{
				Topic:          "tracker/rx",
				ClientID:       "field-tracker",
				QoS:            1,
				ConnectTimeout: NewTimeDuration(10 * time.Second),
			},
		},
		Recording: RecordingConfig{StartOnConnect: true},
		Export: ExportConfig{
			Directory: "exports",
			Format:    string(export.FormatJSON),
		},
	}
}

// LoadConfig reads the configuration file, applies environment overrides
// and validates the result
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if err := loadFromFile(cfg, path); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Settings.LogLevel = v
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(EnvMQTTBroker); v != "" {
		cfg.Transport.MQTT.Broker = v
	}
	if v := os.Getenv(EnvMQTTUsername); v != "" {
		cfg.Transport.MQTT.Username = v
	}
	if v := os.Getenv(EnvMQTTPassword); v != "" {
		cfg.Transport.MQTT.Password = v
	}
}

func (c *Config) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		return fmt.Errorf("app.Config: invalid log level: %s", c.Settings.LogLevel)
	}
	if c.Settings.LogFile != "" && c.Settings.LogMaxSizeMB <= 0 {
		return fmt.Errorf("app.Config: log file max size must be positive: %d given", c.Settings.LogMaxSizeMB)
	}

	if _, ok := validBackends[c.Storage.Backend]; !ok {
		return fmt.Errorf("app.Config: invalid storage backend: %s", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return errors.New("app.Config: storage path is required")
	}

	if err := c.Transport.Validate(); err != nil {
		return err
	}

	if c.Export.Format != "" {
		if _, err := export.ParseFormat(c.Export.Format); err != nil {
			return fmt.Errorf("app.Config: %w", err)
		}
	}

	return nil
}

func (c *TransportConfig) Validate() error {
	if _, ok := validTransports[c.Type]; !ok {
		return fmt.Errorf("app.Config: invalid transport type: %s", c.Type)
	}

	switch c.Type {
	case TransportLine:
		if c.Line.Path == "" {
			return errors.New("app.Config: line transport path is required")
		}

	case TransportMQTT:
		if c.MQTT.Broker == "" {
			return errors.New("app.Config: mqtt broker is required")
		}
		if c.MQTT.Topic == "" {
			return errors.New("app.Config: mqtt topic is required")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("app.Config: mqtt qos must be between 0 and 2: %d given", c.MQTT.QoS)
		}
		if err := c.MQTT.ConnectTimeout.Validate(); err != nil {
			return fmt.Errorf("app.Config: invalid mqtt connect timeout: %w", err)
		}
	}

	return nil
}

type TimeDuration time.Duration

func NewTimeDuration(d time.Duration) TimeDuration {
	return TimeDuration(d)
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d TimeDuration) Validate() error {
	duration := time.Duration(d)

	if duration < 0 {
		return fmt.Errorf("app.TimeDuration: must not be negative: %s", duration)
	}
	if duration > 0 && duration < time.Second {
		return fmt.Errorf("app.TimeDuration: must be at least 1 second: %s given", duration)
	}

	return nil
}

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}
