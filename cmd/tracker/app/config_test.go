package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: DEBUG
  logFile: tracker.log
storage:
  backend: sqlite
  path: data/sessions.db
transport:
  type: mqtt
  deviceID: tracker-1
  mqtt:
    broker: tcp://localhost:1883
    topic: gateway/rx
    qos: 2
    connectTimeout: 30s
recording:
  startOnConnect: false
export:
  directory: out
  format: csv
metrics:
  listen: ":9100"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.Settings.Level())
	assert.Equal(t, "tracker.log", cfg.Settings.LogFile)
	assert.Equal(t, 10, cfg.Settings.LogMaxSizeMB, "defaults are kept for missing keys")
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "data/sessions.db", cfg.Storage.Path)
	assert.Equal(t, TransportMQTT, cfg.Transport.Type)
	assert.Equal(t, "tracker-1", cfg.Transport.DeviceID)
	assert.Equal(t, "gateway/rx", cfg.Transport.MQTT.Topic)
	assert.Equal(t, "field-tracker", cfg.Transport.MQTT.ClientID)
	assert.Equal(t, byte(2), cfg.Transport.MQTT.QoS)
	assert.Equal(t, 30*time.Second, cfg.Transport.MQTT.ConnectTimeout.Duration())
	assert.False(t, cfg.Recording.StartOnConnect)
	assert.Equal(t, "out", cfg.Export.Directory)
	assert.Equal(t, "csv", cfg.Export.Format)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}"))
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
	assert.Equal(t, slog.LevelInfo, cfg.Settings.Level())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "WARN")
	t.Setenv(EnvStoragePath, "/var/lib/tracker/sessions.json")
	t.Setenv(EnvMQTTBroker, "ssl://broker:8883")
	t.Setenv(EnvMQTTUsername, "gateway")
	t.Setenv(EnvMQTTPassword, "secret")

	cfg, err := LoadConfig(writeConfig(t, "transport:\n  type: mqtt\n"))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelWarn, cfg.Settings.Level())
	assert.Equal(t, "/var/lib/tracker/sessions.json", cfg.Storage.Path)
	assert.Equal(t, "ssl://broker:8883", cfg.Transport.MQTT.Broker)
	assert.Equal(t, "gateway", cfg.Transport.MQTT.Username)
	assert.Equal(t, "secret", cfg.Transport.MQTT.Password)
}

func TestLoadConfig_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"log level", "settings:\n  logLevel: LOUD\n"},
		{"log size", "settings:\n  logFile: x.log\n  logMaxSizeMB: 0\n"},
		{"backend", "storage:\n  backend: redis\n"},
		{"storage path", "storage:\n  path: \"\"\n"},
		{"transport", "transport:\n  type: ble\n"},
		{"line path", "transport:\n  line:\n    path: \"\"\n"},
		{"mqtt broker", "transport:\n  type: mqtt\n"},
		{"mqtt qos", "transport:\n  type: mqtt\n  mqtt:\n    broker: tcp://b:1883\n    qos: 3\n"},
		{"mqtt timeout", "transport:\n  type: mqtt\n  mqtt:\n    broker: tcp://b:1883\n    connectTimeout: 10ms\n"},
		{"duration", "transport:\n  mqtt:\n    connectTimeout: soon\n"},
		{"export format", "export:\n  format: kml\n"},
		{"yaml", "settings: ["},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTimeDuration(t *testing.T) {
	d := NewTimeDuration(90 * time.Second)
	assert.Equal(t, "1m30s", d.String())

	v, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", v)

	assert.NoError(t, NewTimeDuration(0).Validate())
	assert.Error(t, NewTimeDuration(-time.Second).Validate())
	assert.Error(t, NewTimeDuration(time.Millisecond).Validate())
}
