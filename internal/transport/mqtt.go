package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesce     = 250 // milliseconds
)

// ErrConnectTimeout is returned when the broker does not accept the
// connection within MQTTConfig.ConnectTimeout
var ErrConnectTimeout = errors.New("mqtt connect timeout")

// MQTTConfig describes the broker a radio gateway publishes envelopes to
type MQTTConfig struct {
	Broker         string        // e.g. tcp://localhost:1883
	Topic          string        // topic the gateway publishes received envelopes on
	ClientID       string        // MQTT client identifier
	Username       string        // optional
	Password       string        // optional
	QoS            byte          // subscription QoS, 0..2
	ConnectTimeout time.Duration // initial connection timeout
	DeviceID       string        // reported to the handler on link events
}

// WithMQTTLogger sets the logger for the MQTT source
func WithMQTTLogger(logger *slog.Logger) func(*MQTTSource) {
	return func(s *MQTTSource) {
		s.logger = logger.With(
			slog.String("transport", "mqtt"),
			slog.String("broker", s.cfg.Broker),
			slog.String("topic", s.cfg.Topic),
		)
	}
}

// WithMQTTFailureThreshold sets the number of consecutive rejected payloads
// reported as a degraded link
func WithMQTTFailureThreshold(threshold int) func(*MQTTSource) {
	return func(s *MQTTSource) {
		s.failures.threshold = int32(threshold)
	}
}

// MQTTSource subscribes to a gateway topic. The device link is considered up
// while the broker connection is up: every (re)connect is reported with
// OnConnected and every connection loss with OnDisconnected.
type MQTTSource struct {
	cfg     MQTTConfig
	handler Handler

	newClient func(*mqtt.ClientOptions) mqtt.Client
	failures  failureMonitor
	logger    *slog.Logger
}

// NewMQTTSource creates an MQTTSource with a discard logger
func NewMQTTSource(cfg MQTTConfig, h Handler, options ...func(*MQTTSource)) *MQTTSource {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = cfg.Topic
	}

	s := MQTTSource{
		cfg:       cfg,
		handler:   h,
		newClient: mqtt.NewClient,
		failures:  failureMonitor{threshold: FailureThreshold},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Run connects to the broker and dispatches messages until ctx is cancelled.
// The client reconnects automatically after the initial connection.
func (s *MQTTSource) Run(ctx context.Context) error {
	client := s.newClient(s.clientOptions(ctx))

	token := client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("connecting to %s: %w", s.cfg.Broker, ErrConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to %s: %w", s.cfg.Broker, err)
	}

	<-ctx.Done()

	if client.IsConnected() {
		client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	}
	client.Disconnect(disconnectQuiesce)

	s.handler.OnDisconnected(context.WithoutCancel(ctx), s.cfg.DeviceID)
	s.logger.Info("mqtt source stopped")
	return nil
}

func (s *MQTTSource) clientOptions(ctx context.Context) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetCleanSession(true)

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage(ctx))
		if !token.WaitTimeout(s.cfg.ConnectTimeout) {
			s.logger.Error("failed to subscribe: timed out", slog.String("topic", s.cfg.Topic))
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Error(fmt.Sprintf("failed to subscribe: %s", err.Error()), slog.String("topic", s.cfg.Topic))
			return
		}

		s.logger.Info("link connected")
		s.handler.OnConnected(s.cfg.DeviceID)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn(fmt.Sprintf("connection lost: %s", err.Error()))
		s.handler.OnDisconnected(context.WithoutCancel(ctx), s.cfg.DeviceID)
	})

	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		s.logger.Debug("reconnecting")
	})

	return opts
}

func (s *MQTTSource) onMessage(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		payload := m.Payload()
		s.failures.record(s.logger, s.handler.OnPayloadReceived(ctx, payload), payload)
	}
}
