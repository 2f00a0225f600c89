package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/field-tracker/internal/metrics"
	"github.com/roman-kulish/field-tracker/internal/session"
	"github.com/roman-kulish/field-tracker/internal/tracker"
	"github.com/roman-kulish/field-tracker/internal/transport"
)

const shutdownTimeout = 5 * time.Second

// source is a running transport
type source interface {
	Run(ctx context.Context) error
}

// WithStdin sets the stream used when the line transport path is "-"
func WithStdin(r io.Reader) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.stdin = r
	}
}

// Orchestrator wires the configured transport to the tracker and the
// session recorder and runs them until the context is cancelled or the
// transport ends.
type Orchestrator struct {
	config  *Config
	rec     *session.Recorder
	tracker *tracker.Tracker

	stdin  io.Reader
	logger *slog.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(config *Config, rec *session.Recorder, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		config:  config,
		rec:     rec,
		tracker: tracker.New(rec, tracker.WithLogger(logger)),
		stdin:   os.Stdin,
		logger:  logger,
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// Run records until ctx is cancelled or the transport ends. Shutdown is
// handled as a host suspension: the open session is closed and the store is
// persisted.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	if o.config.Metrics.Listen != "" {
		metrics.Init(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)

		stop := o.serveMetrics(o.config.Metrics.Listen)
		defer stop()
	}

	src, closeSource, err := o.createSource()
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}
	defer closeSource()

	o.logger.Info("recording started", slog.String("transport", o.config.Transport.Type))

	runErr := src.Run(ctx)
	if runErr != nil {
		runErr = fmt.Errorf("transport stopped: %w", runErr)
	}

	suspendErr := o.tracker.OnSuspend(context.WithoutCancel(ctx))
	if suspendErr != nil {
		suspendErr = fmt.Errorf("saving sessions on shutdown: %w", suspendErr)
	}

	o.logger.Info("recording stopped", slog.Int("sessions", len(o.rec.Sessions())))
	return errors.Join(runErr, suspendErr)
}

func (o *Orchestrator) createSource() (source, func(), error) {
	handler := o.handler()
	cfg := &o.config.Transport

	switch cfg.Type {
	case TransportLine:
		deviceID := cfg.DeviceID
		if deviceID == "" {
			deviceID = cfg.Line.Path
		}

		r, closer, err := o.openLine(cfg.Line.Path)
		if err != nil {
			return nil, nil, err
		}
		return transport.NewLineSource(deviceID, r, handler, transport.WithLineLogger(o.logger)), closer, nil

	case TransportMQTT:
		mqttConfig := transport.MQTTConfig{
			Broker:         cfg.MQTT.Broker,
			Topic:          cfg.MQTT.Topic,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			QoS:            cfg.MQTT.QoS,
			ConnectTimeout: cfg.MQTT.ConnectTimeout.Duration(),
			DeviceID:       cfg.DeviceID,
		}
		return transport.NewMQTTSource(mqttConfig, handler, transport.WithMQTTLogger(o.logger)), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport type '%s'", cfg.Type)
	}
}

func (o *Orchestrator) openLine(path string) (io.Reader, func(), error) {
	if path == StdinPath {
		return o.stdin, func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

func (o *Orchestrator) handler() transport.Handler {
	if !o.config.Recording.StartOnConnect {
		return o.tracker
	}
	return &startOnConnect{Tracker: o.tracker, logger: o.logger}
}

func (o *Orchestrator) serveMetrics(addr string) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		o.logger.Info("serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error(fmt.Sprintf("metrics server failed: %s", err.Error()))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// startOnConnect opens a session whenever the link comes up. It is the
// record command acting on behalf of the operator; the tracker itself never
// starts recording on connect.
type startOnConnect struct {
	*tracker.Tracker
	logger *slog.Logger
}

func (h *startOnConnect) OnConnected(deviceID string) {
	h.Tracker.OnConnected(deviceID)

	id, err := h.StartRecording()
	if err != nil && !errors.Is(err, session.ErrAlreadyRecording) {
		h.logger.Error(fmt.Sprintf("failed to start recording: %s", err.Error()))
		return
	}
	h.logger.Info("recording session", slog.String("session", id))
}
