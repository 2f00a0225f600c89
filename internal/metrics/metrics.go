package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "tracker_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once
	gatherer     prometheus.Gatherer

	payloadsReceived prometheus.Counter
	decodeErrors     *prometheus.CounterVec
	packetsRecorded  prometheus.Counter
	packetsDropped   prometheus.Counter
	sessionsClosed   prometheus.Counter
	persistTotal     *prometheus.CounterVec
	persistLatency   *prometheus.HistogramVec
)

// Init registers tracker metrics with reg. Only the first call has an effect.
// Until Init is called all recording functions are no-ops.
func Init(reg prometheus.Registerer, g prometheus.Gatherer) {
	registerOnce.Do(func() {
		gatherer = g

		payloadsReceived = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "payloads_received_total",
				Help: "Total payloads delivered by the transport",
			},
		)
		decodeErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "decode_errors_total",
				Help: "Total rejected payloads by reason",
			},
			[]string{"reason"},
		)
		packetsRecorded = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "packets_recorded_total",
				Help: "Total packets appended to an open session",
			},
		)
		packetsDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "packets_not_recorded_total",
				Help: "Total decoded samples received while no session was open",
			},
		)
		sessionsClosed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "sessions_closed_total",
				Help: "Total sessions closed",
			},
		)
		persistTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "persist_total",
				Help: "Total session store persists by result",
			},
			[]string{"result"},
		)
		persistLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "persist_latency_seconds",
				Help:    "Session store persist latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		reg.MustRegister(
			payloadsReceived,
			decodeErrors,
			packetsRecorded,
			packetsDropped,
			sessionsClosed,
			persistTotal,
			persistLatency,
		)
	})
}

// Handler returns the HTTP handler exposing registered metrics
func Handler() http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func PayloadReceived() {
	if payloadsReceived != nil {
		payloadsReceived.Inc()
	}
}

// DecodeError counts a rejected payload; reason is a short label such as
// "envelope", "structure" or "field"
func DecodeError(reason string) {
	if decodeErrors != nil {
		decodeErrors.WithLabelValues(reason).Inc()
	}
}

func PacketRecorded() {
	if packetsRecorded != nil {
		packetsRecorded.Inc()
	}
}

func PacketNotRecorded() {
	if packetsDropped != nil {
		packetsDropped.Inc()
	}
}

func SessionClosed() {
	if sessionsClosed != nil {
		sessionsClosed.Inc()
	}
}

func ObservePersist(ok bool, elapsed time.Duration) {
	if persistTotal == nil || persistLatency == nil {
		return
	}
	result := resultSuccess
	if !ok {
		result = resultError
	}
	persistTotal.WithLabelValues(result).Inc()
	persistLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}
