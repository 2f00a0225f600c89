package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, reg)

	PayloadReceived()
	PayloadReceived()
	DecodeError("structure")
	DecodeError("field")
	DecodeError("field")
	PacketRecorded()
	PacketNotRecorded()
	SessionClosed()
	ObservePersist(true, 10*time.Millisecond)
	ObservePersist(false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(payloadsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(decodeErrors.WithLabelValues("structure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(decodeErrors.WithLabelValues("field")))
	assert.Equal(t, 1.0, testutil.ToFloat64(packetsRecorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(packetsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(sessionsClosed))
	assert.Equal(t, 1.0, testutil.ToFloat64(persistTotal.WithLabelValues(resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(persistTotal.WithLabelValues(resultError)))

	// second Init is ignored
	Init(prometheus.NewRegistry(), nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(payloadsReceived))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tracker_payloads_received_total 2")
}
