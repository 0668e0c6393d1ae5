package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(200))
	assert.Equal(t, "4xx", StatusClass(404))
	assert.Equal(t, "5xx", StatusClass(599))
	assert.Equal(t, "unknown", StatusClass(42))
	assert.Equal(t, "unknown", StatusClass(600))
}

func TestMetricsRecord(t *testing.T) {
	m := New()

	m.ObserveRequest("GET", 200, 3*time.Millisecond)
	m.ObserveRequest("GET", 404, time.Millisecond)
	m.ObserveRequest("GET", 204, time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "4xx")))

	m.TransferStarted()
	m.TransferStarted()
	m.TransferChunk(524288)
	m.TransferChunk(100)
	m.TransferFinished(OutcomeCompleted)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransfersActive))
	assert.Equal(t, 524388.0, testutil.ToFloat64(m.TransferBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransfersTotal.WithLabelValues(OutcomeCompleted)))

	m.ConnectionOpened()
	m.ConnectionClosed()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConnectionsActive))

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	require.Contains(t, byName, "hearth_request_duration_seconds")
	hist := byName["hearth_request_duration_seconds"].GetMetric()[0].GetHistogram()
	assert.EqualValues(t, 3, hist.GetSampleCount())
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("GET", 200, time.Second)
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.TransferStarted()
		m.TransferChunk(10)
		m.TransferFinished(OutcomeFailed)
	})

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}
