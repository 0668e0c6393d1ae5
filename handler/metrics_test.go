package handler

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shravanasati/hearth/internal/metrics"
	"github.com/stretchr/testify/assert"
)

type failingGatherer struct{}

func (failingGatherer) Gather() ([]*dto.MetricFamily, error) {
	return nil, errors.New("collector exploded")
}

func TestMetricsEndpoint(t *testing.T) {
	l := startLoop(t)
	m := metrics.New()
	m.ObserveRequest("GET", 200, 0)
	endpoint := NewMetricsEndpoint("", m.Gatherer())

	c, _ := newConn(t, l, "GET", "/index.html")
	onLoop(t, l, func() { assert.False(t, endpoint.Handle(c)) })

	c, client := newConn(t, l, "GET", "/metrics")
	onLoop(t, l, func() { assert.True(t, endpoint.Handle(c)) })
	res, body := readResponse(t, client, "GET")
	assert.Equal(t, 200, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/plain")
	assert.Contains(t, body, `hearth_requests_total{method="GET",status="2xx"} 1`)
}

func TestMetricsEndpointGatherError(t *testing.T) {
	l := startLoop(t)
	var g prometheus.Gatherer = failingGatherer{}
	endpoint := NewMetricsEndpoint("/internal/metrics", g)

	c, client := newConn(t, l, "GET", "/internal/metrics")
	onLoop(t, l, func() { endpoint.Handle(c) })
	res, body := readResponse(t, client, "GET")
	assert.Equal(t, 500, res.StatusCode)
	assert.Equal(t, "collector exploded", body)
}
