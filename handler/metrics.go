package handler

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/response"
)

// MetricsEndpoint serves the Prometheus text exposition of a gatherer at a
// fixed path and ignores every other path.
type MetricsEndpoint struct {
	path     string
	gatherer prometheus.Gatherer
}

func NewMetricsEndpoint(path string, g prometheus.Gatherer) *MetricsEndpoint {
	if path == "" {
		path = "/metrics"
	}
	return &MetricsEndpoint{path: path, gatherer: g}
}

func (m *MetricsEndpoint) Handle(c *conn.Connection) bool {
	if c.Path() != m.path {
		return false
	}

	families, err := m.gatherer.Gather()
	if err != nil {
		c.WriteResponse(response.StatusInternalServerError, []byte(err.Error()))
		return true
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			c.WriteResponse(response.StatusInternalServerError, []byte(err.Error()))
			return true
		}
	}

	c.SetHeader("Content-Type", string(format))
	c.WriteResponse(response.StatusOK, buf.Bytes())
	return true
}
