package server

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/shravanasati/hearth/internal/metrics"
	"github.com/shravanasati/hearth/response"
)

const DefaultAddress = ":42069"

type ServerOpts struct {
	// The address for the server to listen on.
	Address string

	// ReadTimeout bounds reading the first request on a connection.
	ReadTimeout time.Duration

	// KeepAliveTimeout is how long an idle connection waits for its next
	// request. Zero closes every connection after one response.
	KeepAliveTimeout time.Duration

	// MaxConnections caps concurrently open connections. Zero means no limit.
	MaxConnections int

	// MaxBodySize caps request bodies. Zero selects request.DefaultMaxBodySize.
	MaxBodySize int64

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Recovery takes the value recovered from a panicking handler and returns
	// the response to send. The connection is closed afterwards.
	Recovery func(any) (response.StatusCode, string)
}

func (o *ServerOpts) setDefaults() {
	if o.Address == "" {
		o.Address = DefaultAddress
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Recovery == nil {
		logger := o.Logger
		o.Recovery = func(r any) (response.StatusCode, string) {
			logger.Error("recovered from panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			return response.StatusInternalServerError, response.GetStatusReason(response.StatusInternalServerError)
		}
	}
}
