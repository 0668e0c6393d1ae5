package handler

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/internal/metrics"
)

type LogOption func(*RequestLog)

// WithColor renders the method and status code with terminal colors.
func WithColor(enabled bool) LogOption {
	return func(l *RequestLog) { l.colored = enabled }
}

func WithLogMetrics(m *metrics.Metrics) LogOption {
	return func(l *RequestLog) { l.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) LogOption {
	return func(l *RequestLog) { l.now = now }
}

type pendingRequest struct {
	start     time.Time
	completed *conn.Subscription
	destroyed *conn.Subscription
}

// RequestLog times every request passing through it and writes one line per
// completed request:
//
//	GET /index.html 200 2000000 in 12.5ms
//
// The path is the decoded request path, without the query string. A request
// whose connection is destroyed before the response completes is forgotten
// without a line.
type RequestLog struct {
	next    RequestHandler
	colored bool
	metrics *metrics.Metrics
	now     func() time.Time

	// pending is only touched on the loop
	pending map[uuid.UUID]*pendingRequest

	wmu sync.Mutex
	w   io.Writer
}

// NewRequestLog wraps next. A nil w discards log lines.
func NewRequestLog(next RequestHandler, w io.Writer, opts ...LogOption) *RequestLog {
	l := &RequestLog{
		next:    next,
		now:     time.Now,
		pending: make(map[uuid.UUID]*pendingRequest),
		w:       w,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetWriter swaps the log sink. It is safe to call from any goroutine.
func (l *RequestLog) SetWriter(w io.Writer) {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	l.w = w
}

func (l *RequestLog) Writer() io.Writer {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return l.w
}

// Pending returns the number of requests in flight. Loop only.
func (l *RequestLog) Pending() int {
	return len(l.pending)
}

func (l *RequestLog) Handle(c *conn.Connection) bool {
	if c.Destroyed() {
		return l.next.Handle(c)
	}

	id := c.ID()
	if stale, ok := l.pending[id]; ok {
		stale.completed.Cancel()
		stale.destroyed.Cancel()
	}

	p := &pendingRequest{start: l.now()}
	p.completed = c.OnCompleted(l.requestCompleted)
	p.destroyed = c.OnDestroyed(l.requestDestroyed)
	l.pending[id] = p

	return l.next.Handle(c)
}

func (l *RequestLog) requestCompleted(c *conn.Connection) {
	p, ok := l.pending[c.ID()]
	if !ok {
		return
	}
	delete(l.pending, c.ID())
	p.destroyed.Cancel()

	elapsed := l.now().Sub(p.start)
	l.metrics.ObserveRequest(c.Method(), int(c.StatusCode()), elapsed)
	l.write(l.format(c, elapsed))
}

func (l *RequestLog) requestDestroyed(c *conn.Connection) {
	p, ok := l.pending[c.ID()]
	if !ok {
		return
	}
	delete(l.pending, c.ID())
	p.completed.Cancel()
}

func (l *RequestLog) format(c *conn.Connection, elapsed time.Duration) string {
	method := c.Method()
	status := fmt.Sprintf("%d", c.StatusCode())

	if l.colored {
		method = methodStyle.Render(method)
		status = statusCodeStyle(int(c.StatusCode())).Render(status)
	}
	return fmt.Sprintf("%s %s %s %d in %s\n", method, c.Path(), status, c.ResponseSize(), elapsed)
}

// write drops the line when there is no sink or the sink fails.
func (l *RequestLog) write(line string) {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if l.w == nil {
		return
	}
	_, _ = io.WriteString(l.w, line)
}

var methodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true).Background(lipgloss.Color("12")).Width(8).Align(lipgloss.Center)

func statusCodeStyle(statusCode int) lipgloss.Style {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	case statusCode >= 300 && statusCode < 400:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	case statusCode >= 400 && statusCode < 500:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	case statusCode >= 500:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	}
}
