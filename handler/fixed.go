package handler

import (
	"sync"

	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/response"
)

// Fixed answers every request with the same status and body without looking
// at the request.
type Fixed struct {
	mu         sync.RWMutex
	statusCode response.StatusCode
	content    []byte
	onChange   func()
}

func NewFixed(statusCode response.StatusCode, content []byte) *Fixed {
	return &Fixed{statusCode: statusCode, content: content}
}

// NewNotFound returns the usual last member of a top level chain: a Fixed
// answering 404.
func NewNotFound() *Fixed {
	return NewFixed(response.StatusNotFound, []byte(response.GetStatusReason(response.StatusNotFound)))
}

func (f *Fixed) StatusCode() response.StatusCode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.statusCode
}

func (f *Fixed) Content() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.content
}

// SetStatusCode applies to requests handled after it returns.
func (f *Fixed) SetStatusCode(code response.StatusCode) {
	f.mu.Lock()
	f.statusCode = code
	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetContent applies to requests handled after it returns.
func (f *Fixed) SetContent(content []byte) {
	f.mu.Lock()
	f.content = content
	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// OnChange registers fn to be called after either setter runs.
func (f *Fixed) OnChange(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = fn
}

func (f *Fixed) Handle(c *conn.Connection) bool {
	f.mu.RLock()
	status, content := f.statusCode, f.content
	f.mu.RUnlock()

	if len(content) > 0 && !c.Header().Has("Content-Type") {
		c.SetHeader("Content-Type", "text/plain; charset=utf-8")
	}
	c.WriteResponse(status, content)
	return true
}
