package handler

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/response"
)

var safeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}

var defaultDeny RequestHandler = HandlerFunc(func(c *conn.Connection) bool {
	c.WriteResponse(response.StatusForbidden, []byte(response.GetStatusReason(response.StatusForbidden)))
	return true
})

func validateOrigin(o string) error {
	u, err := url.Parse(o)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", o, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("invalid origin %q: scheme is required", o)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid origin %q: host is required", o)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid origin %q: path, query, and fragment are not allowed", o)
	}
	return nil
}

// CrossOriginProtection rejects non-safe requests coming from another origin,
// judged by Sec-Fetch-Site or, failing that, Origin against Host. Allowed
// requests fall through to the next handler.
type CrossOriginProtection struct {
	trustedMu      sync.RWMutex
	trustedOrigins map[string]bool
	deny           atomic.Pointer[RequestHandler] // nil selects defaultDeny
}

// NewCrossOriginProtection returns an error when a trusted origin is not a
// bare scheme://host[:port].
func NewCrossOriginProtection(trustedOrigins ...string) (*CrossOriginProtection, error) {
	p := &CrossOriginProtection{trustedOrigins: make(map[string]bool)}
	for _, o := range trustedOrigins {
		if err := validateOrigin(o); err != nil {
			return nil, err
		}
		p.trustedOrigins[o] = true
	}
	return p, nil
}

// AddTrustedOrigin is safe to call while requests are being handled.
func (p *CrossOriginProtection) AddTrustedOrigin(origin string) error {
	if err := validateOrigin(origin); err != nil {
		return err
	}
	p.trustedMu.Lock()
	p.trustedOrigins[origin] = true
	p.trustedMu.Unlock()
	return nil
}

// SetDenyHandler replaces the 403 response; nil restores it.
func (p *CrossOriginProtection) SetDenyHandler(h RequestHandler) {
	if h == nil {
		p.deny.Store(nil)
		return
	}
	p.deny.Store(&h)
}

func (p *CrossOriginProtection) denied(c *conn.Connection) bool {
	if h := p.deny.Load(); h != nil {
		return (*h).Handle(c)
	}
	return defaultDeny.Handle(c)
}

func (p *CrossOriginProtection) Handle(c *conn.Connection) bool {
	r := c.Request()
	if r == nil || slices.Contains(safeMethods, r.Method) {
		return false
	}

	origin := r.Headers.Get("Origin")
	p.trustedMu.RLock()
	trusted := origin != "" && p.trustedOrigins[origin]
	p.trustedMu.RUnlock()
	if trusted {
		return false
	}

	if site := strings.ToLower(r.Headers.Get("Sec-Fetch-Site")); site != "" {
		if site == "same-origin" || site == "none" {
			return false
		}
		return p.denied(c)
	}

	if origin == "" {
		return false
	}
	if o, err := url.Parse(origin); err == nil && o.Host == r.Headers.Get("Host") {
		return false
	}
	return p.denied(c)
}
