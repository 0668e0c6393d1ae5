package handler

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/headers"
	"github.com/shravanasati/hearth/request"
	"github.com/shravanasati/hearth/response"
)

// CORSOptions configures a CORS handler.
type CORSOptions struct {
	// AllowedOrigins is a list of origins a cross-domain request can be executed from.
	// "*" allows every origin. An origin may contain one wildcard replacing 0 or more
	// characters, eg. http://*.domain.com. Default is ["*"].
	AllowedOrigins []string

	// AllowOriginFunc overrides AllowedOrigins when set.
	AllowOriginFunc func(r *request.Request, origin string) bool

	// AllowedMethods defaults to the simple methods (HEAD, GET and POST).
	AllowedMethods []string

	// AllowedHeaders lists non simple headers the client may send. "*" allows all.
	// Default is [] but "Origin" is always appended.
	AllowedHeaders []string

	ExposedHeaders   []string
	AllowCredentials bool

	// MaxAge is how long, in seconds, preflight results may be cached.
	MaxAge int

	// OptionsPassthrough lets preflight requests continue down the chain after
	// the CORS headers are set.
	OptionsPassthrough bool
}

// CORS adds cross-origin headers to every response and answers preflight
// requests itself. For anything that is not a preflight request it returns
// false, so it is placed ahead of the handlers that produce content.
type CORS struct {
	allowedOrigins  []string
	allowedWOrigins []wildcard
	allowOriginFunc func(r *request.Request, origin string) bool
	allowedHeaders  []string
	allowedMethods  []string
	exposedHeaders  []string
	maxAge          int

	allowedOriginsAll bool
	allowedHeadersAll bool

	allowCredentials  bool
	optionPassthrough bool
}

func NewCORS(options CORSOptions) *CORS {
	c := &CORS{
		exposedHeaders:    convert(options.ExposedHeaders, http.CanonicalHeaderKey),
		allowOriginFunc:   options.AllowOriginFunc,
		allowCredentials:  options.AllowCredentials,
		maxAge:            options.MaxAge,
		optionPassthrough: options.OptionsPassthrough,
	}

	// origins and methods are matched case-insensitively
	if len(options.AllowedOrigins) == 0 {
		if options.AllowOriginFunc == nil {
			c.allowedOriginsAll = true
		}
	} else {
		for _, origin := range options.AllowedOrigins {
			origin = strings.ToLower(origin)
			if origin == "*" {
				c.allowedOriginsAll = true
				c.allowedOrigins = nil
				c.allowedWOrigins = nil
				break
			} else if i := strings.IndexByte(origin, '*'); i >= 0 {
				c.allowedWOrigins = append(c.allowedWOrigins, wildcard{origin[0:i], origin[i+1:]})
			} else {
				c.allowedOrigins = append(c.allowedOrigins, origin)
			}
		}
	}

	if len(options.AllowedHeaders) == 0 {
		c.allowedHeaders = []string{"Origin", "Accept", "Content-Type"}
	} else {
		// browsers may always ask for Origin at preflight
		c.allowedHeaders = convert(append(slices.Clone(options.AllowedHeaders), "Origin"), http.CanonicalHeaderKey)
		if slices.Contains(options.AllowedHeaders, "*") {
			c.allowedHeadersAll = true
			c.allowedHeaders = nil
		}
	}

	if len(options.AllowedMethods) == 0 {
		c.allowedMethods = []string{"GET", "POST", "HEAD"}
	} else {
		c.allowedMethods = convert(options.AllowedMethods, strings.ToUpper)
	}

	return c
}

// AllowAllCORS allows all origins with the standard methods and any header.
func AllowAllCORS() *CORS {
	return NewCORS(CORSOptions{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			string(request.DELETE),
			string(request.HEAD),
			string(request.GET),
			string(request.POST),
			string(request.PUT),
			string(request.PATCH),
		},
		AllowedHeaders: []string{"*"},
	})
}

func (h *CORS) Handle(c *conn.Connection) bool {
	r := c.Request()
	if r == nil {
		return false
	}

	if r.Method == string(request.OPTIONS) && r.Headers.Get("Access-Control-Request-Method") != "" && r.Headers.Get("Origin") != "" {
		applyHeaders(c, h.preflightHeaders(r))
		if h.optionPassthrough {
			return false
		}
		c.WriteResponse(response.StatusNoContent, nil)
		return true
	}

	applyHeaders(c, h.actualRequestHeaders(r))
	return false
}

func applyHeaders(c *conn.Connection, hdrs *headers.Headers) {
	for k, v := range hdrs.All() {
		c.SetHeader(k, v)
	}
}

func (h *CORS) preflightHeaders(r *request.Request) *headers.Headers {
	hdrs := headers.NewHeaders()
	origin := r.Headers.Get("Origin")

	hdrs.Add("Vary", "Origin")
	hdrs.Add("Vary", "Access-Control-Request-Method")
	hdrs.Add("Vary", "Access-Control-Request-Headers")

	if !h.isOriginAllowed(r, origin) {
		return hdrs
	}
	reqMethod := r.Headers.Get("Access-Control-Request-Method")
	if !h.isMethodAllowed(reqMethod) {
		return hdrs
	}
	reqHeaders := parseHeaderList(r.Headers.Get("Access-Control-Request-Headers"))
	if !h.areHeadersAllowed(reqHeaders) {
		return hdrs
	}

	if h.allowedOriginsAll {
		hdrs.Set("Access-Control-Allow-Origin", "*")
	} else {
		hdrs.Set("Access-Control-Allow-Origin", origin)
	}
	// echoing the requested method and headers is enough
	hdrs.Set("Access-Control-Allow-Methods", strings.ToUpper(reqMethod))
	if len(reqHeaders) > 0 {
		hdrs.Set("Access-Control-Allow-Headers", strings.Join(reqHeaders, ", "))
	}
	if h.allowCredentials {
		hdrs.Set("Access-Control-Allow-Credentials", "true")
	}
	if h.maxAge > 0 {
		hdrs.Set("Access-Control-Max-Age", strconv.Itoa(h.maxAge))
	}
	return hdrs
}

func (h *CORS) actualRequestHeaders(r *request.Request) *headers.Headers {
	hdrs := headers.NewHeaders()
	origin := r.Headers.Get("Origin")

	hdrs.Add("Vary", "Origin")
	if origin == "" || !h.isOriginAllowed(r, origin) {
		return hdrs
	}
	if !h.isMethodAllowed(r.Method) {
		return hdrs
	}

	if h.allowedOriginsAll {
		hdrs.Set("Access-Control-Allow-Origin", "*")
	} else {
		hdrs.Set("Access-Control-Allow-Origin", origin)
	}
	if len(h.exposedHeaders) > 0 {
		hdrs.Set("Access-Control-Expose-Headers", strings.Join(h.exposedHeaders, ", "))
	}
	if h.allowCredentials {
		hdrs.Set("Access-Control-Allow-Credentials", "true")
	}
	return hdrs
}

func (h *CORS) isOriginAllowed(r *request.Request, origin string) bool {
	if h.allowOriginFunc != nil {
		return h.allowOriginFunc(r, origin)
	}
	if h.allowedOriginsAll {
		return true
	}
	origin = strings.ToLower(origin)
	if slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	for _, w := range h.allowedWOrigins {
		if w.match(origin) {
			return true
		}
	}
	return false
}

func (h *CORS) isMethodAllowed(method string) bool {
	if len(h.allowedMethods) == 0 {
		return false
	}
	method = strings.ToUpper(method)
	if method == string(request.OPTIONS) {
		return true
	}
	return slices.Contains(h.allowedMethods, method)
}

func (h *CORS) areHeadersAllowed(requested []string) bool {
	if h.allowedHeadersAll || len(requested) == 0 {
		return true
	}
	for _, header := range requested {
		if !slices.Contains(h.allowedHeaders, http.CanonicalHeaderKey(header)) {
			return false
		}
	}
	return true
}

type wildcard struct {
	prefix string
	suffix string
}

func (w wildcard) match(s string) bool {
	return len(s) >= len(w.prefix)+len(w.suffix) && strings.HasPrefix(s, w.prefix) && strings.HasSuffix(s, w.suffix)
}

func convert(s []string, f func(string) string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		out = append(out, f(v))
	}
	return out
}

// parseHeaderList splits a comma separated header list into canonical keys.
func parseHeaderList(list string) []string {
	var out []string
	for part := range strings.SplitSeq(list, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, http.CanonicalHeaderKey(part))
		}
	}
	return out
}
