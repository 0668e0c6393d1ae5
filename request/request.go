package request

import (
	"bufio"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/shravanasati/hearth/headers"
)

type MethodType string

const (
	GET     MethodType = "GET"
	HEAD    MethodType = "HEAD"
	POST    MethodType = "POST"
	PUT     MethodType = "PUT"
	PATCH   MethodType = "PATCH"
	DELETE  MethodType = "DELETE"
	TRACE   MethodType = "TRACE"
	OPTIONS MethodType = "OPTIONS"
)

const (
	// DefaultMaxBodySize caps request bodies when no explicit limit is given.
	DefaultMaxBodySize int64 = 1 << 20

	maxHeaderFields = 100
)

type RequestLine struct {
	Method      string
	Target      string
	HTTPVersion string
}

// Request is a parsed HTTP/1.x request with its body fully read.
type Request struct {
	RequestLine
	Headers  *headers.Headers
	Trailers *headers.Headers
	Body     []byte

	// Params holds path parameters filled in by the router.
	Params map[string]string
}

var requestLineRegex = regexp.MustCompile(`^(GET|POST|PUT|PATCH|OPTIONS|TRACE|DELETE|HEAD) ([^\s]+) HTTP/(1\.[01])$`)

func parseRequestLine(reqLine []byte) (*RequestLine, error) {
	matches := requestLineRegex.FindSubmatch(reqLine)
	if len(matches) != 4 {
		return nil, ErrIncorrectRequestLine
	}

	return &RequestLine{
		Method:      string(matches[1]),
		Target:      string(matches[2]),
		HTTPVersion: string(matches[3]),
	}, nil
}

// Path returns the percent-decoded path component of the request target,
// without the query string.
func (r *Request) Path() string {
	raw, _, _ := strings.Cut(r.Target, "?")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Query returns the raw query string of the request target.
func (r *Request) Query() string {
	_, q, _ := strings.Cut(r.Target, "?")
	return q
}

// KeepAlive reports whether the client allows the connection to be reused
// after this request.
func (r *Request) KeepAlive() bool {
	conn := strings.ToLower(strings.TrimSpace(r.Headers.Get("connection")))
	if r.HTTPVersion == "1.0" {
		return conn == "keep-alive"
	}
	return conn != "close"
}

// TransferEncodings returns the list of transfer codings applied to the
// body. The final coding must be chunked.
func (r *Request) TransferEncodings() ([]string, error) {
	te := r.Headers.Get("transfer-encoding")
	if te == "" {
		return nil, nil
	}
	var codings []string
	for c := range strings.SplitSeq(te, ",") {
		codings = append(codings, strings.ToLower(strings.TrimSpace(c)))
	}
	if codings[len(codings)-1] != "chunked" {
		return nil, ErrUnsupportedEncoding
	}
	return codings, nil
}

// RequestFromReader parses the next request from br. The body is read up to
// maxBody bytes; zero or negative selects DefaultMaxBodySize. br must be
// reused for subsequent requests on the same connection.
func RequestFromReader(br *bufio.Reader, maxBody int64) (*Request, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	line, err := readLine(br)
	if err != nil {
		return nil, err
	}
	requestLine, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	req := &Request{
		RequestLine: *requestLine,
		Headers:     headers.NewHeaders(),
		Trailers:    headers.NewHeaders(),
	}

	for fields := 0; ; fields++ {
		if fields > maxHeaderFields {
			return nil, ErrTooManyHeaders
		}
		line, err := readLine(br)
		if err != nil {
			if err == io.EOF {
				return nil, ErrIncompleteRequest
			}
			return nil, err
		}
		if len(line) == 0 {
			// encountered a double CRLF, headers over
			break
		}
		if err := req.Headers.ParseFieldLine(line); err != nil {
			return nil, err
		}
	}

	if err := req.readBody(br, maxBody); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Request) readBody(br *bufio.Reader, maxBody int64) error {
	cl := r.Headers.Get("content-length")
	te := r.Headers.Get("transfer-encoding")

	// https://datatracker.ietf.org/doc/html/rfc9112#section-6.1-15
	if cl != "" && te != "" {
		return ErrAmbiguousLength
	}

	if te != "" {
		if _, err := r.TransferEncodings(); err != nil {
			return err
		}
		body, err := readChunked(br, r.Trailers, maxBody)
		if err != nil {
			return err
		}
		r.Body = body
		return nil
	}

	if cl == "" {
		return nil
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return ErrInvalidContentLength
	}
	if n > maxBody {
		return ErrBodyTooLarge
	}
	r.Body = make([]byte, n)
	if _, err := io.ReadFull(br, r.Body); err != nil {
		return ErrIncompleteRequest
	}
	return nil
}
