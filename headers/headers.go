package headers

import (
	"bytes"
	"iter"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// https://datatracker.ietf.org/doc/html/rfc9110#name-tokens
var fieldNameRegex = regexp.MustCompile(`^[a-zA-Z0-9!#$%&'*\+\-.^_\x60\|~]+$`)

// Headers represents a collection of HTTP headers. Keys are stored lowercased.
type Headers struct {
	headers map[string]string
}

func isValidFieldName(key string) bool {
	return fieldNameRegex.MatchString(key)
}

func validHeaderValueByte(c byte) bool {
	switch {
	case c == 0x09: // HTAB
		return true
	case c == 0x20: // SP
		return true
	case 0x21 <= c && c <= 0x7E: // VCHAR
		return true
	case c >= 0x80: // obs-text
		return true
	}
	return false
}

func isValidFieldValue(val []byte) bool {
	for _, b := range val {
		if !validHeaderValueByte(b) {
			return false
		}
	}
	return true
}

func normalizeKey(key string) string {
	return strings.ToLower(key)
}

// Add adds a new header. If the header already exists, the new value is appended to the existing value, separated by a comma.
func (h *Headers) Add(key, value string) {
	if !isValidFieldName(key) || !isValidFieldValue([]byte(value)) {
		// drop invalid headers to prevent response splitting
		return
	}

	key = normalizeKey(key)
	if existing, ok := h.headers[key]; ok {
		// multiple values
		h.headers[key] = existing + ", " + value
	} else {
		h.headers[key] = value
	}
}

// Set replaces any existing value of a header.
func (h *Headers) Set(key, value string) {
	if !isValidFieldName(key) || !isValidFieldValue([]byte(value)) {
		return
	}
	h.headers[normalizeKey(key)] = value
}

// Has reports whether a header is present.
func (h *Headers) Has(key string) bool {
	_, ok := h.headers[normalizeKey(key)]
	return ok
}

// Get returns the value of a header.
func (h *Headers) Get(key string) string {
	key = normalizeKey(key)
	return h.headers[key]
}

// Remove removes a header.
func (h *Headers) Remove(key string) {
	delete(h.headers, normalizeKey(key))
}

// All returns an iterator over all headers.
func (h *Headers) All() iter.Seq2[string, string] {
	return maps.All(h.headers)
}

// Sorted returns an iterator over all headers ordered by key, so that
// encoded responses are byte-for-byte reproducible.
func (h *Headers) Sorted() iter.Seq2[string, string] {
	keys := slices.Sorted(maps.Keys(h.headers))
	return func(yield func(string, string) bool) {
		for _, k := range keys {
			if !yield(k, h.headers[k]) {
				return
			}
		}
	}
}

// Clone returns an independent copy.
func (h *Headers) Clone() *Headers {
	return &Headers{headers: maps.Clone(h.headers)}
}

// ParseFieldLine parses a single header line and adds it to the headers.
func (h *Headers) ParseFieldLine(data []byte) (err error) {
	colonPos := bytes.IndexByte(data, ':')
	if colonPos == -1 {
		// colon not found
		return ErrMalformedHeader
	}

	// leading whitespace in header key is allowed
	hkey := bytes.TrimLeft(data[:colonPos], " \t")
	hvalue := bytes.Trim(data[colonPos+1:], " \t")

	if !bytes.Equal(hkey, bytes.TrimRight(hkey, " ")) {
		// space between key and colon, invalid
		return ErrMalformedHeader
	}

	if !fieldNameRegex.Match(hkey) || !isValidFieldValue(hvalue) {
		return ErrMalformedHeader
	}

	h.Add(string(hkey), string(hvalue))
	return nil
}

// Size returns the number of headers.
func (h *Headers) Size() int {
	return len(h.headers)
}

// NewHeaders creates a new Headers object.
func NewHeaders() *Headers {
	return &Headers{
		headers: map[string]string{},
	}
}
