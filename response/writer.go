package response

import (
	"bytes"
	"fmt"
	"io"

	"github.com/shravanasati/hearth/headers"
)

// writerState is the part of the response a Writer expects next.
type writerState uint8

const (
	writingStatusLine writerState = iota
	writingHeaders
	writingBody
	finished
)

// Writer encodes an HTTP/1.1 response onto w in order: status line, header
// fields, then zero or more body writes. Calling a step out of order returns
// an error instead of corrupting the stream.
type Writer struct {
	w     io.Writer
	state writerState
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (rw *Writer) WriteStatusLine(statusCode StatusCode) error {
	if rw.state != writingStatusLine {
		return ErrStatusLineAlreadyWritten
	}
	if _, err := fmt.Fprintf(rw.w, "HTTP/1.1 %03d %s\r\n", statusCode, GetStatusReason(statusCode)); err != nil {
		return err
	}
	rw.state = writingHeaders
	return nil
}

// WriteHeaders writes every field in lexical key order followed by the blank
// line that ends the head.
func (rw *Writer) WriteHeaders(h *headers.Headers) error {
	if rw.state != writingHeaders {
		return ErrHeadersAlreadyWritten
	}
	for k, v := range h.Sorted() {
		if _, err := fmt.Fprintf(rw.w, "%s: %s\r\n", k, v); err != nil {
			return err
		}
	}
	if _, err := rw.w.Write([]byte("\r\n")); err != nil {
		return err
	}
	rw.state = writingBody
	return nil
}

// WriteBody writes a body fragment. It may be called repeatedly until Close.
func (rw *Writer) WriteBody(b []byte) error {
	if rw.state != writingBody {
		return ErrNoBodyState
	}
	_, err := rw.w.Write(b)
	return err
}

// Close marks the body finished. Further body writes fail.
func (rw *Writer) Close() error {
	if rw.state != writingBody {
		return ErrNoBodyState
	}
	rw.state = finished
	return nil
}

// EncodeHead returns the status line and header block as one byte slice.
func EncodeHead(statusCode StatusCode, h *headers.Headers) []byte {
	var buf bytes.Buffer
	rw := NewWriter(&buf)
	// writes into a bytes.Buffer cannot fail
	_ = rw.WriteStatusLine(statusCode)
	_ = rw.WriteHeaders(h)
	return buf.Bytes()
}
