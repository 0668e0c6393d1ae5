package request

import "errors"

var (
	ErrIncorrectRequestLine = errors.New("incorrect request line")
	ErrIncompleteRequest    = errors.New("incomplete request")
	ErrLineTooLong          = errors.New("request line or header too long")
	ErrTooManyHeaders       = errors.New("too many header fields")
	ErrMissingHost          = errors.New("missing or duplicate host header")
	ErrAmbiguousLength      = errors.New("both content-length and transfer-encoding present")
	ErrInvalidContentLength = errors.New("invalid content-length")
	ErrUnsupportedEncoding  = errors.New("final transfer coding must be chunked")
	ErrMalformedChunk       = errors.New("malformed chunk")
	ErrBodyTooLarge         = errors.New("request body too large")
)
