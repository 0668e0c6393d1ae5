package request

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

var crlf = []byte("\r\n")

// readLine reads a single CRLF terminated line from br. The returned slice
// is only valid until the next read. A line longer than br's buffer is
// rejected instead of being accumulated.
func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, ErrLineTooLong
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return nil, ErrIncompleteRequest
		}
		return nil, err
	}
	if !bytes.HasSuffix(line, crlf) {
		// bare LF is tolerated for robustness
		return line[:len(line)-1], nil
	}
	return line[:len(line)-2], nil
}
