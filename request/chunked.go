package request

import (
	"bufio"
	"bytes"
	"io"
	"strconv"

	"github.com/shravanasati/hearth/headers"
)

func parseHexadecimal(hex []byte) (int64, error) {
	return strconv.ParseInt(string(bytes.TrimSpace(hex)), 16, 64)
}

// readChunked decodes a chunked body from br. Trailer fields are parsed into
// trailers. The decoded body is capped at maxBody bytes.
func readChunked(br *bufio.Reader, trailers *headers.Headers, maxBody int64) ([]byte, error) {
	var body bytes.Buffer

	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}

		// chunk extensions are ignored
		sizeField, _, _ := bytes.Cut(line, []byte(";"))
		size, err := parseHexadecimal(sizeField)
		if err != nil || size < 0 {
			return nil, ErrMalformedChunk
		}

		if size == 0 {
			break
		}
		if int64(body.Len())+size > maxBody {
			return nil, ErrBodyTooLarge
		}

		if _, err := io.CopyN(&body, br, size); err != nil {
			return nil, ErrIncompleteRequest
		}

		end, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if len(end) != 0 {
			return nil, ErrMalformedChunk
		}
	}

	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			break
		}
		if err := trailers.ParseFieldLine(line); err != nil {
			return nil, err
		}
	}

	return body.Bytes(), nil
}
