package response

import "errors"

var (
	ErrStatusLineAlreadyWritten = errors.New("status line already written")
	ErrHeadersAlreadyWritten    = errors.New("headers already written")
	ErrNoBodyState              = errors.New("body already finished")
)
