package handler

import "errors"

var (
	ErrInvalidPublicRoot = errors.New("public root must be an existing directory")
	ErrInvalidBufferSize = errors.New("buffer size must be positive")
)
