package config

import "errors"

var ErrUnknownFormat = errors.New("unknown config format")

// ValidationError names the offending field of an invalid configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
