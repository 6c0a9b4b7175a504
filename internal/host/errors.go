package host

import "errors"

var (
	ErrNotFound     = errors.New("host: record not found")
	ErrInvalidScope = errors.New("host: invalid cleanup scope")
)
