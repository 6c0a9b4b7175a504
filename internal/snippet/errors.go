package snippet

import "errors"

var (
	ErrNotFound      = errors.New("snippet: not found")
	ErrInvalidAction = errors.New("snippet: invalid action")
)
