package agent

import "errors"

var (
	// ErrUnauthorized rejects commands from operators without the admin role.
	ErrUnauthorized = errors.New("agent: unauthorized")

	// ErrConfigMissing is returned when no provider credential is configured.
	ErrConfigMissing = errors.New("agent: provider credential missing")
)
