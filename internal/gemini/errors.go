package gemini

import (
	"errors"
	"fmt"
)

// ErrNoCredential means no provider secret is configured at all.
var ErrNoCredential = errors.New("gemini: credential not configured")

// AuthError is a terminal credential failure: unparseable service account,
// signing failure, or a failed token exchange. It is never retried.
type AuthError struct {
	Reason string
	Cause  error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("gemini auth: %s: %v", e.Reason, e.Cause)
	}
	return "gemini auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Cause }

// TransportError is a network-level failure reaching the provider, including
// the fixed wait bound being exceeded. Retry policy is a caller concern.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return fmt.Sprintf("gemini transport: %v", e.Cause) }

func (e *TransportError) Unwrap() error { return e.Cause }

// ResponseError reports a provider response that is neither a function call
// nor plain text. Raw carries the payload for diagnostics.
type ResponseError struct {
	Raw []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("gemini: invalid provider response: %s", string(e.Raw))
}
