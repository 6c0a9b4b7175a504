// Package maintenance implements the two-state gate that can take the host
// offline for visitors while privileged operators keep working.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"steward.run/internal/auth"
	"steward.run/internal/host"
)

// Gate states.
const (
	StateLive        = "off"
	StateMaintenance = "on"
)

const retryAfterSeconds = 3600

// ErrInvalidState rejects setState input that is neither "on" nor "off".
var ErrInvalidState = errors.New("maintenance: invalid state, use 'on' or 'off'")

// Gate persists the maintenance flag and a side marker file consumable by the
// host's own front controller. Both are mutated together on every transition.
type Gate struct {
	options    host.Options
	markerPath string
	now        func() time.Time
}

// NewGate constructs a Gate writing its marker at markerPath.
func NewGate(options host.Options, markerPath string) *Gate {
	return &Gate{options: options, markerPath: markerPath, now: time.Now}
}

// SetState transitions the gate. "on" persists the flag and writes the marker
// with the activation timestamp; "off" clears both. Anything else is rejected
// with no state change.
func (g *Gate) SetState(ctx context.Context, state string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case StateMaintenance:
		if err := g.options.SetOption(ctx, host.OptionMaintenanceStatus, StateMaintenance); err != nil {
			return "", err
		}
		marker := fmt.Sprintf("upgrading=%d\n", g.now().Unix())
		if err := os.WriteFile(g.markerPath, []byte(marker), 0o644); err != nil {
			return "", fmt.Errorf("write maintenance marker: %w", err)
		}
		return "Maintenance Mode is now ON (503).", nil

	case StateLive:
		if err := g.options.SetOption(ctx, host.OptionMaintenanceStatus, StateLive); err != nil {
			return "", err
		}
		if err := os.Remove(g.markerPath); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("remove maintenance marker: %w", err)
		}
		return "Maintenance Mode is now OFF. Site is live.", nil

	default:
		return "", ErrInvalidState
	}
}

// Engaged reports whether the gate is in the MAINTENANCE state.
func (g *Gate) Engaged(ctx context.Context) bool {
	v, ok, err := g.options.GetOption(ctx, host.OptionMaintenanceStatus)
	if err != nil || !ok {
		return false
	}
	return v == StateMaintenance
}

// Middleware short-circuits ordinary requests with a retry-later response
// while the gate is engaged. Operators with the admin role always pass.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Engaged(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}
		if op, ok := auth.OperatorFromContext(r.Context()); ok && op.IsAdmin() {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("<h1>Site Under Maintenance</h1><p>We will be back shortly.</p>"))
	})
}
