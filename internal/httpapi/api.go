// Package httpapi is the inbound HTTP surface: one admin command endpoint,
// one anonymous subscribe endpoint, and the operational probes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"steward.run/internal/auth"
	"steward.run/internal/maintenance"
	"steward.run/internal/obs"
)

// ReadyProbe checks backing-store readiness, typically a db ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// CommandRunner executes one agent command for the operator bound to ctx.
type CommandRunner interface {
	Handle(ctx context.Context, prompt string) (string, error)
}

// SubscribeService handles newsletter signups.
type SubscribeService interface {
	Subscribe(ctx context.Context, email, name string) (string, error)
}

// Paths that must answer even while the maintenance gate is engaged.
var gateExemptPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	tokens     *auth.Tokens
	csrf       *auth.CSRF
	runner     CommandRunner
	subs       SubscribeService
	gate       *maintenance.Gate
	version    string
}

func New(rp ReadyProbe, tokens *auth.Tokens, csrf *auth.CSRF, runner CommandRunner, subs SubscribeService, gate *maintenance.Gate, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		tokens:     tokens,
		csrf:       csrf,
		runner:     runner,
		subs:       subs,
		gate:       gate,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/csrf", a.handleCSRF)
	a.mux.HandleFunc("/v1/command", a.handleCommand)
	a.mux.HandleFunc("/v1/subscribe", a.handleSubscribe)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withGate(h)
	h = a.withAuth(h)
	h = RateLimit(h, 20, 10)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// withGate applies the maintenance gate to everything except the operational
// probes; authenticated admins pass inside the gate itself.
func (a *API) withGate(next http.Handler) http.Handler {
	if a.gate == nil {
		return next
	}
	gated := a.gate.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := gateExemptPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		gated.ServeHTTP(w, r)
	})
}
