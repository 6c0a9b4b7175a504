package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"steward.run/internal/agent"
	"steward.run/internal/audit"
	"steward.run/internal/auth"
	"steward.run/internal/broadcast"
	"steward.run/internal/gemini"
)

const csrfHeader = "X-Steward-CSRF"

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "steward",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) handleCSRF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	op, ok := auth.OperatorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   a.csrf.Issue(op.ID),
	})
}

func (a *API) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	op, ok := auth.OperatorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := a.csrf.Verify(op.ID, r.Header.Get(csrfHeader)); err != nil {
		respondError(w, http.StatusForbidden, "invalid csrf token")
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	ctx := audit.WithRequestID(r.Context(), uuid.NewString())
	start := time.Now()
	text, err := a.runner.Handle(ctx, req.Prompt)
	if err != nil {
		_ = audit.LogEvent(ctx, "command.failed", map[string]any{"error": err.Error()})
		respondError(w, commandStatus(err), err.Error())
		return
	}
	_ = audit.LogEvent(ctx, "command.handled", map[string]any{"duration_ms": time.Since(start).Milliseconds()})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"text":    text,
	})
}

func (a *API) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := a.subs.Subscribe(r.Context(), req.Email, req.Name)
	if err != nil {
		if errors.Is(err, broadcast.ErrInvalidEmail) {
			respondError(w, http.StatusBadRequest, "Invalid Email")
			return
		}
		respondError(w, http.StatusInternalServerError, "subscription failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
	})
}

// commandStatus maps orchestrator failures onto HTTP status codes.
func commandStatus(err error) int {
	var authErr *gemini.AuthError
	var transportErr *gemini.TransportError
	var respErr *gemini.ResponseError
	switch {
	case errors.Is(err, agent.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, agent.ErrConfigMissing), errors.Is(err, gemini.ErrNoCredential):
		return http.StatusServiceUnavailable
	case errors.As(err, &authErr), errors.As(err, &transportErr), errors.As(err, &respErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}
