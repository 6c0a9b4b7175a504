package maintenance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"steward.run/internal/auth"
	"steward.run/internal/host"
)

func newGate(t *testing.T) (*Gate, *host.Memory, string) {
	t.Helper()
	platform := host.NewMemory()
	marker := filepath.Join(t.TempDir(), ".maintenance")
	return NewGate(platform, marker), platform, marker
}

func TestSetStateOnAndOff(t *testing.T) {
	g, platform, marker := newGate(t)
	ctx := context.Background()

	msg, err := g.SetState(ctx, "ON")
	if err != nil {
		t.Fatal(err)
	}
	if msg != "Maintenance Mode is now ON (503)." {
		t.Fatalf("msg = %q", msg)
	}
	if v, _, _ := platform.GetOption(ctx, host.OptionMaintenanceStatus); v != StateMaintenance {
		t.Fatalf("option = %q", v)
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("marker missing: %v", err)
	}
	if !strings.HasPrefix(string(data), "upgrading=") {
		t.Fatalf("marker content = %q", data)
	}
	if !g.Engaged(ctx) {
		t.Fatal("gate not engaged")
	}

	msg, err = g.SetState(ctx, "off")
	if err != nil {
		t.Fatal(err)
	}
	if msg != "Maintenance Mode is now OFF. Site is live." {
		t.Fatalf("msg = %q", msg)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("marker still present: %v", err)
	}
	if g.Engaged(ctx) {
		t.Fatal("gate still engaged")
	}
}

func TestSetStateRejectsBogusInput(t *testing.T) {
	g, platform, _ := newGate(t)
	ctx := context.Background()
	if _, err := g.SetState(ctx, "maybe"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, ok, _ := platform.GetOption(ctx, host.OptionMaintenanceStatus); ok {
		t.Fatal("bogus input must not change state")
	}
}

func TestMiddlewareBlocksVisitors(t *testing.T) {
	g, _, _ := newGate(t)
	ctx := context.Background()
	if _, err := g.SetState(ctx, "on"); err != nil {
		t.Fatal(err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := g.Middleware(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "3600" {
		t.Fatalf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	if !strings.Contains(rr.Body.String(), "Site Under Maintenance") {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestMiddlewareAdmitsAdmins(t *testing.T) {
	g, _, _ := newGate(t)
	if _, err := g.SetState(context.Background(), "on"); err != nil {
		t.Fatal(err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := g.Middleware(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	op := auth.Operator{ID: "op-1", Roles: []string{auth.RoleAdmin}}
	req = req.WithContext(auth.ContextWithOperator(req.Context(), op))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("admin blocked: status = %d", rr.Code)
	}
}

func TestMiddlewarePassesWhenLive(t *testing.T) {
	g, _, _ := newGate(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rr := httptest.NewRecorder()
	g.Middleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}
