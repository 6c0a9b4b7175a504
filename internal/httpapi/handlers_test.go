package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"steward.run/internal/agent"
	"steward.run/internal/auth"
	"steward.run/internal/broadcast"
	"steward.run/internal/gemini"
)

type fakeRunner struct {
	text string
	err  error
}

func (f *fakeRunner) Handle(ctx context.Context, prompt string) (string, error) {
	return f.text, f.err
}

type fakeSubs struct {
	msg string
	err error
}

func (f *fakeSubs) Subscribe(ctx context.Context, email, name string) (string, error) {
	return f.msg, f.err
}

type apiClient struct {
	baseURL string
	client  *http.Client
	tokens  *auth.Tokens
	t       *testing.T
}

func newTestAPI(t *testing.T, runner CommandRunner, subs SubscribeService) *apiClient {
	t.Helper()

	tokens, err := auth.NewTokens("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	csrf := auth.NewCSRF("test-secret", time.Hour)
	api := New(ReadyProbe{}, tokens, csrf, runner, subs, nil, "test")

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		tokens:  tokens,
		t:       t,
	}
}

func (c *apiClient) bearer(roles ...string) string {
	c.t.Helper()
	token, err := c.tokens.Generate("op-1", roles, time.Hour)
	if err != nil {
		c.t.Fatal(err)
	}
	return "Bearer " + token
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainCSRF(authz string) string {
	c.t.Helper()
	resp := c.do(http.MethodGet, "/v1/csrf", nil, map[string]string{"Authorization": authz})
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("csrf status = %d", resp.StatusCode)
	}
	payload := decode[struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}](c.t, resp)
	if payload.Token == "" {
		c.t.Fatal("empty csrf token")
	}
	return payload.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t, &fakeRunner{}, &fakeSubs{})
	resp := c.do(http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload := decode[struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}](t, resp)
	if payload.Status != "ok" || payload.Service != "steward" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestCommandRequiresToken(t *testing.T) {
	c := newTestAPI(t, &fakeRunner{text: "ok"}, &fakeSubs{})

	resp := c.do(http.MethodPost, "/v1/command", map[string]any{"prompt": "hi"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/command", map[string]any{"prompt": "hi"}, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", resp.StatusCode)
	}
}

func TestCommandRequiresCSRF(t *testing.T) {
	c := newTestAPI(t, &fakeRunner{text: "ok"}, &fakeSubs{})
	authz := c.bearer(auth.RoleAdmin)

	resp := c.do(http.MethodPost, "/v1/command", map[string]any{"prompt": "hi"}, map[string]string{
		"Authorization": authz,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("missing csrf: status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/command", map[string]any{"prompt": "hi"}, map[string]string{
		"Authorization": authz,
		csrfHeader:      "forged.token.value",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("forged csrf: status = %d", resp.StatusCode)
	}
}

func TestCommandHappyPath(t *testing.T) {
	c := newTestAPI(t, &fakeRunner{text: "Audit complete."}, &fakeSubs{})
	authz := c.bearer(auth.RoleAdmin)
	csrf := c.obtainCSRF(authz)

	resp := c.do(http.MethodPost, "/v1/command", map[string]any{"prompt": "audit the site"}, map[string]string{
		"Authorization": authz,
		csrfHeader:      csrf,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload := decode[struct {
		Success bool   `json:"success"`
		Text    string `json:"text"`
	}](t, resp)
	if !payload.Success || payload.Text != "Audit complete." {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestCommandRejectsEmptyPrompt(t *testing.T) {
	c := newTestAPI(t, &fakeRunner{text: "ok"}, &fakeSubs{})
	authz := c.bearer(auth.RoleAdmin)
	csrf := c.obtainCSRF(authz)

	resp := c.do(http.MethodPost, "/v1/command", map[string]any{"prompt": ""}, map[string]string{
		"Authorization": authz,
		csrfHeader:      csrf,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCommandStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", agent.ErrUnauthorized, http.StatusForbidden},
		{"config missing", agent.ErrConfigMissing, http.StatusServiceUnavailable},
		{"no credential", gemini.ErrNoCredential, http.StatusServiceUnavailable},
		{"transport", &gemini.TransportError{Cause: errors.New("timeout")}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestAPI(t, &fakeRunner{err: tc.err}, &fakeSubs{})
			authz := c.bearer(auth.RoleAdmin)
			csrf := c.obtainCSRF(authz)

			resp := c.do(http.MethodPost, "/v1/command", map[string]any{"prompt": "x"}, map[string]string{
				"Authorization": authz,
				csrfHeader:      csrf,
			})
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestSubscribeIsPublic(t *testing.T) {
	c := newTestAPI(t, &fakeRunner{}, &fakeSubs{msg: "Subscribed successfully!"})

	resp := c.do(http.MethodPost, "/v1/subscribe", map[string]any{"email": "a@example.com", "name": "Ada"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload := decode[struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}](t, resp)
	if !payload.Success || payload.Message != "Subscribed successfully!" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestSubscribeInvalidEmail(t *testing.T) {
	c := newTestAPI(t, &fakeRunner{}, &fakeSubs{err: broadcast.ErrInvalidEmail})

	resp := c.do(http.MethodPost, "/v1/subscribe", map[string]any{"email": "nope"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload := decode[struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}](t, resp)
	if payload.Success || payload.Error != "Invalid Email" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	c := newTestAPI(t, &fakeRunner{}, &fakeSubs{})
	authz := c.bearer(auth.RoleAdmin)

	resp := c.do(http.MethodGet, "/v1/command", nil, map[string]string{"Authorization": authz})
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET command: status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/csrf", nil, map[string]string{"Authorization": authz})
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST csrf: status = %d", resp.StatusCode)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	c := newTestAPI(t, &fakeRunner{}, &fakeSubs{})

	resp := c.do(http.MethodGet, "/nope", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous unknown path: status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodGet, "/nope", nil, map[string]string{"Authorization": c.bearer(auth.RoleAdmin)})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("authenticated unknown path: status = %d", resp.StatusCode)
	}
}
