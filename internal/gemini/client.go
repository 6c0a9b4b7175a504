// Package gemini implements the model provider protocol: credential
// resolution, request construction, and response interpretation. Two
// transports exist, chosen by credential shape: a direct-key call with the
// key in the request target, or a bearer call against the enterprise
// endpoint. The choice is invisible to everything above this package.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"steward.run/internal/obs"
	"steward.run/internal/tools"
)

const (
	defaultDirectBaseURL = "https://generativelanguage.googleapis.com/v1"
	vertexHostFormat     = "https://%s-aiplatform.googleapis.com/v1"
	defaultTimeout       = 60 * time.Second
)

// Config describes what the client needs to reach the provider.
type Config struct {
	Secret   string
	Project  string
	Location string
	Model    string
	Timeout  time.Duration

	// Test seams; production leaves them empty.
	DirectBaseURL string
	VertexBaseURL string
	TokenURL      string
}

// Request is a single one-turn conversation sent to the provider.
type Request struct {
	Prompt            string
	Declarations      []tools.Definition
	SystemInstruction string
}

// FunctionCall is the provider's selection of a registered capability.
type FunctionCall struct {
	Name string     `json:"name"`
	Args tools.Args `json:"args"`
}

// Response carries exactly one of the two valid provider answer shapes.
type Response struct {
	FunctionCall *FunctionCall
	Text         string
}

// Client is the HTTP client for the provider's generateContent protocol.
type Client struct {
	tokens     *tokenSource
	project    string
	location   string
	model      string
	httpClient *http.Client

	directBaseURL string
	vertexBaseURL string
}

// New parses the stored secret once, deciding the authentication mode for the
// client's lifetime, and returns a ready client.
func New(cfg Config) (*Client, error) {
	cred, err := parseCredential(cfg.Secret)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	location := cfg.Location
	if location == "" {
		location = "us-central1"
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	directBase := strings.TrimRight(cfg.DirectBaseURL, "/")
	if directBase == "" {
		directBase = defaultDirectBaseURL
	}
	vertexBase := strings.TrimRight(cfg.VertexBaseURL, "/")
	if vertexBase == "" {
		vertexBase = fmt.Sprintf(vertexHostFormat, location)
	}

	return &Client{
		tokens:        newTokenSource(cred, cfg.TokenURL, httpClient),
		project:       cfg.Project,
		location:      location,
		model:         model,
		httpClient:    httpClient,
		directBaseURL: directBase,
		vertexBaseURL: vertexBase,
	}, nil
}

// Generate performs one provider round trip and interprets the answer shape.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	mode, err := c.tokens.Mode(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(buildPayload(req))
	if err != nil {
		return nil, fmt.Errorf("encode provider request: %w", err)
	}

	httpReq, err := c.buildRequest(ctx, mode, payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	obs.ObserveProviderRequest(mode.Kind.String(), time.Since(start))
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &TransportError{Cause: fmt.Errorf("provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	return parseResponse(body)
}

func (c *Client) buildRequest(ctx context.Context, mode AuthMode, payload []byte) (*http.Request, error) {
	var endpoint string
	switch mode.Kind {
	case KindDirectKey:
		endpoint = fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.directBaseURL, c.model, mode.Token)
	case KindBearer:
		endpoint = fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
			c.vertexBaseURL, c.project, c.location, c.model)
	default:
		return nil, errors.New("gemini: unknown auth mode")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if mode.Kind == KindBearer {
		httpReq.Header.Set("Authorization", "Bearer "+mode.Token)
	}
	return httpReq, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type declarations struct {
	FunctionDeclarations []tools.Definition `json:"function_declarations"`
}

type generatePayload struct {
	Contents          []content      `json:"contents"`
	Tools             []declarations `json:"tools"`
	SystemInstruction content        `json:"system_instruction"`
}

func buildPayload(req Request) generatePayload {
	return generatePayload{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: req.Prompt}}},
		},
		Tools: []declarations{
			{FunctionDeclarations: req.Declarations},
		},
		SystemInstruction: content{Parts: []part{{Text: req.SystemInstruction}}},
	}
}

func parseResponse(body []byte) (*Response, error) {
	var decoded struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					FunctionCall *FunctionCall `json:"functionCall"`
					Text         *string       `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &ResponseError{Raw: body}
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, &ResponseError{Raw: body}
	}

	first := decoded.Candidates[0].Content.Parts[0]
	if first.FunctionCall != nil && first.FunctionCall.Name != "" {
		return &Response{FunctionCall: first.FunctionCall}, nil
	}
	if first.Text != nil {
		return &Response{Text: *first.Text}, nil
	}
	return nil, &ResponseError{Raw: body}
}
