package gemini

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	tokenScope      = "https://www.googleapis.com/auth/cloud-platform"
	grantType       = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL    = time.Hour
)

// AuthKind tags the two supported provider authentication transports.
type AuthKind int

const (
	// KindDirectKey embeds the raw key in the request target.
	KindDirectKey AuthKind = iota
	// KindBearer sends a bearer token obtained via a signed assertion exchange.
	KindBearer
)

func (k AuthKind) String() string {
	if k == KindBearer {
		return "bearer"
	}
	return "direct_key"
}

// AuthMode is the per-request authentication decision: which transport to use
// and the secret material to use with it.
type AuthMode struct {
	Kind  AuthKind
	Token string
}

type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// credential is the tagged union behind AuthMode, decided once at load time.
// Exactly one of key/account is set.
type credential struct {
	key     string
	account *serviceAccount
	signer  *rsa.PrivateKey
}

// parseCredential classifies the stored secret. A parseable service-account
// document with a private key takes the signed-exchange path; any other
// non-trivial string is treated as a direct API key. The fallback serves
// deployments that only hold a simple key and is not an error.
func parseCredential(secret string) (credential, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return credential{}, ErrNoCredential
	}

	var sa serviceAccount
	if err := json.Unmarshal([]byte(secret), &sa); err != nil || sa.PrivateKey == "" {
		if len(secret) > 5 {
			return credential{key: secret}, nil
		}
		return credential{}, &AuthError{Reason: "secret is neither a service account document nor a usable key"}
	}

	signer, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return credential{}, &AuthError{Reason: "parse service account private key", Cause: err}
	}
	return credential{account: &sa, signer: signer}, nil
}

func (c credential) kind() AuthKind {
	if c.account != nil {
		return KindBearer
	}
	return KindDirectKey
}

// tokenSource exchanges signed assertions for bearer tokens and caches the
// result until shortly before expiry. Direct keys pass through untouched.
type tokenSource struct {
	cred       credential
	tokenURL   string
	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	cached  string
	expires time.Time
}

func newTokenSource(cred credential, tokenURL string, httpClient *http.Client) *tokenSource {
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return &tokenSource{cred: cred, tokenURL: tokenURL, httpClient: httpClient, now: time.Now}
}

// Mode returns the AuthMode for the next provider call.
func (ts *tokenSource) Mode(ctx context.Context) (AuthMode, error) {
	if ts.cred.kind() == KindDirectKey {
		return AuthMode{Kind: KindDirectKey, Token: ts.cred.key}, nil
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.cached != "" && ts.now().Before(ts.expires) {
		return AuthMode{Kind: KindBearer, Token: ts.cached}, nil
	}

	token, err := ts.exchange(ctx)
	if err != nil {
		return AuthMode{}, err
	}
	ts.cached = token
	ts.expires = ts.now().Add(assertionTTL - 5*time.Minute)
	return AuthMode{Kind: KindBearer, Token: token}, nil
}

func (ts *tokenSource) exchange(ctx context.Context) (string, error) {
	now := ts.now().UTC()
	claims := jwt.MapClaims{
		"iss":   ts.cred.account.ClientEmail,
		"sub":   ts.cred.account.ClientEmail,
		"aud":   defaultTokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
		"scope": tokenScope,
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(ts.cred.signer)
	if err != nil {
		return "", &AuthError{Reason: "sign assertion", Cause: err}
	}

	form := url.Values{
		"grant_type": {grantType},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Reason: "build token request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Reason: "token exchange", Cause: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= http.StatusBadRequest {
		return "", &AuthError{Reason: fmt.Sprintf("token exchange failed with status %d", resp.StatusCode)}
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.AccessToken == "" {
		return "", &AuthError{Reason: "token exchange returned no access token"}
	}
	return decoded.AccessToken, nil
}
