package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "steward"

// RoleAdmin is the administrative capability required for agent commands.
const RoleAdmin = "admin"

// Operator is an authenticated actor issuing commands, classified by role.
type Operator struct {
	ID    string
	Roles []string
}

// HasRole reports whether the operator carries the given role.
func (o Operator) HasRole(role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	for _, r := range o.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the operator may drive the agent.
func (o Operator) IsAdmin() bool { return o.HasRole(RoleAdmin) }

// Claims represents JWT claims carried by operator tokens.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies operator tokens using HS256. The secret comes from
// the startup configuration; there is no ambient lookup.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens constructs a token service from the shared secret.
func NewTokens(secret string) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	return &Tokens{secret: []byte(secret), now: time.Now}, nil
}

// Generate signs a token for the given operator and roles.
func (t *Tokens) Generate(operatorID string, roles []string, ttl time.Duration) (string, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return "", errors.New("auth: operator id is required")
	}
	if ttl <= 0 {
		return "", errors.New("auth: ttl must be greater than zero")
	}

	now := t.now().UTC()
	claims := Claims{
		Roles: dedupeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and claims, returning the operator.
func (t *Tokens) Verify(token string) (Operator, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Operator{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	})
	if err != nil {
		return Operator{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Operator{}, ErrInvalidToken
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return Operator{}, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || t.now().UTC().After(claims.ExpiresAt.Time) {
		return Operator{}, ErrInvalidToken
	}
	return Operator{ID: claims.Subject, Roles: dedupeRoles(claims.Roles)}, nil
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
