package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CSRF issues and verifies request-forgery tokens bound to an operator.
// The token is operatorID.expiryUnix.base64url(hmac) over the first two parts.
type CSRF struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCSRF constructs a CSRF token service sharing the operator secret.
func NewCSRF(secret string, ttl time.Duration) *CSRF {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CSRF{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a fresh token for the operator.
func (c *CSRF) Issue(operatorID string) string {
	exp := c.now().Add(c.ttl).Unix()
	payload := operatorID + "." + strconv.FormatInt(exp, 10)
	return payload + "." + c.sign(payload)
}

// Verify checks the token belongs to the operator and has not expired. The
// id segment may itself contain dots, so the token is parsed from the right.
func (c *CSRF) Verify(operatorID, token string) error {
	token = strings.TrimSpace(token)
	sigDot := strings.LastIndex(token, ".")
	if sigDot <= 0 {
		return ErrInvalidToken
	}
	payload, sig := token[:sigDot], token[sigDot+1:]
	expDot := strings.LastIndex(payload, ".")
	if expDot <= 0 {
		return ErrInvalidToken
	}
	if payload[:expDot] != operatorID {
		return ErrInvalidToken
	}
	exp, err := strconv.ParseInt(payload[expDot+1:], 10, 64)
	if err != nil || c.now().Unix() > exp {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(c.sign(payload)), []byte(sig)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

func (c *CSRF) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprint(mac, payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
