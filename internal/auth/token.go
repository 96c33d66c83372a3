package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionPrefix is prepended to all generated browser session IDs.
const SessionPrefix = "cps-"

// NewSessionID creates a random browser session identifier.
// Format: "cps-" + UUIDv4.
func NewSessionID() string {
	return SessionPrefix + uuid.NewString()
}

// HashToken returns the SHA-256 hex digest of a token string. Used wherever a
// token needs a stable key or a log-safe fingerprint.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenExpiry returns the "exp" claim of an events API access token. The
// signature is not verified here: the API verifies its own tokens on every
// call, this is only the local freshness check. A token without "exp" returns
// the zero time.
func TokenExpiry(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, errors.New("empty token")
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// TokenActive reports whether token is a well-formed access token that has
// not expired at now. Tokens without an expiry claim are active.
func TokenActive(token string, now time.Time) bool {
	exp, err := TokenExpiry(token)
	if err != nil {
		return false
	}
	return exp.IsZero() || now.Before(exp)
}
