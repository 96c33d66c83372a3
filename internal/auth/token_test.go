package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp *time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "u-1"}
	if exp != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*exp)
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	if !strings.HasPrefix(id, SessionPrefix) {
		t.Fatalf("expected prefix %q, got %q", SessionPrefix, id)
	}
	// "cps-" (4) + 36 char UUID = 40
	if len(id) != 40 {
		t.Fatalf("expected session ID length 40, got %d", len(id))
	}
	if NewSessionID() == id {
		t.Fatal("two generated session IDs should not be equal")
	}
}

func TestHashToken(t *testing.T) {
	token := "tok-abc123"
	hash := HashToken(token)

	if len(hash) != 64 {
		t.Fatalf("expected hash length 64, got %d", len(hash))
	}
	if HashToken(token) != hash {
		t.Fatal("hash should be deterministic")
	}
	if HashToken("tok-xyz789") == hash {
		t.Fatal("different tokens should produce different hashes")
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, err := TokenExpiry(signedToken(t, &exp))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(exp) {
		t.Fatalf("expected %v, got %v", exp, got)
	}

	got, err = TokenExpiry(signedToken(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsZero() {
		t.Fatalf("expected zero expiry, got %v", got)
	}

	if _, err := TokenExpiry("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
	if _, err := TokenExpiry(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestTokenActive(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	tests := []struct {
		name     string
		token    string
		expected bool
	}{
		{"future expiry", signedToken(t, &future), true},
		{"past expiry", signedToken(t, &past), false},
		{"no expiry", signedToken(t, nil), true},
		{"malformed", "garbage", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenActive(tt.token, now); got != tt.expected {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
