// ABOUTME: Unit tests for JWT expiry inspection
// ABOUTME: Tests opaque tokens, valid and expired JWTs, and malformed claims

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestCheckTokenExpiry_OpaqueToken(t *testing.T) {
	if err := checkTokenExpiry("abcdef1234-secretpart", time.Now()); err != nil {
		t.Errorf("checkTokenExpiry() error = %v, want nil for opaque token", err)
	}
}

func TestCheckTokenExpiry_ValidToken(t *testing.T) {
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("any-key"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if err := checkTokenExpiry(token, now); err != nil {
		t.Errorf("checkTokenExpiry() error = %v, want nil", err)
	}
}

func TestCheckTokenExpiry_ExpiredToken(t *testing.T) {
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": now.Add(-time.Second).Unix(),
	}).SignedString([]byte("any-key"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if err := checkTokenExpiry(token, now); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("checkTokenExpiry() error = %v, want ErrExpiredToken", err)
	}
}

func TestCheckTokenExpiry_NoExpClaim(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user",
	}).SignedString([]byte("any-key"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if err := checkTokenExpiry(token, time.Now()); err != nil {
		t.Errorf("checkTokenExpiry() error = %v, want nil without exp", err)
	}
}

func TestCheckTokenExpiry_Malformed(t *testing.T) {
	for _, token := range []string{"a.b.c", "..", "not-base64!.x.y"} {
		if err := checkTokenExpiry(token, time.Now()); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("checkTokenExpiry(%q) error = %v, want ErrInvalidToken", token, err)
		}
	}
}
