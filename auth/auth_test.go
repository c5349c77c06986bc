package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestNewSharedSecretRequiresSecret(t *testing.T) {
	t.Parallel()
	if _, err := NewSharedSecret(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestCheckAuthenticationAcceptsValidToken(t *testing.T) {
	t.Parallel()
	a, err := NewSharedSecret("hunter2")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tok := signHS256(t, "hunter2", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	ui, err := a.CheckAuthentication(context.Background(), tok)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "user-1" {
		t.Fatalf("user id = %q", ui.UserID())
	}
}

func TestCheckAuthenticationRejects(t *testing.T) {
	t.Parallel()
	a, err := NewSharedSecret("hunter2")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	cases := map[string]string{
		"empty token":  "",
		"wrong secret": signHS256(t, "other", jwt.MapClaims{"sub": "u", "exp": exp}),
		"expired":      signHS256(t, "hunter2", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-2 * time.Hour).Unix()}),
		"no expiry":    signHS256(t, "hunter2", jwt.MapClaims{"sub": "u"}),
		"missing sub":  signHS256(t, "hunter2", jwt.MapClaims{"exp": exp}),
		"not a jwt":    "garbage.token.here",
	}
	for name, tok := range cases {
		if _, err := a.CheckAuthentication(ctx, tok); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: err = %v, want ErrUnauthorized", name, err)
		}
	}
}

func TestCheckAuthenticationRejectsAlgNone(t *testing.T) {
	t.Parallel()
	a, err := NewSharedSecret("hunter2")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := a.CheckAuthentication(context.Background(), s); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}
