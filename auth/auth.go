// Package auth supplies the optional bearer-token check on the MCP endpoint.
// Credential issuance lives outside this server; the gateway only verifies
// presented tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized indicates the access token failed validation and the
// request should be treated as unauthenticated.
var ErrUnauthorized = errors.New("auth: unauthorized")

// UserInfo carries the validated identity of a caller.
type UserInfo interface {
	UserID() string
}

// Authenticator validates access tokens. Implementations MUST perform
// signature and time validations.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

type userInfo string

func (u userInfo) UserID() string { return string(u) }

type sharedSecretAuthenticator struct {
	secret []byte
	leeway time.Duration
}

// NewSharedSecret constructs an Authenticator that validates HS256 JWTs
// signed with the given shared secret. The token's sub claim becomes the
// caller identity.
func NewSharedSecret(secret string) (Authenticator, error) {
	if secret == "" {
		return nil, errors.New("shared secret is required")
	}
	return &sharedSecretAuthenticator{secret: []byte(secret), leeway: 60 * time.Second}, nil
}

func (a *sharedSecretAuthenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
	)
	parsed, err := parser.Parse(tok, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return userInfo(sub), nil
}
