package backend

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type tokenKey struct{}

// WithToken attaches the caller's bearer credential to ctx. It takes
// precedence over the client's configured token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the credential attached by WithToken
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// CheckCredential rejects a missing or expired credential before any request is made.
// Signatures are not verified here; the backend does that. Tokens that are not
// JWTs are passed through as opaque.
func CheckCredential(token string, now time.Time) error {
	if token == "" {
		return &AuthError{Message: "no credential present"}
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return &AuthError{Message: "credential expired"}
	}
	return nil
}
