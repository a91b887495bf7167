package middleware

import (
	"context"

	"github.com/upb/cognito-gateway/cognito"
)

// Context key type to avoid collisions
type contextKey string

// ClaimsKey is the context key for verified token claims
const ClaimsKey contextKey = "claims"

// GetClaimsFromContext retrieves verified claims from context
func GetClaimsFromContext(ctx context.Context) *cognito.ParsedClaims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*cognito.ParsedClaims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds verified claims to the context
func WithClaims(ctx context.Context, claims *cognito.ParsedClaims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}
