package auth

import (
	"context"

	"github.com/nycsbus/sitetrack/internal/domain"
)

type contextKey string

const claimsKey contextKey = "sitetrack-auth-claims"

// WithClaims stores claims on the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// FromContext retrieves claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// UserFromContext resolves the acting user; callers without claims act as the
// public (read-only) role.
func UserFromContext(ctx context.Context) domain.User {
	if claims, ok := FromContext(ctx); ok {
		return domain.User{Username: claims.Username, Role: claims.Role}
	}
	return domain.User{Role: domain.RolePublic}
}
