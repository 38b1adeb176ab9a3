package auth

import (
	"context"
	"strings"
)

type userContextKey struct{}

type contextUser struct {
	id   string
	role string
}

// ContextWithUser attaches the authenticated user's id and global role to the
// context.
func ContextWithUser(ctx context.Context, userID, role string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userContextKey{}, contextUser{
		id:   userID,
		role: strings.TrimSpace(strings.ToLower(role)),
	})
}

// UserIDFromContext extracts the authenticated user id from the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	u, ok := ctx.Value(userContextKey{}).(contextUser)
	if !ok || u.id == "" {
		return "", false
	}
	return u.id, true
}

// RoleFromContext returns the authenticated user's global role, if present.
func RoleFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	u, ok := ctx.Value(userContextKey{}).(contextUser)
	if !ok || u.role == "" {
		return "", false
	}
	return u.role, true
}
