// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// UserContext identifies the operator driving a composer session.
// Permissions are informational here; gating is done with explicit
// security.Capabilities passed to the composers.
type UserContext struct {
	UserID      string
	Name        string
	Permissions []string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}
