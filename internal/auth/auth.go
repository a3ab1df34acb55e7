// Package auth carries the authenticated actor through a request context.
// Authentication itself happens upstream; the billing core only reads the id.
package auth

import "context"

type ctxKey string

const userIDCtxKey = ctxKey("userID")

// System is the actor recorded when no user is attached to the context.
const System uint = 0

// WithUserID stores user id in context.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDCtxKey, userID)
}

// UserIDFromContext extracts user id.
func UserIDFromContext(ctx context.Context) (uint, bool) {
	v := ctx.Value(userIDCtxKey)
	if v == nil {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// Actor returns the user id in ctx, or System.
func Actor(ctx context.Context) uint {
	if id, ok := UserIDFromContext(ctx); ok {
		return id
	}
	return System
}
