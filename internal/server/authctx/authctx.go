package authctx

import (
	"context"

	"github.com/iudanet/taskhub/internal/rbac"
)

// Identity is the authenticated subject resolved from an access assertion
type Identity struct {
	UserID string    `json:"id"`
	Role   rbac.Role `json:"role"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
}

// contextKey тип для ключей контекста
type contextKey string

const (
	identityKey contextKey = "identity"
	tokenKey    contextKey = "access_token"
)

// WithIdentity attaches the authenticated identity to the context
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom extracts the identity; ok is false for anonymous requests
func IdentityFrom(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}

// WithToken stores the raw access assertion for handlers that forward it
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFrom returns the raw access assertion if one was attached
func TokenFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}
