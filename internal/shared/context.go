package shared

import (
	"context"

	"github.com/learnhub/console/internal/permissions"
)

type sessionContextKey struct{}

type identityContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithIdentity stores the identity resolved from a bearer credential.
func ContextWithIdentity(ctx context.Context, identity *permissions.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity stored by ContextWithIdentity, or nil.
func IdentityFromContext(ctx context.Context) *permissions.Identity {
	identity, _ := ctx.Value(identityContextKey{}).(*permissions.Identity)
	return identity
}
