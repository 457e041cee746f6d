package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

// SessionContextKey is the router locals key holding the current *Session.
const SessionContextKey = "session"

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSession sets the session in the given context
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the session from the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok && raw != nil
}

// IdentityFromContext returns the identity of an authenticated session.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok || !session.Authenticated() {
		return nil, false
	}
	return session.Identity, true
}

// GetRouterSession extracts the session from the router context
func GetRouterSession(ctx router.Context, key string) (*Session, bool) {
	if key == "" {
		key = SessionContextKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	session, ok := raw.(*Session)
	return session, ok && session != nil
}

// GetRouterIdentity extracts the identity of an authenticated session
// from the router context.
func GetRouterIdentity(ctx router.Context) (*Identity, bool) {
	session, ok := GetRouterSession(ctx, "")
	if !ok || !session.Authenticated() {
		return nil, false
	}
	return session.Identity, true
}
