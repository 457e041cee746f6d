package auth

import (
	"context"
	"crypto/subtle"
)

// CSRFGuard binds one request token to each session.
type CSRFGuard struct {
	store  SessionStore
	length int
}

func NewCSRFGuard(store SessionStore, cfg Config) *CSRFGuard {
	length := cfg.GetTokenLength()
	if length <= 0 {
		length = DefaultTokenLength
	}
	return &CSRFGuard{
		store:  store,
		length: length,
	}
}

// Issue returns the session token, generating it on first use. Repeated
// calls return the same value until the session ends.
func (g *CSRFGuard) Issue(ctx context.Context, sessionID string) (string, error) {
	if loaded, err := g.store.Load(ctx, sessionID); err != nil {
		return "", err
	} else if loaded.CSRFToken != "" {
		return loaded.CSRFToken, nil
	}

	var token string
	_, err := g.store.Update(ctx, sessionID, func(current *Session) (*Session, error) {
		if current == nil {
			return nil, ErrSessionNotFound
		}
		if current.CSRFToken != "" {
			token = current.CSRFToken
			return current, nil
		}
		fresh, err := generateToken(g.length)
		if err != nil {
			return nil, NewStoreUnavailableError(err, "csrf.generate")
		}
		current.CSRFToken = fresh
		token = fresh
		return current, nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Validate checks supplied against the token bound to session.
func (g *CSRFGuard) Validate(session *Session, supplied string) bool {
	return ValidateCSRFToken(session, supplied)
}

// ValidateCSRFToken is false for a nil session, a session with no token or
// an empty supplied value. The comparison runs in constant time.
func ValidateCSRFToken(session *Session, supplied string) bool {
	expected := ""
	if session != nil {
		expected = session.CSRFToken
	}
	if expected == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
