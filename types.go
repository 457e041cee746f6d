package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is satisfied by *slog.Logger. Arguments after the message are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock returns the current time. Components take one so tests can move
// time forward without sleeping.
type Clock func() time.Time

// Config holds auth options
type Config interface {
	GetSessionTimeout() time.Duration
	GetLoginWindow() time.Duration
	GetMaxLoginAttempts() int
	GetTokenLength() int
	GetSessionCookieName() string
	GetSessionLookup() string
	GetCookieSecure() bool
	GetLoginRoute() string
	GetHomeRoute() string
}

// Identity is the snapshot of an authenticated account carried by a
// session. It is taken at login and never refreshed.
type Identity struct {
	AccountID uuid.UUID `json:"account_id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
}

// AccountFinder resolves login credentials to an account.
type AccountFinder interface {
	FindActiveByUsername(ctx context.Context, username string) (*Account, error)
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
}

// ProfileLocator answers which staff profile, if any, an account is
// linked to.
type ProfileLocator interface {
	ProfileIDFor(ctx context.Context, accountID uuid.UUID) (uuid.NullUUID, error)
}

// SessionRevoker ends the sessions of an account. SessionManager
// implements it.
type SessionRevoker interface {
	Revoke(ctx context.Context, accountID uuid.UUID) (int, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}
