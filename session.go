package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LoginWindow counts failed logins since Start.
type LoginWindow struct {
	Count int       `json:"count"`
	Start time.Time `json:"start"`
}

// Session is the server side state bound to one client. A session without
// an Identity is a pre-auth session: it only carries the login window.
type Session struct {
	ID           string      `json:"id"`
	Identity     *Identity   `json:"identity,omitempty"`
	LastActivity time.Time   `json:"last_activity"`
	CSRFToken    string      `json:"csrf_token,omitempty"`
	LoginWindow  LoginWindow `json:"login_window"`
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Authenticated reports whether the session belongs to a logged in account.
func (s *Session) Authenticated() bool {
	return s != nil && s.Identity != nil
}

// Clone returns a deep copy, nil for nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Identity != nil {
		identity := *s.Identity
		out.Identity = &identity
	}
	return &out
}

// SessionUpdateFunc computes the next state of a session from the current
// one. current is nil when no record exists. Returning nil deletes the
// record; returning an error aborts the update and leaves the record as is.
type SessionUpdateFunc func(current *Session) (*Session, error)

// SessionStore persists sessions. Update must apply fn atomically: two
// concurrent updates of the same id never both observe the same state.
type SessionStore interface {
	// Load returns ErrSessionNotFound when id has no record.
	Load(ctx context.Context, id string) (*Session, error)
	// Update returns the stored session, or nil when fn deleted it.
	Update(ctx context.Context, id string, fn SessionUpdateFunc) (*Session, error)
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	// DeleteByAccount removes every authenticated session of accountID and
	// returns how many were removed.
	DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int, error)
}

// SessionManager owns session lifetime: creation at login, the inactivity
// timeout and destruction at logout.
type SessionManager struct {
	store        SessionStore
	guard        *CSRFGuard
	timeout      time.Duration
	now          Clock
	logger       Logger
	activitySink ActivitySink
}

func NewSessionManager(store SessionStore, cfg Config) *SessionManager {
	timeout := cfg.GetSessionTimeout()
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &SessionManager{
		store:        store,
		guard:        NewCSRFGuard(store, cfg),
		timeout:      timeout,
		now:          time.Now,
		logger:       defaultLogger(),
		activitySink: noopActivitySink{},
	}
}

func (m *SessionManager) WithClock(clock Clock) *SessionManager {
	if clock != nil {
		m.now = clock
	}
	return m
}

func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

func (m *SessionManager) WithActivitySink(sink ActivitySink) *SessionManager {
	m.activitySink = normalizeActivitySink(sink)
	return m
}

func (m *SessionManager) Store() SessionStore {
	return m.store
}

func (m *SessionManager) CSRF() *CSRFGuard {
	return m.guard
}

func (m *SessionManager) Timeout() time.Duration {
	return m.timeout
}

// Create starts an authenticated session under a new id. priorID, when
// set, is destroyed first so a pre-auth id never becomes authenticated.
func (m *SessionManager) Create(ctx context.Context, priorID string, identity Identity) (*Session, error) {
	if priorID != "" {
		if err := m.store.Delete(ctx, priorID); err != nil {
			return nil, err
		}
	}

	id, err := NewSessionID()
	if err != nil {
		return nil, NewStoreUnavailableError(err, "session.generate_id")
	}

	now := m.now()
	created, err := m.store.Update(ctx, id, func(current *Session) (*Session, error) {
		if current != nil {
			return nil, ErrSessionConflict
		}
		return &Session{
			ID:           id,
			Identity:     &identity,
			LastActivity: now,
			LoginWindow:  LoginWindow{Start: now},
			CreatedAt:    now,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	token, err := m.guard.Issue(ctx, id)
	if err != nil {
		if delErr := m.store.Delete(ctx, id); delErr != nil {
			m.logger.Error("failed to remove half created session", "error", delErr)
		}
		return nil, err
	}
	created.CSRFToken = token

	return created, nil
}

// Touch validates an authenticated session and refreshes its last
// activity. An expired session is destroyed and ErrSessionExpired is
// returned; a missing or pre-auth session yields ErrSessionNotFound.
func (m *SessionManager) Touch(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	var expired, anonymous bool
	now := m.now()

	session, err := m.store.Update(ctx, id, func(current *Session) (*Session, error) {
		expired, anonymous = false, false
		if current == nil {
			return nil, ErrSessionNotFound
		}
		if m.isExpired(current, now) {
			expired = current.Authenticated()
			anonymous = !expired
			return nil, nil
		}
		if !current.Authenticated() {
			return nil, ErrSessionNotFound
		}
		if now.After(current.LastActivity) {
			current.LastActivity = now
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		m.logger.Info("session expired", "session", maskID(id), "idle_timeout", m.timeout.String())
		m.activitySink.Record(ctx, ActivityEvent{
			EventType:  ActivityEventSessionExpired,
			OccurredAt: now,
		})
		return nil, ErrSessionExpired
	}

	if anonymous {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// Destroy removes the session. Destroying an unknown id is not an error.
func (m *SessionManager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return m.store.Delete(ctx, id)
}

// Revoke ends every session of accountID. Account changes that alter
// what a session is allowed to do call it so no stale identity survives.
func (m *SessionManager) Revoke(ctx context.Context, accountID uuid.UUID) (int, error) {
	n, err := m.store.DeleteByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("sessions revoked", "account_id", accountID.String(), "count", n)
	}
	return n, nil
}

func (m *SessionManager) isExpired(s *Session, now time.Time) bool {
	return now.Sub(s.LastActivity) >= m.timeout
}
