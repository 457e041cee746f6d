package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

// LoginRequest is the submitted login form.
type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type Auther struct {
	accounts     AccountFinder
	sessions     *SessionManager
	throttle     *LoginThrottle
	passwords    PasswordAuthenticator
	logger       Logger
	activitySink ActivitySink
	now          Clock
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(accounts AccountFinder, sessions *SessionManager, throttle *LoginThrottle) *Auther {
	return &Auther{
		accounts:     accounts,
		sessions:     sessions,
		throttle:     throttle,
		passwords:    bcryptPasswords{},
		logger:       defaultLogger(),
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

func (s *Auther) WithPasswordAuthenticator(passwords PasswordAuthenticator) *Auther {
	if passwords != nil {
		s.passwords = passwords
	}
	return s
}

func (s *Auther) WithClock(clock Clock) *Auther {
	if clock != nil {
		s.now = clock
	}
	return s
}

func (s *Auther) Sessions() *SessionManager {
	return s.sessions
}

// Login verifies credentials for the client identified by clientID, its
// pre-auth session. The attempt is reserved against the throttle before
// the credentials are looked at, so a blocked client is refused without
// any lookup. On success the pre-auth session is replaced by a new
// authenticated one.
func (s *Auther) Login(ctx context.Context, clientID string, req LoginRequest) (*Session, error) {
	if clientID == "" {
		id, err := NewSessionID()
		if err != nil {
			return nil, NewStoreUnavailableError(err, "session.generate_id")
		}
		clientID = id
	}

	window, err := s.throttle.Reserve(ctx, clientID)
	if err != nil {
		if retryAfter, ok := RetryAfter(err); ok {
			s.logger.Warn("login rejected, too many attempts", "retry_after", retryAfter, "session", maskID(clientID))
			s.emit(ctx, ActivityEventLoginRateLimited, uuid.Nil, req.Username, map[string]any{
				"retry_after": retryAfter,
			})
		}
		return nil, err
	}

	req.Username = strings.TrimSpace(req.Username)
	if err := req.Validate(); err != nil {
		return nil, s.fail(ctx, clientID, req.Username, "missing_fields", window)
	}

	account, err := s.accounts.FindActiveByUsername(ctx, req.Username)
	if err != nil {
		if IsStoreUnavailable(err) {
			return nil, err
		}
		burnCompare(req.Password)
		return nil, s.fail(ctx, clientID, req.Username, "unknown_account", window)
	}

	if err := s.passwords.ComparePasswordAndHash(req.Password, account.PasswordHash); err != nil {
		return nil, s.fail(ctx, clientID, req.Username, "bad_password", window)
	}

	if _, err := s.throttle.RecordAttempt(ctx, clientID, AttemptSuccess); err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, clientID, account.Identity())
	if err != nil {
		return nil, err
	}

	if err := s.accounts.TrackSuccessfulLogin(ctx, account); err != nil {
		s.logger.Error("failed to track login", "account_id", account.ID.String(), "error", err)
	}

	s.logger.Info("login succeeded", "username", account.Username, "role", account.Role().String())
	s.emit(ctx, ActivityEventLoginSuccess, account.ID, account.Username, map[string]any{
		"role": account.Role().String(),
	})

	return session, nil
}

// Logout destroys the session. It is safe to call with an unknown id.
func (s *Auther) Logout(ctx context.Context, sessionID string) error {
	var identity *Identity
	if session, err := s.sessions.Store().Load(ctx, sessionID); err == nil {
		identity = session.Identity
	}

	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return err
	}

	if identity != nil {
		s.emit(ctx, ActivityEventLogout, identity.AccountID, identity.Username, nil)
	}
	return nil
}

// fail reports a rejected login. The attempt was already counted by
// Reserve; every cause returns the same credential error.
func (s *Auther) fail(ctx context.Context, clientID, username, reason string, window LoginWindow) error {
	s.logger.Info("login failed", "reason", reason, "attempts", window.Count, "session", maskID(clientID))
	s.emit(ctx, ActivityEventLoginFailure, uuid.Nil, username, map[string]any{
		"reason":   reason,
		"attempts": window.Count,
	})
	return ErrAuthenticationFailed
}

func (s *Auther) emit(ctx context.Context, eventType ActivityEventType, accountID uuid.UUID, username string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		ActorID:    accountID,
		AccountID:  accountID,
		Username:   username,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}
	if err := s.activitySink.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record activity", "event", string(eventType), "error", err)
	}
}
