package auth

import (
	"context"
	"math"
	"time"
)

type AttemptOutcome int

const (
	AttemptFailure AttemptOutcome = iota
	AttemptSuccess
)

func (o AttemptOutcome) String() string {
	if o == AttemptSuccess {
		return "success"
	}
	return "failure"
}

// LoginThrottle limits failed logins per client session using a fixed
// window. The window is reset lazily, when a failure finds it older than
// the window length.
type LoginThrottle struct {
	store       SessionStore
	window      time.Duration
	maxAttempts int
	now         Clock
	logger      Logger
}

func NewLoginThrottle(store SessionStore, cfg Config) *LoginThrottle {
	window := cfg.GetLoginWindow()
	if window <= 0 {
		window = DefaultLoginWindow
	}
	maxAttempts := cfg.GetMaxLoginAttempts()
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxLoginAttempts
	}
	return &LoginThrottle{
		store:       store,
		window:      window,
		maxAttempts: maxAttempts,
		now:         time.Now,
		logger:      defaultLogger(),
	}
}

func (t *LoginThrottle) WithClock(clock Clock) *LoginThrottle {
	if clock != nil {
		t.now = clock
	}
	return t
}

func (t *LoginThrottle) WithLogger(logger Logger) *LoginThrottle {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// Reserve claims one attempt for clientID before its credentials are
// checked. The window is evaluated, reset when stale and counted in a
// single store update, so concurrent attempts on one client are all
// counted. A client with no attempts left gets a rate limited error and
// nothing is written.
func (t *LoginThrottle) Reserve(ctx context.Context, clientID string) (LoginWindow, error) {
	if clientID == "" {
		return LoginWindow{}, ErrSessionNotFound
	}

	now := t.now()
	session, err := t.store.Update(ctx, clientID, func(current *Session) (*Session, error) {
		if current == nil {
			current = newPreAuthSession(clientID, now)
		}

		if blocked, retryAfter, _ := t.evaluate(current.LoginWindow, now); blocked {
			return nil, NewRateLimitedError(retryAfter)
		}

		if t.windowAge(current.LoginWindow, now) > t.window {
			current.LoginWindow = LoginWindow{Start: now}
		}
		current.LoginWindow.Count++
		touchPreAuth(current, now)
		return current, nil
	})
	if err != nil {
		return LoginWindow{}, err
	}

	if session.LoginWindow.Count >= t.maxAttempts {
		t.logger.Warn("login attempts exhausted", "attempts", session.LoginWindow.Count)
	}

	return session.LoginWindow, nil
}

// RecordAttempt updates the window of clientID after the fact. A pre-auth
// session is created when none exists. Success clears the counter.
func (t *LoginThrottle) RecordAttempt(ctx context.Context, clientID string, outcome AttemptOutcome) (LoginWindow, error) {
	if clientID == "" {
		return LoginWindow{}, ErrSessionNotFound
	}

	now := t.now()
	session, err := t.store.Update(ctx, clientID, func(current *Session) (*Session, error) {
		if current == nil {
			current = newPreAuthSession(clientID, now)
		}

		switch outcome {
		case AttemptSuccess:
			current.LoginWindow = LoginWindow{Start: now}
		default:
			if t.windowAge(current.LoginWindow, now) > t.window {
				current.LoginWindow = LoginWindow{Start: now}
			}
			current.LoginWindow.Count++
		}
		touchPreAuth(current, now)
		return current, nil
	})
	if err != nil {
		return LoginWindow{}, err
	}

	if outcome == AttemptFailure && session.LoginWindow.Count >= t.maxAttempts {
		t.logger.Warn("login attempts exhausted", "attempts", session.LoginWindow.Count)
	}

	return session.LoginWindow, nil
}

// IsBlocked reports whether clientID has used up its attempts inside the
// current window, and how many seconds remain until the window ends. It
// never writes.
func (t *LoginThrottle) IsBlocked(ctx context.Context, clientID string) (bool, int, error) {
	if clientID == "" {
		return false, 0, nil
	}

	session, err := t.store.Load(ctx, clientID)
	if err != nil {
		if IsSessionNotFound(err) {
			return false, 0, nil
		}
		return false, 0, err
	}

	return t.evaluate(session.LoginWindow, t.now())
}

// Check is IsBlocked folded into an error.
func (t *LoginThrottle) Check(ctx context.Context, clientID string) error {
	blocked, retryAfter, err := t.IsBlocked(ctx, clientID)
	if err != nil {
		return err
	}
	if blocked {
		return NewRateLimitedError(retryAfter)
	}
	return nil
}

func (t *LoginThrottle) evaluate(w LoginWindow, now time.Time) (bool, int, error) {
	if w.Count < t.maxAttempts {
		return false, 0, nil
	}
	age := t.windowAge(w, now)
	if age > t.window {
		return false, 0, nil
	}
	remaining := int(math.Ceil((t.window - age).Seconds()))
	return true, remaining, nil
}

func (t *LoginThrottle) windowAge(w LoginWindow, now time.Time) time.Duration {
	if w.Start.IsZero() {
		return t.window + time.Second
	}
	age := now.Sub(w.Start)
	if age < 0 {
		return 0
	}
	return age
}

func newPreAuthSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		LastActivity: now,
		LoginWindow:  LoginWindow{Start: now},
		CreatedAt:    now,
	}
}

// touchPreAuth keeps a pre-auth session alive while it is used for login
// attempts. Authenticated sessions are only refreshed by Touch.
func touchPreAuth(s *Session, now time.Time) {
	if !s.Authenticated() && now.After(s.LastActivity) {
		s.LastActivity = now
	}
}
