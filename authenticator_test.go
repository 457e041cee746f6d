package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*Account
	err      error
	tracked  []uuid.UUID
	lookups  int
	delay    time.Duration
}

func (f *fakeAccounts) FindActiveByUsername(_ context.Context, username string) (*Account, error) {
	f.mu.Lock()
	f.lookups++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	account, ok := f.accounts[username]
	if !ok || !account.IsActive {
		return nil, ErrIdentityNotFound
	}
	return account, nil
}

func (f *fakeAccounts) TrackSuccessfulLogin(_ context.Context, account *Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, account.ID)
	return nil
}

// plainPasswords stores the password itself as the hash.
type plainPasswords struct{}

func (plainPasswords) HashPassword(password string) (string, error) { return password, nil }

func (plainPasswords) ComparePasswordAndHash(password, hash string) error {
	if password != hash {
		return errors.New("mismatch")
	}
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type authFixture struct {
	auther   *Auther
	accounts *fakeAccounts
	store    *MemorySessionStore
	clock    *fakeClock
	sink     *recordingSink
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	clock := newFakeClock()
	store := NewMemorySessionStore()
	opts := DefaultOptions()
	sink := &recordingSink{}

	accounts := &fakeAccounts{accounts: map[string]*Account{
		"fac1": {
			ID:           uuid.New(),
			Username:     "fac1",
			PasswordHash: "secret1",
			IsActive:     true,
			UserType:     &UserType{ID: 2, Name: "Faculty"},
		},
		"retired": {
			ID:           uuid.New(),
			Username:     "retired",
			PasswordHash: "secret1",
			IsActive:     false,
			UserType:     &UserType{ID: 2, Name: "Faculty"},
		},
	}}

	sessions := NewSessionManager(store, opts).WithClock(clock.Now).WithLogger(discardLogger())
	throttle := NewLoginThrottle(store, opts).WithClock(clock.Now).WithLogger(discardLogger())
	auther := NewAuthenticator(accounts, sessions, throttle).
		WithPasswordAuthenticator(plainPasswords{}).
		WithLogger(discardLogger()).
		WithActivitySink(sink).
		WithClock(clock.Now)

	return &authFixture{auther: auther, accounts: accounts, store: store, clock: clock, sink: sink}
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.auther.throttle.RecordAttempt(ctx, "pre-auth", AttemptFailure)
	require.NoError(t, err)

	session, err := f.auther.Login(ctx, "pre-auth", LoginRequest{Username: " fac1 ", Password: "secret1"})
	require.NoError(t, err)

	assert.NotEqual(t, "pre-auth", session.ID)
	assert.Equal(t, "fac1", session.Identity.Username)
	assert.Equal(t, RoleFaculty, session.Identity.Role)
	assert.NotEmpty(t, session.CSRFToken)
	assert.Zero(t, session.LoginWindow.Count)

	_, err = f.store.Load(ctx, "pre-auth")
	assert.True(t, IsSessionNotFound(err))

	assert.Equal(t, []uuid.UUID{f.accounts.accounts["fac1"].ID}, f.accounts.tracked)
	assert.Contains(t, f.sink.types(), ActivityEventLoginSuccess)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	cases := map[string]LoginRequest{
		"wrong password":   {Username: "fac1", Password: "nope"},
		"unknown username": {Username: "ghost", Password: "secret1"},
		"inactive account": {Username: "retired", Password: "secret1"},
		"missing password": {Username: "fac1"},
		"missing username": {Password: "secret1"},
		"username casing":  {Username: "FAC1", Password: "secret1"},
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newAuthFixture(t)

			_, err := f.auther.Login(ctx, "client", req)
			require.Error(t, err)
			assert.Same(t, ErrAuthenticationFailed, err)

			session, err := f.store.Load(ctx, "client")
			require.NoError(t, err)
			assert.Equal(t, 1, session.LoginWindow.Count)
			assert.False(t, session.Authenticated())
		})
	}
}

func TestLoginRateLimitedBeforeCredentials(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	for i := 0; i < DefaultMaxLoginAttempts; i++ {
		_, err := f.auther.Login(ctx, "client", LoginRequest{Username: "fac1", Password: "bad"})
		require.ErrorIs(t, err, ErrAuthenticationFailed)
		f.clock.Advance(10 * time.Second)
	}

	_, err := f.auther.Login(ctx, "client", LoginRequest{Username: "fac1", Password: "secret1"})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "Too many login attempts. Please try again in 15 minute(s).", richErr.Message)

	seconds, ok := RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 850, seconds)
	assert.Empty(t, f.accounts.tracked)
	assert.Contains(t, f.sink.types(), ActivityEventLoginRateLimited)

	f.clock.Advance(851 * time.Second)
	session, err := f.auther.Login(ctx, "client", LoginRequest{Username: "fac1", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, session.Authenticated())
}

func TestLoginConcurrentGuessesAreThrottled(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.accounts.delay = 20 * time.Millisecond

	const attempts = 20
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		failed      int
		rateLimited int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.auther.Login(ctx, "client-abcdefgh", LoginRequest{Username: "fac1", Password: "wrong"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrAuthenticationFailed):
				failed++
			case IsRateLimited(err):
				rateLimited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, DefaultMaxLoginAttempts, f.accounts.lookups)
	assert.Equal(t, DefaultMaxLoginAttempts, failed)
	assert.Equal(t, attempts-DefaultMaxLoginAttempts, rateLimited)

	session, err := f.store.Load(ctx, "client-abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxLoginAttempts, session.LoginWindow.Count)
}

func TestLoginStoreErrorStillCountsAttempt(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.accounts.err = NewStoreUnavailableError(errors.New("connection reset"), "accounts.find_by_username")

	_, err := f.auther.Login(ctx, "client", LoginRequest{Username: "fac1", Password: "secret1"})
	require.Error(t, err)

	session, err := f.store.Load(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, 1, session.LoginWindow.Count)
}

func TestLoginWithoutClientID(t *testing.T) {
	f := newAuthFixture(t)

	session, err := f.auther.Login(context.Background(), "", LoginRequest{Username: "fac1", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, session.Authenticated())
}

func TestLoginStoreErrorPassesThrough(t *testing.T) {
	f := newAuthFixture(t)
	f.accounts.err = NewStoreUnavailableError(errors.New("connection reset"), "accounts.find_by_username")

	_, err := f.auther.Login(context.Background(), "client", LoginRequest{Username: "fac1", Password: "secret1"})
	require.Error(t, err)
	assert.True(t, IsStoreUnavailable(err))
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	session, err := f.auther.Login(ctx, "", LoginRequest{Username: "fac1", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, f.auther.Logout(ctx, session.ID))
	_, err = f.store.Load(ctx, session.ID)
	assert.True(t, IsSessionNotFound(err))
	assert.Contains(t, f.sink.types(), ActivityEventLogout)

	require.NoError(t, f.auther.Logout(ctx, session.ID))
	require.NoError(t, f.auther.Logout(ctx, ""))
}
