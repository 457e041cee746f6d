package auth_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/eularod/faculty-infortmation-system-eula/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) At(start time.Time, offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = start.Add(offset)
}

type system struct {
	*dbFixture
	clock    *stepClock
	auther   *auth.Auther
	resolver *auth.AuthorizationResolver
	store    auth.SessionStore
}

type storeFactory func(t *testing.T, db *bun.DB) auth.SessionStore

// sessionBackends lists the stores scenarios run against. Redis joins when
// FIS_TEST_REDIS_ADDR is set.
func sessionBackends() map[string]storeFactory {
	backends := map[string]storeFactory{
		"memory": func(*testing.T, *bun.DB) auth.SessionStore {
			return auth.NewMemorySessionStore()
		},
		"sql": func(_ *testing.T, db *bun.DB) auth.SessionStore {
			return repository.NewSQLSessionStore(db)
		},
	}
	if addr := os.Getenv("FIS_TEST_REDIS_ADDR"); addr != "" {
		backends["redis"] = func(t *testing.T, _ *bun.DB) auth.SessionStore {
			client := repository.NewRedisClient(auth.SessionOptions{RedisAddr: addr})
			t.Cleanup(func() { client.Close() })
			return repository.NewRedisSessionStore(client, "fis:scenario:"+uuid.NewString()+":", time.Hour)
		}
	}
	return backends
}

func newSystem(t *testing.T) *system {
	t.Helper()
	return newSystemWith(t, func(_ *testing.T, db *bun.DB) auth.SessionStore {
		return repository.NewSQLSessionStore(db)
	})
}

func newSystemWith(t *testing.T, newStore storeFactory) *system {
	t.Helper()
	f := newDBFixture(t)
	clock := &stepClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts := auth.DefaultOptions()

	store := newStore(t, f.db)
	sessions := auth.NewSessionManager(store, opts).WithClock(clock.Now).WithLogger(quietLogger())
	throttle := auth.NewLoginThrottle(store, opts).WithClock(clock.Now).WithLogger(quietLogger())

	return &system{
		dbFixture: f,
		clock:     clock,
		store:     store,
		auther: auth.NewAuthenticator(f.repo.Accounts(), sessions, throttle).
			WithClock(clock.Now).
			WithLogger(quietLogger()),
		resolver: auth.NewAuthorizationResolver(f.linkage).WithLogger(quietLogger()),
	}
}

func TestScenarioAdministratorHoldsEverything(t *testing.T) {
	ctx := context.Background()
	s := newSystem(t)
	s.createAccount(t, "admin1", s.admin, uuid.NullUUID{})
	target := s.createProfile(t, "Grace", "Hopper")

	session, err := s.auther.Login(ctx, "", auth.LoginRequest{Username: "admin1", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdministrator, session.Identity.Role)

	caps, err := s.resolver.Capabilities(ctx, session.Identity, target.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.Capabilities{View: true, Edit: true, Delete: true}, caps)
}

func TestScenarioFacultyEditsOwnProfileOnly(t *testing.T) {
	ctx := context.Background()
	s := newSystem(t)
	own := s.createProfile(t, "Ada", "Lovelace")
	other := s.createProfile(t, "Emmy", "Noether")
	s.createAccount(t, "fac1", s.faculty, some(own.ID))

	session, err := s.auther.Login(ctx, "", auth.LoginRequest{Username: "fac1", Password: "secret1"})
	require.NoError(t, err)

	assert.NoError(t, s.resolver.Require(ctx, session.Identity, own.ID, auth.CapabilityEdit))
	assert.ErrorIs(t, s.resolver.Require(ctx, session.Identity, other.ID, auth.CapabilityEdit), auth.ErrPermissionDenied)
	assert.ErrorIs(t, s.resolver.Require(ctx, session.Identity, own.ID, auth.CapabilityDelete), auth.ErrPermissionDenied)
	assert.NoError(t, s.resolver.Require(ctx, session.Identity, other.ID, auth.CapabilityView))
}

func TestScenarioThrottleWindow(t *testing.T) {
	ctx := context.Background()
	s := newSystem(t)
	s.createAccount(t, "fac1", s.faculty, uuid.NullUUID{})

	start := s.clock.Now()
	client, err := auth.NewSessionID()
	require.NoError(t, err)

	for _, offset := range []int{0, 10, 20, 30, 40} {
		s.clock.At(start, time.Duration(offset)*time.Second)
		_, err := s.auther.Login(ctx, client, auth.LoginRequest{Username: "fac1", Password: "wrong-password"})
		require.ErrorIs(t, err, auth.ErrAuthenticationFailed, "attempt at t=%d", offset)
	}

	s.clock.At(start, 50*time.Second)
	_, err = s.auther.Login(ctx, client, auth.LoginRequest{Username: "fac1", Password: "secret1"})
	require.True(t, auth.IsRateLimited(err))
	retryAfter, ok := auth.RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 850, retryAfter)

	s.clock.At(start, 905*time.Second)
	_, err = s.auther.Login(ctx, client, auth.LoginRequest{Username: "fac1", Password: "wrong-password"})
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)

	stored, err := s.store.Load(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LoginWindow.Count)
	assert.True(t, stored.LoginWindow.Start.Equal(s.clock.Now()))
}

func TestScenarioDeletedAccountLosesSessions(t *testing.T) {
	for name, newStore := range sessionBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newSystemWith(t, newStore)
			admin := s.createAccount(t, "admin1", s.admin, uuid.NullUUID{})
			account := s.createAccount(t, "fac1", s.faculty, uuid.NullUUID{})

			session, err := s.auther.Login(ctx, "", auth.LoginRequest{Username: "fac1", Password: "secret1"})
			require.NoError(t, err)
			adminSession, err := s.auther.Login(ctx, "", auth.LoginRequest{Username: "admin1", Password: "secret1"})
			require.NoError(t, err)

			require.NoError(t, auth.NewDeleteAccountHandler(s.repo, s.linkage).
				WithLogger(quietLogger()).
				WithSessionRevoker(s.auther.Sessions()).
				Execute(ctx, auth.DeleteAccountMessage{ActorID: admin.ID, AccountID: account.ID}))

			_, err = s.auther.Sessions().Touch(ctx, session.ID)
			assert.True(t, auth.IsSessionNotFound(err))

			_, err = s.auther.Sessions().Touch(ctx, adminSession.ID)
			assert.NoError(t, err)
		})
	}
}

func TestScenarioDemotedAdministratorLosesSessions(t *testing.T) {
	for name, newStore := range sessionBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newSystemWith(t, newStore)
			root := s.createAccount(t, "root1", s.admin, uuid.NullUUID{})
			demoted := s.createAccount(t, "admin2", s.admin, uuid.NullUUID{})
			target := s.createProfile(t, "Grace", "Hopper")

			session, err := s.auther.Login(ctx, "", auth.LoginRequest{Username: "admin2", Password: "secret1"})
			require.NoError(t, err)
			require.NoError(t, s.resolver.Require(ctx, session.Identity, target.ID, auth.CapabilityDelete))

			update := auth.NewUpdateAccountHandler(s.repo, s.linkage).
				WithLogger(quietLogger()).
				WithSessionRevoker(s.auther.Sessions())

			require.NoError(t, update.Execute(ctx, auth.UpdateAccountMessage{
				ActorID:    root.ID,
				AccountID:  demoted.ID,
				Username:   "admin2",
				UserTypeID: s.faculty.ID,
				Active:     true,
			}))

			_, err = s.auther.Sessions().Touch(ctx, session.ID)
			assert.True(t, auth.IsSessionNotFound(err))

			session, err = s.auther.Login(ctx, "", auth.LoginRequest{Username: "admin2", Password: "secret1"})
			require.NoError(t, err)
			assert.Equal(t, auth.RoleFaculty, session.Identity.Role)
			assert.ErrorIs(t, s.resolver.Require(ctx, session.Identity, target.ID, auth.CapabilityDelete), auth.ErrPermissionDenied)
		})
	}
}

func TestScenarioUnchangedAccountKeepsSessions(t *testing.T) {
	ctx := context.Background()
	s := newSystemWith(t, func(*testing.T, *bun.DB) auth.SessionStore {
		return auth.NewMemorySessionStore()
	})
	root := s.createAccount(t, "root1", s.admin, uuid.NullUUID{})
	account := s.createAccount(t, "fac1", s.faculty, uuid.NullUUID{})
	profile := s.createProfile(t, "Ada", "Lovelace")

	session, err := s.auther.Login(ctx, "", auth.LoginRequest{Username: "fac1", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, auth.NewUpdateAccountHandler(s.repo, s.linkage).
		WithLogger(quietLogger()).
		WithSessionRevoker(s.auther.Sessions()).
		Execute(ctx, auth.UpdateAccountMessage{
			ActorID:    root.ID,
			AccountID:  account.ID,
			Username:   "fac1",
			UserTypeID: s.faculty.ID,
			Active:     true,
			ProfileID:  some(profile.ID),
		}))

	_, err = s.auther.Sessions().Touch(ctx, session.ID)
	assert.NoError(t, err)
}
