package auth_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/eularod/faculty-infortmation-system-eula/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type dbFixture struct {
	db      *bun.DB
	repo    auth.RepositoryManager
	linkage *auth.IdentityLinkage
	admin   *auth.UserType
	faculty *auth.UserType
}

func newDBFixture(t *testing.T) *dbFixture {
	t.Helper()
	ctx := context.Background()

	db, err := repository.OpenDB(ctx, auth.DatabaseOptions{
		Driver: auth.DriverSQLite,
		DSN:    ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = repository.Migrate(ctx, db, auth.DriverSQLite, quietLogger())
	require.NoError(t, err)

	repo := auth.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())

	admin, err := repo.Accounts().UserTypeByName(ctx, "Administrator")
	require.NoError(t, err)
	faculty, err := repo.Accounts().UserTypeByName(ctx, "faculty")
	require.NoError(t, err)

	return &dbFixture{
		db:      db,
		repo:    repo,
		linkage: auth.NewIdentityLinkage(repo).WithLogger(quietLogger()),
		admin:   admin,
		faculty: faculty,
	}
}

func (f *dbFixture) createAccount(t *testing.T, username string, userType *auth.UserType, profile uuid.NullUUID) *auth.Account {
	t.Helper()
	account, err := auth.NewCreateAccountHandler(f.repo, f.linkage).
		WithLogger(quietLogger()).
		Execute(context.Background(), auth.CreateAccountMessage{
			Username:   username,
			Password:   "secret1",
			UserTypeID: userType.ID,
			ProfileID:  profile,
		})
	require.NoError(t, err)
	return account
}

func (f *dbFixture) createProfile(t *testing.T, first, last string) *auth.StaffProfile {
	t.Helper()
	profile, err := f.repo.Profiles().Create(context.Background(), &auth.StaffProfile{
		ID:         uuid.New(),
		FirstName:  first,
		LastName:   last,
		Email:      first + "@faculty.example.edu",
		Department: "Mathematics",
	})
	require.NoError(t, err)
	return profile
}

func (f *dbFixture) ownerOf(t *testing.T, profileID uuid.UUID) *uuid.UUID {
	t.Helper()
	profile := &auth.StaffProfile{}
	require.NoError(t, f.db.NewSelect().Model(profile).Where("?TableAlias.id = ?", profileID).Scan(context.Background()))
	return profile.AccountID
}

func some(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}
