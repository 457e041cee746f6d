package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Accounts interface {
	repository.Repository[*Account]

	FindActiveByUsername(ctx context.Context, username string) (*Account, error)
	FindWithRole(ctx context.Context, id uuid.UUID) (*Account, error)
	FindWithRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, lock bool) (*Account, error)
	ListWithRoles(ctx context.Context) ([]*Account, error)
	UsernameTakenTx(ctx context.Context, tx bun.IDB, username string, exclude uuid.UUID) (bool, error)
	UpdateDetailsTx(ctx context.Context, tx bun.IDB, account *Account) error
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	TrackSuccessfulLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error

	UserTypeTx(ctx context.Context, tx bun.IDB, id int64) (*UserType, error)
	UserTypeByName(ctx context.Context, name string) (*UserType, error)
}

type accounts struct {
	repository.Repository[*Account]
	db  *bun.DB
	now Clock
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ AccountFinder                   = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

// FindActiveByUsername matches the username exactly and skips inactive
// accounts. The UserType relation is loaded.
func (a *accounts) FindActiveByUsername(ctx context.Context, username string) (*Account, error) {
	record := &Account{}
	err := a.db.NewSelect().
		Model(record).
		Relation("UserType").
		Where("?TableAlias.username = ?", username).
		Where("?TableAlias.is_active = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, NewStoreUnavailableError(err, "accounts.find_by_username")
	}
	return record, nil
}

func (a *accounts) FindWithRole(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.FindWithRoleTx(ctx, a.db, id, false)
}

// FindWithRoleTx loads the account and its type. With lock set the
// account row is held until tx ends, on dialects that support it.
func (a *accounts) FindWithRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, lock bool) (*Account, error) {
	record := &Account{}
	q := tx.NewSelect().
		Model(record).
		Relation("UserType").
		Where("?TableAlias.id = ?", id)
	if lock && supportsRowLocks(tx) {
		q = q.For("UPDATE OF usr")
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, NewStoreUnavailableError(err, "accounts.find_by_id")
	}
	return record, nil
}

func (a *accounts) ListWithRoles(ctx context.Context) ([]*Account, error) {
	var records []*Account
	err := a.db.NewSelect().
		Model(&records).
		Relation("UserType").
		OrderExpr("?TableAlias.username ASC").
		Scan(ctx)
	if err != nil {
		return nil, NewStoreUnavailableError(err, "accounts.list")
	}
	return records, nil
}

func (a *accounts) UsernameTakenTx(ctx context.Context, tx bun.IDB, username string, exclude uuid.UUID) (bool, error) {
	q := tx.NewSelect().
		Model((*Account)(nil)).
		Where("username = ?", username)
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	taken, err := q.Exists(ctx)
	if err != nil {
		return false, NewStoreUnavailableError(err, "accounts.username_taken")
	}
	return taken, nil
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, NewStoreUnavailableError(err, "accounts.create")
	}
	return created, nil
}

// UpdateDetailsTx writes username, type, active flag and, when set, the
// password hash.
func (a *accounts) UpdateDetailsTx(ctx context.Context, tx bun.IDB, account *Account) error {
	q := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("username = ?", account.Username).
		Set("user_type_id = ?", account.UserTypeID).
		Set("is_active = ?", account.IsActive).
		Set("updated_at = ?", a.now()).
		Where("id = ?", account.ID)
	if account.PasswordHash != "" {
		q = q.Set("password_hash = ?", account.PasswordHash)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return NewStoreUnavailableError(err, "accounts.update")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func (a *accounts) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().
		Model((*Account)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return NewStoreUnavailableError(err, "accounts.delete")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	_, err := tx.NewRaw(`
		UPDATE "users"
		SET "loggedin_at" = ?
		WHERE "id" = ?;
	`, a.now(), account.ID).Exec(ctx)

	return err
}

func (a *accounts) UserTypeTx(ctx context.Context, tx bun.IDB, id int64) (*UserType, error) {
	record := &UserType{}
	err := tx.NewSelect().Model(record).Where("?TableAlias.user_type_id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownUserType
		}
		return nil, NewStoreUnavailableError(err, "user_types.find")
	}
	return record, nil
}

// UserTypeByName matches case insensitively.
func (a *accounts) UserTypeByName(ctx context.Context, name string) (*UserType, error) {
	record := &UserType{}
	err := a.db.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.type_name) = ?", strings.ToLower(strings.TrimSpace(name))).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownUserType
		}
		return nil, NewStoreUnavailableError(err, "user_types.find_by_name")
	}
	return record, nil
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Username = strings.TrimSpace(record.Username)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
