package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const maxUpdateAttempts = 5

// errLostRace marks an update that found the row changed under it.
var errLostRace = errors.New("session changed concurrently")

// SessionModel is the Bun model for the sessions table.
type SessionModel struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`

	ID                 string        `bun:"id,pk"`
	AccountID          uuid.NullUUID `bun:"account_id,type:uuid"`
	Username           string        `bun:"username,notnull"`
	Role               string        `bun:"role,notnull"`
	LastActivity       time.Time     `bun:"last_activity,notnull"`
	CSRFToken          string        `bun:"csrf_token,notnull"`
	AttemptCount       int           `bun:"attempt_count,notnull"`
	AttemptWindowStart time.Time     `bun:"attempt_window_start,nullzero"`
	Version            int64         `bun:"version,notnull"`
	CreatedAt          time.Time     `bun:"created_at,notnull"`
}

// SQLSessionStore keeps sessions in the sessions table. Updates are
// compare and swap on the version column and are retried a few times
// before giving up with ErrSessionConflict.
type SQLSessionStore struct {
	db *bun.DB
}

var _ auth.SessionStore = (*SQLSessionStore)(nil)

func NewSQLSessionStore(db *bun.DB) *SQLSessionStore {
	return &SQLSessionStore{db: db}
}

func (s *SQLSessionStore) Load(ctx context.Context, id string) (*auth.Session, error) {
	model, err := s.find(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, auth.ErrSessionNotFound
	}
	return toSession(model), nil
}

func (s *SQLSessionStore) Update(ctx context.Context, id string, fn auth.SessionUpdateFunc) (*auth.Session, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		session, err := s.tryUpdate(ctx, id, fn)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, errLostRace) {
			return nil, err
		}
	}
	return nil, auth.ErrSessionConflict
}

func (s *SQLSessionStore) tryUpdate(ctx context.Context, id string, fn auth.SessionUpdateFunc) (*auth.Session, error) {
	var (
		result *auth.Session
		fnErr  error
	)

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result = nil

		model, err := s.find(ctx, tx, id, true)
		if err != nil {
			return err
		}

		var current *auth.Session
		if model != nil {
			current = toSession(model)
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}

		switch {
		case next == nil && model == nil:
			return nil
		case next == nil:
			return s.compareAndDelete(ctx, tx, id, model.Version)
		}

		next.ID = id
		row := fromSession(next)

		if model == nil {
			row.Version = 1
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				if auth.IsUniqueViolation(err) {
					return errLostRace
				}
				return err
			}
		} else {
			row.Version = model.Version + 1
			res, err := tx.NewUpdate().
				Model(row).
				Column(
					"account_id", "username", "role", "last_activity",
					"csrf_token", "attempt_count", "attempt_window_start", "version",
				).
				Where("id = ?", id).
				Where("version = ?", model.Version).
				Exec(ctx)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return errLostRace
			}
		}

		result = toSession(row)
		return nil
	})

	switch {
	case err == nil:
		return result, nil
	case fnErr != nil:
		return nil, fnErr
	case errors.Is(err, errLostRace), auth.IsSerializationFailure(err):
		return nil, errLostRace
	case auth.IsStoreUnavailable(err):
		return nil, err
	default:
		return nil, auth.NewStoreUnavailableError(err, "session.update")
	}
}

func (s *SQLSessionStore) compareAndDelete(ctx context.Context, tx bun.Tx, id string, version int64) error {
	res, err := tx.NewDelete().
		Model((*SessionModel)(nil)).
		Where("id = ?", id).
		Where("version = ?", version).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errLostRace
	}
	return nil
}

func (s *SQLSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().
		Model((*SessionModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return auth.NewStoreUnavailableError(err, "session.delete")
	}
	return nil
}

func (s *SQLSessionStore) DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	res, err := s.db.NewDelete().
		Model((*SessionModel)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return 0, auth.NewStoreUnavailableError(err, "session.delete_by_account")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PurgeIdle removes sessions idle since before cutoff and returns how
// many were removed.
func (s *SQLSessionStore) PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*SessionModel)(nil)).
		Where("last_activity < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, auth.NewStoreUnavailableError(err, "session.purge")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLSessionStore) find(ctx context.Context, db bun.IDB, id string, lock bool) (*SessionModel, error) {
	model := &SessionModel{}
	q := db.NewSelect().Model(model).Where("?TableAlias.id = ?", id)
	if lock && db.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, auth.NewStoreUnavailableError(err, "session.load")
	}
	return model, nil
}

func toSession(m *SessionModel) *auth.Session {
	session := &auth.Session{
		ID:           m.ID,
		LastActivity: m.LastActivity,
		CSRFToken:    m.CSRFToken,
		LoginWindow: auth.LoginWindow{
			Count: m.AttemptCount,
			Start: m.AttemptWindowStart,
		},
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
	}
	if m.AccountID.Valid {
		session.Identity = &auth.Identity{
			AccountID: m.AccountID.UUID,
			Username:  m.Username,
			Role:      auth.ParseRole(m.Role),
		}
	}
	return session
}

func fromSession(s *auth.Session) *SessionModel {
	m := &SessionModel{
		ID:                 s.ID,
		LastActivity:       s.LastActivity,
		CSRFToken:          s.CSRFToken,
		AttemptCount:       s.LoginWindow.Count,
		AttemptWindowStart: s.LoginWindow.Start,
		Version:            s.Version,
		CreatedAt:          s.CreatedAt,
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if s.Identity != nil {
		m.AccountID = uuid.NullUUID{UUID: s.Identity.AccountID, Valid: true}
		m.Username = s.Identity.Username
		m.Role = s.Identity.Role.String()
	}
	return m
}
