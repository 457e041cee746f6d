package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IdentityLinkage maintains the one to one link between faculty accounts
// and staff profiles. The unique index on faculty.user_id backs it up, so
// a racing writer that slips past the checks still fails with
// ErrLinkageConflict.
type IdentityLinkage struct {
	repo         RepositoryManager
	logger       Logger
	activitySink ActivitySink
	now          Clock
}

var _ ProfileLocator = (*IdentityLinkage)(nil)

func NewIdentityLinkage(repo RepositoryManager) *IdentityLinkage {
	return &IdentityLinkage{
		repo:         repo,
		logger:       defaultLogger(),
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (l *IdentityLinkage) WithLogger(logger Logger) *IdentityLinkage {
	if logger != nil {
		l.logger = logger
	}
	return l
}

func (l *IdentityLinkage) WithActivitySink(sink ActivitySink) *IdentityLinkage {
	l.activitySink = normalizeActivitySink(sink)
	return l
}

func (l *IdentityLinkage) WithClock(clock Clock) *IdentityLinkage {
	if clock != nil {
		l.now = clock
	}
	return l
}

// Link attaches profileID to accountID, replacing any profile the account
// had before.
func (l *IdentityLinkage) Link(ctx context.Context, accountID, profileID uuid.UUID) error {
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return l.LinkTx(ctx, tx, accountID, profileID)
	})
	if err != nil {
		return l.txError(err, "linkage.link")
	}

	l.record(ctx, ActivityEventProfileLinked, accountID, profileID)
	return nil
}

// LinkTx runs Link inside tx. The account must be a faculty account and
// the profile must exist. A profile owned by another account is taken
// over; that account is left without a profile.
func (l *IdentityLinkage) LinkTx(ctx context.Context, tx bun.IDB, accountID, profileID uuid.UUID) error {
	account, err := l.repo.Accounts().FindWithRoleTx(ctx, tx, accountID, true)
	if err != nil {
		return err
	}

	if !account.Role().CanOwnProfile() {
		return ErrRoleMismatch
	}

	profile := &StaffProfile{}
	q := tx.NewSelect().Model(profile).Where("?TableAlias.id = ?", profileID)
	if supportsRowLocks(tx) {
		q = q.For("UPDATE")
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return linkageViolation("profile_not_found", profileID)
		}
		return NewStoreUnavailableError(err, "linkage.find_profile")
	}

	if profile.Linked() && *profile.AccountID == accountID {
		return nil
	}

	if profile.Linked() {
		l.logger.Info("profile link superseded",
			"profile_id", profileID.String(),
			"previous_account_id", profile.AccountID.String(),
			"account_id", accountID.String(),
		)
	}

	now := l.now()
	if _, err := tx.NewUpdate().
		Model((*StaffProfile)(nil)).
		Set("user_id = NULL").
		Set("updated_at = ?", now).
		Where("user_id = ?", accountID).
		Exec(ctx); err != nil {
		return classifyLinkError(err, "linkage.clear")
	}

	res, err := tx.NewUpdate().
		Model((*StaffProfile)(nil)).
		Set("user_id = ?", accountID).
		Set("updated_at = ?", now).
		Where("id = ?", profileID).
		Exec(ctx)
	if err != nil {
		return classifyLinkError(err, "linkage.set")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return linkageViolation("profile_not_found", profileID)
	}

	return nil
}

// Unlink clears the profile owned by accountID. It is a no-op when there
// is none.
func (l *IdentityLinkage) Unlink(ctx context.Context, accountID uuid.UUID) error {
	var cleared bool
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		cleared, err = l.unlinkTx(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return l.txError(err, "linkage.unlink")
	}

	if cleared {
		l.record(ctx, ActivityEventProfileUnlinked, accountID, uuid.Nil)
	}
	return nil
}

func (l *IdentityLinkage) UnlinkTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) error {
	_, err := l.unlinkTx(ctx, tx, accountID)
	return err
}

func (l *IdentityLinkage) unlinkTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*StaffProfile)(nil)).
		Set("user_id = NULL").
		Set("updated_at = ?", l.now()).
		Where("user_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return false, classifyLinkError(err, "linkage.unlink")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ProfileIDFor returns the profile linked to accountID, or an invalid
// NullUUID when there is none.
func (l *IdentityLinkage) ProfileIDFor(ctx context.Context, accountID uuid.UUID) (uuid.NullUUID, error) {
	var id uuid.UUID
	err := l.repo.DB().NewSelect().
		Model((*StaffProfile)(nil)).
		Column("id").
		Where("user_id = ?", accountID).
		Limit(1).
		Scan(ctx, &id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.NullUUID{}, nil
		}
		return uuid.NullUUID{}, NewStoreUnavailableError(err, "linkage.profile_for")
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}

// UnlinkedProfiles lists profiles that no account owns, ordered by name.
// It backs the profile picker of the account forms.
func (l *IdentityLinkage) UnlinkedProfiles(ctx context.Context) ([]*StaffProfile, error) {
	var records []*StaffProfile
	err := l.repo.DB().NewSelect().
		Model(&records).
		Where("?TableAlias.user_id IS NULL").
		OrderExpr("?TableAlias.last_name ASC, ?TableAlias.first_name ASC").
		Scan(ctx)
	if err != nil {
		return nil, NewStoreUnavailableError(err, "linkage.unlinked_profiles")
	}
	return records, nil
}

func (l *IdentityLinkage) record(ctx context.Context, eventType ActivityEventType, accountID, profileID uuid.UUID) {
	event := ActivityEvent{
		EventType:  eventType,
		AccountID:  accountID,
		OccurredAt: l.now(),
	}
	if profileID != uuid.Nil {
		event.Metadata = map[string]any{"profile_id": profileID.String()}
	}
	if err := l.activitySink.Record(ctx, event); err != nil {
		l.logger.Warn("failed to record activity", "event", string(eventType), "error", err)
	}
}

func (l *IdentityLinkage) txError(err error, operation string) error {
	if isSerializationFailure(err) || isUniqueViolation(err) {
		return ErrLinkageConflict
	}
	return storeError(err, operation)
}

func linkageViolation(rule string, profileID uuid.UUID) error {
	return ErrLinkageConflict.Clone().WithMetadata(map[string]any{
		"rule":       rule,
		"profile_id": profileID.String(),
	})
}

func classifyLinkError(err error, operation string) error {
	if isUniqueViolation(err) || isSerializationFailure(err) {
		return ErrLinkageConflict
	}
	return NewStoreUnavailableError(err, operation)
}
