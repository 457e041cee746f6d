package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UpdateAccountMessage edits another account. An empty Password keeps the
// current one. ProfileID replaces the link; an invalid value clears it.
type UpdateAccountMessage struct {
	ActorID    uuid.UUID     `json:"actor_id"`
	AccountID  uuid.UUID     `json:"account_id"`
	Username   string        `json:"username"`
	Password   string        `json:"password"`
	UserTypeID int64         `json:"user_type_id"`
	Active     bool          `json:"active"`
	ProfileID  uuid.NullUUID `json:"profile_id"`
}

func (e UpdateAccountMessage) Type() string { return "account.update" }

func (e UpdateAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.AccountID, validation.Required),
		validation.Field(&e.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&e.Password, validation.Length(6, 0)),
		validation.Field(&e.UserTypeID, validation.Required),
	)
}

// UpdateAccountHandler edits an account. Sessions of the account are
// revoked when its username, role, password or active flag changes.
type UpdateAccountHandler struct {
	repo         RepositoryManager
	linkage      *IdentityLinkage
	sessions     SessionRevoker
	logger       Logger
	activitySink ActivitySink
}

func NewUpdateAccountHandler(repo RepositoryManager, linkage *IdentityLinkage) *UpdateAccountHandler {
	return &UpdateAccountHandler{
		repo:         repo,
		linkage:      linkage,
		logger:       defaultLogger(),
		activitySink: noopActivitySink{},
	}
}

func (h *UpdateAccountHandler) WithLogger(logger Logger) *UpdateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateAccountHandler) WithSessionRevoker(sessions SessionRevoker) *UpdateAccountHandler {
	h.sessions = sessions
	return h
}

func (h *UpdateAccountHandler) WithActivitySink(sink ActivitySink) *UpdateAccountHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *UpdateAccountHandler) Execute(ctx context.Context, event UpdateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateAccountHandler) execute(ctx context.Context, event UpdateAccountMessage) error {
	if event.ActorID != uuid.Nil && event.ActorID == event.AccountID {
		return ErrSelfModification
	}

	event.Username = strings.TrimSpace(event.Username)
	if err := event.Validate(); err != nil {
		return validationError(err, "invalid account data")
	}

	account := &Account{
		ID:         event.AccountID,
		Username:   event.Username,
		UserTypeID: event.UserTypeID,
		IsActive:   event.Active,
	}

	if event.Password != "" {
		hash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
		account.PasswordHash = hash
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var revoke bool
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		accounts := h.repo.Accounts()

		previous, err := accounts.FindWithRoleTx(ctx, tx, account.ID, true)
		if err != nil {
			return err
		}
		revoke = identityChanged(previous, account)

		taken, err := accounts.UsernameTakenTx(ctx, tx, account.Username, account.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrUsernameTaken
		}

		userType, err := accounts.UserTypeTx(ctx, tx, account.UserTypeID)
		if err != nil {
			return err
		}

		if event.ProfileID.Valid && !userType.Role().CanOwnProfile() {
			return ErrRoleMismatch
		}

		if err := accounts.UpdateDetailsTx(ctx, tx, account); err != nil {
			return err
		}

		if !event.ProfileID.Valid {
			return h.linkage.UnlinkTx(ctx, tx, account.ID)
		}
		return h.linkage.LinkTx(ctx, tx, account.ID, event.ProfileID.UUID)
	})
	if err != nil {
		return h.linkage.txError(err, "accounts.update")
	}

	h.logger.Info("account updated", "username", account.Username, "account_id", account.ID.String())

	if revoke {
		if err := revokeSessions(ctx, h.sessions, h.logger, account.ID); err != nil {
			return err
		}
	}
	recordAccountEvent(ctx, h.activitySink, h.logger, ActivityEventAccountUpdated, event.ActorID, account, event.ProfileID)

	return nil
}

// identityChanged reports whether next invalidates what sessions of
// previous hold or were granted by.
func identityChanged(previous, next *Account) bool {
	return previous.Username != next.Username ||
		previous.UserTypeID != next.UserTypeID ||
		previous.IsActive != next.IsActive ||
		next.PasswordHash != ""
}
