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

type CreateAccountMessage struct {
	Username   string        `json:"username"`
	Password   string        `json:"password"`
	UserTypeID int64         `json:"user_type_id"`
	ProfileID  uuid.NullUUID `json:"profile_id"`
}

func (e CreateAccountMessage) Type() string { return "account.create" }

func (e CreateAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&e.Password, validation.Required, validation.Length(6, 0)),
		validation.Field(&e.UserTypeID, validation.Required),
	)
}

// CreateAccountHandler creates an account and, for faculty accounts,
// links the chosen staff profile in the same transaction.
type CreateAccountHandler struct {
	repo         RepositoryManager
	linkage      *IdentityLinkage
	logger       Logger
	activitySink ActivitySink
}

func NewCreateAccountHandler(repo RepositoryManager, linkage *IdentityLinkage) *CreateAccountHandler {
	return &CreateAccountHandler{
		repo:         repo,
		linkage:      linkage,
		logger:       defaultLogger(),
		activitySink: noopActivitySink{},
	}
}

func (h *CreateAccountHandler) WithLogger(logger Logger) *CreateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *CreateAccountHandler) WithActivitySink(sink ActivitySink) *CreateAccountHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *CreateAccountHandler) Execute(ctx context.Context, event CreateAccountMessage) (*Account, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account creation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreateAccountHandler) execute(ctx context.Context, event CreateAccountMessage) (*Account, error) {
	event.Username = strings.TrimSpace(event.Username)
	if err := event.Validate(); err != nil {
		return nil, validationError(err, "invalid account data")
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account := &Account{
		Username:     event.Username,
		PasswordHash: hash,
		UserTypeID:   event.UserTypeID,
		IsActive:     true,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		accounts := h.repo.Accounts()

		taken, err := accounts.UsernameTakenTx(ctx, tx, account.Username, uuid.Nil)
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

		if account, err = accounts.CreateTx(ctx, tx, account); err != nil {
			return err
		}

		if event.ProfileID.Valid {
			return h.linkage.LinkTx(ctx, tx, account.ID, event.ProfileID.UUID)
		}
		return nil
	})
	if err != nil {
		return nil, h.linkage.txError(err, "accounts.create")
	}

	h.logger.Info("account created", "username", account.Username, "account_id", account.ID.String())
	recordAccountEvent(ctx, h.activitySink, h.logger, ActivityEventAccountCreated, uuid.Nil, account, event.ProfileID)

	return account, nil
}

func validationError(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, msg).
		WithCode(goerrors.CodeBadRequest)
}

func recordAccountEvent(ctx context.Context, sink ActivitySink, logger Logger, eventType ActivityEventType, actor uuid.UUID, account *Account, profile uuid.NullUUID) {
	event := ActivityEvent{
		EventType:  eventType,
		ActorID:    actor,
		AccountID:  account.ID,
		Username:   account.Username,
		OccurredAt: time.Now(),
	}
	if profile.Valid {
		event.Metadata = map[string]any{"profile_id": profile.UUID.String()}
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("failed to record activity", "event", string(eventType), "error", err)
	}
}
