package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type DeleteAccountMessage struct {
	ActorID   uuid.UUID `json:"actor_id"`
	AccountID uuid.UUID `json:"account_id"`
}

func (e DeleteAccountMessage) Type() string { return "account.delete" }

// DeleteAccountHandler removes an account after releasing its profile
// and ends its sessions.
type DeleteAccountHandler struct {
	repo         RepositoryManager
	linkage      *IdentityLinkage
	sessions     SessionRevoker
	logger       Logger
	activitySink ActivitySink
}

func NewDeleteAccountHandler(repo RepositoryManager, linkage *IdentityLinkage) *DeleteAccountHandler {
	return &DeleteAccountHandler{
		repo:         repo,
		linkage:      linkage,
		logger:       defaultLogger(),
		activitySink: noopActivitySink{},
	}
}

func (h *DeleteAccountHandler) WithLogger(logger Logger) *DeleteAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeleteAccountHandler) WithSessionRevoker(sessions SessionRevoker) *DeleteAccountHandler {
	h.sessions = sessions
	return h
}

func (h *DeleteAccountHandler) WithActivitySink(sink ActivitySink) *DeleteAccountHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, event DeleteAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteAccountHandler) execute(ctx context.Context, event DeleteAccountMessage) error {
	if event.ActorID != uuid.Nil && event.ActorID == event.AccountID {
		return ErrSelfModification
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var account *Account
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if account, err = h.repo.Accounts().FindWithRoleTx(ctx, tx, event.AccountID, true); err != nil {
			return err
		}
		if err := h.linkage.UnlinkTx(ctx, tx, event.AccountID); err != nil {
			return err
		}
		return h.repo.Accounts().RemoveTx(ctx, tx, event.AccountID)
	})
	if err != nil {
		return h.linkage.txError(err, "accounts.delete")
	}

	h.logger.Info("account deleted", "username", account.Username, "account_id", account.ID.String())

	if err := revokeSessions(ctx, h.sessions, h.logger, account.ID); err != nil {
		return err
	}
	recordAccountEvent(ctx, h.activitySink, h.logger, ActivityEventAccountDeleted, event.ActorID, account, uuid.NullUUID{})

	return nil
}

// revokeSessions ends the sessions of accountID after an account change
// was committed. A failure is returned so the caller knows sessions may
// still carry the old identity.
func revokeSessions(ctx context.Context, sessions SessionRevoker, logger Logger, accountID uuid.UUID) error {
	if sessions == nil {
		return nil
	}
	if _, err := sessions.Revoke(ctx, accountID); err != nil {
		logger.Error("failed to revoke sessions", "account_id", accountID.String(), "error", err)
		return storeError(err, "sessions.revoke")
	}
	return nil
}
