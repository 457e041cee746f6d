package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess     ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure     ActivityEventType = "auth.login.failure"
	ActivityEventLoginRateLimited ActivityEventType = "auth.login.rate_limited"
	ActivityEventLogout           ActivityEventType = "auth.logout"
	ActivityEventSessionExpired   ActivityEventType = "auth.session.expired"
	ActivityEventPermissionDenied ActivityEventType = "authz.permission.denied"
	ActivityEventProfileLinked    ActivityEventType = "linkage.profile.linked"
	ActivityEventProfileUnlinked  ActivityEventType = "linkage.profile.unlinked"
	ActivityEventAccountCreated   ActivityEventType = "account.created"
	ActivityEventAccountUpdated   ActivityEventType = "account.updated"
	ActivityEventAccountDeleted   ActivityEventType = "account.deleted"
)

// ActivityEvent captures audit-friendly information about an action.
// AccountID is the account acted upon, ActorID the account acting, when
// they are known.
type ActivityEvent struct {
	EventType  ActivityEventType
	ActorID    uuid.UUID
	AccountID  uuid.UUID
	Username   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
