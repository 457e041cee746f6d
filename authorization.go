package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Capability int

const (
	CapabilityView Capability = iota
	CapabilityEdit
	CapabilityDelete
)

func (c Capability) String() string {
	switch c {
	case CapabilityView:
		return "view"
	case CapabilityEdit:
		return "edit"
	case CapabilityDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseCapability accepts view, edit and delete.
func ParseCapability(name string) (Capability, bool) {
	switch name {
	case "view":
		return CapabilityView, true
	case "edit":
		return CapabilityEdit, true
	case "delete":
		return CapabilityDelete, true
	default:
		return 0, false
	}
}

// Capabilities is what an identity may do to one staff profile.
type Capabilities struct {
	View   bool `json:"view"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

func (c Capabilities) Allows(capability Capability) bool {
	switch capability {
	case CapabilityView:
		return c.View
	case CapabilityEdit:
		return c.Edit
	case CapabilityDelete:
		return c.Delete
	default:
		return false
	}
}

// Resolve is the access rule. Administrators may do everything. Every
// other role may view any profile and edit only the one it is linked to.
// Delete stays administrator only.
func Resolve(role Role, subjectProfile uuid.NullUUID, target uuid.UUID) Capabilities {
	if role.IsAdministrator() {
		return Capabilities{View: true, Edit: true, Delete: true}
	}
	return Capabilities{
		View: true,
		Edit: subjectProfile.Valid && subjectProfile.UUID == target,
	}
}

// AuthorizationResolver applies Resolve to an identity, looking up the
// profile it owns.
type AuthorizationResolver struct {
	profiles     ProfileLocator
	logger       Logger
	activitySink ActivitySink
	now          Clock
}

func NewAuthorizationResolver(profiles ProfileLocator) *AuthorizationResolver {
	return &AuthorizationResolver{
		profiles:     profiles,
		logger:       defaultLogger(),
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (r *AuthorizationResolver) WithLogger(logger Logger) *AuthorizationResolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *AuthorizationResolver) WithActivitySink(sink ActivitySink) *AuthorizationResolver {
	r.activitySink = normalizeActivitySink(sink)
	return r
}

// Capabilities for identity over target. A nil identity gets nothing. A
// lookup failure is returned as an error, never as a decision.
func (r *AuthorizationResolver) Capabilities(ctx context.Context, identity *Identity, target uuid.UUID) (Capabilities, error) {
	if identity == nil {
		return Capabilities{}, nil
	}

	if identity.Role.IsAdministrator() {
		return Resolve(identity.Role, uuid.NullUUID{}, target), nil
	}

	owned, err := r.profiles.ProfileIDFor(ctx, identity.AccountID)
	if err != nil {
		return Capabilities{}, err
	}

	return Resolve(identity.Role, owned, target), nil
}

// Require returns ErrPermissionDenied unless identity holds capability
// over target.
func (r *AuthorizationResolver) Require(ctx context.Context, identity *Identity, target uuid.UUID, capability Capability) error {
	caps, err := r.Capabilities(ctx, identity, target)
	if err != nil {
		return err
	}
	if caps.Allows(capability) {
		return nil
	}

	event := ActivityEvent{
		EventType:  ActivityEventPermissionDenied,
		OccurredAt: r.now(),
		Metadata: map[string]any{
			"capability": capability.String(),
			"target":     target.String(),
		},
	}
	if identity != nil {
		event.ActorID = identity.AccountID
		event.Username = identity.Username
	}
	if err := r.activitySink.Record(ctx, event); err != nil {
		r.logger.Warn("failed to record activity", "event", string(event.EventType), "error", err)
	}

	return ErrPermissionDenied
}
