package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/google/uuid"
)

const (
	// MetadataKeyUsername stores the username the event was recorded for.
	MetadataKeyUsername = "username"
	// MetadataKeyAccountID stores the affected account when the object is
	// something else, such as a staff profile.
	MetadataKeyAccountID = "account_id"
)

const (
	ObjectAccount      = "account"
	ObjectStaffProfile = "staff_profile"
	ObjectSession      = "session"

	defaultActorID = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
	now           func() time.Time
}

// Normalize converts an auth.ActivityEvent into a generic normalized shape.
// Linkage and permission events are about a staff profile, account
// events about an account and login events about a session.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		idString(event.ActorID),
		idString(event.AccountID),
		options.actorFallback,
	)

	objectType, objectID := resolveObject(event)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	channel := options.channel
	if channel == "" {
		channel = channelOf(event.EventType)
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    channel,
		Metadata:   normalizeMetadata(event, objectType),
		OccurredAt: occurredAt,
	}
}

// WithChannel forces the channel instead of deriving it from the verb.
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the final actor-id fallback when actor/account ids are empty.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// LogSink returns an ActivitySink that logs each event in normalized form.
func LogSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		if logger == nil {
			return nil
		}
		record := Normalize(event, opts...)
		args := []any{
			"verb", record.Verb,
			"channel", record.Channel,
			"actor_id", record.ActorID,
		}
		if record.ObjectType != "" {
			args = append(args, "object_type", record.ObjectType, "object_id", record.ObjectID)
		}
		for key, value := range record.Metadata {
			args = append(args, key, value)
		}
		logger.Info("activity", args...)
		return nil
	})
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func resolveObject(event auth.ActivityEvent) (string, string) {
	switch event.EventType {
	case auth.ActivityEventProfileLinked, auth.ActivityEventProfileUnlinked:
		return ObjectStaffProfile, metadataString(event.Metadata, "profile_id")
	case auth.ActivityEventPermissionDenied:
		return ObjectStaffProfile, metadataString(event.Metadata, "target")
	case auth.ActivityEventAccountCreated, auth.ActivityEventAccountUpdated, auth.ActivityEventAccountDeleted:
		return ObjectAccount, idString(event.AccountID)
	case auth.ActivityEventSessionExpired:
		return ObjectSession, ""
	default:
		return ObjectAccount, idString(event.AccountID)
	}
}

func channelOf(eventType auth.ActivityEventType) string {
	verb := string(eventType)
	if i := strings.IndexByte(verb, '.'); i > 0 {
		return verb[:i]
	}
	return verb
}

func normalizeMetadata(event auth.ActivityEvent, objectType string) map[string]any {
	metadata := cloneMap(event.Metadata)

	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}

	if username := strings.TrimSpace(event.Username); username != "" {
		set(MetadataKeyUsername, username)
	}

	if objectType != ObjectAccount && event.AccountID != uuid.Nil {
		set(MetadataKeyAccountID, event.AccountID.String())
	}

	return metadata
}

func metadataString(metadata map[string]any, key string) string {
	value, _ := metadata[key].(string)
	return strings.TrimSpace(value)
}

func idString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
