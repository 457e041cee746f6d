package activitymap_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/eularod/faculty-infortmation-system-eula/activitymap"
	"github.com/google/uuid"
)

func TestNormalizeProfileLink(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	accountID := uuid.New()
	profileID := uuid.New()
	event := auth.ActivityEvent{
		EventType: auth.ActivityEventProfileLinked,
		AccountID: accountID,
		Metadata: map[string]any{
			"profile_id": profileID.String(),
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != accountID.String() {
		t.Fatalf("expected actor_id %s, got %q", accountID, out.ActorID)
	}
	if out.Verb != string(auth.ActivityEventProfileLinked) {
		t.Fatalf("expected verb %q, got %q", auth.ActivityEventProfileLinked, out.Verb)
	}
	if out.ObjectType != activitymap.ObjectStaffProfile {
		t.Fatalf("expected object_type staff_profile, got %q", out.ObjectType)
	}
	if out.ObjectID != profileID.String() {
		t.Fatalf("expected object_id %s, got %q", profileID, out.ObjectID)
	}
	if out.Channel != "linkage" {
		t.Fatalf("expected channel linkage, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}
	if out.Metadata[activitymap.MetadataKeyAccountID] != accountID.String() {
		t.Fatalf("expected metadata account_id, got %#v", out.Metadata[activitymap.MetadataKeyAccountID])
	}
	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeAccountEvent(t *testing.T) {
	t.Parallel()

	actorID := uuid.New()
	accountID := uuid.New()
	event := auth.ActivityEvent{
		EventType: auth.ActivityEventAccountDeleted,
		ActorID:   actorID,
		AccountID: accountID,
		Username:  "fac1",
	}

	out := activitymap.Normalize(event, activitymap.WithChannel("admin"))

	if out.ActorID != actorID.String() {
		t.Fatalf("expected actor_id %s, got %q", actorID, out.ActorID)
	}
	if out.ObjectType != activitymap.ObjectAccount || out.ObjectID != accountID.String() {
		t.Fatalf("expected account %s, got %s %q", accountID, out.ObjectType, out.ObjectID)
	}
	if out.Channel != "admin" {
		t.Fatalf("expected channel admin, got %q", out.Channel)
	}
	if out.Metadata[activitymap.MetadataKeyUsername] != "fac1" {
		t.Fatalf("expected metadata username fac1, got %#v", out.Metadata[activitymap.MetadataKeyUsername])
	}
	if _, ok := out.Metadata[activitymap.MetadataKeyAccountID]; ok {
		t.Fatalf("account_id should not be repeated for account objects")
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizePermissionDenied(t *testing.T) {
	t.Parallel()

	target := uuid.New()
	out := activitymap.Normalize(auth.ActivityEvent{
		EventType: auth.ActivityEventPermissionDenied,
		ActorID:   uuid.New(),
		Metadata: map[string]any{
			"capability": "edit",
			"target":     target.String(),
		},
	})

	if out.Channel != "authz" {
		t.Fatalf("expected channel authz, got %q", out.Channel)
	}
	if out.ObjectType != activitymap.ObjectStaffProfile || out.ObjectID != target.String() {
		t.Fatalf("expected staff_profile %s, got %s %q", target, out.ObjectType, out.ObjectID)
	}
	if out.Metadata["capability"] != "edit" {
		t.Fatalf("expected capability edit, got %#v", out.Metadata["capability"])
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	actor := uuid.New()
	account := uuid.New()

	tests := []struct {
		name   string
		event  auth.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses actor id when present",
			event:  auth.ActivityEvent{ActorID: actor, AccountID: account},
			expect: actor.String(),
		},
		{
			name:   "uses account id when actor id missing",
			event:  auth.ActivityEvent{AccountID: account},
			expect: account.String(),
		},
		{
			name:   "uses default fallback when actor and account missing",
			event:  auth.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "uses configured fallback when actor and account missing",
			event:  auth.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("fisctl")},
			expect: "fisctl",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sink := activitymap.LogSink(logger)

	err := sink.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventLoginFailure,
		Username:  "fac1",
		Metadata:  map[string]any{"reason": "bad_password"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := buf.String()
	for _, want := range []string{"verb=auth.login.failure", "channel=auth", "actor_id=system", "reason=bad_password", "username=fac1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}
