package activitymap_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType: auth.ActivityEventLoginSuccess,
		Username:  "jdoe",
		SubjectID: "7b0e2c36-5d43-4d4e-8a43-1b1f5bb2f0a1",
		Strategy:  auth.StrategyDirectory,
		Metadata: map[string]any{
			"ip": "10.0.0.8",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != event.SubjectID {
		t.Fatalf("expected actor_id %q, got %q", event.SubjectID, out.ActorID)
	}
	if out.Verb != string(auth.ActivityEventLoginSuccess) {
		t.Fatalf("expected verb %q, got %q", auth.ActivityEventLoginSuccess, out.Verb)
	}
	if out.ObjectType != "session" {
		t.Fatalf("expected object_type session, got %q", out.ObjectType)
	}
	if out.ObjectID != "jdoe" {
		t.Fatalf("expected object_id jdoe, got %q", out.ObjectID)
	}
	if out.Channel != "auth" {
		t.Fatalf("expected channel auth, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["ip"] != "10.0.0.8" {
		t.Fatalf("expected metadata ip, got %#v", out.Metadata["ip"])
	}
	if out.Metadata[activitymap.MetadataKeyStrategy] != auth.StrategyDirectory {
		t.Fatalf("expected metadata strategy directory, got %#v", out.Metadata[activitymap.MetadataKeyStrategy])
	}
	if out.Metadata[activitymap.MetadataKeyUsername] != "jdoe" {
		t.Fatalf("expected metadata username jdoe, got %#v", out.Metadata[activitymap.MetadataKeyUsername])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	event := auth.ActivityEvent{
		EventType: auth.ActivityEventRoleGranted,
		Username:  "jdoe",
		Strategy:  auth.StrategyLocal,
		Metadata: map[string]any{
			"role":                           auth.RoleUser,
			activitymap.MetadataKeyStrategy: "existing",
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("role"),
		activitymap.WithObjectIDResolver(func(e auth.ActivityEvent) string {
			if v, ok := e.Metadata["role"].(string); ok {
				return v
			}
			return ""
		}),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "role" {
		t.Fatalf("expected object_type role, got %q", out.ObjectType)
	}
	if out.ObjectID != auth.RoleUser {
		t.Fatalf("expected object_id %q, got %q", auth.RoleUser, out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyStrategy] != "existing" {
		t.Fatalf("expected existing strategy preserved, got %#v", out.Metadata[activitymap.MetadataKeyStrategy])
	}
	if _, ok := out.Metadata[activitymap.MetadataKeyUsername]; ok {
		t.Fatalf("expected no username metadata without a subject id")
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  auth.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses subject id when present",
			event:  auth.ActivityEvent{SubjectID: "subject-1", Username: "jdoe"},
			expect: "subject-1",
		},
		{
			name:   "uses username when subject id missing",
			event:  auth.ActivityEvent{Username: "jdoe"},
			expect: "jdoe",
		},
		{
			name:   "uses default fallback when both missing",
			event:  auth.ActivityEvent{},
			expect: "anonymous",
		},
		{
			name:   "uses configured fallback when both missing",
			event:  auth.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("job")},
			expect: "job",
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

func TestSinkEmitsNormalized(t *testing.T) {
	t.Parallel()

	var got []activitymap.Normalized
	sink := activitymap.Sink(func(n activitymap.Normalized) error {
		got = append(got, n)
		return nil
	}, activitymap.WithDefaultChannel("audit"))

	err := sink.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventLogout,
		Username:  "jdoe",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected one record, got %d", len(got))
	}
	if got[0].Verb != string(auth.ActivityEventLogout) || got[0].Channel != "audit" {
		t.Fatalf("unexpected record %+v", got[0])
	}
}
