package timeline

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spiffcs/prlens/internal/model"
)

// Helper to create a raw record
func rec(kind, actor, ts string, fields map[string]string) model.RawRecord {
	return model.RawRecord{Kind: kind, Actor: actor, Timestamp: ts, Fields: fields}
}

func sampleRecords() []model.RawRecord {
	return []model.RawRecord{
		rec("committed", "alice", "2024-03-01T12:00:00Z", map[string]string{"sha": "c2"}),
		rec("committed", "alice", "2024-03-01T09:00:00Z", map[string]string{"sha": "c1"}),
		rec("reviewed", "bob", "2024-03-01T13:00:00+02:00", map[string]string{"state": "CHANGES_REQUESTED"}),
		rec("commented", "bob", "", map[string]string{"body": "no timestamp"}),
		rec("labeled", "carol", "2024-03-01T12:00:00Z", map[string]string{"label": "bug"}),
		rec("teleported", "mallory", "2024-03-01T12:00:00Z", nil),
		rec("merged", "alice", "2024-03-02T08:00:00Z", map[string]string{"sha": "m1"}),
	}
}

func TestNormalizeOrdering(t *testing.T) {
	res := Normalize(sampleRecords())

	if res.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", res.Dropped)
	}
	if len(res.Malformed) != 1 {
		t.Fatalf("Malformed = %d, want 1", len(res.Malformed))
	}
	var me *model.MalformedEventError
	if !errors.As(res.Malformed[0], &me) || me.RawKind != "teleported" || me.Index != 5 {
		t.Errorf("Malformed[0] = %v, want MalformedEventError for index 5", res.Malformed[0])
	}

	wantOrder := []struct {
		kind  model.EventKind
		actor string
	}{
		{model.KindCommit, "alice"},       // 09:00
		{model.KindReview, "bob"},         // 11:00 UTC
		{model.KindCommit, "alice"},       // 12:00, source index 0
		{model.KindStatusChange, "carol"}, // 12:00, source index 4
		{model.KindMerge, "alice"},
	}
	if len(res.Events) != len(wantOrder) {
		t.Fatalf("got %d events, want %d", len(res.Events), len(wantOrder))
	}
	for i, w := range wantOrder {
		ev := res.Events[i]
		if ev.Kind != w.kind || ev.Actor != w.actor {
			t.Errorf("event %d = %s/%s, want %s/%s", i, ev.Kind, ev.Actor, w.kind, w.actor)
		}
		if ev.ID != EventID(i) {
			t.Errorf("event %d ID = %q, want %q", i, ev.ID, EventID(i))
		}
		if i > 0 && ev.Timestamp.Before(res.Events[i-1].Timestamp) {
			t.Errorf("event %d is earlier than event %d", i, i-1)
		}
	}

	review, ok := res.Events[1].Payload.(model.ReviewPayload)
	if !ok || review.State != "changes_requested" {
		t.Errorf("review payload = %#v, want lower-cased state", res.Events[1].Payload)
	}
	status, ok := res.Events[3].Payload.(model.StatusPayload)
	if !ok || status.Status != "labeled" || status.Detail != "bug" {
		t.Errorf("status payload = %#v, want labeled/bug", res.Events[3].Payload)
	}
}

func TestNormalizeDeduplicates(t *testing.T) {
	records := []model.RawRecord{
		rec("commented", "bob", "2024-03-01T10:00:00Z", map[string]string{"body": "same", "comment_id": "1"}),
		rec("comment", "bob", "2024-03-01T12:00:00+02:00", map[string]string{"body": "same", "comment_id": "1"}),
		rec("commented", "bob", "2024-03-01T10:00:00Z", map[string]string{"body": "different", "comment_id": "2"}),
	}

	res := Normalize(records)
	if res.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", res.Duplicates)
	}
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}
	if res.Events[0].Seq != 0 {
		t.Errorf("first occurrence should win, got Seq %d", res.Events[0].Seq)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	first, err := json.Marshal(Normalize(sampleRecords()).Events)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(Normalize(sampleRecords()).Events)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if diff := cmp.Diff(string(first), string(second)); diff != "" {
		t.Errorf("Normalize is not deterministic (-first +second):\n%s", diff)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	res := Normalize(nil)
	if len(res.Events) != 0 || res.Dropped != 0 || len(res.Malformed) != 0 {
		t.Errorf("Normalize(nil) = %+v, want empty result", res)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		want model.EventKind
		ok   bool
	}{
		{"committed", model.KindCommit, true},
		{"Reviewed", model.KindReview, true},
		{"review_comment", model.KindComment, true},
		{"ready_for_review", model.KindStatusChange, true},
		{"merged", model.KindMerge, true},
		{"closed", model.KindClose, true},
		{"deployed", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := Classify(tt.raw)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Classify(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFirstAndCount(t *testing.T) {
	res := Normalize(sampleRecords())

	ev, ok := First(res.Events, model.KindReview)
	if !ok || ev.Actor != "bob" {
		t.Errorf("First(review) = %v, %v; want bob's review", ev, ok)
	}
	if _, ok := First(res.Events, model.KindClose); ok {
		t.Error("First(close) should not find an event")
	}
	if got := Count(res.Events, model.KindCommit); got != 2 {
		t.Errorf("Count(commit) = %d, want 2", got)
	}
}
