package conversation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spiffcs/prlens/internal/model"
)

func comment(id, parent, actor, ts, body, path string, line int) model.RawComment {
	return model.RawComment{
		ID:        id,
		ParentID:  parent,
		Actor:     actor,
		Timestamp: ts,
		Body:      body,
		Path:      path,
		Line:      line,
		Source:    model.CommentSourceReview,
	}
}

func exchangeIDs(t model.ReviewThread) []string {
	ids := make([]string, len(t.Exchanges))
	for i, ex := range t.Exchanges {
		ids[i] = ex.CommentID
	}
	return ids
}

func threadIDs(threads []model.ReviewThread) [][]string {
	out := make([][]string, len(threads))
	for i, t := range threads {
		out[i] = exchangeIDs(t)
	}
	return out
}

func TestReconstructReplyChains(t *testing.T) {
	comments := []model.RawComment{
		comment("1", "", "bob", "2024-03-01T10:00:00Z", "Why is this nil-checked here?", "a.go", 10),
		comment("2", "1", "alice", "2024-03-01T11:00:00Z", "Fixed in the next commit, thanks", "a.go", 10),
		comment("3", "missing", "carol", "2024-03-01T10:10:00Z", "Separate note about naming", "a.go", 10),
	}

	threads := Reconstruct(comments, nil, Options{Author: "alice", AnchorWindow: time.Hour})

	want := [][]string{{"1", "2"}, {"3"}}
	if diff := cmp.Diff(want, threadIDs(threads)); diff != "" {
		t.Fatalf("thread grouping mismatch (-want +got):\n%s", diff)
	}

	first := threads[0]
	if first.ID != "T1" || threads[1].ID != "T2" {
		t.Errorf("thread ids = %q, %q; want T1, T2", first.ID, threads[1].ID)
	}
	if first.FilePath != "a.go" || first.AnchorLine != 10 {
		t.Errorf("anchor = %s:%d, want a.go:10", first.FilePath, first.AnchorLine)
	}
	if first.Type != model.ThreadQuestion {
		t.Errorf("Type = %q, want question", first.Type)
	}
	if first.Resolution != model.ResolutionResolved {
		t.Errorf("Resolution = %q, want resolved", first.Resolution)
	}
	if first.Exchanges[1].Role != model.RoleAuthor {
		t.Errorf("reply role = %q, want author", first.Exchanges[1].Role)
	}
	if threads[1].Resolution != model.ResolutionUnresolved {
		t.Errorf("broken-link thread resolution = %q, want unresolved", threads[1].Resolution)
	}
}

func TestReconstructAnchorWindow(t *testing.T) {
	comments := []model.RawComment{
		comment("r1", "", "bob", "2024-03-01T10:00:00Z", "first", "b.go", 5),
		comment("r2", "", "carol", "2024-03-01T10:30:00Z", "exactly at the window", "b.go", 5),
		comment("r3", "", "bob", "2024-03-01T11:01:00Z", "past the window", "b.go", 5),
		comment("r4", "", "bob", "2024-03-01T10:15:00Z", "other file", "c.go", 5),
		comment("u1", "", "dave", "2024-03-01T10:05:00Z", "general remark", "", 0),
	}

	threads := Reconstruct(comments, nil, Options{Author: "alice", AnchorWindow: 30 * time.Minute})

	want := [][]string{{"r1", "r2"}, {"u1"}, {"r4"}, {"r3"}}
	if diff := cmp.Diff(want, threadIDs(threads)); diff != "" {
		t.Errorf("thread grouping mismatch (-want +got):\n%s", diff)
	}
}

func TestReconstructZeroWindowNeverMergesRoots(t *testing.T) {
	tests := []struct {
		name   string
		second string
	}{
		{"one second apart", "2024-03-01T10:00:01Z"},
		{"same timestamp", "2024-03-01T10:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comments := []model.RawComment{
				comment("r1", "", "bob", "2024-03-01T10:00:00Z", "one", "b.go", 5),
				comment("r2", "", "bob", tt.second, "two", "b.go", 5),
			}

			threads := Reconstruct(comments, nil, Options{})
			if len(threads) != 2 {
				t.Errorf("got %d threads, want 2", len(threads))
			}
		})
	}
}

func TestReconstructMissingTimestamps(t *testing.T) {
	comments := []model.RawComment{
		comment("901", "900", "alice", "", "will do", "", 0),
		comment("900", "", "bob", "", "please rename", "", 0),
	}
	events := []model.TimelineEvent{
		{
			ID:        "E1",
			Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			Kind:      model.KindComment,
			Actor:     "bob",
			Payload:   model.CommentPayload{CommentID: "900", Body: "please rename"},
		},
	}

	threads := Reconstruct(comments, events, Options{Author: "alice"})
	if len(threads) != 1 {
		t.Fatalf("got %d threads, want 1", len(threads))
	}
	th := threads[0]
	if diff := cmp.Diff([]string{"900", "901"}, exchangeIDs(th)); diff != "" {
		t.Errorf("exchange order mismatch (-want +got):\n%s", diff)
	}
	if !th.Exchanges[0].Timestamp.Equal(events[0].Timestamp) {
		t.Errorf("root timestamp = %v, want borrowed %v", th.Exchanges[0].Timestamp, events[0].Timestamp)
	}
	if !th.MissingTimestamps {
		t.Error("MissingTimestamps = false, want true")
	}
	if th.Resolution != model.ResolutionOngoing {
		t.Errorf("Resolution = %q, want ongoing", th.Resolution)
	}
}

func TestReconstructCycleKeepsEveryComment(t *testing.T) {
	comments := []model.RawComment{
		comment("a", "b", "bob", "2024-03-01T10:00:00Z", "a", "", 0),
		comment("b", "a", "carol", "2024-03-01T10:01:00Z", "b", "", 0),
		comment("c", "c", "dave", "2024-03-01T10:02:00Z", "self", "", 0),
	}

	threads := Reconstruct(comments, nil, Options{})
	total := 0
	seen := make(map[string]int)
	for _, th := range threads {
		for _, ex := range th.Exchanges {
			total++
			seen[ex.CommentID]++
		}
	}
	if total != len(comments) {
		t.Errorf("threads hold %d exchanges, want %d", total, len(comments))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("comment %s appears %d times", id, n)
		}
	}
}

func TestReconstructEmpty(t *testing.T) {
	if got := Reconstruct(nil, nil, Options{}); len(got) != 0 {
		t.Errorf("Reconstruct(nil) = %v, want none", got)
	}
}

func TestRoleOf(t *testing.T) {
	bots := NewBotSet([]string{"CI-Runner"})

	tests := []struct {
		actor string
		want  model.Role
	}{
		{"alice", model.RoleAuthor},
		{"Alice", model.RoleAuthor},
		{"bob", model.RoleReviewer},
		{"dependabot[bot]", model.RoleBot},
		{"ci-runner", model.RoleBot},
		{"", model.RoleReviewer},
	}

	for _, tt := range tests {
		t.Run(tt.actor, func(t *testing.T) {
			if got := RoleOf(tt.actor, "alice", bots); got != tt.want {
				t.Errorf("RoleOf(%q) = %q, want %q", tt.actor, got, tt.want)
			}
		})
	}
}
