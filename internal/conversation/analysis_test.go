package conversation

import (
	"strings"
	"testing"

	"github.com/spiffcs/prlens/internal/model"
)

func ex(actor string, role model.Role, text string) model.Exchange {
	return model.Exchange{Actor: actor, Role: role, Text: text}
}

func TestClassifyType(t *testing.T) {
	tests := []struct {
		name string
		text string
		want model.ThreadType
	}{
		{"approval", "LGTM, ship it", model.ThreadApproval},
		{"suggestion", "You could inline this", model.ThreadSuggestion},
		{"question", "Is this needed?", model.ThreadQuestion},
		{"issue", "This causes a panic bug", model.ThreadIssueDiscussion},
		{"feedback", "Rename the variable", model.ThreadReviewFeedback},
		{"empty", "   ", model.ThreadGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyType([]model.Exchange{ex("bob", model.RoleReviewer, tt.text)})
			if got != tt.want {
				t.Errorf("ClassifyType(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestClassifyResolution(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  model.Resolution
	}{
		{"resolved last", []string{"please fix", "done"}, model.ResolutionResolved},
		{"ongoing last", []string{"please fix", "I'll do it later"}, model.ResolutionOngoing},
		{"newest wins", []string{"fixed", "actually do it later"}, model.ResolutionOngoing},
		{"outside window", []string{"fixed", "a", "b", "c"}, model.ResolutionUnresolved},
		{"nothing", []string{"please fix"}, model.ResolutionUnresolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var exs []model.Exchange
			for _, text := range tt.texts {
				exs = append(exs, ex("bob", model.RoleReviewer, text))
			}
			if got := ClassifyResolution(exs); got != tt.want {
				t.Errorf("ClassifyResolution() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTopic(t *testing.T) {
	long := strings.Repeat("x", 150)
	tests := []struct {
		text string
		want string
	}{
		{"Rename this. It is unclear.", "Rename this"},
		{"first line\nsecond line", "first line"},
		{long, strings.Repeat("x", 100) + "..."},
		{"", ""},
	}

	for _, tt := range tests {
		got := Topic([]model.Exchange{ex("bob", model.RoleReviewer, tt.text)})
		if got != tt.want {
			t.Errorf("Topic(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestToneOf(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  model.Tone
	}{
		{"collaborative", []string{"Could we perhaps extract this? Great work"}, model.ToneCollaborative},
		{"directive", []string{"You must fix this and should add tests"}, model.ToneDirective},
		{"mixed", []string{"ok"}, model.ToneMixed},
		{"neutral", nil, model.ToneNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var threads []model.ReviewThread
			for _, text := range tt.texts {
				threads = append(threads, model.ReviewThread{
					Exchanges: []model.Exchange{ex("bob", model.RoleReviewer, text)},
				})
			}
			if got := ToneOf(threads); got != tt.want {
				t.Errorf("ToneOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToneIgnoresBots(t *testing.T) {
	threads := []model.ReviewThread{{
		Exchanges: []model.Exchange{ex("ci[bot]", model.RoleBot, "You must fix lint")},
	}}
	if got := ToneOf(threads); got != model.ToneNeutral {
		t.Errorf("ToneOf(bot only) = %q, want neutral", got)
	}
}

func TestSummarize(t *testing.T) {
	threads := []model.ReviewThread{
		{
			Resolution: model.ResolutionResolved,
			Exchanges: []model.Exchange{
				ex("bob", model.RoleReviewer, "Why?"),
				ex("alice", model.RoleAuthor, "fixed"),
				ex("bob", model.RoleReviewer, "lgtm"),
			},
		},
		{
			Resolution: model.ResolutionUnresolved,
			Exchanges: []model.Exchange{
				ex("bob", model.RoleReviewer, "could this be shorter"),
				ex("bob", model.RoleReviewer, "rename"),
				ex("bob", model.RoleReviewer, "and this one"),
				ex("ci[bot]", model.RoleBot, "coverage dropped"),
			},
		},
	}

	s := Summarize(threads)
	if s.Threads != 2 || s.Resolved != 1 || s.Unresolved != 1 {
		t.Errorf("counts = %+v, want 2 threads, 1 resolved, 1 unresolved", s)
	}
	if s.BotExchanges != 1 || s.HumanExchanges != 6 {
		t.Errorf("exchanges bot=%d human=%d, want 1/6", s.BotExchanges, s.HumanExchanges)
	}
	if len(s.Reviewers) != 1 {
		t.Fatalf("got %d reviewer profiles, want 1", len(s.Reviewers))
	}
	bob := s.Reviewers[0]
	if bob.Comments != 5 || bob.Engagement != model.EngagementHigh {
		t.Errorf("bob = %+v, want 5 comments with high engagement", bob)
	}
	if bob.Questions != 1 || bob.Suggestions != 1 || bob.Approvals != 1 || bob.General != 2 {
		t.Errorf("bob breakdown = %+v", bob)
	}
}
