package conversation

import (
	"sort"
	"strings"

	"github.com/spiffcs/prlens/internal/model"
)

var (
	positiveIndicators      = []string{"thanks", "great", "good", "excellent", "perfect", "nice"}
	directiveIndicators     = []string{"must", "should", "need to", "required", "necessary"}
	collaborativeIndicators = []string{"suggest", "perhaps", "might", "could", "what do you think"}
)

// commentKind buckets a single reviewer comment.
type commentKind int

const (
	commentGeneral commentKind = iota
	commentQuestion
	commentSuggestion
	commentApproval
)

func classifyComment(text string) commentKind {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, []string{"?", "question", "why", "how"}):
		return commentQuestion
	case containsAny(t, []string{"suggest", "recommend", "could"}):
		return commentSuggestion
	case containsAny(t, []string{"approve", "lgtm", "looks good"}):
		return commentApproval
	default:
		return commentGeneral
	}
}

func engagementFor(comments int) model.Engagement {
	switch {
	case comments >= 5:
		return model.EngagementHigh
	case comments >= 2:
		return model.EngagementMedium
	default:
		return model.EngagementLow
	}
}

// Profiles builds one profile per human reviewer, sorted by comment count
// descending then login.
func Profiles(threads []model.ReviewThread) []model.ReviewerProfile {
	byActor := make(map[string]*model.ReviewerProfile)
	for _, t := range threads {
		for _, ex := range t.Exchanges {
			if ex.Role != model.RoleReviewer {
				continue
			}
			p, ok := byActor[ex.Actor]
			if !ok {
				p = &model.ReviewerProfile{Actor: ex.Actor}
				byActor[ex.Actor] = p
			}
			p.Comments++
			switch classifyComment(ex.Text) {
			case commentQuestion:
				p.Questions++
			case commentSuggestion:
				p.Suggestions++
			case commentApproval:
				p.Approvals++
			default:
				p.General++
			}
		}
	}

	out := make([]model.ReviewerProfile, 0, len(byActor))
	for _, p := range byActor {
		p.Engagement = engagementFor(p.Comments)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Comments != out[j].Comments {
			return out[i].Comments > out[j].Comments
		}
		return out[i].Actor < out[j].Actor
	})
	return out
}

// ToneOf scores human exchanges for positive, directive and collaborative
// language. Bot text is ignored.
func ToneOf(threads []model.ReviewThread) model.Tone {
	var positive, directive, collaborative, human int
	for _, t := range threads {
		for _, ex := range t.Exchanges {
			if !ex.Role.IsHuman() {
				continue
			}
			human++
			text := strings.ToLower(ex.Text)
			positive += countMatches(text, positiveIndicators)
			directive += countMatches(text, directiveIndicators)
			collaborative += countMatches(text, collaborativeIndicators)
		}
	}

	switch {
	case human == 0:
		return model.ToneNeutral
	case collaborative > directive && positive > 0:
		return model.ToneCollaborative
	case directive > collaborative:
		return model.ToneDirective
	default:
		return model.ToneMixed
	}
}

func countMatches(text string, indicators []string) int {
	n := 0
	for _, ind := range indicators {
		if strings.Contains(text, ind) {
			n++
		}
	}
	return n
}

// Summarize rolls threads up into the report-level summary.
func Summarize(threads []model.ReviewThread) model.ConversationSummary {
	s := model.ConversationSummary{
		Threads:   len(threads),
		Tone:      ToneOf(threads),
		Reviewers: Profiles(threads),
	}
	for _, t := range threads {
		switch t.Resolution {
		case model.ResolutionResolved:
			s.Resolved++
		case model.ResolutionOngoing:
			s.Ongoing++
		default:
			s.Unresolved++
		}
		for _, ex := range t.Exchanges {
			if ex.Role.IsHuman() {
				s.HumanExchanges++
			} else {
				s.BotExchanges++
			}
		}
	}
	return s
}
