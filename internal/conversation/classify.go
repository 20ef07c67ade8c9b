package conversation

import (
	"strings"

	"github.com/spiffcs/prlens/internal/model"
)

// maxTopicLength bounds the topic excerpt taken from a thread's first comment.
const maxTopicLength = 100

// resolutionWindow is how many trailing exchanges are inspected for
// resolution keywords.
const resolutionWindow = 3

var (
	resolvedKeywords = []string{"resolved", "fixed", "done", "thanks", "lgtm", "merged"}
	ongoingKeywords  = []string{"will", "todo", "later", "next"}
)

// typeRule is checked in order; the first rule with a matching keyword wins.
type typeRule struct {
	threadType model.ThreadType
	keywords   []string
}

var typeRules = []typeRule{
	{model.ThreadApproval, []string{"approve", "lgtm", "looks good"}},
	{model.ThreadSuggestion, []string{"suggest", "recommend", "could", "might"}},
	{model.ThreadQuestion, []string{"?", "question", "why", "how", "what"}},
	{model.ThreadIssueDiscussion, []string{"issue", "problem", "error", "bug"}},
}

// ClassifyType infers the thread type from the combined text of its exchanges.
func ClassifyType(exchanges []model.Exchange) model.ThreadType {
	if len(exchanges) == 0 {
		return model.ThreadGeneral
	}
	text := combinedText(exchanges)
	if strings.TrimSpace(text) == "" {
		return model.ThreadGeneral
	}
	for _, rule := range typeRules {
		if containsAny(text, rule.keywords) {
			return rule.threadType
		}
	}
	return model.ThreadReviewFeedback
}

// ClassifyResolution inspects the last few exchanges, newest first, for
// closing or deferring language.
func ClassifyResolution(exchanges []model.Exchange) model.Resolution {
	start := len(exchanges) - resolutionWindow
	if start < 0 {
		start = 0
	}
	for i := len(exchanges) - 1; i >= start; i-- {
		text := strings.ToLower(exchanges[i].Text)
		if containsAny(text, resolvedKeywords) {
			return model.ResolutionResolved
		}
		if containsAny(text, ongoingKeywords) {
			return model.ResolutionOngoing
		}
	}
	return model.ResolutionUnresolved
}

// Topic returns the first sentence of the opening exchange, truncated.
func Topic(exchanges []model.Exchange) string {
	if len(exchanges) == 0 {
		return ""
	}
	text := strings.TrimSpace(exchanges[0].Text)
	if text == "" {
		return ""
	}
	if i := strings.IndexAny(text, ".\n"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	runes := []rune(text)
	if len(runes) > maxTopicLength {
		return string(runes[:maxTopicLength]) + "..."
	}
	return text
}

func combinedText(exchanges []model.Exchange) string {
	var sb strings.Builder
	for i, ex := range exchanges {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.ToLower(ex.Text))
	}
	return sb.String()
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
