package model

import "time"

// Role is the participant role of an exchange relative to the PR author.
type Role string

const (
	RoleAuthor   Role = "author"
	RoleReviewer Role = "reviewer"
	RoleBot      Role = "bot"
)

// IsHuman reports whether the role counts toward human-interaction metrics.
func (r Role) IsHuman() bool {
	return r == RoleAuthor || r == RoleReviewer
}

// ThreadType is a coarse classification of what a thread is about.
type ThreadType string

const (
	ThreadApproval        ThreadType = "approval"
	ThreadSuggestion      ThreadType = "suggestion"
	ThreadQuestion        ThreadType = "question"
	ThreadIssueDiscussion ThreadType = "issue_discussion"
	ThreadReviewFeedback  ThreadType = "review_feedback"
	ThreadGeneral         ThreadType = "general"
)

// Resolution is the inferred outcome of a thread.
type Resolution string

const (
	ResolutionResolved   Resolution = "resolved"
	ResolutionOngoing    Resolution = "ongoing"
	ResolutionUnresolved Resolution = "unresolved"
)

// Exchange is one turn in a review thread.
type Exchange struct {
	CommentID string    `json:"commentId"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Role      Role      `json:"role"`
}

// ReviewThread is a reconstructed conversation. FilePath and AnchorLine
// are empty for general (non-inline) discussion.
type ReviewThread struct {
	ID         string     `json:"id"`
	FilePath   string     `json:"filePath,omitempty"`
	AnchorLine int        `json:"anchorLine,omitempty"`
	Exchanges  []Exchange `json:"exchanges"`

	Type       ThreadType `json:"type"`
	Resolution Resolution `json:"resolution"`
	Topic      string     `json:"topic,omitempty"`

	// MissingTimestamps is set when one or more exchanges could not be
	// placed in time and were ordered last.
	MissingTimestamps bool `json:"missingTimestamps,omitempty"`
}

// Participants returns the distinct actors of the thread in first-seen order.
func (t ReviewThread) Participants() []string {
	seen := make(map[string]bool, len(t.Exchanges))
	var out []string
	for _, ex := range t.Exchanges {
		if !seen[ex.Actor] {
			seen[ex.Actor] = true
			out = append(out, ex.Actor)
		}
	}
	return out
}

// StartedAt returns the timestamp of the first exchange.
func (t ReviewThread) StartedAt() time.Time {
	if len(t.Exchanges) == 0 {
		return time.Time{}
	}
	return t.Exchanges[0].Timestamp
}

// Engagement buckets a reviewer's comment volume.
type Engagement string

const (
	EngagementHigh   Engagement = "high"
	EngagementMedium Engagement = "medium"
	EngagementLow    Engagement = "low"
)

// ReviewerProfile summarizes one human reviewer's participation.
type ReviewerProfile struct {
	Actor       string     `json:"actor"`
	Comments    int        `json:"comments"`
	Questions   int        `json:"questions"`
	Suggestions int        `json:"suggestions"`
	Approvals   int        `json:"approvals"`
	General     int        `json:"general"`
	Engagement  Engagement `json:"engagement"`
}

// Tone is the predominant communication style of a conversation.
type Tone string

const (
	ToneCollaborative Tone = "collaborative"
	ToneDirective     Tone = "directive"
	ToneMixed         Tone = "mixed"
	ToneNeutral       Tone = "neutral"
)

// ConversationSummary is the thread-level rollup stored on a report.
type ConversationSummary struct {
	Threads        int               `json:"threads"`
	Resolved       int               `json:"resolved"`
	Ongoing        int               `json:"ongoing"`
	Unresolved     int               `json:"unresolved"`
	Tone           Tone              `json:"tone"`
	Reviewers      []ReviewerProfile `json:"reviewers,omitempty"`
	BotExchanges   int               `json:"botExchanges"`
	HumanExchanges int               `json:"humanExchanges"`
}
