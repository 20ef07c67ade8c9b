package model

import "time"

// Raw record kinds as emitted by the GitHub source. The timeline normalizer
// maps these (and a few aliases) onto the closed EventKind set.
const (
	RawKindCommitted   = "committed"
	RawKindReviewed    = "reviewed"
	RawKindCommented   = "commented"
	RawKindMerged      = "merged"
	RawKindClosed      = "closed"
	RawKindLabeled     = "labeled"
	RawKindReopened    = "reopened"
	RawKindReadyReview = "ready_for_review"
)

// Raw record field names shared by the source and the normalizer.
const (
	FieldSHA       = "sha"
	FieldMessage   = "message"
	FieldState     = "state"
	FieldBody      = "body"
	FieldCommentID = "comment_id"
	FieldPath      = "path"
	FieldLine      = "line"
	FieldLabel     = "label"
	FieldDetail    = "detail"
)

// Comment sources.
const (
	CommentSourceReview     = "review_comment"
	CommentSourceIssue      = "issue_comment"
	CommentSourceReviewBody = "review"
)

// RawPR is everything the PR source returns for one pull request.
// Records and comments keep the loose shape of the upstream API; the
// pipeline validates them on ingestion.
type RawPR struct {
	Ref       PRRef        `json:"ref"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	Author    string       `json:"author"`
	State     string       `json:"state"`
	Draft     bool         `json:"draft,omitempty"`
	BaseRef   string       `json:"baseRef,omitempty"`
	HeadRef   string       `json:"headRef,omitempty"`
	HeadSHA   string       `json:"headSha,omitempty"`
	HTMLURL   string       `json:"htmlUrl,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	MergedAt  *time.Time   `json:"mergedAt,omitempty"`
	ClosedAt  *time.Time   `json:"closedAt,omitempty"`
	Labels    []string     `json:"labels,omitempty"`
	Records   []RawRecord  `json:"records"`
	Comments  []RawComment `json:"comments"`
	Files     []FileChange `json:"files"`
	// RepoFiles holds head-revision contents of changed files, when fetched.
	RepoFiles []RepoFile `json:"repoFiles,omitempty"`
	FetchedAt time.Time  `json:"fetchedAt"`
}

// RawRecord is one heterogeneous event record. Timestamp is kept as the
// source string so that unparseable or missing values can be counted.
type RawRecord struct {
	Kind      string            `json:"kind"`
	ID        string            `json:"id,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// RawComment is a review or issue comment before thread reconstruction.
type RawComment struct {
	ID        string `json:"id"`
	ParentID  string `json:"parentId,omitempty"`
	Actor     string `json:"actor"`
	Timestamp string `json:"timestamp,omitempty"`
	Body      string `json:"body"`
	Path      string `json:"path,omitempty"`
	Line      int    `json:"line,omitempty"`
	Source    string `json:"source,omitempty"`
}

// FileChange describes one changed file in a pull request.
type FileChange struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// RepoFile is the content of one repository file at the PR head.
type RepoFile struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Changes returns additions plus deletions.
func (f FileChange) Changes() int {
	return f.Additions + f.Deletions
}

// ParseTimestamp parses a source timestamp in any RFC 3339 offset and
// returns it in UTC. The boolean is false for empty or invalid input.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders a time in the canonical RFC 3339 UTC form used
// for raw records.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
