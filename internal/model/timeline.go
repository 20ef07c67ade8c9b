package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EventKind is the closed set of timeline event kinds.
type EventKind string

const (
	KindCommit       EventKind = "commit"
	KindReview       EventKind = "review"
	KindComment      EventKind = "comment"
	KindStatusChange EventKind = "status_change"
	KindMerge        EventKind = "merge"
	KindClose        EventKind = "close"
)

// AllEventKinds lists every valid kind.
var AllEventKinds = []EventKind{
	KindCommit,
	KindReview,
	KindComment,
	KindStatusChange,
	KindMerge,
	KindClose,
}

// Payload is the kind-specific body of a TimelineEvent. Each kind has
// exactly one payload type.
type Payload interface {
	Kind() EventKind
	// Canonical returns a stable textual form used for hashing.
	Canonical() string
}

// CommitPayload is the payload of a commit event.
type CommitPayload struct {
	SHA     string `json:"sha"`
	Message string `json:"message,omitempty"`
}

func (CommitPayload) Kind() EventKind { return KindCommit }

func (p CommitPayload) Canonical() string {
	return "sha=" + p.SHA + "\nmessage=" + p.Message
}

// ReviewPayload is the payload of a review submission.
type ReviewPayload struct {
	State string `json:"state"`
	Body  string `json:"body,omitempty"`
}

func (ReviewPayload) Kind() EventKind { return KindReview }

func (p ReviewPayload) Canonical() string {
	return "state=" + p.State + "\nbody=" + p.Body
}

// CommentPayload is the payload of an issue or review comment.
type CommentPayload struct {
	CommentID string `json:"commentId,omitempty"`
	Body      string `json:"body,omitempty"`
	Path      string `json:"path,omitempty"`
	Line      int    `json:"line,omitempty"`
}

func (CommentPayload) Kind() EventKind { return KindComment }

func (p CommentPayload) Canonical() string {
	return "id=" + p.CommentID + "\npath=" + p.Path + "\nline=" + strconv.Itoa(p.Line) + "\nbody=" + p.Body
}

// StatusPayload is the payload of a status change (label, draft, reopen...).
type StatusPayload struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (StatusPayload) Kind() EventKind { return KindStatusChange }

func (p StatusPayload) Canonical() string {
	return "status=" + p.Status + "\ndetail=" + p.Detail
}

// MergePayload is the payload of a merge event.
type MergePayload struct {
	SHA string `json:"sha,omitempty"`
}

func (MergePayload) Kind() EventKind { return KindMerge }

func (p MergePayload) Canonical() string { return "sha=" + p.SHA }

// ClosePayload is the payload of a close event.
type ClosePayload struct{}

func (ClosePayload) Kind() EventKind { return KindClose }

func (ClosePayload) Canonical() string { return "" }

// TimelineEvent is one ordered, typed occurrence in a PR's lifecycle.
type TimelineEvent struct {
	ID        string    `json:"id"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	Actor     string    `json:"actor"`
	Payload   Payload   `json:"payload"`
}

// UnmarshalJSON decodes the polymorphic payload using Kind as discriminator.
func (e *TimelineEvent) UnmarshalJSON(data []byte) error {
	type Alias TimelineEvent
	aux := &struct {
		Payload json.RawMessage `json:"payload"`
		*Alias
	}{Alias: (*Alias)(e)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	p, err := decodePayload(e.Kind, aux.Payload)
	if err != nil {
		return err
	}
	e.Payload = p
	return nil
}

func decodePayload(kind EventKind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindCommit:
		return decodeAs[CommitPayload](raw)
	case KindReview:
		return decodeAs[ReviewPayload](raw)
	case KindComment:
		return decodeAs[CommentPayload](raw)
	case KindStatusChange:
		return decodeAs[StatusPayload](raw)
	case KindMerge:
		return decodeAs[MergePayload](raw)
	case KindClose:
		return ClosePayload{}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var p T
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}
