// Package timeline converts heterogeneous raw PR records into one ordered,
// deduplicated sequence of typed timeline events.
package timeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spiffcs/prlens/internal/model"
)

// Result is the output of Normalize.
type Result struct {
	Events []model.TimelineEvent
	// Dropped counts records without a resolvable timestamp.
	Dropped int
	// Duplicates counts records removed by deduplication.
	Duplicates int
	// Malformed holds one *model.MalformedEventError per unclassifiable record.
	Malformed []error
}

// kindAliases maps source record kinds onto the closed kind set.
var kindAliases = map[string]model.EventKind{
	"commit":                 model.KindCommit,
	"committed":              model.KindCommit,
	"review":                 model.KindReview,
	"reviewed":               model.KindReview,
	"comment":                model.KindComment,
	"commented":              model.KindComment,
	"issue_comment":          model.KindComment,
	"review_comment":         model.KindComment,
	"line-commented":         model.KindComment,
	"status_change":          model.KindStatusChange,
	"labeled":                model.KindStatusChange,
	"unlabeled":              model.KindStatusChange,
	"ready_for_review":       model.KindStatusChange,
	"convert_to_draft":       model.KindStatusChange,
	"converted_to_draft":     model.KindStatusChange,
	"reopened":               model.KindStatusChange,
	"review_requested":       model.KindStatusChange,
	"review_request_removed": model.KindStatusChange,
	"review_dismissed":       model.KindStatusChange,
	"assigned":               model.KindStatusChange,
	"unassigned":             model.KindStatusChange,
	"renamed":                model.KindStatusChange,
	"head_ref_force_pushed":  model.KindStatusChange,
	"merge":                  model.KindMerge,
	"merged":                 model.KindMerge,
	"close":                  model.KindClose,
	"closed":                 model.KindClose,
}

// Classify maps a raw kind string onto the known kind set.
func Classify(rawKind string) (model.EventKind, bool) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(rawKind))]
	return k, ok
}

type pending struct {
	index int
	event model.TimelineEvent
}

// Normalize classifies, timestamps, deduplicates and orders raw records.
// It never fails as a whole: malformed records are reported in the result
// and skipped.
func Normalize(records []model.RawRecord) Result {
	var res Result
	seen := make(map[string]bool, len(records))
	items := make([]pending, 0, len(records))

	for i, rec := range records {
		kind, ok := Classify(rec.Kind)
		if !ok {
			res.Malformed = append(res.Malformed, &model.MalformedEventError{
				Index:   i,
				RawKind: rec.Kind,
				ID:      rec.ID,
			})
			continue
		}

		ts, ok := model.ParseTimestamp(rec.Timestamp)
		if !ok {
			res.Dropped++
			continue
		}

		payload := buildPayload(kind, rec)
		key := dedupKey(kind, rec.Actor, ts, payload)
		if seen[key] {
			res.Duplicates++
			continue
		}
		seen[key] = true

		items = append(items, pending{
			index: i,
			event: model.TimelineEvent{
				Seq:       i,
				Timestamp: ts,
				Kind:      kind,
				Actor:     rec.Actor,
				Payload:   payload,
			},
		})
	}

	sort.SliceStable(items, func(a, b int) bool {
		ta, tb := items[a].event.Timestamp, items[b].event.Timestamp
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return items[a].index < items[b].index
	})

	res.Events = make([]model.TimelineEvent, len(items))
	for i, it := range items {
		ev := it.event
		ev.ID = EventID(i)
		res.Events[i] = ev
	}

	return res
}

// EventID returns the identifier of the event at position i of a normalized timeline.
func EventID(i int) string {
	return "E" + strconv.Itoa(i+1)
}

// buildPayload turns a record's loose field map into the typed variant for its kind.
func buildPayload(kind model.EventKind, rec model.RawRecord) model.Payload {
	f := rec.Fields
	switch kind {
	case model.KindCommit:
		return model.CommitPayload{SHA: f[model.FieldSHA], Message: f[model.FieldMessage]}
	case model.KindReview:
		return model.ReviewPayload{State: strings.ToLower(f[model.FieldState]), Body: f[model.FieldBody]}
	case model.KindComment:
		line, _ := strconv.Atoi(f[model.FieldLine])
		id := f[model.FieldCommentID]
		if id == "" {
			id = rec.ID
		}
		return model.CommentPayload{CommentID: id, Body: f[model.FieldBody], Path: f[model.FieldPath], Line: line}
	case model.KindStatusChange:
		status := strings.ToLower(strings.TrimSpace(rec.Kind))
		if status == string(model.KindStatusChange) && f[model.FieldState] != "" {
			status = f[model.FieldState]
		}
		detail := f[model.FieldDetail]
		if detail == "" {
			detail = f[model.FieldLabel]
		}
		return model.StatusPayload{Status: status, Detail: detail}
	case model.KindMerge:
		return model.MergePayload{SHA: f[model.FieldSHA]}
	default:
		return model.ClosePayload{}
	}
}

func dedupKey(kind model.EventKind, actor string, ts time.Time, p model.Payload) string {
	sum := sha256.Sum256([]byte(p.Canonical()))
	return fmt.Sprintf("%s|%s|%d|%s", kind, actor, ts.UnixNano(), hex.EncodeToString(sum[:]))
}

// First returns the first event of the given kind, if any.
func First(events []model.TimelineEvent, kind model.EventKind) (model.TimelineEvent, bool) {
	for _, ev := range events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return model.TimelineEvent{}, false
}

// Count returns the number of events of the given kind.
func Count(events []model.TimelineEvent, kind model.EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
