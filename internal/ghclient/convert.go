package ghclient

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	gh "github.com/google/go-github/v57/github"
	"github.com/spiffcs/prlens/internal/constants"
	"github.com/spiffcs/prlens/internal/model"
)

// statusEvents are the issue timeline events kept as status changes.
// Commits, reviews and comments come from their dedicated endpoints, which
// carry more detail.
var statusEvents = map[string]bool{
	"labeled":                true,
	"unlabeled":              true,
	"ready_for_review":       true,
	"convert_to_draft":       true,
	"reopened":               true,
	"review_requested":       true,
	"review_request_removed": true,
	"review_dismissed":       true,
	"assigned":               true,
	"unassigned":             true,
	"renamed":                true,
	"head_ref_force_pushed":  true,
}

func stamp(t time.Time) string {
	return model.FormatTimestamp(t)
}

func convertPR(ref model.PRRef, pr *gh.PullRequest) model.RawPR {
	raw := model.RawPR{
		Ref:       ref,
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		Author:    pr.GetUser().GetLogin(),
		State:     pr.GetState(),
		Draft:     pr.GetDraft(),
		BaseRef:   pr.GetBase().GetRef(),
		HeadRef:   pr.GetHead().GetRef(),
		HeadSHA:   pr.GetHead().GetSHA(),
		HTMLURL:   pr.GetHTMLURL(),
		CreatedAt: pr.GetCreatedAt().Time.UTC(),
		UpdatedAt: pr.GetUpdatedAt().Time.UTC(),
	}
	if pr.GetMerged() || !pr.GetMergedAt().IsZero() {
		raw.State = constants.StateMerged
	}
	if t := pr.GetMergedAt().Time; !t.IsZero() {
		t = t.UTC()
		raw.MergedAt = &t
	}
	if t := pr.GetClosedAt().Time; !t.IsZero() {
		t = t.UTC()
		raw.ClosedAt = &t
	}
	for _, l := range pr.Labels {
		raw.Labels = append(raw.Labels, l.GetName())
	}
	return raw
}

// lifecycleRecords adds the merge or close of the PR itself. The issue
// timeline does not say who merged, and a merged PR also carries a
// "closed" event that must not count as a close.
func lifecycleRecords(pr *gh.PullRequest) []model.RawRecord {
	if t := pr.GetMergedAt().Time; !t.IsZero() {
		return []model.RawRecord{{
			Kind:      model.RawKindMerged,
			Actor:     pr.GetMergedBy().GetLogin(),
			Timestamp: stamp(t),
			Fields:    map[string]string{model.FieldSHA: pr.GetMergeCommitSHA()},
		}}
	}
	return nil
}

func convertCommits(commits []*gh.RepositoryCommit) []model.RawRecord {
	out := make([]model.RawRecord, 0, len(commits))
	for _, c := range commits {
		actor := c.GetAuthor().GetLogin()
		if actor == "" {
			actor = c.GetCommit().GetAuthor().GetName()
		}
		when := c.GetCommit().GetAuthor().GetDate().Time
		if when.IsZero() {
			when = c.GetCommit().GetCommitter().GetDate().Time
		}
		out = append(out, model.RawRecord{
			Kind:      model.RawKindCommitted,
			ID:        c.GetSHA(),
			Actor:     actor,
			Timestamp: stamp(when),
			Fields: map[string]string{
				model.FieldSHA:     c.GetSHA(),
				model.FieldMessage: c.GetCommit().GetMessage(),
			},
		})
	}
	return out
}

// convertReviews keeps submitted reviews. Pending reviews are drafts only
// their author can see.
func convertReviews(reviews []*gh.PullRequestReview) []model.RawRecord {
	out := make([]model.RawRecord, 0, len(reviews))
	for _, r := range reviews {
		state := strings.ToLower(r.GetState())
		if state == constants.ReviewStatePending || r.GetSubmittedAt().IsZero() {
			continue
		}
		out = append(out, model.RawRecord{
			Kind:      model.RawKindReviewed,
			ID:        reviewID(r),
			Actor:     r.GetUser().GetLogin(),
			Timestamp: stamp(r.GetSubmittedAt().Time),
			Fields: map[string]string{
				model.FieldState: state,
				model.FieldBody:  r.GetBody(),
			},
		})
	}
	return out
}

// reviewBodyComments turns non-empty review bodies into general
// discussion comments.
func reviewBodyComments(reviews []*gh.PullRequestReview) []model.RawComment {
	var out []model.RawComment
	for _, r := range reviews {
		if strings.TrimSpace(r.GetBody()) == "" || r.GetSubmittedAt().IsZero() {
			continue
		}
		out = append(out, model.RawComment{
			ID:        reviewID(r),
			Actor:     r.GetUser().GetLogin(),
			Timestamp: stamp(r.GetSubmittedAt().Time),
			Body:      r.GetBody(),
			Source:    model.CommentSourceReviewBody,
		})
	}
	return out
}

func reviewID(r *gh.PullRequestReview) string {
	return "review-" + strconv.FormatInt(r.GetID(), 10)
}

// convertReviewComments returns inline comments plus one comment record
// each, so threads can be placed on the timeline.
func convertReviewComments(comments []*gh.PullRequestComment) ([]model.RawComment, []model.RawRecord) {
	out := make([]model.RawComment, 0, len(comments))
	records := make([]model.RawRecord, 0, len(comments))
	for _, c := range comments {
		id := "rc-" + strconv.FormatInt(c.GetID(), 10)
		var parent string
		if c.GetInReplyTo() != 0 {
			parent = "rc-" + strconv.FormatInt(c.GetInReplyTo(), 10)
		}
		line := c.GetLine()
		if line == 0 {
			line = c.GetOriginalLine()
		}

		rc := model.RawComment{
			ID:        id,
			ParentID:  parent,
			Actor:     c.GetUser().GetLogin(),
			Timestamp: stamp(c.GetCreatedAt().Time),
			Body:      c.GetBody(),
			Path:      c.GetPath(),
			Line:      line,
			Source:    model.CommentSourceReview,
		}
		out = append(out, rc)
		records = append(records, commentRecord(rc))
	}
	return out, records
}

func convertIssueComments(comments []*gh.IssueComment) ([]model.RawComment, []model.RawRecord) {
	out := make([]model.RawComment, 0, len(comments))
	records := make([]model.RawRecord, 0, len(comments))
	for _, c := range comments {
		rc := model.RawComment{
			ID:        "ic-" + strconv.FormatInt(c.GetID(), 10),
			Actor:     c.GetUser().GetLogin(),
			Timestamp: stamp(c.GetCreatedAt().Time),
			Body:      c.GetBody(),
			Source:    model.CommentSourceIssue,
		}
		out = append(out, rc)
		records = append(records, commentRecord(rc))
	}
	return out, records
}

func commentRecord(c model.RawComment) model.RawRecord {
	fields := map[string]string{
		model.FieldCommentID: c.ID,
		model.FieldBody:      c.Body,
	}
	if c.Path != "" {
		fields[model.FieldPath] = c.Path
	}
	if c.Line > 0 {
		fields[model.FieldLine] = strconv.Itoa(c.Line)
	}
	return model.RawRecord{
		Kind:      model.RawKindCommented,
		ID:        c.ID,
		Actor:     c.Actor,
		Timestamp: c.Timestamp,
		Fields:    fields,
	}
}

// convertTimeline keeps status changes, and closes of PRs that were not
// merged.
func convertTimeline(events []*gh.Timeline, merged bool) []model.RawRecord {
	var out []model.RawRecord
	for _, ev := range events {
		kind := ev.GetEvent()
		if kind == model.RawKindClosed && merged {
			continue
		}
		if !statusEvents[kind] && kind != model.RawKindClosed {
			continue
		}

		fields := map[string]string{}
		switch kind {
		case "labeled", "unlabeled":
			fields[model.FieldLabel] = ev.GetLabel().GetName()
		case "review_requested", "review_request_removed":
			fields[model.FieldDetail] = ev.GetReviewer().GetLogin()
		case "assigned", "unassigned":
			fields[model.FieldDetail] = ev.GetAssignee().GetLogin()
		case "renamed":
			fields[model.FieldDetail] = ev.GetRename().GetTo()
		}

		var id string
		if ev.GetID() != 0 {
			id = "ev-" + strconv.FormatInt(ev.GetID(), 10)
		}
		out = append(out, model.RawRecord{
			Kind:      kind,
			ID:        id,
			Actor:     ev.GetActor().GetLogin(),
			Timestamp: stamp(ev.GetCreatedAt().Time),
			Fields:    fields,
		})
	}
	return out
}

func convertFiles(files []*gh.CommitFile) []model.FileChange {
	out := make([]model.FileChange, 0, len(files))
	for _, f := range files {
		out = append(out, model.FileChange{
			Filename:  f.GetFilename(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Patch:     f.GetPatch(),
		})
	}
	return out
}

// repoFile bounds one file's content to maxBytes, cutting on a rune
// boundary. Binary content is rejected.
func repoFile(path, content string, maxBytes int) (model.RepoFile, bool) {
	if strings.ContainsRune(content, 0) || !utf8.ValidString(content) {
		return model.RepoFile{}, false
	}
	f := model.RepoFile{Path: path, Content: content}
	if maxBytes > 0 && len(content) > maxBytes {
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		f.Content = content[:cut]
		f.Truncated = true
	}
	return f, true
}
