// Package budget fits PR context into a token budget for the model prompt.
package budget

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spiffcs/prlens/internal/model"
)

// Section names as recorded in ContextBundle.IncludedSections.
const (
	SectionSummary = "pr_summary"
	SectionDiff    = "diff_excerpt"
	SectionRepo    = "repo_context"
)

const truncationMarker = "\n[diff truncated]"

// DefaultCharsPerToken is the character-to-token ratio of the default counter.
const DefaultCharsPerToken = 4

// Counter estimates the token size of text.
type Counter interface {
	Count(text string) int
}

// CharCounter estimates one token per CharsPerToken characters, rounding up.
type CharCounter struct {
	CharsPerToken int
}

var _ Counter = CharCounter{}

// Count implements Counter.
func (c CharCounter) Count(text string) int {
	per := c.CharsPerToken
	if per <= 0 {
		per = DefaultCharsPerToken
	}
	n := utf8.RuneCountInString(text)
	return (n + per - 1) / per
}

// Input is the raw material for a context bundle.
type Input struct {
	Summary     string
	Diff        string
	RepoContext string
}

// Fit builds a bundle whose rendered form is at most budget tokens.
// Repository context is dropped first, then the diff is truncated to a
// prefix. The summary is never shortened; if it alone does not fit the
// result is a BudgetExceededError.
func Fit(in Input, budget int, counter Counter) (model.ContextBundle, error) {
	if budget <= 0 {
		return model.ContextBundle{}, &model.ConfigError{Field: "budget.tokens", Reason: "must be positive"}
	}
	if counter == nil {
		counter = CharCounter{}
	}

	b := model.ContextBundle{
		PRSummary:   in.Summary,
		DiffExcerpt: in.Diff,
		RepoContext: in.RepoContext,
		TokenBudget: budget,
	}

	summaryOnly := model.ContextBundle{PRSummary: in.Summary}
	if n := counter.Count(Render(summaryOnly)); n > budget {
		return model.ContextBundle{}, &model.BudgetExceededError{SummaryTokens: n, Budget: budget}
	}

	if fits(b, budget, counter) {
		return finish(b, counter), nil
	}

	if b.RepoContext != "" {
		b.RepoContext = ""
		b.RepoContextDropped = true
		if fits(b, budget, counter) {
			return finish(b, counter), nil
		}
	}

	b.DiffExcerpt = truncateDiff(b, budget, counter)
	b.DiffTruncated = true
	return finish(b, counter), nil
}

func fits(b model.ContextBundle, budget int, counter Counter) bool {
	return counter.Count(Render(b)) <= budget
}

func finish(b model.ContextBundle, counter Counter) model.ContextBundle {
	b.IncludedSections = sections(b)
	b.Tokens = counter.Count(Render(b))
	return b
}

// truncateDiff returns the longest diff prefix, plus marker, that fits.
// The prefix ends on a line boundary when one is available. An empty
// string means no part of the diff fits.
func truncateDiff(b model.ContextBundle, budget int, counter Counter) string {
	runes := []rune(b.DiffExcerpt)

	try := func(n int) bool {
		candidate := b
		candidate.DiffExcerpt = string(runes[:n]) + truncationMarker
		return fits(candidate, budget, counter)
	}

	// Largest n in [0, len) whose prefix fits.
	best := -1
	lo, hi := 0, len(runes)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		if try(mid) {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best <= 0 {
		return ""
	}

	prefix := string(runes[:best])
	if i := strings.LastIndexByte(prefix, '\n'); i > 0 {
		prefix = prefix[:i]
	}
	return prefix + truncationMarker
}

func sections(b model.ContextBundle) []string {
	out := []string{SectionSummary}
	if b.DiffExcerpt != "" {
		out = append(out, SectionDiff)
	}
	if b.RepoContext != "" {
		out = append(out, SectionRepo)
	}
	return out
}

// Render serializes the bundle with section headers. Empty sections are
// omitted. The output is what the counter measures and what the prompt
// embeds.
func Render(b model.ContextBundle) string {
	var sb strings.Builder
	sb.WriteString("## PR SUMMARY\n")
	sb.WriteString(b.PRSummary)
	if b.DiffExcerpt != "" {
		sb.WriteString("\n\n## DIFF EXCERPT\n")
		sb.WriteString(b.DiffExcerpt)
	}
	if b.RepoContext != "" {
		sb.WriteString("\n\n## REPOSITORY CONTEXT\n")
		sb.WriteString(b.RepoContext)
	}
	return sb.String()
}

// RepoContext renders fetched repository files, sorted by path.
func RepoContext(files []model.RepoFile) string {
	if len(files) == 0 {
		return ""
	}
	sorted := make([]model.RepoFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var sb strings.Builder
	for i, f := range sorted {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("=== ")
		sb.WriteString(f.Path)
		if f.Truncated {
			sb.WriteString(" (truncated)")
		}
		sb.WriteString(" ===\n")
		sb.WriteString(f.Content)
	}
	return sb.String()
}
