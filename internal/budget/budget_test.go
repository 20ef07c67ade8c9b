package budget

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spiffcs/prlens/internal/model"
)

// one token per rune keeps the arithmetic in these tests readable
var perRune = CharCounter{CharsPerToken: 1}

func TestCharCounter(t *testing.T) {
	tests := []struct {
		text string
		per  int
		want int
	}{
		{"", 4, 0},
		{"abcd", 4, 1},
		{"abcde", 4, 2},
		{"héllo", 0, 2},
		{"abc", 1, 3},
	}

	for _, tt := range tests {
		if got := (CharCounter{CharsPerToken: tt.per}).Count(tt.text); got != tt.want {
			t.Errorf("Count(%q, %d) = %d, want %d", tt.text, tt.per, got, tt.want)
		}
	}
}

func TestFitSummaryTooLarge(t *testing.T) {
	_, err := Fit(Input{Summary: "hello"}, 18, perRune)

	var be *model.BudgetExceededError
	if !errors.As(err, &be) {
		t.Fatalf("Fit() error = %v, want BudgetExceededError", err)
	}
	if be.SummaryTokens != 19 || be.Budget != 18 {
		t.Errorf("error = %+v, want 19 tokens over budget 18", be)
	}
}

func TestFitLongDescriptionExceedsBudget(t *testing.T) {
	body := strings.Repeat("d", 10000)
	summary := Summary(model.RawPR{
		Ref:    model.PRRef{Owner: "o", Repo: "r", Number: 1},
		Title:  "Long description",
		Author: "alice",
		State:  "open",
		Body:   body,
	}, model.PRSizeXS)

	if !strings.Contains(summary, body) {
		t.Fatal("Summary() shortened the description")
	}

	_, err := Fit(Input{Summary: summary}, 1000, CharCounter{})
	var be *model.BudgetExceededError
	if !errors.As(err, &be) {
		t.Fatalf("Fit() error = %v, want BudgetExceededError", err)
	}
	if be.SummaryTokens <= 1000 {
		t.Errorf("SummaryTokens = %d, want more than the 1000 token budget", be.SummaryTokens)
	}
}

func TestFitRejectsNonPositiveBudget(t *testing.T) {
	_, err := Fit(Input{Summary: "x"}, 0, perRune)
	if model.KindOf(err) != model.ErrKindConfig {
		t.Errorf("Fit(budget=0) kind = %q, want config error", model.KindOf(err))
	}
}

func TestFitDropOrder(t *testing.T) {
	in := Input{
		Summary:     "hello",
		Diff:        "aaaa\nbbbb\ncccc",
		RepoContext: strings.Repeat("r", 200),
	}

	tests := []struct {
		name         string
		budget       int
		wantSections []string
		wantDiff     string
		repoDropped  bool
		truncated    bool
	}{
		{
			name:         "everything fits",
			budget:       1000,
			wantSections: []string{SectionSummary, SectionDiff, SectionRepo},
			wantDiff:     in.Diff,
		},
		{
			name:         "repo context dropped first",
			budget:       51,
			wantSections: []string{SectionSummary, SectionDiff},
			wantDiff:     in.Diff,
			repoDropped:  true,
		},
		{
			name:         "diff truncated on a line boundary",
			budget:       66,
			wantSections: []string{SectionSummary, SectionDiff},
			wantDiff:     "aaaa\nbbbb" + truncationMarker,
			repoDropped:  true,
			truncated:    true,
		},
		{
			name:         "only the summary fits",
			budget:       40,
			wantSections: []string{SectionSummary},
			wantDiff:     "",
			repoDropped:  true,
			truncated:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fit(in, tt.budget, perRune)
			if err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantSections, got.IncludedSections); diff != "" {
				t.Errorf("sections mismatch (-want +got):\n%s", diff)
			}
			if got.DiffExcerpt != tt.wantDiff {
				t.Errorf("DiffExcerpt = %q, want %q", got.DiffExcerpt, tt.wantDiff)
			}
			if got.RepoContextDropped != tt.repoDropped || got.DiffTruncated != tt.truncated {
				t.Errorf("flags repoDropped=%v truncated=%v, want %v/%v",
					got.RepoContextDropped, got.DiffTruncated, tt.repoDropped, tt.truncated)
			}
			if got.PRSummary != in.Summary {
				t.Errorf("summary was modified: %q", got.PRSummary)
			}
			if got.Tokens > tt.budget {
				t.Errorf("Tokens = %d exceeds budget %d", got.Tokens, tt.budget)
			}
		})
	}
}

func TestFitNeverExceedsBudget(t *testing.T) {
	in := Input{
		Summary:     "Title: widen the cache",
		Diff:        DiffExcerpt(sampleFiles(), 0),
		RepoContext: "=== a.go ===\npackage a\n",
	}
	counter := CharCounter{CharsPerToken: 3}
	floor := counter.Count(Render(model.ContextBundle{PRSummary: in.Summary}))

	for b := floor; b < floor+200; b++ {
		got, err := Fit(in, b, counter)
		if err != nil {
			t.Fatalf("Fit(budget=%d) error = %v", b, err)
		}
		if n := counter.Count(Render(got)); n > b || n != got.Tokens {
			t.Fatalf("budget %d: rendered %d tokens, bundle reports %d", b, n, got.Tokens)
		}
	}
}

func TestFitDeterministic(t *testing.T) {
	in := Input{Summary: "s", Diff: strings.Repeat("line\n", 50), RepoContext: "ctx"}
	a, _ := Fit(in, 60, CharCounter{})
	b, _ := Fit(in, 60, CharCounter{})
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Fit is not deterministic (-a +b):\n%s", diff)
	}
}

func sampleFiles() []model.FileChange {
	return []model.FileChange{
		{Filename: "cache.go", Status: "modified", Additions: 3, Deletions: 1, Patch: "@@ -1 +1 @@\n-old\n+new\n"},
		{Filename: "cache_test.go", Status: "added", Additions: 10},
		{Filename: "README.md", Status: "modified", Additions: 1, Deletions: 1, Patch: "@@ -2 +2 @@\n-a\n+b"},
	}
}

func TestDiffExcerpt(t *testing.T) {
	got := DiffExcerpt(sampleFiles(), 2)
	want := "--- cache.go (modified, +3/-1)\n@@ -1 +1 @@\n-old\n+new\n" +
		"\n--- cache_test.go (added, +10/-0)\n" +
		"... 1 more files not shown"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DiffExcerpt mismatch (-want +got):\n%s", diff)
	}
	if DiffExcerpt(nil, 0) != "" {
		t.Error("DiffExcerpt(nil) should be empty")
	}
}

func TestSummary(t *testing.T) {
	merged := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	pr := model.RawPR{
		Ref:       model.PRRef{Owner: "o", Repo: "r", Number: 7},
		Title:     "Widen the cache",
		Author:    "alice",
		State:     "closed",
		BaseRef:   "main",
		HeadRef:   "cache",
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		MergedAt:  &merged,
		Files:     sampleFiles(),
	}

	got := Summary(pr, model.PRSizeS)
	for _, want := range []string{
		"Title: Widen the cache\n",
		"PR: o/r#7\n",
		"Branches: main <- cache\n",
		"Merged: 2024-03-02T00:00:00Z\n",
		"Size: S (3 files, +14/-2)\n",
		"Description:\n(no description)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() missing %q in:\n%s", want, got)
		}
	}
}

func TestRepoContextSorted(t *testing.T) {
	got := RepoContext([]model.RepoFile{
		{Path: "b.go", Content: "package b"},
		{Path: "a.go", Content: "package a", Truncated: true},
	})
	want := "=== a.go (truncated) ===\npackage a\n\n=== b.go ===\npackage b"
	if got != want {
		t.Errorf("RepoContext() = %q, want %q", got, want)
	}
}
