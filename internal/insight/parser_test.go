package insight

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spiffcs/prlens/internal/model"
)

var knownRefs = RefSet{"E1": true, "E2": true, "E3": true, "T1": true, "T2": true}

const wellFormed = `Here is my analysis.

### SUMMARY
Adds a TTL to the cache.
Touches two packages.

### KEY CHANGES
- New TTL option [E1]
- Eviction loop (refs: E2, T1)

### COMMENT ANALYSIS
Reviewers focused on locking.

### DEVELOPER MISTAKES
- [high] Missed a lock around the map [T1] [E9]
* [Medium] Forgot to close the ticker
  which leaks a goroutine

### CODE QUALITY ISSUES
1. None

### SUGGESTIONS
• Add a benchmark [T2]
2) **Docs**: describe the TTL semantics

## Overall Assessment:
Solid change.
`

func TestParseWellFormed(t *testing.T) {
	got, err := Parse(wellFormed, knownRefs)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []model.Insight{
		{Category: model.CategoryObservation, Text: "New TTL option", EvidenceRefs: []string{"E1"}, Source: "key_changes"},
		{Category: model.CategoryObservation, Text: "Eviction loop", EvidenceRefs: []string{"E2", "T1"}, Source: "key_changes"},
		{Category: model.CategoryMistake, Severity: model.SeverityHigh, Text: "Missed a lock around the map", EvidenceRefs: []string{"T1"}, Source: "developer_mistakes"},
		{Category: model.CategoryMistake, Severity: model.SeverityMedium, Text: "Forgot to close the ticker which leaks a goroutine", Source: "developer_mistakes"},
		{Category: model.CategoryRecommendation, Text: "Add a benchmark", EvidenceRefs: []string{"T2"}, Source: "suggestions"},
		{Category: model.CategoryRecommendation, Text: "Docs: describe the TTL semantics", Source: "suggestions"},
	}
	if diff := cmp.Diff(want, got.Insights); diff != "" {
		t.Errorf("insights mismatch (-want +got):\n%s", diff)
	}

	wantNarrative := model.Narrative{
		Summary:           "Adds a TTL to the cache.\nTouches two packages.",
		CommentAnalysis:   "Reviewers focused on locking.",
		OverallAssessment: "Solid change.",
	}
	if diff := cmp.Diff(wantNarrative, got.Narrative); diff != "" {
		t.Errorf("narrative mismatch (-want +got):\n%s", diff)
	}
	if got.UnknownRefs != 1 {
		t.Errorf("UnknownRefs = %d, want 1 (E9)", got.UnknownRefs)
	}
}

func TestParseMissingSections(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantMissing []string
	}{
		{
			name:        "free text",
			text:        "This PR looks fine to me.",
			wantMissing: []string{"summary", "developer_mistakes", "suggestions"},
		},
		{
			name:        "no suggestions",
			text:        "### SUMMARY\nok\n### DEVELOPER MISTAKES\n- None",
			wantMissing: []string{"suggestions"},
		},
		{
			name:        "empty summary",
			text:        "### SUMMARY\n\n### DEVELOPER MISTAKES\n- None\n### SUGGESTIONS\n- None",
			wantMissing: []string{"summary"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, knownRefs)
			var pe *model.SynthesisParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() error = %v, want SynthesisParseError", err)
			}
			if diff := cmp.Diff(tt.wantMissing, pe.Missing); diff != "" {
				t.Errorf("missing sections mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseEmptyListsAreValid(t *testing.T) {
	text := "### Summary\nSmall fix.\n### Developer Mistakes\n- None.\n### Suggestions\n- N/A"
	got, err := Parse(text, knownRefs)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(got.Insights) != 0 {
		t.Errorf("got %d insights, want none", len(got.Insights))
	}
	if got.Narrative.Summary != "Small fix." {
		t.Errorf("Summary = %q", got.Narrative.Summary)
	}
}

func TestParseJSONFallback(t *testing.T) {
	// trailing comma and a code fence, both repaired
	text := "```json\n{\n" +
		`"summary": "Adds a TTL.",` + "\n" +
		`"developer_mistakes": ["[low] Typo in comment [E3]"],` + "\n" +
		`"suggestions": "Add docs",` + "\n" +
		"}\n```"

	got, err := Parse(text, knownRefs)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []model.Insight{
		{Category: model.CategoryMistake, Severity: model.SeverityLow, Text: "Typo in comment", EvidenceRefs: []string{"E3"}, Source: "developer_mistakes"},
		{Category: model.CategoryRecommendation, Text: "Add docs", Source: "suggestions"},
	}
	if diff := cmp.Diff(want, got.Insights); diff != "" {
		t.Errorf("insights mismatch (-want +got):\n%s", diff)
	}
	if got.Narrative.Summary != "Adds a TTL." {
		t.Errorf("Summary = %q", got.Narrative.Summary)
	}
}

func TestNewRefSet(t *testing.T) {
	refs := NewRefSet(
		[]model.TimelineEvent{{ID: "E1"}, {ID: "E2"}},
		[]model.ReviewThread{{ID: "T1"}},
	)
	if !refs["E2"] || !refs["T1"] || refs["T2"] {
		t.Errorf("NewRefSet() = %v", refs)
	}
}
