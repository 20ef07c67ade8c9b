package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/spiffcs/prlens/internal/model"
)

// section identifies one block of the structured model response.
type section string

const (
	secSummary         section = "summary"
	secKeyChanges      section = "key_changes"
	secCommentAnalysis section = "comment_analysis"
	secMistakes        section = "developer_mistakes"
	secQuality         section = "code_quality_issues"
	secSuggestions     section = "suggestions"
	secAssessment      section = "overall_assessment"
)

// sectionHeaders are the labels the prompt asks for, in response order.
var sectionHeaders = []struct {
	label string
	sec   section
}{
	{"SUMMARY", secSummary},
	{"KEY CHANGES", secKeyChanges},
	{"COMMENT ANALYSIS", secCommentAnalysis},
	{"DEVELOPER MISTAKES", secMistakes},
	{"CODE QUALITY ISSUES", secQuality},
	{"SUGGESTIONS", secSuggestions},
	{"OVERALL ASSESSMENT", secAssessment},
}

// listSections map onto insight categories. Order here is the order
// insights appear in the result.
var listSections = []struct {
	sec      section
	category model.InsightCategory
}{
	{secKeyChanges, model.CategoryObservation},
	{secMistakes, model.CategoryMistake},
	{secQuality, model.CategoryMistake},
	{secSuggestions, model.CategoryRecommendation},
}

var requiredSections = []section{secSummary, secMistakes, secSuggestions}

var (
	bulletPattern   = regexp.MustCompile(`^(?:[-•]\s*|\*\s+|\d+[.)]\s+)`)
	severityPattern = regexp.MustCompile(`(?i)^\[(low|medium|high|critical)\]\s*`)
	inlineRef       = regexp.MustCompile(`\[([ET]\d+)\]`)
	refsClause      = regexp.MustCompile(`(?i)\(\s*refs?\s*:\s*([^)]*)\)`)
	refToken        = regexp.MustCompile(`[ET]\d+`)
	emphasis        = regexp.MustCompile(`^\*\*(.+?)\*\*:?\s*`)
)

// emptyItems are placeholder list entries models emit for empty sections.
var emptyItems = map[string]bool{
	"none":                true,
	"n/a":                 true,
	"na":                  true,
	"nothing":             true,
	"no issues":           true,
	"none identified":     true,
	"no mistakes":         true,
	"no issues found":     true,
	"nothing to report":   true,
	"no suggestions":      true,
	"no mistakes found":   true,
	"none at this time":   true,
	"no significant ones": true,
}

// RefSet is the set of evidence identifiers the model may cite.
type RefSet map[string]bool

// NewRefSet collects event and thread identifiers.
func NewRefSet(events []model.TimelineEvent, threads []model.ReviewThread) RefSet {
	refs := make(RefSet, len(events)+len(threads))
	for _, ev := range events {
		refs[ev.ID] = true
	}
	for _, t := range threads {
		refs[t.ID] = true
	}
	return refs
}

// Parsed is a successfully parsed model response.
type Parsed struct {
	Insights  []model.Insight
	Narrative model.Narrative
	// UnknownRefs counts cited identifiers that matched no event or thread.
	UnknownRefs int
}

// Parse reads a structured model response. Markdown section responses are
// tried first; a JSON object with the same keys is accepted as a fallback.
func Parse(text string, known RefSet) (Parsed, error) {
	raw, seen := splitSections(text)
	if missing := missingSections(seen, raw); len(missing) > 0 {
		if jraw, jseen, ok := splitJSON(text); ok {
			raw, seen = jraw, jseen
			missing = missingSections(seen, raw)
		}
		if len(missing) > 0 {
			return Parsed{}, &model.SynthesisParseError{
				Missing: missing,
				Reason:  "required sections missing",
			}
		}
	}
	return build(raw, known), nil
}

// rawSections holds narrative text and list items per section.
type rawSections struct {
	text  map[section][]string
	items map[section][]string
}

func newRawSections() rawSections {
	return rawSections{text: map[section][]string{}, items: map[section][]string{}}
}

func isList(sec section) bool {
	for _, ls := range listSections {
		if ls.sec == sec {
			return true
		}
	}
	return false
}

// headerSection recognizes a '#'-prefixed header line.
func headerSection(line string) (section, bool, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", false, false
	}
	label := strings.TrimLeft(line, "#")
	label = strings.Trim(label, " \t*:")
	label = strings.ToUpper(label)
	for _, h := range sectionHeaders {
		if label == h.label || strings.HasPrefix(label, h.label+" ") {
			return h.sec, true, true
		}
	}
	return "", false, true
}

func splitSections(text string) (rawSections, map[section]bool) {
	raw := newRawSections()
	seen := make(map[section]bool)
	var current section

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if sec, known, isHeader := headerSection(line); isHeader {
			current = ""
			if known {
				current = sec
				seen[sec] = true
			}
			continue
		}
		if current == "" || line == "" {
			continue
		}

		if !isList(current) {
			raw.text[current] = append(raw.text[current], line)
			continue
		}

		if loc := bulletPattern.FindStringIndex(line); loc != nil {
			raw.items[current] = append(raw.items[current], strings.TrimSpace(line[loc[1]:]))
			continue
		}
		// continuation of the previous item
		items := raw.items[current]
		if n := len(items); n > 0 {
			items[n-1] = items[n-1] + " " + line
			continue
		}
		raw.items[current] = append(items, line)
	}
	return raw, seen
}

func missingSections(seen map[section]bool, raw rawSections) []string {
	var missing []string
	for _, sec := range requiredSections {
		if !seen[sec] {
			missing = append(missing, string(sec))
			continue
		}
		if sec == secSummary && strings.TrimSpace(strings.Join(raw.text[sec], "")) == "" {
			missing = append(missing, string(sec))
		}
	}
	return missing
}

// splitJSON extracts and repairs a JSON object from the response.
func splitJSON(text string) (rawSections, map[section]bool, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return rawSections{}, nil, false
	}
	repaired, err := jsonrepair.JSONRepair(text[start : end+1])
	if err != nil {
		return rawSections{}, nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(repaired), &fields); err != nil {
		return rawSections{}, nil, false
	}

	raw := newRawSections()
	seen := make(map[section]bool)
	for key, value := range fields {
		sec := section(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_"))
		if !knownSection(sec) {
			continue
		}
		seen[sec] = true
		if isList(sec) {
			raw.items[sec] = jsonItems(value)
		} else {
			var s string
			if json.Unmarshal(value, &s) == nil && strings.TrimSpace(s) != "" {
				raw.text[sec] = []string{strings.TrimSpace(s)}
			}
		}
	}
	return raw, seen, true
}

func knownSection(sec section) bool {
	for _, h := range sectionHeaders {
		if h.sec == sec {
			return true
		}
	}
	return false
}

// jsonItems accepts either a list of strings or a single string.
func jsonItems(value json.RawMessage) []string {
	var list []string
	if json.Unmarshal(value, &list) == nil {
		return list
	}
	var one string
	if json.Unmarshal(value, &one) == nil && strings.TrimSpace(one) != "" {
		return []string{one}
	}
	return nil
}

func build(raw rawSections, known RefSet) Parsed {
	var p Parsed
	for _, ls := range listSections {
		for _, item := range raw.items[ls.sec] {
			ins, unknown, ok := parseItem(item, known)
			p.UnknownRefs += unknown
			if !ok {
				continue
			}
			ins.Category = ls.category
			ins.Source = string(ls.sec)
			p.Insights = append(p.Insights, ins)
		}
	}
	p.Narrative = model.Narrative{
		Summary:           strings.Join(raw.text[secSummary], "\n"),
		CommentAnalysis:   strings.Join(raw.text[secCommentAnalysis], "\n"),
		OverallAssessment: strings.Join(raw.text[secAssessment], "\n"),
	}
	return p
}

// parseItem extracts severity and evidence references from one list item.
func parseItem(item string, known RefSet) (model.Insight, int, bool) {
	text := strings.TrimSpace(item)

	var ins model.Insight
	if m := severityPattern.FindStringSubmatch(text); m != nil {
		ins.Severity, _ = model.ParseSeverity(strings.ToLower(m[1]))
		text = strings.TrimSpace(text[len(m[0]):])
	}

	var cited []string
	text = refsClause.ReplaceAllStringFunc(text, func(clause string) string {
		cited = append(cited, refToken.FindAllString(clause, -1)...)
		return ""
	})
	text = inlineRef.ReplaceAllStringFunc(text, func(ref string) string {
		cited = append(cited, strings.Trim(ref, "[]"))
		return ""
	})
	text = strings.Join(strings.Fields(text), " ")
	text = emphasis.ReplaceAllString(text, "$1: ")
	text = strings.TrimSpace(text)

	if text == "" || emptyItems[strings.TrimRight(strings.ToLower(text), ".!")] {
		return model.Insight{}, 0, false
	}

	unknown := 0
	seen := make(map[string]bool)
	for _, ref := range cited {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		if !known[ref] {
			unknown++
			continue
		}
		ins.EvidenceRefs = append(ins.EvidenceRefs, ref)
	}
	ins.Text = text
	return ins, unknown, true
}

// describeFailure renders a parse failure for the stricter re-prompt.
func describeFailure(err error) string {
	var pe *model.SynthesisParseError
	if errors.As(err, &pe) && len(pe.Missing) > 0 {
		return fmt.Sprintf("your previous answer was missing the required sections: %s", strings.Join(upperAll(pe.Missing), ", "))
	}
	return fmt.Sprintf("your previous answer could not be used: %v", err)
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.ReplaceAll(s, "_", " "))
	}
	return out
}
