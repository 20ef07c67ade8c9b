package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/spiffcs/prlens/internal/format"
	"github.com/spiffcs/prlens/internal/metrics"
	"github.com/spiffcs/prlens/internal/model"
	"github.com/spiffcs/prlens/internal/pipeline"
	"github.com/spiffcs/prlens/internal/report"
)

// MarkdownFormatter formats output as Markdown
type MarkdownFormatter struct{}

// insightSections lists the insight categories in display order.
var insightSections = []struct {
	category model.InsightCategory
	title    string
}{
	{model.CategoryMistake, "Developer Mistakes"},
	{model.CategoryRecommendation, "Recommendations"},
	{model.CategoryObservation, "Observations"},
}

// FormatReport outputs a single report as Markdown
func (f *MarkdownFormatter) FormatReport(r *report.AnalysisReport, w io.Writer) error {
	var b strings.Builder
	writeReport(&b, r, 1)
	_, err := io.WriteString(w, b.String())
	return err
}

// FormatBatch outputs the batch comparison followed by every report
func (f *MarkdownFormatter) FormatBatch(res pipeline.Result, w io.Writer) error {
	var b strings.Builder
	reports := res.Reports()
	cmp := res.Compare()

	fmt.Fprintln(&b, "# Pull Request Batch Analysis")
	fmt.Fprintf(&b, "\n*Run `%s`: %d pull requests, %d reports, %d failed, %d degraded*\n\n",
		res.RunID, len(res.Outcomes), len(reports), res.Failed(), cmp.Degraded)

	if res.Cancelled {
		fmt.Fprintln(&b, "> The run was cancelled; pull requests that had not started are listed as failures.")
		fmt.Fprintln(&b)
	}

	if len(cmp.Rows) > 0 {
		fmt.Fprintln(&b, "## Pull Requests")
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "| PR | Title | Author | Size | Time to first review | Time to merge | Insights |")
		fmt.Fprintln(&b, "|---|---|---|---|---|---|---|")
		for _, row := range cmp.Rows {
			pr := row.PR
			if row.Degraded {
				pr += " " + format.DegradedIcon
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %d |\n",
				pr, mdCell(row.Title), mdCell(row.Author), orDash(string(row.Size)),
				rowMetric(row, metrics.TimeToFirstReview), rowMetric(row, metrics.TimeToMerge), row.Insights)
		}
		fmt.Fprintln(&b)
	}

	if len(cmp.Metrics) > 0 {
		fmt.Fprintln(&b, "## Comparison")
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "| Metric | PRs | Median | P75 | P90 | Mean | Min | Max | Undefined |")
		fmt.Fprintln(&b, "|---|---|---|---|---|---|---|---|---|")
		for _, m := range cmp.Metrics {
			s := m.Summary
			if s.Count == 0 {
				fmt.Fprintf(&b, "| %s | 0 | - | - | - | - | - | - | %d |\n", metricLabel(m.Name), m.Undefined)
				continue
			}
			v := func(x float64) string { return format.FormatValue(m.Unit, x) }
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s | %s | %s | %d |\n",
				metricLabel(m.Name), s.Count, v(s.Median), v(s.P75), v(s.P90), v(s.Mean), v(s.Min), v(s.Max), m.Undefined)
		}
		fmt.Fprintln(&b)
	}

	if len(cmp.Outliers) > 0 {
		fmt.Fprintln(&b, "## Outliers")
		fmt.Fprintln(&b)
		units := make(map[string]model.MetricUnit, len(cmp.Metrics))
		for _, m := range cmp.Metrics {
			units[m.Name] = m.Unit
		}
		for _, o := range cmp.Outliers {
			dir := "low"
			if o.High {
				dir = "high"
			}
			fmt.Fprintf(&b, "- %s: %s is unusually %s (%s)\n",
				o.PR, metricLabel(o.Metric), dir, format.FormatValue(units[o.Metric], o.Value))
		}
		fmt.Fprintln(&b)
	}

	if res.Failed() > 0 {
		fmt.Fprintln(&b, "## Failures")
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "| PR | Kind | Reason |")
		fmt.Fprintln(&b, "|---|---|---|")
		for _, o := range res.Outcomes {
			if o.Failure != nil {
				fmt.Fprintf(&b, "| %s | `%s` | %s |\n", o.Ref, o.Failure.Kind, mdCell(o.Failure.Reason))
			}
		}
		fmt.Fprintln(&b)
	}

	for _, r := range reports {
		fmt.Fprintln(&b, "---")
		fmt.Fprintln(&b)
		writeReport(&b, r, 2)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// writeReport renders one report with its title at heading level depth.
func writeReport(b *strings.Builder, r *report.AnalysisReport, depth int) {
	h := func(level int) string { return strings.Repeat("#", depth+level-1) }
	p := r.Provenance()

	fmt.Fprintf(b, "%s %s: %s\n\n", h(1), p.PR, p.Title)
	meta := fmt.Sprintf("Report `%s`, analyzed %s", p.ReportID, p.AnalyzedAt.Format("2006-01-02 15:04 UTC"))
	if p.Model != "" {
		meta += fmt.Sprintf(" with `%s`", p.Model)
	}
	fmt.Fprintf(b, "*%s*\n\n", meta)

	if r.Degraded() {
		fmt.Fprintf(b, "> %s Insight synthesis did not complete. Metrics and conversation analysis are complete.\n\n", format.DegradedIcon)
	}

	fmt.Fprintf(b, "%s Overview\n\n", h(2))
	fmt.Fprintf(b, "- **Author:** %s\n", orDash(p.Author))
	if p.URL != "" {
		fmt.Fprintf(b, "- **URL:** %s\n", p.URL)
	}
	fmt.Fprintf(b, "- **Size:** %s (%d files)\n", orDash(string(r.Size())), len(r.Files()))
	fmt.Fprintf(b, "- **Timeline events:** %d\n", len(r.Timeline()))
	if skipped := p.DroppedRecords + p.MalformedRecords; skipped > 0 || p.DuplicateRecords > 0 {
		fmt.Fprintf(b, "- **Skipped records:** %d malformed, %d without timestamp, %d duplicate\n",
			p.MalformedRecords, p.DroppedRecords, p.DuplicateRecords)
	}
	if p.SynthesisAttempts > 0 {
		fmt.Fprintf(b, "- **Synthesis attempts:** %d\n", p.SynthesisAttempts)
	}
	fmt.Fprintln(b)

	fmt.Fprintf(b, "%s Metrics\n\n", h(2))
	fmt.Fprintln(b, "| Metric | Value | Note |")
	fmt.Fprintln(b, "|---|---|---|")
	for _, m := range r.Metrics() {
		fmt.Fprintf(b, "| %s | %s | %s |\n", metricLabel(m.Name), format.FormatMetric(m), mdCell(m.Note))
	}
	fmt.Fprintln(b)

	if lat := r.Latencies(); len(lat) > 0 {
		fmt.Fprintf(b, "%s Response latency\n\n", h(3))
		fmt.Fprintln(b, "| Thread | Latency |")
		fmt.Fprintln(b, "|---|---|")
		for _, m := range lat {
			fmt.Fprintf(b, "| %s | %s |\n", m.Subject, format.FormatMetric(m))
		}
		fmt.Fprintln(b)
	}

	writeConversation(b, r, h)
	writeNarrative(b, r.Narrative(), h)
	writeInsights(b, r.Insights(), h)

	if files := r.Files(); len(files) > 0 {
		fmt.Fprintf(b, "%s Files\n\n", h(2))
		fmt.Fprintln(b, "| File | Changes | Risk | Complexity |")
		fmt.Fprintln(b, "|---|---|---|---|")
		for _, fr := range files {
			fmt.Fprintf(b, "| `%s` | %d | %s %s | %.1f |\n",
				fr.Filename, fr.Changes, format.RiskIcon(fr.Risk), fr.Risk, fr.Complexity)
		}
		fmt.Fprintln(b)
	}

	if periods := r.Periods(); len(periods) > 0 {
		fmt.Fprintf(b, "%s Activity\n\n", h(2))
		fmt.Fprintln(b, "| Start | Length | Type | Events | Commits | Reviews | Comments |")
		fmt.Fprintln(b, "|---|---|---|---|---|---|---|")
		for _, ap := range periods {
			fmt.Fprintf(b, "| %s | %s | %s | %d | %d | %d | %d |\n",
				ap.Start.Format("2006-01-02 15:04"), format.FormatSpan(ap.End.Sub(ap.Start)),
				ap.Type, ap.Events, ap.Commits, ap.Reviews, ap.Comments)
		}
		fmt.Fprintln(b)
	}

	bundle := r.Context()
	fmt.Fprintf(b, "%s Model context\n\n", h(2))
	fmt.Fprintf(b, "- **Tokens:** %d of %d\n", bundle.Tokens, bundle.TokenBudget)
	fmt.Fprintf(b, "- **Sections:** %s\n", strings.Join(bundle.IncludedSections, ", "))
	if bundle.DiffTruncated {
		fmt.Fprintln(b, "- Diff excerpt truncated to fit the budget")
	}
	if bundle.RepoContextDropped {
		fmt.Fprintln(b, "- Repository context dropped to fit the budget")
	}
	fmt.Fprintln(b)

	if warnings := r.Warnings(); len(warnings) > 0 {
		fmt.Fprintf(b, "%s Warnings\n\n", h(2))
		for _, wn := range warnings {
			fmt.Fprintf(b, "- `%s`: %s\n", wn.Kind, wn.Reason)
		}
		fmt.Fprintln(b)
	}
}

func writeConversation(b *strings.Builder, r *report.AnalysisReport, h func(int) string) {
	c := r.Conversation()
	fmt.Fprintf(b, "%s Conversation\n\n", h(2))
	fmt.Fprintf(b, "- **Threads:** %d (%d resolved, %d ongoing, %d unresolved)\n",
		c.Threads, c.Resolved, c.Ongoing, c.Unresolved)
	fmt.Fprintf(b, "- **Exchanges:** %d human, %d bot\n", c.HumanExchanges, c.BotExchanges)
	if c.Tone != "" {
		fmt.Fprintf(b, "- **Tone:** %s\n", c.Tone)
	}
	fmt.Fprintln(b)

	if len(c.Reviewers) > 0 {
		fmt.Fprintln(b, "| Reviewer | Comments | Questions | Suggestions | Approvals | Engagement |")
		fmt.Fprintln(b, "|---|---|---|---|---|---|")
		for _, rp := range c.Reviewers {
			fmt.Fprintf(b, "| %s | %d | %d | %d | %d | %s |\n",
				rp.Actor, rp.Comments, rp.Questions, rp.Suggestions, rp.Approvals, rp.Engagement)
		}
		fmt.Fprintln(b)
	}

	threads := r.Threads()
	if len(threads) == 0 {
		return
	}
	fmt.Fprintf(b, "%s Threads\n\n", h(3))
	for _, t := range threads {
		where := "general"
		if t.FilePath != "" {
			where = "`" + t.FilePath
			if t.AnchorLine > 0 {
				where += fmt.Sprintf(":%d", t.AnchorLine)
			}
			where += "`"
		}
		fmt.Fprintf(b, "- **%s** %s, %s, %s, %d exchanges (%s)",
			t.ID, where, t.Type, t.Resolution, len(t.Exchanges), format.JoinLogins(t.Participants(), 3))
		if t.Topic != "" {
			fmt.Fprintf(b, ": %s", t.Topic)
		}
		fmt.Fprintln(b)
	}
	fmt.Fprintln(b)
}

func writeNarrative(b *strings.Builder, n model.Narrative, h func(int) string) {
	if n.IsEmpty() {
		return
	}
	fmt.Fprintf(b, "%s Narrative\n\n", h(2))
	for _, s := range []struct{ title, text string }{
		{"Summary", n.Summary},
		{"Comment analysis", n.CommentAnalysis},
		{"Overall assessment", n.OverallAssessment},
	} {
		if s.text == "" {
			continue
		}
		fmt.Fprintf(b, "%s %s\n\n%s\n\n", h(3), s.title, strings.TrimSpace(s.text))
	}
}

func writeInsights(b *strings.Builder, insights []model.Insight, h func(int) string) {
	if len(insights) == 0 {
		return
	}
	for _, sec := range insightSections {
		var items []model.Insight
		for _, in := range insights {
			if in.Category == sec.category {
				items = append(items, in)
			}
		}
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(b, "%s %s (%d)\n\n", h(2), sec.title, len(items))
		for _, in := range items {
			fmt.Fprint(b, "- ")
			if icon := format.SeverityIcon(in.Severity); icon != "" {
				fmt.Fprintf(b, "%s **%s** ", icon, in.Severity)
			}
			fmt.Fprint(b, in.Text)
			if len(in.EvidenceRefs) > 0 {
				fmt.Fprintf(b, " (evidence: %s)", strings.Join(in.EvidenceRefs, ", "))
			}
			fmt.Fprintln(b)
		}
		fmt.Fprintln(b)
	}
}

// metricLabel turns a metric name into a sentence-case label.
func metricLabel(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// rowMetric renders a named metric of a comparison row.
func rowMetric(row report.Row, name string) string {
	for _, m := range row.Metrics {
		if m.Name == name {
			return format.FormatMetric(m)
		}
	}
	return "n/a"
}

// mdCell makes s safe to place in a markdown table cell.
func mdCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
