package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spiffcs/prlens/internal/format"
	"github.com/spiffcs/prlens/internal/metrics"
	"github.com/spiffcs/prlens/internal/model"
	"github.com/spiffcs/prlens/internal/pipeline"
	"github.com/spiffcs/prlens/internal/report"
	"golang.org/x/term"
)

// TableFormatter formats output as a terminal table
type TableFormatter struct{}

// hyperlink creates a clickable terminal hyperlink using OSC 8
// Format: \033]8;;URL\033\\TEXT\033]8;;\033\\
func hyperlink(text, url string) string {
	// Only use hyperlinks if stdout is a terminal
	if url == "" || !term.IsTerminal(int(os.Stdout.Fd())) {
		return text
	}
	return fmt.Sprintf("\033]8;;%s\033\\%s\033]8;;\033\\", url, text)
}

// Batch table column widths
const (
	colIcon     = format.IconWidth
	colPR       = 24
	colTitle    = 36
	colAuthor   = 14
	colSize     = 4
	colDuration = 8
	colCount    = 6
)

// tableMetrics are the per-PR metric columns of the batch table.
var tableMetrics = []struct {
	name   string
	header string
	width  int
}{
	{metrics.TimeToFirstReview, "TTFR", colDuration},
	{metrics.TimeToMerge, "Merge", colDuration},
	{metrics.ReviewRoundCount, "Rounds", colCount},
	{metrics.RevisionCount, "Revs", colCount},
}

// FormatBatch outputs one row per pull request and a footer summary
func (f *TableFormatter) FormatBatch(res pipeline.Result, w io.Writer) error {
	if len(res.Outcomes) == 0 {
		fmt.Fprintln(w, "No pull requests analyzed.")
		return nil
	}

	var b strings.Builder
	header := []string{
		format.Cell("", colIcon),
		format.Cell("PR", colPR),
		format.Cell("Title", colTitle),
		format.Cell("Author", colAuthor),
		format.Cell("Size", colSize),
	}
	for _, c := range tableMetrics {
		header = append(header, format.Cell(c.header, c.width))
	}
	header = append(header, "Insights")
	line := strings.Join(header, "  ")
	fmt.Fprintln(&b, strings.TrimRight(line, " "))
	fmt.Fprintln(&b, strings.Repeat("-", runewidth.StringWidth(line)))

	rows := make(map[string]report.Row)
	for _, row := range res.Compare().Rows {
		rows[row.PR] = row
	}

	for _, o := range res.Outcomes {
		pr := o.Ref.String()
		if o.Failure != nil {
			fmt.Fprintf(&b, "%s  %s  %s\n",
				format.Cell(format.CriticalIcon, colIcon),
				format.Cell(pr, colPR),
				color.RedString("%s: %s", o.Failure.Kind, format.FirstLine(o.Failure.Reason)))
			continue
		}

		row := rows[pr]
		icon := ""
		if row.Degraded {
			icon = format.DegradedIcon
		}
		title, titleWidth := format.TruncateToWidth(row.Title, colTitle)
		cells := []string{
			format.Cell(icon, colIcon),
			format.Cell(pr, colPR),
			format.PadRight(hyperlink(title, o.Report.Provenance().URL), titleWidth, colTitle),
			format.Cell(format.TruncateUsername(row.Author, colAuthor), colAuthor),
			format.PadRight(colorSize(row.Size), runewidth.StringWidth(orDash(string(row.Size))), colSize),
		}
		for _, c := range tableMetrics {
			cells = append(cells, format.Cell(rowMetric(row, c.name), c.width))
		}
		cells = append(cells, fmt.Sprintf("%d", row.Insights))
		fmt.Fprintln(&b, strings.Join(cells, "  "))
	}

	printFooterSummary(res, &b)

	_, err := io.WriteString(w, b.String())
	return err
}

// FormatReport outputs a compact terminal view of one report
func (f *TableFormatter) FormatReport(r *report.AnalysisReport, w io.Writer) error {
	var b strings.Builder
	p := r.Provenance()

	fmt.Fprintf(&b, "%s  %s\n", color.New(color.Bold).Sprint(p.PR.String()), hyperlink(p.Title, p.URL))
	fmt.Fprintf(&b, "  Author: %s | Size: %s | Files: %d | Events: %d\n",
		orDash(p.Author), colorSize(r.Size()), len(r.Files()), len(r.Timeline()))
	if r.Degraded() {
		fmt.Fprintf(&b, "  %s %s\n", format.DegradedIcon, color.YellowString("insight synthesis degraded"))
	}

	fmt.Fprintln(&b, "\nMetrics:")
	labelWidth := 0
	for _, m := range r.Metrics() {
		labelWidth = max(labelWidth, len(metricLabel(m.Name)))
	}
	for _, m := range r.Metrics() {
		value := format.FormatMetric(m)
		if !m.Defined {
			value = color.HiBlackString(value)
		}
		fmt.Fprintf(&b, "  %-*s  %s\n", labelWidth, metricLabel(m.Name), value)
	}

	c := r.Conversation()
	fmt.Fprintf(&b, "\nConversation: %d threads (%d resolved, %d ongoing, %d unresolved), tone %s\n",
		c.Threads, c.Resolved, c.Ongoing, c.Unresolved, orDash(string(c.Tone)))

	if insights := r.Insights(); len(insights) > 0 {
		fmt.Fprintln(&b, "\nInsights:")
		for _, in := range insights {
			icon := format.SeverityIcon(in.Severity)
			fmt.Fprintf(&b, "  %s %s %s\n",
				format.Cell(icon, colIcon-1), colorCategory(in.Category), in.Text)
		}
	}

	for _, wn := range r.Warnings() {
		fmt.Fprintf(&b, "%s %s\n", color.YellowString("warning:"), wn.Reason)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// printFooterSummary prints an enhanced summary footer
func printFooterSummary(res pipeline.Result, w io.Writer) {
	degraded := 0
	for _, r := range res.Reports() {
		if r.Degraded() {
			degraded++
		}
	}
	failed := res.Failed()

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("━", 60))
	fmt.Fprintf(w, "  %d analyzed, %d reports\n", len(res.Outcomes), len(res.Outcomes)-failed)
	if failed > 0 {
		fmt.Fprintf(w, "  %s %s failed\n", color.RedString("●"), color.RedString("%d", failed))
	}
	if degraded > 0 {
		fmt.Fprintf(w, "  %s %d degraded (metrics only)\n", format.DegradedIcon, degraded)
	}
	if res.Cancelled {
		fmt.Fprintf(w, "  %s\n", color.YellowString("run cancelled"))
	}
}

func colorSize(size model.PRSize) string {
	switch size {
	case model.PRSizeXS, model.PRSizeS:
		return color.GreenString(string(size))
	case model.PRSizeM, model.PRSizeL:
		return color.YellowString(string(size))
	case model.PRSizeXL:
		return color.RedString(string(size))
	default:
		return "-"
	}
}

func colorCategory(c model.InsightCategory) string {
	switch c {
	case model.CategoryMistake:
		return color.RedString("[mistake]")
	case model.CategoryRecommendation:
		return color.CyanString("[recommendation]")
	default:
		return color.WhiteString("[observation]")
	}
}
