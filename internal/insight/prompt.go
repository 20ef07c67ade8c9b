package insight

import (
	"fmt"
	"strings"

	"github.com/spiffcs/prlens/internal/budget"
	"github.com/spiffcs/prlens/internal/model"
)

// Limits on how much of the event and thread index is shown to the model.
const (
	maxIndexedEvents  = 80
	maxIndexedThreads = 40
	maxIndexText      = 80
)

// PromptInput is everything the prompt template renders.
type PromptInput struct {
	Ref     model.PRRef
	Bundle  model.ContextBundle
	Metrics []model.Metric
	Events  []model.TimelineEvent
	Threads []model.ReviewThread
}

const instructions = `You are an expert code reviewer and software engineering analyst.
Analyze this GitHub pull request and answer in exactly the structured format below.`

const responseFormat = `## RESPONSE FORMAT
Answer with these sections, each introduced by its header line:

### SUMMARY
A concise overview of what the PR accomplishes, its scope and significance.

### KEY CHANGES
A list of the most important changes, one "- " item each.

### COMMENT ANALYSIS
Comment patterns, reviewer concerns and how the author responded.

### DEVELOPER MISTAKES
A list of mistakes or oversights caught during review, one "- " item each.

### CODE QUALITY ISSUES
A list of code quality, performance, security or maintainability concerns.

### SUGGESTIONS
A list of suggestions for improvement or lessons learned.

### OVERALL ASSESSMENT
An overall assessment of the PR, the review process and development practices.

Rules for list items:
- Start an item with a severity in brackets when it applies: [low], [medium], [high] or [critical].
- Cite supporting evidence with identifiers from the index, e.g. [E3] or [T2].
- Only cite identifiers that appear in the index.
- Write "- None" for a list section with nothing to report.`

// BuildPrompt renders the deterministic analysis prompt.
func BuildPrompt(in PromptInput) string {
	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "## PULL REQUEST\n%s\n\n", in.Ref)

	sb.WriteString("## METRICS\n")
	writeMetrics(&sb, in.Metrics)
	sb.WriteString("\n")

	sb.WriteString("## EVIDENCE INDEX\n")
	writeEventIndex(&sb, in.Events)
	writeThreadIndex(&sb, in.Threads)
	sb.WriteString("\n")

	sb.WriteString(budget.Render(in.Bundle))
	sb.WriteString("\n\n")

	sb.WriteString(responseFormat)
	sb.WriteString("\n")
	return sb.String()
}

// RetryPrompt restates the prompt with the reason the previous answer was
// rejected.
func RetryPrompt(base string, failure error) string {
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n## IMPORTANT\n")
	sb.WriteString(describeFailure(failure))
	sb.WriteString(".\nRespond again using every header exactly as written above, starting with ### SUMMARY. ")
	sb.WriteString("Do not add any text before the first header.\n")
	return sb.String()
}

func writeMetrics(sb *strings.Builder, metrics []model.Metric) {
	if len(metrics) == 0 {
		sb.WriteString("- none\n")
		return
	}
	for _, m := range metrics {
		fmt.Fprintf(sb, "- %s: %s\n", m.Name, FormatMetric(m))
	}
}

// FormatMetric renders a metric value for humans and the model.
func FormatMetric(m model.Metric) string {
	if !m.Defined {
		if m.Note != "" {
			return "n/a (" + m.Note + ")"
		}
		return "n/a"
	}
	switch m.Unit {
	case model.UnitDuration:
		return fmt.Sprintf("%.1f hours", m.Duration().Hours())
	case model.UnitCount:
		return fmt.Sprintf("%d", int(m.Value))
	case model.UnitRatio:
		return fmt.Sprintf("%.0f%%", m.Value*100)
	case model.UnitRate:
		return fmt.Sprintf("%.1f per day", m.Value)
	default:
		return fmt.Sprintf("%.2f", m.Value)
	}
}

func writeEventIndex(sb *strings.Builder, events []model.TimelineEvent) {
	shown := events
	if len(shown) > maxIndexedEvents {
		shown = shown[:maxIndexedEvents]
	}
	for _, ev := range shown {
		fmt.Fprintf(sb, "%s %s %s %s", ev.ID, model.FormatTimestamp(ev.Timestamp), ev.Kind, ev.Actor)
		if d := eventDetail(ev); d != "" {
			fmt.Fprintf(sb, ": %s", d)
		}
		sb.WriteByte('\n')
	}
	if omitted := len(events) - len(shown); omitted > 0 {
		fmt.Fprintf(sb, "(%d more events omitted)\n", omitted)
	}
}

func eventDetail(ev model.TimelineEvent) string {
	switch p := ev.Payload.(type) {
	case model.CommitPayload:
		return clip(firstLine(p.Message))
	case model.ReviewPayload:
		return p.State
	case model.CommentPayload:
		return clip(firstLine(p.Body))
	case model.StatusPayload:
		if p.Detail != "" {
			return p.Status + " " + p.Detail
		}
		return p.Status
	default:
		return ""
	}
}

func writeThreadIndex(sb *strings.Builder, threads []model.ReviewThread) {
	shown := threads
	if len(shown) > maxIndexedThreads {
		shown = shown[:maxIndexedThreads]
	}
	for _, t := range shown {
		anchor := "general"
		if t.FilePath != "" {
			anchor = fmt.Sprintf("%s:%d", t.FilePath, t.AnchorLine)
		}
		fmt.Fprintf(sb, "%s %s %s %s (%d exchanges, %s)", t.ID, anchor, t.Type, t.Resolution,
			len(t.Exchanges), strings.Join(t.Participants(), ", "))
		if t.Topic != "" {
			fmt.Fprintf(sb, ": %s", clip(t.Topic))
		}
		sb.WriteByte('\n')
	}
	if omitted := len(threads) - len(shown); omitted > 0 {
		fmt.Fprintf(sb, "(%d more threads omitted)\n", omitted)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxIndexText {
		return string(r[:maxIndexText]) + "..."
	}
	return s
}
