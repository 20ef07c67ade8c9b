// Package report assembles the immutable per-PR analysis report and the
// cross-PR aggregate.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spiffcs/prlens/internal/insight"
	"github.com/spiffcs/prlens/internal/metrics"
	"github.com/spiffcs/prlens/internal/model"
	"github.com/spiffcs/prlens/internal/timeline"
)

// ErrIncomplete is returned when a required stage result is missing.
var ErrIncomplete = errors.New("report: required stage incomplete")

// Provenance records where a report came from.
type Provenance struct {
	ReportID          string      `json:"reportId"`
	PR                model.PRRef `json:"pr"`
	Title             string      `json:"title"`
	Author            string      `json:"author"`
	URL               string      `json:"url,omitempty"`
	AnalyzedAt        time.Time   `json:"analyzedAt"`
	Model             string      `json:"model,omitempty"`
	DroppedRecords    int         `json:"droppedRecords"`
	MalformedRecords  int         `json:"malformedRecords"`
	DuplicateRecords  int         `json:"duplicateRecords"`
	SynthesisAttempts int         `json:"synthesisAttempts"`
}

// AnalysisReport is the immutable result for one PR. It can only be built
// by an Assembler; accessors return copies.
type AnalysisReport struct {
	provenance   Provenance
	timeline     []model.TimelineEvent
	threads      []model.ReviewThread
	conversation model.ConversationSummary
	metrics      []model.Metric
	latencies    []model.Metric
	files        []model.FileRisk
	size         model.PRSize
	periods      []model.ActivityPeriod
	bundle       model.ContextBundle
	insights     []model.Insight
	narrative    model.Narrative
	warnings     []model.Warning
	degraded     bool
}

// Parts are the stage outputs an Assembler combines.
type Parts struct {
	PR           model.RawPR
	Timeline     *timeline.Result
	Threads      []model.ReviewThread
	Conversation model.ConversationSummary
	Metrics      *metrics.Result
	Bundle       model.ContextBundle
	// Synthesis may be nil when no model was consulted; the report is then
	// marked degraded.
	Synthesis *insight.Result
	Model     string
}

// Assembler builds reports. The id generator and clock are injectable.
type Assembler struct {
	newID func() string
	now   func() time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithIDFunc overrides report id generation.
func WithIDFunc(f func() string) Option {
	return func(a *Assembler) { a.newID = f }
}

// WithClock overrides the analysis timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// NewAssembler creates an Assembler with random UUID ids and the wall clock.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		newID: func() string { return uuid.NewString() },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble combines stage outputs into a report. The timeline and metrics
// stages are required; a degraded or missing synthesis is not.
func (a *Assembler) Assemble(p Parts) (*AnalysisReport, error) {
	if p.Timeline == nil {
		return nil, fmt.Errorf("%w: timeline", ErrIncomplete)
	}
	if p.Metrics == nil {
		return nil, fmt.Errorf("%w: metrics", ErrIncomplete)
	}
	if p.PR.Ref.IsZero() {
		return nil, fmt.Errorf("%w: pull request reference", ErrIncomplete)
	}

	r := &AnalysisReport{
		provenance: Provenance{
			ReportID:         a.newID(),
			PR:               p.PR.Ref,
			Title:            p.PR.Title,
			Author:           p.PR.Author,
			URL:              p.PR.HTMLURL,
			AnalyzedAt:       a.now().UTC(),
			Model:            p.Model,
			DroppedRecords:   p.Timeline.Dropped,
			MalformedRecords: len(p.Timeline.Malformed),
			DuplicateRecords: p.Timeline.Duplicates,
		},
		timeline:     copyEvents(p.Timeline.Events),
		threads:      copyThreads(p.Threads),
		conversation: copyConversation(p.Conversation),
		metrics:      copySlice(p.Metrics.Metrics),
		latencies:    copySlice(p.Metrics.Latencies),
		files:        copySlice(p.Metrics.Files),
		size:         p.Metrics.Size,
		periods:      copySlice(p.Metrics.Periods),
		bundle:       copyBundle(p.Bundle),
	}

	if n := len(p.Timeline.Malformed); n > 0 {
		r.warnings = append(r.warnings, model.Warning{
			Kind:   model.ErrKindMalformedEvent,
			Reason: fmt.Sprintf("%d malformed record(s) skipped; first: %v", n, p.Timeline.Malformed[0]),
		})
	}
	if p.Timeline.Dropped > 0 {
		r.warnings = append(r.warnings, model.Warning{
			Kind:   model.ErrKindMalformedEvent,
			Reason: fmt.Sprintf("%d record(s) without a usable timestamp dropped", p.Timeline.Dropped),
		})
	}

	if p.Synthesis == nil {
		r.degraded = true
		r.warnings = append(r.warnings, model.Warning{
			Kind:   model.ErrKindSynthesisDegraded,
			Reason: "synthesis was not run",
		})
		return r, nil
	}

	r.provenance.SynthesisAttempts = p.Synthesis.Attempts
	r.insights = copyInsights(p.Synthesis.Insights)
	r.narrative = p.Synthesis.Narrative
	r.degraded = p.Synthesis.Degraded
	r.warnings = append(r.warnings, p.Synthesis.Warnings...)
	return r, nil
}

// ID returns the report identifier.
func (r *AnalysisReport) ID() string { return r.provenance.ReportID }

// Ref returns the analyzed pull request.
func (r *AnalysisReport) Ref() model.PRRef { return r.provenance.PR }

// Provenance returns the report's provenance.
func (r *AnalysisReport) Provenance() Provenance { return r.provenance }

// Timeline returns a copy of the normalized timeline.
func (r *AnalysisReport) Timeline() []model.TimelineEvent { return copyEvents(r.timeline) }

// Threads returns a copy of the reconstructed threads.
func (r *AnalysisReport) Threads() []model.ReviewThread { return copyThreads(r.threads) }

// Conversation returns the thread rollup.
func (r *AnalysisReport) Conversation() model.ConversationSummary {
	return copyConversation(r.conversation)
}

// Metrics returns a copy of the PR-level metrics.
func (r *AnalysisReport) Metrics() []model.Metric { return copySlice(r.metrics) }

// Metric looks up a PR-level metric by name.
func (r *AnalysisReport) Metric(name string) (model.Metric, bool) {
	for _, m := range r.metrics {
		if m.Name == name {
			return m, true
		}
	}
	return model.Metric{}, false
}

// Latencies returns a copy of the per-thread response latencies.
func (r *AnalysisReport) Latencies() []model.Metric { return copySlice(r.latencies) }

// Files returns a copy of the per-file risk assessment.
func (r *AnalysisReport) Files() []model.FileRisk { return copySlice(r.files) }

// Size returns the PR size class.
func (r *AnalysisReport) Size() model.PRSize { return r.size }

// Periods returns a copy of the activity periods.
func (r *AnalysisReport) Periods() []model.ActivityPeriod { return copySlice(r.periods) }

// Context returns a copy of the context bundle sent to the model.
func (r *AnalysisReport) Context() model.ContextBundle { return copyBundle(r.bundle) }

// Insights returns a copy of the parsed insights.
func (r *AnalysisReport) Insights() []model.Insight { return copyInsights(r.insights) }

// Narrative returns the narrative sections.
func (r *AnalysisReport) Narrative() model.Narrative { return r.narrative }

// Warnings returns a copy of the non-fatal warnings.
func (r *AnalysisReport) Warnings() []model.Warning { return copySlice(r.warnings) }

// Degraded reports whether synthesis produced no usable result.
func (r *AnalysisReport) Degraded() bool { return r.degraded }

// reportJSON is the serialized form of a report.
type reportJSON struct {
	Provenance   Provenance                `json:"provenance"`
	Degraded     bool                      `json:"degraded"`
	Size         model.PRSize              `json:"size"`
	Metrics      []model.Metric            `json:"metrics"`
	Latencies    []model.Metric            `json:"responseLatencies,omitempty"`
	Narrative    model.Narrative           `json:"narrative"`
	Insights     []model.Insight           `json:"insights"`
	Warnings     []model.Warning           `json:"warnings,omitempty"`
	Conversation model.ConversationSummary `json:"conversation"`
	Threads      []model.ReviewThread      `json:"threads"`
	Files        []model.FileRisk          `json:"files,omitempty"`
	Periods      []model.ActivityPeriod    `json:"activityPeriods,omitempty"`
	Context      model.ContextBundle       `json:"context"`
	Timeline     []model.TimelineEvent     `json:"timeline"`
}

// MarshalJSON implements json.Marshaler.
func (r *AnalysisReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		Provenance:   r.provenance,
		Degraded:     r.degraded,
		Size:         r.size,
		Metrics:      nonNil(r.metrics),
		Latencies:    r.latencies,
		Narrative:    r.narrative,
		Insights:     nonNil(r.insights),
		Warnings:     r.warnings,
		Conversation: r.conversation,
		Threads:      nonNil(r.threads),
		Files:        r.files,
		Periods:      r.periods,
		Context:      r.bundle,
		Timeline:     nonNil(r.timeline),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func copySlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func copyEvents(events []model.TimelineEvent) []model.TimelineEvent {
	// payloads are immutable value types, a shallow copy suffices
	return copySlice(events)
}

func copyThreads(threads []model.ReviewThread) []model.ReviewThread {
	out := copySlice(threads)
	for i := range out {
		out[i].Exchanges = copySlice(out[i].Exchanges)
	}
	return out
}

func copyConversation(c model.ConversationSummary) model.ConversationSummary {
	c.Reviewers = copySlice(c.Reviewers)
	return c
}

func copyInsights(insights []model.Insight) []model.Insight {
	out := copySlice(insights)
	for i := range out {
		out[i].EvidenceRefs = copySlice(out[i].EvidenceRefs)
	}
	return out
}

func copyBundle(b model.ContextBundle) model.ContextBundle {
	b.IncludedSections = copySlice(b.IncludedSections)
	return b
}
