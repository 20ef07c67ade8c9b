package model

import "time"

// InsightCategory classifies a model-produced insight.
type InsightCategory string

const (
	CategoryMistake        InsightCategory = "mistake"
	CategoryRecommendation InsightCategory = "recommendation"
	CategoryObservation    InsightCategory = "observation"
)

// Severity is an optional rating attached to an insight.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps free text onto a known severity.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), true
	}
	return SeverityNone, false
}

// Insight is a typed observation parsed from a model response.
// EvidenceRefs holds timeline event (E*) and thread (T*) identifiers.
type Insight struct {
	Category     InsightCategory `json:"category"`
	Severity     Severity        `json:"severity,omitempty"`
	Text         string          `json:"text"`
	EvidenceRefs []string        `json:"evidenceRefs,omitempty"`
	Source       string          `json:"source,omitempty"`
}

// Narrative holds the free-text sections of a model response.
type Narrative struct {
	Summary           string `json:"summary,omitempty"`
	CommentAnalysis   string `json:"commentAnalysis,omitempty"`
	OverallAssessment string `json:"overallAssessment,omitempty"`
}

// IsEmpty reports whether no narrative text was produced.
func (n Narrative) IsEmpty() bool {
	return n.Summary == "" && n.CommentAnalysis == "" && n.OverallAssessment == ""
}

// MetricUnit is the unit of a metric value.
type MetricUnit string

const (
	UnitDuration MetricUnit = "duration"
	UnitCount    MetricUnit = "count"
	UnitRatio    MetricUnit = "ratio"
	UnitRate     MetricUnit = "per_day"
	UnitScore    MetricUnit = "score"
)

// Metric is a named scalar. Undefined metrics carry Defined=false and a
// zero Value; consumers must check Defined rather than the value.
type Metric struct {
	Name string `json:"name"`
	// Subject scopes a per-item metric, e.g. the thread id of a response latency.
	Subject string     `json:"subject,omitempty"`
	Unit    MetricUnit `json:"unit"`
	Value   float64    `json:"value"`
	Defined bool       `json:"defined"`
	Note    string     `json:"note,omitempty"`
}

// DurationMetric builds a defined duration metric; the value is seconds.
func DurationMetric(name string, d time.Duration) Metric {
	return Metric{Name: name, Unit: UnitDuration, Value: d.Seconds(), Defined: true}
}

// CountMetric builds a defined count metric.
func CountMetric(name string, n int) Metric {
	return Metric{Name: name, Unit: UnitCount, Value: float64(n), Defined: true}
}

// UndefinedMetric builds a metric reported as missing.
func UndefinedMetric(name string, unit MetricUnit, note string) Metric {
	return Metric{Name: name, Unit: unit, Note: note}
}

// Duration returns the value as a duration. Only meaningful for duration units.
func (m Metric) Duration() time.Duration {
	return time.Duration(m.Value * float64(time.Second))
}

// Warning is a non-fatal condition attached to a report.
type Warning struct {
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

// ContextBundle is the size-bounded model input.
type ContextBundle struct {
	PRSummary          string   `json:"prSummary"`
	DiffExcerpt        string   `json:"diffExcerpt,omitempty"`
	RepoContext        string   `json:"repoContext,omitempty"`
	TokenBudget        int      `json:"tokenBudget"`
	Tokens             int      `json:"tokens"`
	IncludedSections   []string `json:"includedSections"`
	DiffTruncated      bool     `json:"diffTruncated,omitempty"`
	RepoContextDropped bool     `json:"repoContextDropped,omitempty"`
}
