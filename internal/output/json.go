package output

import (
	"encoding/json"
	"io"

	"github.com/spiffcs/prlens/internal/model"
	"github.com/spiffcs/prlens/internal/pipeline"
	"github.com/spiffcs/prlens/internal/report"
)

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	Pretty bool
}

// FormatReport outputs a single report as JSON
func (f *JSONFormatter) FormatReport(r *report.AnalysisReport, w io.Writer) error {
	return f.encode(r, w)
}

// BatchFailure is the serialized form of a PR that produced no report.
type BatchFailure struct {
	PR     string          `json:"pr"`
	Kind   model.ErrorKind `json:"kind"`
	Reason string          `json:"reason"`
}

// BatchOutput wraps a batch run for JSON output
type BatchOutput struct {
	RunID      string                   `json:"runId"`
	Cancelled  bool                     `json:"cancelled"`
	Reports    []*report.AnalysisReport `json:"reports"`
	Failures   []BatchFailure           `json:"failures"`
	Comparison report.Comparison        `json:"comparison"`
}

// NewBatchOutput builds the serialized form of a batch result.
func NewBatchOutput(res pipeline.Result) BatchOutput {
	out := BatchOutput{
		RunID:      res.RunID,
		Cancelled:  res.Cancelled,
		Reports:    res.Reports(),
		Failures:   []BatchFailure{},
		Comparison: res.Compare(),
	}
	if out.Reports == nil {
		out.Reports = []*report.AnalysisReport{}
	}
	for _, o := range res.Outcomes {
		if o.Failure != nil {
			out.Failures = append(out.Failures, BatchFailure{
				PR:     o.Ref.String(),
				Kind:   o.Failure.Kind,
				Reason: o.Failure.Reason,
			})
		}
	}
	return out
}

// FormatBatch outputs the reports, failures and comparison together
func (f *JSONFormatter) FormatBatch(res pipeline.Result, w io.Writer) error {
	return f.encode(NewBatchOutput(res), w)
}

func (f *JSONFormatter) encode(v any, w io.Writer) error {
	encoder := json.NewEncoder(w)
	if f.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}
