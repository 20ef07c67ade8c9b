package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spiffcs/prlens/internal/log"
	"github.com/spiffcs/prlens/internal/model"
	"github.com/spiffcs/prlens/internal/report"
	"golang.org/x/sync/errgroup"
)

// Failure is the structured record of a PR that produced no report.
type Failure struct {
	Kind   model.ErrorKind `json:"kind"`
	Reason string          `json:"reason"`
}

// Outcome is the result for one PR of a batch. Exactly one of Report and
// Failure is set.
type Outcome struct {
	Ref     model.PRRef
	Report  *report.AnalysisReport
	Failure *Failure
}

// OK reports whether the PR produced a report.
func (o Outcome) OK() bool {
	return o.Report != nil
}

// Stage is a batch progress milestone for one PR.
type Stage string

const (
	StageStarted   Stage = "started"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
	StageCancelled Stage = "cancelled"
)

// Progress is emitted as PRs start and finish.
type Progress struct {
	Ref       model.PRRef
	Stage     Stage
	Completed int
	Total     int
	Degraded  bool
	Err       error
}

// ProgressFunc receives progress updates. It is called from worker
// goroutines and must be safe for concurrent use.
type ProgressFunc func(Progress)

// Result is a finished batch run.
type Result struct {
	RunID     string
	Outcomes  []Outcome
	Cancelled bool
}

// Reports returns the successful reports in input order.
func (r Result) Reports() []*report.AnalysisReport {
	var out []*report.AnalysisReport
	for _, o := range r.Outcomes {
		if o.Report != nil {
			out = append(out, o.Report)
		}
	}
	return out
}

// Failed returns the number of PRs without a report.
func (r Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failure != nil {
			n++
		}
	}
	return n
}

// Compare aggregates the successful reports.
func (r Result) Compare() report.Comparison {
	return report.Aggregate(r.Reports())
}

// Batch analyzes many PRs over a bounded worker pool.
type Batch struct {
	runner     *Runner
	workers    int
	onProgress ProgressFunc
	newRunID   func() string
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithWorkers overrides the configured worker count.
func WithWorkers(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) BatchOption {
	return func(b *Batch) {
		b.onProgress = fn
	}
}

// WithRunID overrides batch run id generation.
func WithRunID(f func() string) BatchOption {
	return func(b *Batch) {
		b.newRunID = f
	}
}

// NewBatch creates a Batch over runner.
func NewBatch(runner *Runner, opts ...BatchOption) *Batch {
	b := &Batch{
		runner:   runner,
		workers:  runner.settings.Batch.Workers,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run analyzes refs and returns one outcome per ref, in input order.
//
// A failing PR never stops its siblings. Cancelling ctx stops new PRs
// from starting; they get cancelled failure records. PRs already running
// finish on a context detached from the cancellation, so their reports
// stay valid.
func (b *Batch) Run(ctx context.Context, refs []model.PRRef) Result {
	res := Result{
		RunID:    b.newRunID(),
		Outcomes: make([]Outcome, len(refs)),
	}
	total := len(refs)
	var completed atomic.Int64

	log.Info("starting batch", "run", res.RunID, "prs", total, "workers", b.workers)

	// a plain Group: one PR's error must not cancel the others
	g := new(errgroup.Group)
	g.SetLimit(b.workers)

	for i, ref := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				res.Outcomes[i] = Outcome{Ref: ref, Failure: &Failure{
					Kind:   model.ErrKindCancelled,
					Reason: "batch cancelled before analysis started",
				}}
				b.emit(Progress{Ref: ref, Stage: StageCancelled, Completed: int(completed.Add(1)), Total: total, Err: err})
				return nil
			}

			b.emit(Progress{Ref: ref, Stage: StageStarted, Completed: int(completed.Load()), Total: total})

			rep, err := b.runner.Analyze(context.WithoutCancel(ctx), ref)
			if err != nil {
				kind := model.KindOf(err)
				log.Warn("analysis failed", "pr", ref.String(), "kind", kind, "error", err)
				res.Outcomes[i] = Outcome{Ref: ref, Failure: &Failure{Kind: kind, Reason: err.Error()}}
				b.emit(Progress{Ref: ref, Stage: StageFailed, Completed: int(completed.Add(1)), Total: total, Err: err})
				return nil
			}

			log.Info("analyzed pull request", "pr", ref.String(), "insights", len(rep.Insights()), "degraded", rep.Degraded())
			res.Outcomes[i] = Outcome{Ref: ref, Report: rep}
			b.emit(Progress{Ref: ref, Stage: StageDone, Completed: int(completed.Add(1)), Total: total, Degraded: rep.Degraded()})
			return nil
		})
	}
	_ = g.Wait()

	res.Cancelled = ctx.Err() != nil
	log.Info("batch finished", "run", res.RunID, "prs", total, "failed", res.Failed(), "cancelled", res.Cancelled)
	return res
}

func (b *Batch) emit(p Progress) {
	if b.onProgress != nil {
		b.onProgress(p)
	}
}
