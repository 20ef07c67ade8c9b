// Package pipeline runs the per-PR analysis stages and fans a batch of PRs
// out over a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/spiffcs/prlens/config"
	"github.com/spiffcs/prlens/internal/budget"
	"github.com/spiffcs/prlens/internal/conversation"
	"github.com/spiffcs/prlens/internal/insight"
	"github.com/spiffcs/prlens/internal/log"
	"github.com/spiffcs/prlens/internal/metrics"
	"github.com/spiffcs/prlens/internal/model"
	"github.com/spiffcs/prlens/internal/report"
	"github.com/spiffcs/prlens/internal/timeline"
)

// Source fetches raw pull request data. Implementations must return
// *model.NotFoundError for unknown PRs and *model.FetchError for transient
// failures so the retry policy can tell them apart.
type Source interface {
	FetchPR(ctx context.Context, ref model.PRRef) (model.RawPR, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, ref model.PRRef) (model.RawPR, error)

// FetchPR calls f.
func (f SourceFunc) FetchPR(ctx context.Context, ref model.PRRef) (model.RawPR, error) {
	return f(ctx, ref)
}

// Runner analyzes one PR at a time. It holds no per-run state, so one
// Runner may serve many concurrent Analyze calls.
type Runner struct {
	settings  config.Settings
	source    Source
	synth     *insight.Synthesizer
	assembler *report.Assembler
	counter   budget.Counter
	modelName string
}

// Option configures a Runner.
type Option func(*Runner)

// WithCompleter enables insight synthesis over c. Without a completer the
// synthesis stage is skipped and reports are marked degraded.
func WithCompleter(c insight.Completer, name string) Option {
	return func(r *Runner) {
		if c == nil {
			return
		}
		r.synth = insight.NewSynthesizer(c, insight.Options{
			MaxAttempts: r.settings.Model.MaxAttempts,
			MaxInFlight: r.settings.Model.MaxInFlight,
			Timeout:     r.settings.Model.Timeout,
			Temperature: r.settings.Model.Temperature,
			MaxTokens:   r.settings.Model.MaxTokens,
		})
		r.modelName = name
	}
}

// WithAssembler overrides the report assembler (ids and clock).
func WithAssembler(a *report.Assembler) Option {
	return func(r *Runner) {
		r.assembler = a
	}
}

// WithCounter overrides the token counter used for the context budget.
func WithCounter(c budget.Counter) Option {
	return func(r *Runner) {
		r.counter = c
	}
}

// NewRunner validates settings and creates a Runner. A settings problem is
// returned as *model.ConfigError before any PR is touched.
func NewRunner(settings config.Settings, source Source, opts ...Option) (*Runner, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, &model.ConfigError{Field: "source", Reason: "no pull request source configured"}
	}

	r := &Runner{
		settings:  settings,
		source:    source,
		assembler: report.NewAssembler(),
		counter:   budget.CharCounter{CharsPerToken: settings.Budget.CharsPerToken},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Settings returns the run configuration.
func (r *Runner) Settings() config.Settings {
	return r.settings
}

// Analyze runs every stage for one PR. The only blocking calls are the
// fetch and the model; everything else is in-memory.
func (r *Runner) Analyze(ctx context.Context, ref model.PRRef) (*report.AnalysisReport, error) {
	logger := log.With("pr", ref.String())

	start := time.Now()
	raw, err := r.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if raw.Ref.IsZero() {
		raw.Ref = ref
	}
	logger.Debug("fetched pull request",
		"records", len(raw.Records),
		"comments", len(raw.Comments),
		"files", len(raw.Files),
		"elapsed", time.Since(start).Round(time.Millisecond))

	parts, err := r.derive(raw)
	if err != nil {
		return nil, err
	}
	logger.Debug("derived analysis",
		"events", len(parts.Timeline.Events),
		"threads", len(parts.Threads),
		"malformed", len(parts.Timeline.Malformed),
		"context_tokens", parts.Bundle.Tokens)

	if r.synth != nil {
		start = time.Now()
		res, err := r.synth.Synthesize(ctx, insight.PromptInput{
			Ref:     raw.Ref,
			Bundle:  parts.Bundle,
			Metrics: parts.Metrics.Metrics,
			Events:  parts.Timeline.Events,
			Threads: parts.Threads,
		})
		if err != nil {
			return nil, err
		}
		logger.Debug("synthesized insights",
			"insights", len(res.Insights),
			"attempts", res.Attempts,
			"degraded", res.Degraded,
			"elapsed", time.Since(start).Round(time.Millisecond))
		parts.Synthesis = &res
	}

	return r.assembler.Assemble(parts)
}

// derive runs the pure stages: timeline, conversation, metrics, budget.
func (r *Runner) derive(raw model.RawPR) (report.Parts, error) {
	s := r.settings
	bots := conversation.NewBotSet(s.Bots)

	tl := timeline.Normalize(raw.Records)

	threads := conversation.Reconstruct(raw.Comments, tl.Events, conversation.Options{
		Author:       raw.Author,
		Bots:         bots,
		AnchorWindow: s.Threads.AnchorWindow,
	})

	m := metrics.Compute(metrics.Input{
		CreatedAt: raw.CreatedAt,
		Author:    raw.Author,
		Events:    tl.Events,
		Threads:   threads,
		Files:     raw.Files,
		Bots:      bots,
		Sizes: metrics.SizeThresholds{
			XS: s.Metrics.SizeXS,
			S:  s.Metrics.SizeS,
			M:  s.Metrics.SizeM,
			L:  s.Metrics.SizeL,
		},
		PeriodGap: s.Metrics.ActivityGap,
	})

	in := budget.Input{
		Summary: budget.Summary(raw, m.Size),
		Diff:    budget.DiffExcerpt(raw.Files, s.Budget.MaxDiffFiles),
	}
	if s.RepoContext.Enabled {
		in.RepoContext = budget.RepoContext(raw.RepoFiles)
	}
	bundle, err := budget.Fit(in, s.Budget.Tokens, r.counter)
	if err != nil {
		return report.Parts{}, err
	}

	return report.Parts{
		PR:           raw,
		Timeline:     &tl,
		Threads:      threads,
		Conversation: conversation.Summarize(threads),
		Metrics:      &m,
		Bundle:       bundle,
		Model:        r.modelName,
	}, nil
}

// fetch retries transient source failures with exponential backoff.
// Not-found and other permanent errors return on the first attempt.
func (r *Runner) fetch(ctx context.Context, ref model.PRRef) (model.RawPR, error) {
	g := r.settings.GitHub

	var raw model.RawPR
	err := retry.Do(
		func() error {
			var err error
			raw, err = r.source.FetchPR(ctx, ref)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(g.RetryAttempts)),
		retry.Delay(g.RetryInitialDelay),
		retry.MaxDelay(g.RetryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Debug("retrying fetch", "pr", ref.String(), "attempt", n+1, "max_attempts", g.RetryAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(model.IsRetryable),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return model.RawPR{}, errors.Join(ctxErr, err)
		}
		return model.RawPR{}, err
	}
	return raw, nil
}
