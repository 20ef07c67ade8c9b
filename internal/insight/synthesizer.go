package insight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spiffcs/prlens/internal/log"
	"github.com/spiffcs/prlens/internal/model"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxAttempts is the total number of model calls per PR.
const DefaultMaxAttempts = 3

// Options configures a Synthesizer.
type Options struct {
	// MaxAttempts is the total number of model calls, including the first.
	MaxAttempts int
	// Timeout bounds each model call. Zero means no per-call deadline.
	// Time spent waiting for a MaxInFlight slot is not counted.
	Timeout time.Duration
	// MaxInFlight caps concurrent model calls across every Synthesize
	// running on this Synthesizer. Zero means no cap.
	MaxInFlight int
	Temperature float64
	MaxTokens   int
}

// Synthesizer prompts the model and parses its answer with bounded retry.
type Synthesizer struct {
	completer Completer
	opts      Options
	sem       *semaphore.Weighted
}

// NewSynthesizer creates a Synthesizer over the given model.
func NewSynthesizer(c Completer, opts Options) *Synthesizer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	s := &Synthesizer{completer: c, opts: opts}
	if opts.MaxInFlight > 0 {
		s.sem = semaphore.NewWeighted(int64(opts.MaxInFlight))
	}
	return s
}

// Result is the synthesizer's output for one PR.
type Result struct {
	Insights  []model.Insight
	Narrative model.Narrative
	Warnings  []model.Warning
	Attempts  int
	Degraded  bool
}

// Synthesize runs the prompt/parse loop. Parse failures are retried with a
// stricter prompt, model errors and timeouts with the same prompt. After
// MaxAttempts the result is degraded (no insights, one warning) rather than
// an error. Only context cancellation is returned as an error.
func (s *Synthesizer) Synthesize(ctx context.Context, in PromptInput) (Result, error) {
	base := BuildPrompt(in)
	known := NewRefSet(in.Events, in.Threads)
	callOpts := CallOptions{Temperature: s.opts.Temperature, MaxTokens: s.opts.MaxTokens}

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		prompt := base
		var prev *model.SynthesisParseError
		if errors.As(lastErr, &prev) {
			prompt = RetryPrompt(base, lastErr)
		}

		start := time.Now()
		text, err := s.complete(ctx, prompt, callOpts)
		log.Debug("model call finished", "pr", in.Ref.String(), "attempt", attempt, "duration", time.Since(start))

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, fmt.Errorf("synthesis for %s: %w", in.Ref, ctxErr)
			}
			lastErr = err
			log.Debug("model call failed", "pr", in.Ref.String(), "attempt", attempt, "error", err)
			continue
		}

		parsed, err := Parse(text, known)
		if err != nil {
			var pe *model.SynthesisParseError
			if errors.As(err, &pe) {
				pe.Attempt = attempt
			}
			lastErr = err
			log.Debug("model response rejected", "pr", in.Ref.String(), "attempt", attempt, "error", err)
			continue
		}

		res := Result{
			Insights:  parsed.Insights,
			Narrative: parsed.Narrative,
			Attempts:  attempt,
		}
		if parsed.UnknownRefs > 0 {
			log.Debug("dropped unknown evidence references", "pr", in.Ref.String(), "count", parsed.UnknownRefs)
		}
		return res, nil
	}

	return degraded(s.opts.MaxAttempts, lastErr), nil
}

// complete waits for a model slot, then makes one call under the per-call
// deadline and maps a deadline overrun to SynthesisTimeoutError.
func (s *Synthesizer) complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("waiting for model slot: %w", err)
		}
		defer s.sem.Release(1)
	}

	callCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	text, err := s.completer.Complete(callCtx, prompt, opts)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return "", &model.SynthesisTimeoutError{Timeout: s.opts.Timeout, Err: err}
		}
		return "", err
	}
	return text, nil
}

func degraded(attempts int, cause error) Result {
	reason := fmt.Sprintf("no usable model response after %d attempt(s)", attempts)
	if cause != nil {
		reason += ": " + cause.Error()
	}
	return Result{
		Attempts: attempts,
		Degraded: true,
		Warnings: []model.Warning{{Kind: model.ErrKindSynthesisDegraded, Reason: reason}},
	}
}
