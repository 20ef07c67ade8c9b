package insight

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spiffcs/prlens/internal/model"
)

// scriptedCompleter returns canned responses in order and records prompts.
type scriptedCompleter struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string, _ CallOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "unstructured", nil
}

func samplePromptInput() PromptInput {
	return PromptInput{
		Ref: model.PRRef{Owner: "o", Repo: "r", Number: 1},
		Bundle: model.ContextBundle{
			PRSummary:   "Title: cache ttl",
			DiffExcerpt: "--- cache.go (modified, +1/-0)",
		},
		Metrics: []model.Metric{
			model.DurationMetric("time_to_first_review", 90*time.Minute),
			model.UndefinedMetric("time_to_merge", model.UnitDuration, "not merged"),
		},
		Events: []model.TimelineEvent{
			{ID: "E1", Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Kind: model.KindCommit, Actor: "alice", Payload: model.CommitPayload{SHA: "a1", Message: "add ttl\n\nbody"}},
		},
		Threads: []model.ReviewThread{
			{ID: "T1", FilePath: "cache.go", AnchorLine: 4, Type: model.ThreadQuestion, Resolution: model.ResolutionResolved,
				Exchanges: []model.Exchange{{Actor: "bob", Text: "why?"}}, Topic: "why?"},
		},
	}
}

const goodResponse = "### SUMMARY\nAdds a TTL.\n### DEVELOPER MISTAKES\n- [low] Missing test [T1]\n### SUGGESTIONS\n- Add docs [E1]"

func TestSynthesizeFirstAttempt(t *testing.T) {
	c := &scriptedCompleter{responses: []string{goodResponse}}
	s := NewSynthesizer(c, Options{})

	res, err := s.Synthesize(context.Background(), samplePromptInput())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Attempts != 1 || res.Degraded || len(res.Warnings) != 0 {
		t.Errorf("result = %+v, want a clean first attempt", res)
	}
	if len(res.Insights) != 2 {
		t.Fatalf("got %d insights, want 2", len(res.Insights))
	}
	if res.Insights[0].EvidenceRefs[0] != "T1" {
		t.Errorf("evidence = %v, want T1", res.Insights[0].EvidenceRefs)
	}
}

func TestSynthesizeRetriesWithStricterPrompt(t *testing.T) {
	c := &scriptedCompleter{responses: []string{"just vibes", goodResponse}}
	s := NewSynthesizer(c, Options{MaxAttempts: 3})

	res, err := s.Synthesize(context.Background(), samplePromptInput())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Attempts != 2 || res.Degraded {
		t.Errorf("Attempts = %d, Degraded = %v; want 2, false", res.Attempts, res.Degraded)
	}
	if len(c.prompts) != 2 {
		t.Fatalf("model called %d times, want 2", len(c.prompts))
	}
	if !strings.HasPrefix(c.prompts[1], c.prompts[0]) {
		t.Error("retry prompt should extend the original prompt")
	}
	if !strings.Contains(c.prompts[1], "SUMMARY, DEVELOPER MISTAKES, SUGGESTIONS") {
		t.Errorf("retry prompt does not name the missing sections:\n%s", c.prompts[1][len(c.prompts[0]):])
	}
}

func TestSynthesizeDegradesAfterMaxAttempts(t *testing.T) {
	c := &scriptedCompleter{responses: []string{"a", "b", "c", goodResponse}}
	s := NewSynthesizer(c, Options{MaxAttempts: 3})

	res, err := s.Synthesize(context.Background(), samplePromptInput())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(c.prompts) != 3 {
		t.Errorf("model called %d times, want exactly 3", len(c.prompts))
	}
	if !res.Degraded || len(res.Insights) != 0 {
		t.Errorf("result = %+v, want degraded with no insights", res)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != model.ErrKindSynthesisDegraded {
		t.Errorf("warnings = %+v, want one degraded warning", res.Warnings)
	}
}

func TestSynthesizeRetriesTimeouts(t *testing.T) {
	var calls atomic.Int32
	c := CompleterFunc(func(ctx context.Context, _ string, _ CallOptions) (string, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return goodResponse, nil
	})
	s := NewSynthesizer(c, Options{MaxAttempts: 3, Timeout: 10 * time.Millisecond})

	res, err := s.Synthesize(context.Background(), samplePromptInput())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Degraded || res.Attempts != 2 {
		t.Errorf("result = %+v, want success on attempt 2", res)
	}
}

func TestSynthesizeTimeoutDegradesAfterMaxAttempts(t *testing.T) {
	slow := CompleterFunc(func(ctx context.Context, _ string, _ CallOptions) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	s := NewSynthesizer(slow, Options{MaxAttempts: 3, Timeout: 10 * time.Millisecond})

	res, err := s.Synthesize(context.Background(), samplePromptInput())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !res.Degraded || res.Attempts != 3 {
		t.Errorf("result = %+v, want degraded after 3 attempts", res)
	}
	if !strings.Contains(res.Warnings[0].Reason, "deadline") {
		t.Errorf("warning reason = %q, want timeout cause", res.Warnings[0].Reason)
	}
}

func TestSynthesizeTransportErrorsRetry(t *testing.T) {
	c := &scriptedCompleter{
		errs:      []error{errors.New("connection refused")},
		responses: []string{"", goodResponse},
	}
	s := NewSynthesizer(c, Options{})

	res, err := s.Synthesize(context.Background(), samplePromptInput())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Attempts != 2 || res.Degraded {
		t.Errorf("result = %+v, want success on attempt 2", res)
	}
}

func TestSynthesizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := CompleterFunc(func(ctx context.Context, _ string, _ CallOptions) (string, error) {
		cancel()
		return "", ctx.Err()
	})

	_, err := NewSynthesizer(c, Options{}).Synthesize(ctx, samplePromptInput())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Synthesize() error = %v, want context.Canceled", err)
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	in := samplePromptInput()
	a, b := BuildPrompt(in), BuildPrompt(in)
	if a != b {
		t.Error("BuildPrompt is not deterministic")
	}
	for _, want := range []string{
		"E1 2024-03-01T10:00:00Z commit alice: add ttl\n",
		"T1 cache.go:4 question resolved (1 exchanges, bob): why?\n",
		"- time_to_first_review: 1.5 hours\n",
		"- time_to_merge: n/a (not merged)\n",
		"## PR SUMMARY\nTitle: cache ttl",
		"### OVERALL ASSESSMENT",
	} {
		if !strings.Contains(a, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSynthesizeMaxInFlight(t *testing.T) {
	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	inner := CompleterFunc(func(ctx context.Context, _ string, _ CallOptions) (string, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		return goodResponse, nil
	})

	s := NewSynthesizer(inner, Options{MaxInFlight: 2})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Synthesize(context.Background(), samplePromptInput())
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestSynthesizeSlotWaitIsNotTimedOut(t *testing.T) {
	slowButInTime := CompleterFunc(func(ctx context.Context, _ string, _ CallOptions) (string, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			return goodResponse, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	s := NewSynthesizer(slowButInTime, Options{MaxAttempts: 1, MaxInFlight: 1, Timeout: 150 * time.Millisecond})

	results := make([]Result, 3)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Synthesize(context.Background(), samplePromptInput())
			if err != nil {
				t.Errorf("Synthesize() error = %v", err)
			}
			results[i] = res
		}()
	}
	wg.Wait()

	for i, res := range results {
		if res.Degraded {
			t.Errorf("call %d degraded: %+v", i, res.Warnings)
		}
	}
}
