// Package metrics derives engineering metrics from a normalized timeline and
// reconstructed review threads. Every function is pure.
package metrics

import (
	"strings"
	"time"

	"github.com/spiffcs/prlens/internal/conversation"
	"github.com/spiffcs/prlens/internal/model"
)

// Metric names.
const (
	TimeToFirstReview    = "time_to_first_review"
	TimeToMerge          = "time_to_merge"
	ReviewRoundCount     = "review_round_count"
	ResponseLatency      = "response_latency"
	MeanResponseLatency  = "mean_response_latency"
	RevisionCount        = "revision_count"
	TotalLifecycle       = "total_lifecycle"
	CommentFrequency     = "comment_frequency"
	ParticipantCount     = "participant_count"
	ThreadResolutionRate = "thread_resolution_rate"
)

// Input is everything the engine needs for one PR.
type Input struct {
	CreatedAt time.Time
	Author    string
	Events    []model.TimelineEvent
	Threads   []model.ReviewThread
	Files     []model.FileChange
	Bots      conversation.BotSet

	// Size thresholds and the activity gap fall back to defaults when zero.
	Sizes     SizeThresholds
	PeriodGap time.Duration
}

// Result holds the computed metrics plus the structured file and activity
// breakdowns.
type Result struct {
	// Metrics holds the PR-level metrics in a fixed order.
	Metrics []model.Metric
	// Latencies holds one response_latency metric per thread, in thread order.
	Latencies []model.Metric
	Files     []model.FileRisk
	Size      model.PRSize
	Periods   []model.ActivityPeriod
}

// Get returns the PR-level metric with the given name.
func (r Result) Get(name string) (model.Metric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return model.Metric{}, false
}

// Compute runs every metric over the input.
func Compute(in Input) Result {
	created := in.CreatedAt.UTC()
	firstReview, hasReview := firstHumanReview(in)

	latencies := ResponseLatencies(in.Threads)
	lifecycle := totalLifecycle(created, in.Events)

	res := Result{
		Metrics: []model.Metric{
			timeToFirstReview(created, firstReview, hasReview),
			timeToMerge(created, in.Events),
			model.CountMetric(ReviewRoundCount, ReviewRounds(in)),
			meanLatency(latencies),
			revisionCount(in.Events, firstReview, hasReview),
			lifecycle,
			commentFrequency(in.Threads, lifecycle),
			model.CountMetric(ParticipantCount, participants(in)),
			resolutionRate(in.Threads),
		},
		Latencies: latencies,
	}

	res.Files = FileRisks(in.Files)
	res.Size = Size(in.Files, in.Sizes)
	res.Periods = ActivityPeriods(in.Events, in.PeriodGap)
	return res
}

// reviewerReview reports whether ev is a review submitted by someone other
// than the PR author or a bot. Replies to inline comments show up as
// reviews by the author and do not count.
func (in Input) reviewerReview(ev model.TimelineEvent) bool {
	if ev.Kind != model.KindReview || in.Bots.IsBot(ev.Actor) {
		return false
	}
	return in.Author == "" || !strings.EqualFold(ev.Actor, in.Author)
}

func firstHumanReview(in Input) (model.TimelineEvent, bool) {
	for _, ev := range in.Events {
		if in.reviewerReview(ev) {
			return ev, true
		}
	}
	return model.TimelineEvent{}, false
}

func timeToFirstReview(created time.Time, review model.TimelineEvent, ok bool) model.Metric {
	if !ok {
		return model.UndefinedMetric(TimeToFirstReview, model.UnitDuration, "no review")
	}
	return sinceCreated(TimeToFirstReview, created, review.Timestamp)
}

func timeToMerge(created time.Time, events []model.TimelineEvent) model.Metric {
	for _, ev := range events {
		if ev.Kind == model.KindMerge {
			return sinceCreated(TimeToMerge, created, ev.Timestamp)
		}
	}
	return model.UndefinedMetric(TimeToMerge, model.UnitDuration, "not merged")
}

func sinceCreated(name string, created, at time.Time) model.Metric {
	if created.IsZero() {
		return model.UndefinedMetric(name, model.UnitDuration, "creation time unknown")
	}
	d := at.UTC().Sub(created)
	if d < 0 {
		return model.UndefinedMetric(name, model.UnitDuration, "event precedes creation")
	}
	return model.DurationMetric(name, d)
}

// ReviewRounds counts reviewer review → subsequent commit transitions.
func ReviewRounds(in Input) int {
	rounds := 0
	pendingReview := false
	for _, ev := range in.Events {
		switch ev.Kind {
		case model.KindReview:
			if in.reviewerReview(ev) {
				pendingReview = true
			}
		case model.KindCommit:
			if pendingReview {
				rounds++
				pendingReview = false
			}
		}
	}
	return rounds
}

// revisionCount counts commits ordered after the first review.
func revisionCount(events []model.TimelineEvent, review model.TimelineEvent, ok bool) model.Metric {
	if !ok {
		return model.CountMetric(RevisionCount, 0)
	}
	n := 0
	for _, ev := range events {
		if ev.Kind == model.KindCommit && after(ev, review) {
			n++
		}
	}
	return model.CountMetric(RevisionCount, n)
}

// after reports whether a is ordered after b in the timeline.
func after(a, b model.TimelineEvent) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.Seq > b.Seq
}

// ResponseLatencies measures, per thread, the time from the first human
// reviewer exchange to the author's next reply.
func ResponseLatencies(threads []model.ReviewThread) []model.Metric {
	out := make([]model.Metric, 0, len(threads))
	for _, t := range threads {
		m := threadLatency(t)
		m.Subject = t.ID
		out = append(out, m)
	}
	return out
}

func threadLatency(t model.ReviewThread) model.Metric {
	var asked time.Time
	for _, ex := range t.Exchanges {
		if ex.Timestamp.IsZero() {
			continue
		}
		switch ex.Role {
		case model.RoleReviewer:
			if asked.IsZero() {
				asked = ex.Timestamp
			}
		case model.RoleAuthor:
			if !asked.IsZero() {
				return model.DurationMetric(ResponseLatency, ex.Timestamp.Sub(asked))
			}
		}
	}
	if asked.IsZero() {
		return model.UndefinedMetric(ResponseLatency, model.UnitDuration, "no reviewer comment")
	}
	return model.UndefinedMetric(ResponseLatency, model.UnitDuration, "no author reply")
}

// meanLatency averages defined latencies only.
func meanLatency(latencies []model.Metric) model.Metric {
	var sum float64
	n := 0
	for _, m := range latencies {
		if m.Defined {
			sum += m.Value
			n++
		}
	}
	if n == 0 {
		return model.UndefinedMetric(MeanResponseLatency, model.UnitDuration, "no answered threads")
	}
	return model.Metric{Name: MeanResponseLatency, Unit: model.UnitDuration, Value: sum / float64(n), Defined: true}
}

// totalLifecycle runs from creation to merge, close, or the last event.
func totalLifecycle(created time.Time, events []model.TimelineEvent) model.Metric {
	if len(events) == 0 {
		return model.UndefinedMetric(TotalLifecycle, model.UnitDuration, "empty timeline")
	}
	end := events[len(events)-1].Timestamp
	for _, ev := range events {
		if ev.Kind == model.KindMerge || ev.Kind == model.KindClose {
			end = ev.Timestamp
			break
		}
	}
	return sinceCreated(TotalLifecycle, created, end)
}

// commentFrequency is human exchanges per day of lifecycle, with a
// one-day floor.
func commentFrequency(threads []model.ReviewThread, lifecycle model.Metric) model.Metric {
	if !lifecycle.Defined {
		return model.UndefinedMetric(CommentFrequency, model.UnitRate, "lifecycle unknown")
	}
	human := 0
	for _, t := range threads {
		for _, ex := range t.Exchanges {
			if ex.Role.IsHuman() {
				human++
			}
		}
	}
	days := lifecycle.Duration().Hours() / 24
	if days < 1 {
		days = 1
	}
	return model.Metric{Name: CommentFrequency, Unit: model.UnitRate, Value: float64(human) / days, Defined: true}
}

// participants counts distinct human actors across events and threads,
// including the author.
func participants(in Input) int {
	seen := make(map[string]bool)
	add := func(actor string) {
		if actor == "" || in.Bots.IsBot(actor) {
			return
		}
		seen[actor] = true
	}
	add(in.Author)
	for _, ev := range in.Events {
		add(ev.Actor)
	}
	for _, t := range in.Threads {
		for _, ex := range t.Exchanges {
			if ex.Role.IsHuman() {
				add(ex.Actor)
			}
		}
	}
	return len(seen)
}

func resolutionRate(threads []model.ReviewThread) model.Metric {
	if len(threads) == 0 {
		return model.UndefinedMetric(ThreadResolutionRate, model.UnitRatio, "no threads")
	}
	resolved := 0
	for _, t := range threads {
		if t.Resolution == model.ResolutionResolved {
			resolved++
		}
	}
	return model.Metric{
		Name:    ThreadResolutionRate,
		Unit:    model.UnitRatio,
		Value:   float64(resolved) / float64(len(threads)),
		Defined: true,
	}
}
