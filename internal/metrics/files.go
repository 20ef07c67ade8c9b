package metrics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spiffcs/prlens/internal/model"
)

// SizeThresholds holds the upper bounds (inclusive) of each size class.
// Anything above L is XL.
type SizeThresholds struct {
	XS int
	S  int
	M  int
	L  int
}

// DefaultSizeThresholds returns the standard T-shirt size bounds.
func DefaultSizeThresholds() SizeThresholds {
	return SizeThresholds{XS: 10, S: 50, M: 200, L: 500}
}

// DefaultPeriodGap is the idle time that splits activity periods.
const DefaultPeriodGap = 24 * time.Hour

var (
	sensitiveNames    = []string{"auth", "security", "payment", "config", "sql"}
	sensitiveSuffixes = []string{".sql", ".env", ".config"}
)

// Risk rates a single file by name sensitivity and change volume.
func Risk(f model.FileChange) model.RiskLevel {
	name := strings.ToLower(f.Filename)
	for _, s := range sensitiveNames {
		if strings.Contains(name, s) {
			return model.RiskHigh
		}
	}
	for _, s := range sensitiveSuffixes {
		if strings.HasSuffix(name, s) {
			return model.RiskHigh
		}
	}
	switch changes := f.Changes(); {
	case changes > 100:
		return model.RiskMedium
	case changes > 20:
		return model.RiskLow
	default:
		return model.RiskMinimal
	}
}

// Complexity scores a file change on a 0-10 scale.
func Complexity(f model.FileChange) float64 {
	return math.Min(float64(f.Changes())/50, 10)
}

// FileRisks assesses each file, highest risk then most changes first.
func FileRisks(files []model.FileChange) []model.FileRisk {
	out := make([]model.FileRisk, 0, len(files))
	for _, f := range files {
		out = append(out, model.FileRisk{
			Filename:   f.Filename,
			Changes:    f.Changes(),
			Risk:       Risk(f),
			Complexity: Complexity(f),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := riskRank(out[i].Risk), riskRank(out[j].Risk)
		if ri != rj {
			return ri > rj
		}
		if out[i].Changes != out[j].Changes {
			return out[i].Changes > out[j].Changes
		}
		return out[i].Filename < out[j].Filename
	})
	return out
}

func riskRank(r model.RiskLevel) int {
	switch r {
	case model.RiskHigh:
		return 3
	case model.RiskMedium:
		return 2
	case model.RiskLow:
		return 1
	default:
		return 0
	}
}

// Size determines the T-shirt size of a PR based on total changes.
func Size(files []model.FileChange, th SizeThresholds) model.PRSize {
	if th == (SizeThresholds{}) {
		th = DefaultSizeThresholds()
	}
	total := 0
	for _, f := range files {
		total += f.Changes()
	}

	switch {
	case total <= th.XS:
		return model.PRSizeXS
	case total <= th.S:
		return model.PRSizeS
	case total <= th.M:
		return model.PRSizeM
	case total <= th.L:
		return model.PRSizeL
	default:
		return model.PRSizeXL
	}
}

// ActivityPeriods splits the timeline wherever consecutive events are more
// than gap apart and labels each period by its dominant activity.
func ActivityPeriods(events []model.TimelineEvent, gap time.Duration) []model.ActivityPeriod {
	if len(events) == 0 {
		return nil
	}
	if gap <= 0 {
		gap = DefaultPeriodGap
	}

	var periods []model.ActivityPeriod
	cur := model.ActivityPeriod{Start: events[0].Timestamp}
	for i, ev := range events {
		if i > 0 && ev.Timestamp.Sub(events[i-1].Timestamp) > gap {
			periods = append(periods, closePeriod(cur))
			cur = model.ActivityPeriod{Start: ev.Timestamp}
		}
		cur.End = ev.Timestamp
		cur.Events++
		switch ev.Kind {
		case model.KindCommit:
			cur.Commits++
		case model.KindReview:
			cur.Reviews++
		case model.KindComment:
			cur.Comments++
		}
	}
	return append(periods, closePeriod(cur))
}

func closePeriod(p model.ActivityPeriod) model.ActivityPeriod {
	switch {
	case p.Commits > p.Reviews && p.Commits >= p.Comments:
		p.Type = model.PeriodRevision
	case p.Reviews > 0 && p.Reviews >= p.Comments:
		p.Type = model.PeriodReview
	default:
		p.Type = model.PeriodDiscussion
	}
	return p
}
