package report

import (
	"math"
	"sort"

	"github.com/spiffcs/prlens/internal/metrics"
	"github.com/spiffcs/prlens/internal/model"
)

// Summary is the distribution of one metric across PRs.
type Summary struct {
	Count      int     `json:"count"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	P75        float64 `json:"p75"`
	P90        float64 `json:"p90"`
	StdDev     float64 `json:"stdDev"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	OutlierMin float64 `json:"outlierMin"`
	OutlierMax float64 `json:"outlierMax"`
}

// MetricSummary pairs a metric with its distribution.
type MetricSummary struct {
	Name    string           `json:"name"`
	Unit    model.MetricUnit `json:"unit"`
	Summary Summary          `json:"summary"`
	// Undefined counts PRs where the metric was missing.
	Undefined int `json:"undefined"`
}

// Row is one PR in the comparison table.
type Row struct {
	PR       string         `json:"pr"`
	Title    string         `json:"title"`
	Author   string         `json:"author"`
	Size     model.PRSize   `json:"size"`
	Degraded bool           `json:"degraded"`
	Insights int            `json:"insights"`
	Metrics  []model.Metric `json:"metrics"`
}

// Outlier is a PR whose metric falls outside the IQR fences.
type Outlier struct {
	PR     string  `json:"pr"`
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	High   bool    `json:"high"`
}

// Comparison is the cross-PR aggregate.
type Comparison struct {
	Reports  int             `json:"reports"`
	Degraded int             `json:"degraded"`
	Metrics  []MetricSummary `json:"metrics"`
	Rows     []Row           `json:"rows"`
	Outliers []Outlier       `json:"outliers,omitempty"`
}

// aggregatedMetrics are compared across PRs, in display order.
var aggregatedMetrics = []struct {
	name string
	unit model.MetricUnit
}{
	{metrics.TimeToFirstReview, model.UnitDuration},
	{metrics.TimeToMerge, model.UnitDuration},
	{metrics.ReviewRoundCount, model.UnitCount},
	{metrics.MeanResponseLatency, model.UnitDuration},
	{metrics.RevisionCount, model.UnitCount},
	{metrics.TotalLifecycle, model.UnitDuration},
	{metrics.CommentFrequency, model.UnitRate},
	{metrics.ParticipantCount, model.UnitCount},
	{metrics.ThreadResolutionRate, model.UnitRatio},
}

// Aggregate compares reports. It is stateless and only counts defined
// metric values.
func Aggregate(reports []*AnalysisReport) Comparison {
	agg := Comparison{
		Reports: len(reports),
		Metrics: make([]MetricSummary, 0, len(aggregatedMetrics)),
		Rows:    make([]Row, 0, len(reports)),
	}

	for _, r := range reports {
		if r.Degraded() {
			agg.Degraded++
		}
		agg.Rows = append(agg.Rows, Row{
			PR:       r.Ref().String(),
			Title:    r.provenance.Title,
			Author:   r.provenance.Author,
			Size:     r.Size(),
			Degraded: r.Degraded(),
			Insights: len(r.insights),
			Metrics:  r.Metrics(),
		})
	}

	for _, am := range aggregatedMetrics {
		var values []float64
		var owners []string
		undefined := 0
		for _, r := range reports {
			m, ok := r.Metric(am.name)
			if !ok || !m.Defined {
				undefined++
				continue
			}
			values = append(values, m.Value)
			owners = append(owners, r.Ref().String())
		}

		s := CalculateStatistics(values)
		agg.Metrics = append(agg.Metrics, MetricSummary{
			Name:      am.name,
			Unit:      am.unit,
			Summary:   s,
			Undefined: undefined,
		})

		// fences are meaningless for tiny samples
		if s.Count < 4 {
			continue
		}
		for i, v := range values {
			if v < s.OutlierMin || v > s.OutlierMax {
				agg.Outliers = append(agg.Outliers, Outlier{
					PR:     owners[i],
					Metric: am.name,
					Value:  v,
					High:   v > s.OutlierMax,
				})
			}
		}
	}
	return agg
}

// CalculateStatistics computes a distribution summary. Percentiles use
// linear interpolation; the standard deviation is the sample deviation.
func CalculateStatistics(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	sumSquaredDiffs := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}
	stdDev := 0.0
	if len(values) > 1 {
		stdDev = math.Sqrt(sumSquaredDiffs / float64(len(values)-1))
	}

	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1

	return Summary{
		Count:      len(values),
		Mean:       mean,
		Median:     percentile(sorted, 50),
		P75:        q3,
		P90:        percentile(sorted, 90),
		StdDev:     stdDev,
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		OutlierMin: q1 - 1.5*iqr,
		OutlierMax: q3 + 1.5*iqr,
	}
}

// percentile calculates the given percentile from sorted values
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
