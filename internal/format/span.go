package format

import (
	"fmt"
	"math"
	"time"

	"github.com/spiffcs/prlens/internal/model"
)

// FormatSpan formats a duration compactly with at most two units:
// "<1m", "45m", "5h 30m", "1d 6h", "2w 3d".
func FormatSpan(d time.Duration) string {
	if d < 0 {
		return "-" + FormatSpan(-d)
	}
	if d < time.Minute {
		return "<1m"
	}

	const (
		day  = 24 * time.Hour
		week = 7 * day
	)
	two := func(a int64, au string, b int64, bu string) string {
		if b == 0 {
			return fmt.Sprintf("%d%s", a, au)
		}
		return fmt.Sprintf("%d%s %d%s", a, au, b, bu)
	}

	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm", int64(d/time.Minute))
	case d < day:
		return two(int64(d/time.Hour), "h", int64(d%time.Hour/time.Minute), "m")
	case d < week:
		return two(int64(d/day), "d", int64(d%day/time.Hour), "h")
	default:
		return two(int64(d/week), "w", int64(d%week/day), "d")
	}
}

// FormatValue renders a metric value of the given unit for display.
func FormatValue(unit model.MetricUnit, v float64) string {
	switch unit {
	case model.UnitDuration:
		return FormatSpan(time.Duration(v * float64(time.Second)))
	case model.UnitCount:
		if v == math.Trunc(v) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%.1f", v)
	case model.UnitRatio:
		return fmt.Sprintf("%.0f%%", v*100)
	case model.UnitRate:
		return fmt.Sprintf("%.1f/day", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// FormatMetric renders a metric, or "n/a" when it is undefined.
func FormatMetric(m model.Metric) string {
	if !m.Defined {
		return "n/a"
	}
	return FormatValue(m.Unit, m.Value)
}
