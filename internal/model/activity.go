package model

import "time"

// RiskLevel rates how sensitive a changed file is.
type RiskLevel string

const (
	RiskHigh    RiskLevel = "high"
	RiskMedium  RiskLevel = "medium"
	RiskLow     RiskLevel = "low"
	RiskMinimal RiskLevel = "minimal"
)

// FileRisk is the per-file assessment of a change.
type FileRisk struct {
	Filename   string    `json:"filename"`
	Changes    int       `json:"changes"`
	Risk       RiskLevel `json:"risk"`
	Complexity float64   `json:"complexity"`
}

// PRSize represents a T-shirt size category for PR changes.
type PRSize string

const (
	PRSizeXS PRSize = "XS"
	PRSizeS  PRSize = "S"
	PRSizeM  PRSize = "M"
	PRSizeL  PRSize = "L"
	PRSizeXL PRSize = "XL"
)

// PeriodType labels what dominated an activity period.
type PeriodType string

const (
	PeriodRevision   PeriodType = "revision"
	PeriodReview     PeriodType = "review"
	PeriodDiscussion PeriodType = "discussion"
)

// ActivityPeriod is a burst of timeline events without a long gap.
type ActivityPeriod struct {
	Start    time.Time  `json:"start"`
	End      time.Time  `json:"end"`
	Type     PeriodType `json:"type"`
	Events   int        `json:"events"`
	Commits  int        `json:"commits"`
	Reviews  int        `json:"reviews"`
	Comments int        `json:"comments"`
}
