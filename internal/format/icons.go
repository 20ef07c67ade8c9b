package format

import "github.com/spiffcs/prlens/internal/model"

// Icon strings for display (renderers can apply their own styling)
const (
	// CriticalIcon marks critical and high severity insights and high-risk files.
	CriticalIcon = "\U0001F534" // 🔴

	// WarningIcon marks medium severity and medium risk.
	WarningIcon = "\U0001F7E1" // 🟡

	// OKIcon marks low severity and low or minimal risk.
	OKIcon = "\U0001F7E2" // 🟢

	// DegradedIcon flags a report whose synthesis did not complete.
	// Using U+26A0 + U+FE0F to force emoji presentation for consistent 2-column width.
	DegradedIcon = "\u26A0\uFE0F" // ⚠️

	// IconWidth is the display width reserved for the icon column (emoji=2 + space=1).
	IconWidth = 3
)

// SeverityIcon returns the icon for an insight severity, or "" when the
// model gave none.
func SeverityIcon(s model.Severity) string {
	switch s {
	case model.SeverityCritical, model.SeverityHigh:
		return CriticalIcon
	case model.SeverityMedium:
		return WarningIcon
	case model.SeverityLow:
		return OKIcon
	default:
		return ""
	}
}

// RiskIcon returns the icon for a file risk level.
func RiskIcon(r model.RiskLevel) string {
	switch r {
	case model.RiskHigh:
		return CriticalIcon
	case model.RiskMedium:
		return WarningIcon
	default:
		return OKIcon
	}
}
