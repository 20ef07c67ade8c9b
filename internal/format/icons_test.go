package format

import (
	"testing"

	"github.com/spiffcs/prlens/internal/model"
)

func TestSeverityIcon(t *testing.T) {
	tests := []struct {
		severity model.Severity
		expected string
	}{
		{model.SeverityCritical, CriticalIcon},
		{model.SeverityHigh, CriticalIcon},
		{model.SeverityMedium, WarningIcon},
		{model.SeverityLow, OKIcon},
		{model.SeverityNone, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			if got := SeverityIcon(tt.severity); got != tt.expected {
				t.Errorf("SeverityIcon(%q) = %q, want %q", tt.severity, got, tt.expected)
			}
		})
	}
}

func TestRiskIcon(t *testing.T) {
	tests := []struct {
		risk     model.RiskLevel
		expected string
	}{
		{model.RiskHigh, CriticalIcon},
		{model.RiskMedium, WarningIcon},
		{model.RiskLow, OKIcon},
		{model.RiskMinimal, OKIcon},
	}

	for _, tt := range tests {
		t.Run(string(tt.risk), func(t *testing.T) {
			if got := RiskIcon(tt.risk); got != tt.expected {
				t.Errorf("RiskIcon(%q) = %q, want %q", tt.risk, got, tt.expected)
			}
		})
	}
}

func TestIconsFitIconColumn(t *testing.T) {
	for _, icon := range []string{CriticalIcon, WarningIcon, OKIcon, DegradedIcon} {
		if w := DisplayWidth(icon); w+1 != IconWidth {
			t.Errorf("DisplayWidth(%q) = %d, want %d", icon, w, IconWidth-1)
		}
	}
}
