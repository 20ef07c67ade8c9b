// Package constants provides a centralized location for fixed values and
// magic numbers used throughout prlens.
package constants

import "time"

// TUI update and display constants
const (
	// RateLimitPollInterval is how often the TUI checks the GitHub rate
	// limit state while a batch runs.
	RateLimitPollInterval = time.Second

	// TUIDoneDelay is how long the finished progress view stays on screen.
	TUIDoneDelay = 300 * time.Millisecond

	// LogThrottlePercent is the interval (in percent) at which progress
	// logs are emitted when not using the TUI.
	LogThrottlePercent = 5

	// TruncationSuffixWidth is the width of the "..." suffix when truncating strings.
	TruncationSuffixWidth = 3
)

// Rate limiting constants
const (
	// RateLimitLowWatermark is the threshold below which rate limit
	// warnings are logged.
	RateLimitLowWatermark = 100

	// PageSize is the per-page item count requested from list endpoints.
	PageSize = 100
)

// Cache constants
const (
	// CacheDirName is the directory under the user cache dir holding
	// fetched pull requests.
	CacheDirName = "prlens"
)

// Review state constants, as recorded on raw review records.
const (
	ReviewStateApproved         = "approved"
	ReviewStateChangesRequested = "changes_requested"
	ReviewStateCommented        = "commented"
	ReviewStateDismissed        = "dismissed"
	ReviewStatePending          = "pending"
)

// Pull request state constants
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateMerged = "merged"
	StateDraft  = "draft"
)
