package format

import (
	"fmt"
	"strings"
)

// JoinLogins lists up to max logins and summarizes the rest as "+N".
// A non-positive max lists all of them.
func JoinLogins(logins []string, max int) string {
	if len(logins) == 0 {
		return "-"
	}
	if max <= 0 || len(logins) <= max {
		return strings.Join(logins, ", ")
	}
	return fmt.Sprintf("%s +%d", strings.Join(logins[:max], ", "), len(logins)-max)
}

// TruncateUsername truncates a username to fit within maxWidth.
// If truncation is needed, an ellipsis is added.
func TruncateUsername(username string, maxWidth int) string {
	if len(username) <= maxWidth {
		return username
	}
	if maxWidth <= 1 {
		return username[:maxWidth]
	}
	return username[:maxWidth-1] + "…" // ellipsis character
}
