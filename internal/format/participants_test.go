package format

import (
	"testing"
)

func TestJoinLogins(t *testing.T) {
	tests := []struct {
		name     string
		logins   []string
		max      int
		expected string
	}{
		{"empty", nil, 3, "-"},
		{"under limit", []string{"alice", "bob"}, 3, "alice, bob"},
		{"over limit", []string{"alice", "bob", "carol", "dave"}, 2, "alice, bob +2"},
		{"no limit", []string{"alice", "bob", "carol"}, 0, "alice, bob, carol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JoinLogins(tt.logins, tt.max)
			if got != tt.expected {
				t.Errorf("JoinLogins(%v, %d) = %q, want %q", tt.logins, tt.max, got, tt.expected)
			}
		})
	}
}

func TestTruncateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		maxWidth int
		expected string
	}{
		{"short username", "alice", 10, "alice"},
		{"exact width", "alice", 5, "alice"},
		{"needs truncation", "verylongusername", 8, "verylon…"},
		{"width of one", "alice", 1, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateUsername(tt.username, tt.maxWidth)
			if got != tt.expected {
				t.Errorf("TruncateUsername(%q, %d) = %q, want %q", tt.username, tt.maxWidth, got, tt.expected)
			}
		})
	}
}
