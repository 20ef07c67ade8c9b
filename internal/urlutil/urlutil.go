// Package urlutil provides URL parsing utilities.
package urlutil

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParsePullURL extracts owner, repository and number from a pull request
// URL. Accepted forms:
//
//	https://github.com/owner/repo/pull/123[/files]
//	https://api.github.com/repos/owner/repo/pulls/123
//	https://api.github.com/repos/owner/repo/issues/123
//
// The scheme may be omitted.
func ParsePullURL(raw string) (owner, repo string, number int, err error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid URL %s: %w", raw, err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// API URLs carry a leading "repos" segment
	if len(parts) > 0 && parts[0] == "repos" {
		parts = parts[1:]
	}
	if len(parts) < 4 {
		return "", "", 0, fmt.Errorf("not a pull request URL: %s", raw)
	}
	switch parts[2] {
	case "pull", "pulls", "issues":
	default:
		return "", "", 0, fmt.Errorf("not a pull request URL: %s", raw)
	}

	number, err = ExtractNumber(parts[3])
	if err != nil {
		return "", "", 0, err
	}
	return parts[0], parts[1], number, nil
}

// ExtractNumber parses a positive issue or pull request number.
func ExtractNumber(s string) (int, error) {
	num, err := strconv.Atoi(s)
	if err != nil || num <= 0 {
		return 0, fmt.Errorf("invalid pull request number %q", s)
	}
	return num, nil
}
