// Package model contains the domain types shared by the analysis pipeline.
// These types are independent of any external GitHub or model library.
package model

import (
	"fmt"
	"strings"

	"github.com/spiffcs/prlens/internal/urlutil"
)

// PRRef identifies a single pull request.
type PRRef struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
}

// String returns the canonical owner/repo#number form.
func (r PRRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// FullName returns owner/repo.
func (r PRRef) FullName() string {
	return r.Owner + "/" + r.Repo
}

// IsZero reports whether the ref is unset.
func (r PRRef) IsZero() bool {
	return r.Owner == "" && r.Repo == "" && r.Number == 0
}

// ParseRef parses a pull request identifier. Accepted forms:
//
//	owner/repo#123
//	owner/repo/123
//	owner/repo/pull/123
//	https://github.com/owner/repo/pull/123
//	https://api.github.com/repos/owner/repo/pulls/123
func ParseRef(s string) (PRRef, error) {
	in := strings.TrimSuffix(strings.TrimSpace(s), "/")

	if strings.Contains(in, "://") || strings.HasPrefix(in, "github.com/") || strings.HasPrefix(in, "api.github.com/") {
		owner, repo, n, err := urlutil.ParsePullURL(in)
		if err != nil {
			return PRRef{}, fmt.Errorf("invalid pull request reference %q: %w", s, err)
		}
		return PRRef{Owner: owner, Repo: repo, Number: n}, nil
	}

	var owner, repo, num string
	if before, after, ok := strings.Cut(in, "#"); ok {
		parts := strings.Split(before, "/")
		if len(parts) != 2 {
			return PRRef{}, fmt.Errorf("invalid pull request reference %q (use owner/repo#123)", s)
		}
		owner, repo, num = parts[0], parts[1], after
	} else {
		parts := strings.Split(in, "/")
		switch {
		case len(parts) == 3:
			owner, repo, num = parts[0], parts[1], parts[2]
		case len(parts) == 4 && (parts[2] == "pull" || parts[2] == "pulls"):
			owner, repo, num = parts[0], parts[1], parts[3]
		default:
			return PRRef{}, fmt.Errorf("invalid pull request reference %q (use owner/repo#123)", s)
		}
	}

	if owner == "" || repo == "" {
		return PRRef{}, fmt.Errorf("invalid pull request reference %q: missing owner or repository", s)
	}

	n, err := urlutil.ExtractNumber(num)
	if err != nil {
		return PRRef{}, fmt.Errorf("invalid pull request reference %q: %w", s, err)
	}

	return PRRef{Owner: owner, Repo: repo, Number: n}, nil
}
