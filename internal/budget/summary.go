package budget

import (
	"fmt"
	"strings"

	"github.com/spiffcs/prlens/internal/model"
)

// Summary renders the fixed-shape PR summary section. The description is
// carried whole; an oversized summary is rejected by Fit.
func Summary(pr model.RawPR, size model.PRSize) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", pr.Title)
	fmt.Fprintf(&sb, "PR: %s\n", pr.Ref)
	fmt.Fprintf(&sb, "Author: %s\n", pr.Author)
	fmt.Fprintf(&sb, "State: %s", pr.State)
	if pr.Draft {
		sb.WriteString(" (draft)")
	}
	sb.WriteByte('\n')
	if pr.BaseRef != "" || pr.HeadRef != "" {
		fmt.Fprintf(&sb, "Branches: %s <- %s\n", pr.BaseRef, pr.HeadRef)
	}
	fmt.Fprintf(&sb, "Created: %s\n", model.FormatTimestamp(pr.CreatedAt))
	if pr.MergedAt != nil {
		fmt.Fprintf(&sb, "Merged: %s\n", model.FormatTimestamp(*pr.MergedAt))
	} else if pr.ClosedAt != nil {
		fmt.Fprintf(&sb, "Closed: %s\n", model.FormatTimestamp(*pr.ClosedAt))
	}
	if len(pr.Labels) > 0 {
		fmt.Fprintf(&sb, "Labels: %s\n", strings.Join(pr.Labels, ", "))
	}

	additions, deletions := 0, 0
	for _, f := range pr.Files {
		additions += f.Additions
		deletions += f.Deletions
	}
	fmt.Fprintf(&sb, "Size: %s (%d files, +%d/-%d)\n", size, len(pr.Files), additions, deletions)

	desc := strings.TrimSpace(pr.Body)
	if desc == "" {
		desc = "(no description)"
	}
	sb.WriteString("Description:\n")
	sb.WriteString(desc)
	return sb.String()
}

// DiffExcerpt renders per-file headers and patches for at most maxFiles
// files, in the order given. maxFiles <= 0 means no limit.
func DiffExcerpt(files []model.FileChange, maxFiles int) string {
	if len(files) == 0 {
		return ""
	}
	shown := files
	if maxFiles > 0 && len(files) > maxFiles {
		shown = files[:maxFiles]
	}

	var sb strings.Builder
	for i, f := range shown {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "--- %s (%s, +%d/-%d)\n", f.Filename, f.Status, f.Additions, f.Deletions)
		if f.Patch != "" {
			sb.WriteString(strings.TrimRight(f.Patch, "\n"))
			sb.WriteByte('\n')
		}
	}
	if omitted := len(files) - len(shown); omitted > 0 {
		fmt.Fprintf(&sb, "... %d more files not shown\n", omitted)
	}
	return strings.TrimRight(sb.String(), "\n")
}
