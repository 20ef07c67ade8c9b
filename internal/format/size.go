package format

import (
	"fmt"

	"github.com/spiffcs/prlens/internal/model"
)

// SizeBadge renders a size class with its line counts, e.g. "M+100/-80".
func SizeBadge(size model.PRSize, additions, deletions int) string {
	if size == "" {
		size = "?"
	}
	return fmt.Sprintf("%s+%d/-%d", size, additions, deletions)
}

// LineTotals sums additions and deletions across files.
func LineTotals(files []model.FileChange) (additions, deletions int) {
	for _, f := range files {
		additions += f.Additions
		deletions += f.Deletions
	}
	return additions, deletions
}
