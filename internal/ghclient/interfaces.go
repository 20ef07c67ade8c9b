// Package ghclient fetches pull request data from the GitHub REST API and
// converts it into the pipeline's raw input.
package ghclient

import (
	"context"
	"time"

	"github.com/spiffcs/prlens/internal/model"
)

// Fetcher defines the raw GitHub API operations the Store needs.
// This interface provides direct access to GitHub without any caching
// logic. Use Store for cache-aware fetching.
type Fetcher interface {
	FetchPR(ctx context.Context, ref model.PRRef) (model.RawPR, error)
	PullRequestUpdatedAt(ctx context.Context, ref model.PRRef) (time.Time, error)
}

// Ensure Client implements Fetcher interface.
var _ Fetcher = (*Client)(nil)
