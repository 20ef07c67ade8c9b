package ghclient

import (
	"context"

	"github.com/spiffcs/prlens/internal/cache"
	"github.com/spiffcs/prlens/internal/log"
	"github.com/spiffcs/prlens/internal/model"
)

// Store provides cache-aware pull request fetching.
// It wraps a Fetcher and a Cacher: a cached PR is reused when its
// updated_at has not moved, which costs one request instead of a full fetch.
type Store struct {
	fetcher Fetcher
	cache   cache.Cacher
}

// NewStore creates a new Store with the given fetcher and cache.
// If cache is nil, caching is disabled.
func NewStore(fetcher Fetcher, c cache.Cacher) *Store {
	return &Store{
		fetcher: fetcher,
		cache:   c,
	}
}

// FetchPR returns the PR from cache when current, else from the API.
func (s *Store) FetchPR(ctx context.Context, ref model.PRRef) (model.RawPR, error) {
	if s.cache == nil {
		return s.fetcher.FetchPR(ctx, ref)
	}

	updatedAt, err := s.fetcher.PullRequestUpdatedAt(ctx, ref)
	if err != nil {
		return model.RawPR{}, err
	}
	if pr, ok := s.cache.Get(ref, updatedAt); ok {
		log.Info("cache hit", "pr", ref.String())
		return pr, nil
	}

	pr, err := s.fetcher.FetchPR(ctx, ref)
	if err != nil {
		return model.RawPR{}, err
	}

	if err := s.cache.Set(pr); err != nil {
		log.Debug("failed to cache pull request", "pr", ref.String(), "error", err)
	}
	return pr, nil
}
