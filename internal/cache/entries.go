package cache

import (
	"time"

	"github.com/spiffcs/prlens/internal/model"
)

// Version should be incremented when the cached RawPR shape changes so
// that old entries are ignored.
const Version = 1

// Entry is one cached pull request.
type Entry struct {
	PR        model.RawPR `json:"pr"`
	CachedAt  time.Time   `json:"cachedAt"`
	UpdatedAt time.Time   `json:"updatedAt"` // the PR's updated_at when fetched
	Version   int         `json:"version"`
}

// Stats contains cache statistics.
type Stats struct {
	Total int
	Valid int
	// Stale counts entries past the TTL or written by another version.
	Stale int
	Bytes int64
}
