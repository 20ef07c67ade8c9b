// Package cache stores fetched pull requests on disk so that repeated
// analyses do not refetch unchanged PRs.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spiffcs/prlens/internal/constants"
	"github.com/spiffcs/prlens/internal/log"
	"github.com/spiffcs/prlens/internal/model"
)

// Cacher defines the interface for caching operations.
// This interface enables mocking the cache in unit tests.
type Cacher interface {
	Get(ref model.PRRef, updatedAt time.Time) (model.RawPR, bool)
	Set(pr model.RawPR) error
	Clear() error
	Stats() (Stats, error)
}

// Ensure Cache implements Cacher interface.
var _ Cacher = (*Cache)(nil)

// Cache is a directory of JSON files, one per pull request.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// New creates a cache rooted at dir. A zero ttl disables expiry.
func New(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// NewDefault creates a cache in the user cache directory.
func NewDefault(ttl time.Duration) (*Cache, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	return New(filepath.Join(base, constants.CacheDirName, "prs"), ttl)
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// fileName generates a file name for a pull request
func fileName(ref model.PRRef) string {
	// Replace slashes with underscores to avoid path issues while preserving uniqueness
	return fmt.Sprintf("%s_%s_%d.json",
		strings.ReplaceAll(ref.Owner, "/", "_"),
		strings.ReplaceAll(ref.Repo, "/", "_"),
		ref.Number,
	)
}

// Get returns the cached PR if it is current. updatedAt is the PR's
// current updated_at; an entry fetched before that is stale. A zero
// updatedAt skips that check.
func (c *Cache) Get(ref model.PRRef, updatedAt time.Time) (model.RawPR, bool) {
	if ref.IsZero() {
		return model.RawPR{}, false
	}
	name := fileName(ref)

	entry, err := c.read(filepath.Join(c.dir, name))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Debug("unreadable cache entry", "key", name, "error", err)
		}
		return model.RawPR{}, false
	}

	// Invalidate if cache version doesn't match (format/schema changed)
	if entry.Version != Version {
		log.Debug("cache version mismatch", "cached", entry.Version, "current", Version, "key", name)
		return model.RawPR{}, false
	}

	// Invalidate if the PR was updated after it was cached
	if updatedAt.After(entry.UpdatedAt) {
		return model.RawPR{}, false
	}

	if c.expired(entry) {
		return model.RawPR{}, false
	}

	return entry.PR, true
}

// Set caches pr under its ref.
func (c *Cache) Set(pr model.RawPR) error {
	if pr.Ref.IsZero() {
		return nil
	}

	entry := Entry{
		PR:        pr,
		CachedAt:  c.now(),
		UpdatedAt: pr.UpdatedAt,
		Version:   Version,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	// write then rename so concurrent readers never see a partial file
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(c.dir, fileName(pr.Ref)))
}

// Clear removes all cached entries
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

// Stats returns cache statistics
func (c *Cache) Stats() (Stats, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		stats.Total++
		if info, err := de.Info(); err == nil {
			stats.Bytes += info.Size()
		}

		entry, err := c.read(filepath.Join(c.dir, de.Name()))
		if err != nil || entry.Version != Version || c.expired(entry) {
			stats.Stale++
			continue
		}
		stats.Valid++
	}
	return stats, nil
}

func (c *Cache) expired(e Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.CachedAt) > c.ttl
}

func (c *Cache) read(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}
