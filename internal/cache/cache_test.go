package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spiffcs/prlens/internal/model"
)

var cachedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), ttl)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.now = func() time.Time { return cachedAt }
	return c
}

func testPR(number int, updated time.Time) model.RawPR {
	return model.RawPR{
		Ref:       model.PRRef{Owner: "acme", Repo: "api", Number: number},
		Title:     "Fix flaky test",
		Author:    "alice",
		UpdatedAt: updated,
		Records: []model.RawRecord{
			{Kind: model.RawKindCommitted, Actor: "alice", Timestamp: "2024-03-01T09:00:00Z", Fields: map[string]string{model.FieldSHA: "abc"}},
		},
	}
}

func TestCacheGetSet(t *testing.T) {
	updated := cachedAt.Add(-time.Hour)
	pr := testPR(1, updated)

	tests := []struct {
		name      string
		ref       model.PRRef
		updatedAt time.Time
		advance   time.Duration
		wantHit   bool
	}{
		{name: "hit with same updated time", ref: pr.Ref, updatedAt: updated, wantHit: true},
		{name: "hit without updated time", ref: pr.Ref, wantHit: true},
		{name: "miss when PR changed since", ref: pr.Ref, updatedAt: updated.Add(time.Minute)},
		{name: "miss after ttl", ref: pr.Ref, updatedAt: updated, advance: 25 * time.Hour},
		{name: "miss for unknown PR", ref: model.PRRef{Owner: "acme", Repo: "api", Number: 2}},
		{name: "miss for zero ref", ref: model.PRRef{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(t, 24*time.Hour)
			if err := c.Set(pr); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			c.now = func() time.Time { return cachedAt.Add(tt.advance) }

			got, ok := c.Get(tt.ref, tt.updatedAt)
			if ok != tt.wantHit {
				t.Fatalf("Get() hit = %v, want %v", ok, tt.wantHit)
			}
			if ok {
				if diff := cmp.Diff(pr, got); diff != "" {
					t.Errorf("cached PR mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestCacheVersionMismatch(t *testing.T) {
	c := newTestCache(t, 0)
	pr := testPR(1, cachedAt)

	stale := `{"pr":{"ref":{"owner":"acme","repo":"api","number":1}},"version":0}`
	if err := os.WriteFile(filepath.Join(c.Dir(), fileName(pr.Ref)), []byte(stale), 0600); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get(pr.Ref, time.Time{}); ok {
		t.Error("Get() returned an entry written by another version")
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	c := newTestCache(t, time.Hour)
	for i := 1; i <= 3; i++ {
		if err := c.Set(testPR(i, cachedAt)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	c.now = func() time.Time { return cachedAt.Add(2 * time.Hour) }
	if err := c.Set(testPR(4, cachedAt)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 4 || stats.Valid != 1 || stats.Stale != 3 {
		t.Errorf("Stats() = %+v, want 4 total, 1 valid, 3 stale", stats)
	}
	if stats.Bytes == 0 {
		t.Error("Stats().Bytes = 0")
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	stats, err = c.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Stats().Total after Clear = %d", stats.Total)
	}
}
