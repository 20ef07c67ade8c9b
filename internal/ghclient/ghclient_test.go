package ghclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spiffcs/prlens/internal/cache"
	"github.com/spiffcs/prlens/internal/model"
)

var testRef = model.PRRef{Owner: "acme", Repo: "api", Number: 7}

const (
	pullJSON = `{
		"number": 7, "title": "Add cache TTL", "body": "Expire entries.", "state": "closed",
		"user": {"login": "alice"}, "html_url": "https://github.com/acme/api/pull/7",
		"created_at": "2024-03-01T09:00:00Z", "updated_at": "2024-03-02T15:00:00Z",
		"merged_at": "2024-03-02T15:00:00Z", "closed_at": "2024-03-02T15:00:00Z",
		"merged": true, "merged_by": {"login": "carol"}, "merge_commit_sha": "m3",
		"head": {"ref": "ttl", "sha": "headsha"}, "base": {"ref": "main"},
		"labels": [{"name": "enhancement"}]
	}`
	commitsPage1 = `[{"sha": "a1", "author": {"login": "alice"},
		"commit": {"message": "add ttl", "author": {"name": "Alice", "date": "2024-03-01T09:00:00Z"}}}]`
	commitsPage2 = `[{"sha": "b2",
		"commit": {"message": "use ticker", "author": {"name": "Alice Doe", "date": "2024-03-01T13:00:00+02:00"}}}]`
	reviewsJSON = `[
		{"id": 11, "user": {"login": "bob"}, "body": "Looks good", "state": "APPROVED", "submitted_at": "2024-03-01T15:00:00Z"},
		{"id": 12, "user": {"login": "bob"}, "state": "PENDING"}
	]`
	reviewCommentsJSON = `[
		{"id": 21, "user": {"login": "bob"}, "body": "Why not a ticker?", "path": "cache.go", "line": 12, "created_at": "2024-03-01T10:00:00Z"},
		{"id": 22, "in_reply_to_id": 21, "user": {"login": "alice"}, "body": "Fixed.", "path": "cache.go", "original_line": 12, "created_at": "2024-03-01T11:00:00Z"}
	]`
	issueCommentsJSON = `[{"id": 31, "user": {"login": "dave"}, "body": "Ship it", "created_at": "2024-03-01T16:00:00Z"}]`
	timelineJSON      = `[
		{"id": 41, "event": "labeled", "actor": {"login": "alice"}, "created_at": "2024-03-01T09:05:00Z", "label": {"name": "enhancement"}},
		{"event": "committed", "sha": "a1"},
		{"id": 42, "event": "merged", "actor": {"login": "carol"}, "created_at": "2024-03-02T15:00:00Z", "commit_id": "m3"},
		{"id": 43, "event": "closed", "actor": {"login": "carol"}, "created_at": "2024-03-02T15:00:00Z"}
	]`
	filesJSON = `[
		{"filename": "cache.go", "status": "modified", "additions": 20, "deletions": 4, "patch": "@@ -1 +1 @@"},
		{"filename": "old.go", "status": "removed", "deletions": 3}
	]`
	contentJSON = `{"type": "file", "encoding": "base64", "path": "cache.go", "content": "cGFja2FnZSBjYWNoZQo="}`
)

// newTestServer serves one pull request the way the GitHub REST API does.
func newTestServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64
	mux := http.NewServeMux()
	var srv *httptest.Server

	reply := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Remaining", "4000")
			w.Header().Set("X-RateLimit-Limit", "5000")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
			_, _ = fmt.Fprint(w, body)
		}
	}

	mux.HandleFunc("GET /repos/acme/api/pulls/7", reply(pullJSON))
	mux.HandleFunc("GET /repos/acme/api/pulls/7/commits", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			reply(commitsPage2)(w, r)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/api/pulls/7/commits?page=2>; rel="next"`, srv.URL))
		reply(commitsPage1)(w, r)
	})
	mux.HandleFunc("GET /repos/acme/api/pulls/7/reviews", reply(reviewsJSON))
	mux.HandleFunc("GET /repos/acme/api/pulls/7/comments", reply(reviewCommentsJSON))
	mux.HandleFunc("GET /repos/acme/api/issues/7/comments", reply(issueCommentsJSON))
	mux.HandleFunc("GET /repos/acme/api/issues/7/timeline", reply(timelineJSON))
	mux.HandleFunc("GET /repos/acme/api/pulls/7/files", reply(filesJSON))
	mux.HandleFunc("GET /repos/acme/api/contents/cache.go", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ref") != "headsha" {
			http.Error(w, `{"message": "wrong ref"}`, http.StatusNotFound)
			return
		}
		reply(contentJSON)(w, r)
	})
	mux.HandleFunc("GET /repos/acme/api/pulls/404", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("GET /repos/acme/api/pulls/502", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Bad Gateway"}`, http.StatusBadGateway)
	})
	mux.HandleFunc("GET /repos/acme/api/pulls/429", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		http.Error(w, `{"message": "slow down"}`, http.StatusTooManyRequests)
	})

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(srv.Client()), WithBaseURL(srv.URL), WithLimits(2, 1000, 10)}, opts...)
	c, err := NewClient(context.Background(), "", opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestFetchPR(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newTestClient(t, srv)

	pr, err := c.FetchPR(context.Background(), testRef)
	if err != nil {
		t.Fatalf("FetchPR() error = %v", err)
	}

	if pr.Author != "alice" || pr.State != "merged" || pr.HeadSHA != "headsha" || pr.MergedAt == nil {
		t.Errorf("metadata = author %q state %q head %q merged %v", pr.Author, pr.State, pr.HeadSHA, pr.MergedAt)
	}
	if diff := cmp.Diff([]string{"enhancement"}, pr.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	kinds := map[string]int{}
	for _, r := range pr.Records {
		kinds[r.Kind]++
	}
	wantKinds := map[string]int{
		model.RawKindCommitted: 2,
		model.RawKindReviewed:  1,
		model.RawKindLabeled:   1,
		model.RawKindMerged:    1,
		model.RawKindCommented: 3,
	}
	if diff := cmp.Diff(wantKinds, kinds); diff != "" {
		t.Errorf("record kinds mismatch (-want +got):\n%s", diff)
	}

	wantComments := []model.RawComment{
		{ID: "rc-21", Actor: "bob", Timestamp: "2024-03-01T10:00:00Z", Body: "Why not a ticker?", Path: "cache.go", Line: 12, Source: model.CommentSourceReview},
		{ID: "rc-22", ParentID: "rc-21", Actor: "alice", Timestamp: "2024-03-01T11:00:00Z", Body: "Fixed.", Path: "cache.go", Line: 12, Source: model.CommentSourceReview},
		{ID: "ic-31", Actor: "dave", Timestamp: "2024-03-01T16:00:00Z", Body: "Ship it", Source: model.CommentSourceIssue},
		{ID: "review-11", Actor: "bob", Timestamp: "2024-03-01T15:00:00Z", Body: "Looks good", Source: model.CommentSourceReviewBody},
	}
	if diff := cmp.Diff(wantComments, pr.Comments); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}

	if len(pr.Files) != 2 || pr.Files[0].Additions != 20 {
		t.Errorf("files = %+v", pr.Files)
	}
	wantRepo := []model.RepoFile{{Path: "cache.go", Content: "package cache\n"}}
	if diff := cmp.Diff(wantRepo, pr.RepoFiles); diff != "" {
		t.Errorf("repo files mismatch (-want +got):\n%s", diff)
	}
	if pr.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}

	if st := c.RateLimitStatus(); st.Remaining != 4000 || st.Limit != 5000 || st.Limited {
		t.Errorf("RateLimitStatus() = %+v", st)
	}
}

func TestFetchPRSecondCommitUsesUTC(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newTestClient(t, srv, WithRepoContext(false, 0, 0))

	pr, err := c.FetchPR(context.Background(), testRef)
	if err != nil {
		t.Fatalf("FetchPR() error = %v", err)
	}
	var got *model.RawRecord
	for i := range pr.Records {
		if pr.Records[i].ID == "b2" {
			got = &pr.Records[i]
		}
	}
	if got == nil {
		t.Fatal("commit from the second page missing")
	}
	if got.Timestamp != "2024-03-01T11:00:00Z" || got.Actor != "Alice Doe" {
		t.Errorf("second page commit = %+v", got)
	}
	if pr.RepoFiles != nil {
		t.Errorf("repo files fetched while disabled: %+v", pr.RepoFiles)
	}
}

func TestFetchPRErrors(t *testing.T) {
	tests := []struct {
		number      int
		wantKind    model.ErrorKind
		wantLimited bool
	}{
		{number: 404, wantKind: model.ErrKindNotFound},
		{number: 502, wantKind: model.ErrKindFetch},
		{number: 429, wantKind: model.ErrKindFetch, wantLimited: true},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.number), func(t *testing.T) {
			srv, _ := newTestServer(t)
			c := newTestClient(t, srv)
			ref := model.PRRef{Owner: "acme", Repo: "api", Number: tt.number}

			_, err := c.FetchPR(context.Background(), ref)
			if got := model.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf(%v) = %q, want %q", err, got, tt.wantKind)
			}
			if got := errors.Is(err, ErrRateLimited); got != tt.wantLimited {
				t.Errorf("errors.Is(err, ErrRateLimited) = %v, want %v", got, tt.wantLimited)
			}
			if got := model.IsRetryable(err); got != (tt.wantKind == model.ErrKindFetch) {
				t.Errorf("IsRetryable() = %v", got)
			}
		})
	}
}

func TestRateLimitedClientFailsFast(t *testing.T) {
	srv, requests := newTestServer(t)
	c := newTestClient(t, srv)

	_, _ = c.FetchPR(context.Background(), model.PRRef{Owner: "acme", Repo: "api", Number: 429})
	before := requests.Load()

	_, err := c.FetchPR(context.Background(), testRef)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("FetchPR() error = %v, want ErrRateLimited", err)
	}
	if requests.Load() != before {
		t.Errorf("made %d requests while rate limited", requests.Load()-before)
	}
}

func TestNewClientConfigErrors(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")

	_, err := NewClient(context.Background(), "")
	if model.KindOf(err) != model.ErrKindConfig {
		t.Errorf("NewClient() without token error = %v", err)
	}

	_, err = NewClient(context.Background(), "token", WithLimits(0, 10, 5))
	if model.KindOf(err) != model.ErrKindConfig {
		t.Errorf("NewClient() with zero in-flight error = %v", err)
	}
}

func TestRepoFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		want    model.RepoFile
		wantOK  bool
	}{
		{"fits", "abc", 10, model.RepoFile{Path: "f", Content: "abc"}, true},
		{"truncated", "abcdef", 4, model.RepoFile{Path: "f", Content: "abcd", Truncated: true}, true},
		{"cut on rune boundary", "aé", 2, model.RepoFile{Path: "f", Content: "a", Truncated: true}, true},
		{"unbounded", "abcdef", 0, model.RepoFile{Path: "f", Content: "abcdef"}, true},
		{"binary", "a\x00b", 10, model.RepoFile{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := repoFile("f", tt.content, tt.max)
			if ok != tt.wantOK {
				t.Fatalf("repoFile() ok = %v, want %v", ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("repoFile() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type fakeFetcher struct {
	pr      model.RawPR
	fetches int
	checks  int
}

func (f *fakeFetcher) FetchPR(ctx context.Context, ref model.PRRef) (model.RawPR, error) {
	f.fetches++
	return f.pr, nil
}

func (f *fakeFetcher) PullRequestUpdatedAt(ctx context.Context, ref model.PRRef) (time.Time, error) {
	f.checks++
	return f.pr.UpdatedAt, nil
}

func TestStore(t *testing.T) {
	updated := time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)
	f := &fakeFetcher{pr: model.RawPR{Ref: testRef, Title: "Add cache TTL", UpdatedAt: updated}}

	c, err := cache.New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	s := NewStore(f, c)

	for i := 0; i < 2; i++ {
		pr, err := s.FetchPR(context.Background(), testRef)
		if err != nil {
			t.Fatalf("FetchPR() error = %v", err)
		}
		if pr.Title != "Add cache TTL" {
			t.Errorf("Title = %q", pr.Title)
		}
	}
	if f.fetches != 1 || f.checks != 2 {
		t.Errorf("fetches=%d checks=%d, want 1 full fetch and 2 freshness checks", f.fetches, f.checks)
	}

	// a newer updated_at invalidates the cached copy
	f.pr.UpdatedAt = updated.Add(time.Minute)
	if _, err := s.FetchPR(context.Background(), testRef); err != nil {
		t.Fatalf("FetchPR() error = %v", err)
	}
	if f.fetches != 2 {
		t.Errorf("fetches = %d after update, want 2", f.fetches)
	}

	t.Run("nil cache always fetches", func(t *testing.T) {
		f := &fakeFetcher{pr: model.RawPR{Ref: testRef}}
		s := NewStore(f, nil)
		for i := 0; i < 2; i++ {
			if _, err := s.FetchPR(context.Background(), testRef); err != nil {
				t.Fatalf("FetchPR() error = %v", err)
			}
		}
		if f.fetches != 2 || f.checks != 0 {
			t.Errorf("fetches=%d checks=%d", f.fetches, f.checks)
		}
	})
}
