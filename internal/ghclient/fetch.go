package ghclient

import (
	"context"
	"errors"
	"time"

	gh "github.com/google/go-github/v57/github"
	"github.com/spiffcs/prlens/internal/constants"
	"github.com/spiffcs/prlens/internal/log"
	"github.com/spiffcs/prlens/internal/model"
	"golang.org/x/sync/errgroup"
)

// PullRequestUpdatedAt returns the PR's updated_at with a single request.
// The cache-aware Store uses it to decide whether a cached copy is current.
func (c *Client) PullRequestUpdatedAt(ctx context.Context, ref model.PRRef) (time.Time, error) {
	pr, err := c.pullRequest(ctx, ref)
	if err != nil {
		return time.Time{}, err
	}
	return pr.GetUpdatedAt().Time, nil
}

// FetchPR fetches everything the pipeline needs for one pull request:
// metadata, commits, reviews, review and issue comments, status events
// from the issue timeline, changed files, and optionally the head-revision
// contents of changed files.
func (c *Client) FetchPR(ctx context.Context, ref model.PRRef) (model.RawPR, error) {
	start := time.Now()

	pr, err := c.pullRequest(ctx, ref)
	if err != nil {
		return model.RawPR{}, err
	}

	var (
		commits        []*gh.RepositoryCommit
		reviews        []*gh.PullRequestReview
		reviewComments []*gh.PullRequestComment
		issueComments  []*gh.IssueComment
		timeline       []*gh.Timeline
		files          []*gh.CommitFile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		commits, err = paginate(gctx, c, ref, "commits", func(lo gh.ListOptions) ([]*gh.RepositoryCommit, *gh.Response, error) {
			return c.client.PullRequests.ListCommits(gctx, ref.Owner, ref.Repo, ref.Number, &lo)
		})
		return err
	})
	g.Go(func() error {
		var err error
		reviews, err = paginate(gctx, c, ref, "reviews", func(lo gh.ListOptions) ([]*gh.PullRequestReview, *gh.Response, error) {
			return c.client.PullRequests.ListReviews(gctx, ref.Owner, ref.Repo, ref.Number, &lo)
		})
		return err
	})
	g.Go(func() error {
		var err error
		reviewComments, err = paginate(gctx, c, ref, "review comments", func(lo gh.ListOptions) ([]*gh.PullRequestComment, *gh.Response, error) {
			return c.client.PullRequests.ListComments(gctx, ref.Owner, ref.Repo, ref.Number, &gh.PullRequestListCommentsOptions{ListOptions: lo})
		})
		return err
	})
	g.Go(func() error {
		var err error
		issueComments, err = paginate(gctx, c, ref, "issue comments", func(lo gh.ListOptions) ([]*gh.IssueComment, *gh.Response, error) {
			return c.client.Issues.ListComments(gctx, ref.Owner, ref.Repo, ref.Number, &gh.IssueListCommentsOptions{ListOptions: lo})
		})
		return err
	})
	g.Go(func() error {
		var err error
		timeline, err = paginate(gctx, c, ref, "timeline", func(lo gh.ListOptions) ([]*gh.Timeline, *gh.Response, error) {
			return c.client.Issues.ListIssueTimeline(gctx, ref.Owner, ref.Repo, ref.Number, &lo)
		})
		return err
	})
	g.Go(func() error {
		var err error
		files, err = paginate(gctx, c, ref, "files", func(lo gh.ListOptions) ([]*gh.CommitFile, *gh.Response, error) {
			return c.client.PullRequests.ListFiles(gctx, ref.Owner, ref.Repo, ref.Number, &lo)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return model.RawPR{}, err
	}

	raw := convertPR(ref, pr)
	raw.Records = append(raw.Records, convertCommits(commits)...)
	raw.Records = append(raw.Records, convertReviews(reviews)...)
	raw.Records = append(raw.Records, convertTimeline(timeline, raw.MergedAt != nil)...)
	raw.Records = append(raw.Records, lifecycleRecords(pr)...)

	comments, records := convertReviewComments(reviewComments)
	raw.Comments = append(raw.Comments, comments...)
	raw.Records = append(raw.Records, records...)

	comments, records = convertIssueComments(issueComments)
	raw.Comments = append(raw.Comments, comments...)
	raw.Records = append(raw.Records, records...)

	raw.Comments = append(raw.Comments, reviewBodyComments(reviews)...)
	raw.Files = convertFiles(files)

	if c.opts.RepoContext && raw.HeadSHA != "" {
		raw.RepoFiles, err = c.repoFiles(ctx, ref, raw.HeadSHA, raw.Files)
		if err != nil {
			return model.RawPR{}, err
		}
	}
	raw.FetchedAt = time.Now().UTC()

	log.Debug("fetched from GitHub",
		"pr", ref.String(),
		"commits", len(commits),
		"reviews", len(reviews),
		"comments", len(raw.Comments),
		"files", len(raw.Files),
		"repo_files", len(raw.RepoFiles),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return raw, nil
}

func (c *Client) pullRequest(ctx context.Context, ref model.PRRef) (*gh.PullRequest, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, classify(ctx, ref, "pull request", err)
	}
	defer release()

	pr, _, err := c.client.PullRequests.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return nil, classify(ctx, ref, "pull request", err)
	}
	return pr, nil
}

// paginate walks every page of a list endpoint. Each page is one request
// and waits for the limiter and an in-flight slot.
func paginate[T any](ctx context.Context, c *Client, ref model.PRRef, op string, list func(gh.ListOptions) ([]T, *gh.Response, error)) ([]T, error) {
	lo := gh.ListOptions{PerPage: constants.PageSize}
	var all []T

	for {
		release, err := c.acquire(ctx)
		if err != nil {
			return nil, classify(ctx, ref, op, err)
		}
		page, resp, err := list(lo)
		release()
		if err != nil {
			return nil, classify(ctx, ref, op, err)
		}

		all = append(all, page...)

		if resp == nil || resp.NextPage == 0 {
			break
		}
		lo.Page = resp.NextPage
	}

	return all, nil
}

// repoFiles fetches head-revision contents of up to MaxRepoFiles changed
// files. A file that cannot be read is skipped; only cancellation and rate
// limiting fail the fetch.
func (c *Client) repoFiles(ctx context.Context, ref model.PRRef, sha string, files []model.FileChange) ([]model.RepoFile, error) {
	var out []model.RepoFile
	for _, f := range files {
		if len(out) >= c.opts.MaxRepoFiles {
			break
		}
		if f.Status == "removed" {
			continue
		}

		content, err := c.fileContent(ctx, ref, sha, f.Filename)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrRateLimited) {
				return nil, err
			}
			log.Debug("skipping repository file", "pr", ref.String(), "path", f.Filename, "error", err)
			continue
		}
		if file, ok := repoFile(f.Filename, content, c.opts.MaxBytesPerFile); ok {
			out = append(out, file)
		}
	}
	return out, nil
}

func (c *Client) fileContent(ctx context.Context, ref model.PRRef, sha, path string) (string, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return "", classify(ctx, ref, "contents", err)
	}
	defer release()

	fc, _, _, err := c.client.Repositories.GetContents(ctx, ref.Owner, ref.Repo, path, &gh.RepositoryContentGetOptions{Ref: sha})
	if err != nil {
		return "", classify(ctx, ref, "contents", err)
	}
	if fc == nil {
		return "", errors.New("path is a directory")
	}
	return fc.GetContent()
}
