package ghclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"github.com/spiffcs/prlens/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Options bound how hard a Client hits the API and how much repository
// context it collects.
type Options struct {
	// MaxInFlight caps concurrent API requests.
	MaxInFlight int
	// RequestsPerSecond and Burst configure the client-side rate limiter.
	RequestsPerSecond float64
	Burst             int

	RepoContext     bool
	MaxRepoFiles    int
	MaxBytesPerFile int

	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
	BaseURL string
	// HTTPClient replaces the OAuth2 client; the token is then unused.
	HTTPClient *http.Client
}

// DefaultOptions mirror the config defaults.
func DefaultOptions() Options {
	return Options{
		MaxInFlight:       4,
		RequestsPerSecond: 10,
		Burst:             5,
		RepoContext:       true,
		MaxRepoFiles:      10,
		MaxBytesPerFile:   8192,
	}
}

// Option configures a Client.
type Option func(*Options)

// WithLimits sets the concurrency and request rate bounds.
func WithLimits(maxInFlight int, rps float64, burst int) Option {
	return func(o *Options) {
		o.MaxInFlight = maxInFlight
		o.RequestsPerSecond = rps
		o.Burst = burst
	}
}

// WithRepoContext configures fetching of changed file contents.
func WithRepoContext(enabled bool, maxFiles, maxBytesPerFile int) Option {
	return func(o *Options) {
		o.RepoContext = enabled
		o.MaxRepoFiles = maxFiles
		o.MaxBytesPerFile = maxBytesPerFile
	}
}

// WithBaseURL points the client at another API endpoint.
func WithBaseURL(u string) Option {
	return func(o *Options) {
		o.BaseURL = u
	}
}

// WithHTTPClient replaces the authenticated HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = c
	}
}

// Client wraps the GitHub API client
type Client struct {
	client  *gh.Client
	state   *RateLimitState
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	opts    Options
	// token is intentionally unexported. NEVER add String(), MarshalJSON(),
	// or any method that could expose this value in logs or serialized output.
	token string
}

// NewClient creates a new GitHub client using a personal access token.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" && o.HTTPClient == nil {
		return nil, &model.ConfigError{Field: "GITHUB_TOKEN", Reason: "GitHub token not provided. Set the GITHUB_TOKEN environment variable"}
	}
	if o.MaxInFlight <= 0 {
		return nil, &model.ConfigError{Field: "github.max_in_flight", Reason: "must be positive"}
	}
	if o.RequestsPerSecond <= 0 || o.Burst <= 0 {
		return nil, &model.ConfigError{Field: "github.requests_per_second", Reason: "rate and burst must be positive"}
	}

	tc := o.HTTPClient
	if tc == nil {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(ctx, ts)
	} else {
		clone := *tc
		tc = &clone
	}

	base := tc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	state := NewRateLimitState()
	tc.Transport = &rateLimitTransport{base: base, state: state}

	client := gh.NewClient(tc)
	if o.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(o.BaseURL, "/") + "/")
		if err != nil {
			return nil, &model.ConfigError{Field: "github.base_url", Reason: err.Error()}
		}
		client.BaseURL = u
	}

	return &Client{
		client:  client,
		state:   state,
		limiter: rate.NewLimiter(rate.Limit(o.RequestsPerSecond), o.Burst),
		sem:     semaphore.NewWeighted(int64(o.MaxInFlight)),
		opts:    o,
		token:   token,
	}, nil
}

// AuthenticatedUser returns the authenticated user's login
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	user, _, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to get authenticated user: %w", err)
	}
	return user.GetLogin(), nil
}

// RateLimits fetches the current GitHub API rate limit status.
func (c *Client) RateLimits(ctx context.Context) (*gh.RateLimits, error) {
	limits, _, err := c.client.RateLimit.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limits: %w", err)
	}
	return limits, nil
}

// RateLimitStatus returns what the client has learned from response headers.
func (c *Client) RateLimitStatus() Status {
	return c.state.Status()
}

// acquire waits for a rate limiter token and an in-flight slot.
func (c *Client) acquire(ctx context.Context) (func(), error) {
	if c.state.IsLimited() {
		return nil, ErrRateLimited
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.sem.Release(1) }, nil
}

// classify maps an API error onto the pipeline's error kinds. Rate limits,
// 5xx responses and network failures are transient; 404 is not found.
func classify(ctx context.Context, ref model.PRRef, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", op, ref, ctxErr)
	}

	var rle *gh.RateLimitError
	var abuse *gh.AbuseRateLimitError
	if errors.Is(err, ErrRateLimited) || errors.As(err, &rle) || errors.As(err, &abuse) {
		return &model.FetchError{Ref: ref, Op: op, Err: errors.Join(ErrRateLimited, err)}
	}

	var er *gh.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		switch code := er.Response.StatusCode; {
		case code == http.StatusNotFound:
			return &model.NotFoundError{Ref: ref, Resource: op}
		case code == http.StatusUnauthorized:
			return &model.ConfigError{Field: "GITHUB_TOKEN", Reason: "token rejected by GitHub"}
		case code == http.StatusTooManyRequests || code >= 500:
			return &model.FetchError{Ref: ref, Op: op, Err: err}
		default:
			return fmt.Errorf("%s %s: %w", op, ref, err)
		}
	}

	// transport-level failure
	return &model.FetchError{Ref: ref, Op: op, Err: err}
}
