package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spiffcs/prlens/config"
	"github.com/spiffcs/prlens/internal/cache"
	"github.com/spiffcs/prlens/internal/format"
	"github.com/spiffcs/prlens/internal/ghclient"
	"github.com/spiffcs/prlens/internal/log"
	"github.com/spiffcs/prlens/internal/metrics"
	"github.com/spiffcs/prlens/internal/model"
	"golang.org/x/sync/errgroup"
)

// fetchOptions configures the fetch command.
type fetchOptions struct {
	Out       string
	NoCache   bool
	Verbosity int
}

// NewCmdFetch creates the fetch command.
func NewCmdFetch() *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch <owner/repo#number>...",
		Short: "Download pull request data for offline analysis",
		Long: `Fetches pull requests from GitHub and writes their raw data as JSON.
The output can be analyzed later with 'prlens analyze --from-file'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "Bypass the pull request cache")
	cmd.Flags().CountVarP(&opts.Verbosity, "verbose", "v", "Increase verbosity (-v info, -vv debug, -vvv trace)")
	return cmd
}

func runFetch(cmd *cobra.Command, opts *fetchOptions, args []string) error {
	ctx := cmd.Context()
	log.Initialize(opts.Verbosity, os.Stderr)

	refs, err := parseRefs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}

	token := cfg.GetGitHubToken()
	if token == "" {
		return fmt.Errorf("GitHub token not configured. Set the GITHUB_TOKEN environment variable")
	}
	client, err := ghclient.NewClient(ctx, token,
		ghclient.WithLimits(settings.GitHub.MaxInFlight, settings.GitHub.RequestsPerSecond, settings.GitHub.Burst),
		ghclient.WithRepoContext(settings.RepoContext.Enabled, settings.RepoContext.MaxFiles, settings.RepoContext.MaxBytesPerFile),
	)
	if err != nil {
		return err
	}

	store := ghclient.NewStore(client, nil)
	if settings.GitHub.Cache && !opts.NoCache {
		c, err := cache.NewDefault(settings.GitHub.CacheTTL)
		if err != nil {
			log.Warn("failed to initialize cache", "error", err)
		} else {
			store = ghclient.NewStore(client, c)
		}
	}

	prs, err := fetchAll(ctx, store, refs)
	if err != nil {
		return err
	}

	th := metrics.SizeThresholds{
		XS: settings.Metrics.SizeXS,
		S:  settings.Metrics.SizeS,
		M:  settings.Metrics.SizeM,
		L:  settings.Metrics.SizeL,
	}
	for _, pr := range prs {
		add, del := format.LineTotals(pr.Files)
		fmt.Fprintf(cmd.ErrOrStderr(), "%s  %s  %d records, %d comments, %d files  %s\n",
			pr.Ref.String(), format.SizeBadge(metrics.Size(pr.Files, th), add, del),
			len(pr.Records), len(pr.Comments), len(pr.Files), format.FirstLine(pr.Title))
	}

	if opts.Out == "" {
		return writeRawPRs(cmd.OutOrStdout(), prs)
	}
	f, err := os.Create(opts.Out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.Out, err)
	}
	if err := writeRawPRs(f, prs); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// fetchAll fetches refs concurrently; the client bounds requests in flight.
// The first failure aborts the rest.
func fetchAll(ctx context.Context, store *ghclient.Store, refs []model.PRRef) ([]model.RawPR, error) {
	prs := make([]model.RawPR, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			pr, err := store.FetchPR(ctx, ref)
			if err != nil {
				return fmt.Errorf("%s: %w", ref.String(), err)
			}
			prs[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return prs, nil
}

// writeRawPRs writes a single PR as an object and several as an array, the
// two shapes --from-file accepts.
func writeRawPRs(w io.Writer, prs []model.RawPR) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(prs) == 1 {
		return enc.Encode(prs[0])
	}
	return enc.Encode(prs)
}
