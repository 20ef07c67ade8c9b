package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/spf13/cobra"
	"github.com/spiffcs/prlens/config"
	"github.com/spiffcs/prlens/internal/ghclient"
)

// NewCmdRateLimit creates the ratelimit command.
func NewCmdRateLimit() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Check GitHub API rate limit status",
		Long: `Display current GitHub API rate limit status including remaining quota and reset time.
Analyzing one pull request costs roughly one request per page of commits,
reviews, comments, files and timeline events.`,
	}
	cmd.AddCommand(NewCmdRateLimitStatus())
	return cmd
}

// NewCmdRateLimitStatus creates the ratelimit status subcommand.
func NewCmdRateLimitStatus() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current rate limit status",
		Long:  `Display the current GitHub API rate limit status for the core and GraphQL APIs.`,
		RunE:  runRateLimitStatus,
	}
}

func runRateLimitStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	token := cfg.GetGitHubToken()
	if token == "" {
		return fmt.Errorf("GitHub token not configured. Set the GITHUB_TOKEN environment variable")
	}

	client, err := ghclient.NewClient(cmd.Context(), token)
	if err != nil {
		return err
	}

	limits, err := client.RateLimits(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get rate limits: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "GitHub API Rate Limits:")
	fmt.Fprintln(out)
	printRate(out, "Core API:", limits.Core)
	printRate(out, "GraphQL:", limits.GraphQL)

	return nil
}

func printRate(out io.Writer, label string, r *github.Rate) {
	if r == nil {
		return
	}
	resetIn := max(time.Until(r.Reset.Time).Round(time.Second), 0)
	fmt.Fprintf(out, "%-11s %d/%d remaining (resets in %s)\n", label, r.Remaining, r.Limit, resetIn)
}
