package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spiffcs/prlens/config"
	"github.com/spiffcs/prlens/internal/cache"
	"github.com/spiffcs/prlens/internal/format"
)

// NewCmdCache creates the cache command with subcommands.
func NewCmdCache() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the pull request cache",
	}

	cmd.AddCommand(newCmdCacheClear())
	cmd.AddCommand(newCmdCacheStats())

	return cmd
}

// newCmdCacheClear creates the cache clear subcommand.
func newCmdCacheClear() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached pull request",
		RunE:  runCacheClear,
	}
}

// newCmdCacheStats creates the cache stats subcommand.
func newCmdCacheStats() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE:  runCacheStats,
	}
}

// openCache opens the default cache with the configured TTL.
func openCache() (*cache.Cache, config.Settings, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, config.Settings{}, err
	}
	c, err := cache.NewDefault(settings.GitHub.CacheTTL)
	if err != nil {
		return nil, config.Settings{}, fmt.Errorf("failed to access cache: %w", err)
	}
	return c, settings, nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	c, _, err := openCache()
	if err != nil {
		return err
	}

	if err := c.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
	return nil
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	c, settings, err := openCache()
	if err != nil {
		return err
	}

	stats, err := c.Stats()
	if err != nil {
		return fmt.Errorf("failed to get cache stats: %w", err)
	}

	ttl := "none"
	if settings.GitHub.CacheTTL > 0 {
		ttl = format.FormatSpan(settings.GitHub.CacheTTL)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cache statistics:\n")
	fmt.Fprintf(out, "  Directory: %s\n", c.Dir())
	fmt.Fprintf(out, "  Pull requests (TTL: %s):\n", ttl)
	fmt.Fprintf(out, "    Total:   %d\n", stats.Total)
	fmt.Fprintf(out, "    Valid:   %d\n", stats.Valid)
	fmt.Fprintf(out, "    Expired: %d\n", stats.Stale)
	fmt.Fprintf(out, "  Size: %.1f KiB\n", float64(stats.Bytes)/1024)
	return nil
}
