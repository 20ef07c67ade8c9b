package cmd

import (
	"github.com/spf13/cobra"
)

// New creates the root command with all subcommands registered.
func New() *cobra.Command {
	opts := NewOptions()

	rootCmd := &cobra.Command{
		Use:   "prlens [owner/repo#number]...",
		Short: "Pull request review analysis",
		Long: `A CLI tool that analyzes GitHub pull requests: it rebuilds the review
timeline and conversations, computes review metrics, and uses a language
model to point out mistakes and recommendations.`,
		// PR refs are positional, so unknown words are not subcommand typos
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	// Add analyze flags to root command so `prlens` and `prlens analyze` work identically
	addAnalyzeFlags(rootCmd, opts)

	// Register subcommands
	rootCmd.AddCommand(NewCmdAnalyze(opts))
	rootCmd.AddCommand(NewCmdFetch())
	rootCmd.AddCommand(NewCmdConfig())
	rootCmd.AddCommand(NewCmdCache())
	rootCmd.AddCommand(NewCmdVersion())
	rootCmd.AddCommand(NewCmdRateLimit())

	return rootCmd
}
