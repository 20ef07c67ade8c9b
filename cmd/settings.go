package cmd

import (
	"fmt"

	"github.com/spiffcs/prlens/config"
	"github.com/spiffcs/prlens/internal/duration"
	"github.com/spiffcs/prlens/internal/model"
)

// resolveSettings merges command-line overrides onto the configuration.
// Flags win over both config files.
func resolveSettings(cfg *config.Config, opts *Options) (config.Settings, error) {
	s, err := cfg.Settings()
	if err != nil {
		return config.Settings{}, err
	}

	if opts.Format != "" {
		s.DefaultFormat = opts.Format
	}
	if opts.Workers != 0 {
		s.Batch.Workers = opts.Workers
	}
	if opts.Budget != 0 {
		s.Budget.Tokens = opts.Budget
	}
	if opts.Provider != "" {
		s.Model.Provider = opts.Provider
	}
	if opts.Model != "" {
		s.Model.Name = opts.Model
	}
	if opts.AnchorWindow != "" {
		d, err := duration.Parse(opts.AnchorWindow)
		if err != nil {
			return config.Settings{}, &model.ConfigError{Field: "anchor-window", Reason: err.Error()}
		}
		s.Threads.AnchorWindow = d
	}
	if opts.NoRepoContext {
		s.RepoContext.Enabled = false
	}
	if opts.NoCache {
		s.GitHub.Cache = false
	}

	if err := s.Validate(); err != nil {
		return config.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
