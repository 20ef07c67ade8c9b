package cmd

import (
	"fmt"

	"github.com/spiffcs/prlens/internal/tui"
)

// ProgressMode selects how batch progress is displayed.
type ProgressMode string

const (
	ProgressAuto  ProgressMode = "auto"
	ProgressTUI   ProgressMode = "tui"
	ProgressPlain ProgressMode = "plain"
)

// progressFlag implements pflag.Value for the progress mode.
type progressFlag struct {
	opts *Options
}

// newProgressFlag creates a new progressFlag with the given options.
func newProgressFlag(opts *Options) *progressFlag {
	return &progressFlag{opts: opts}
}

func (f *progressFlag) String() string {
	if f.opts.Progress == "" {
		return string(ProgressAuto)
	}
	return string(f.opts.Progress)
}

func (f *progressFlag) Set(s string) error {
	switch mode := ProgressMode(s); mode {
	case ProgressAuto, ProgressTUI, ProgressPlain:
		f.opts.Progress = mode
	default:
		return fmt.Errorf("invalid value %q: use auto, tui, or plain", s)
	}
	return nil
}

func (f *progressFlag) Type() string {
	return "mode"
}

// shouldUseTUI determines whether to use TUI based on options.
func shouldUseTUI(opts *Options) bool {
	// Disable TUI when verbose logging is requested so logs are visible
	if opts.Verbosity > 0 {
		return false
	}
	switch opts.Progress {
	case ProgressTUI:
		return true
	case ProgressPlain:
		return false
	default:
		return tui.ShouldUseTUI()
	}
}
