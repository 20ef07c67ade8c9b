package cmd

// Options holds the shared command-line options for the prlens CLI.
type Options struct {
	Format    string
	Verbosity int
	Workers   int

	// Overrides applied on top of the resolved configuration. Zero values
	// keep the configured setting.
	Budget        int
	Model         string
	Provider      string
	AnchorWindow  string
	NoRepoContext bool
	NoCache       bool

	FromFiles []string // Analyze saved `prlens fetch` dumps instead of calling GitHub
	OutDir    string   // Write one report file per PR instead of printing
	Progress  ProgressMode
}

// Option is a functional option for configuring Options.
type Option func(*Options)

// NewOptions creates a new Options with defaults and applies any provided options.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		Progress: ProgressAuto,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithFormat sets the output format (markdown, json, table).
func WithFormat(format string) Option {
	return func(o *Options) {
		o.Format = format
	}
}

// WithVerbosity sets the verbosity level.
func WithVerbosity(v int) Option {
	return func(o *Options) {
		o.Verbosity = v
	}
}

// WithWorkers sets the number of pull requests analyzed concurrently.
func WithWorkers(workers int) Option {
	return func(o *Options) {
		o.Workers = workers
	}
}

// WithBudget sets the model context budget in tokens.
func WithBudget(tokens int) Option {
	return func(o *Options) {
		o.Budget = tokens
	}
}

// WithModel selects the provider and model name.
func WithModel(provider, name string) Option {
	return func(o *Options) {
		o.Provider = provider
		o.Model = name
	}
}

// WithFromFiles analyzes saved pull request dumps.
func WithFromFiles(paths ...string) Option {
	return func(o *Options) {
		o.FromFiles = paths
	}
}

// WithOutDir writes reports into dir.
func WithOutDir(dir string) Option {
	return func(o *Options) {
		o.OutDir = dir
	}
}

// WithProgress sets the progress display mode.
func WithProgress(mode ProgressMode) Option {
	return func(o *Options) {
		o.Progress = mode
	}
}
