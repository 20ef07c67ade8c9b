package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spiffcs/prlens/internal/duration"
	"github.com/spiffcs/prlens/internal/model"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration file. Every section is
// optional; unset values fall back to DefaultSettings.
type Config struct {
	DefaultFormat string   `yaml:"default_format,omitempty"`
	Bots          []string `yaml:"bots,omitempty"`

	GitHub      *GitHubOverrides      `yaml:"github,omitempty"`
	Model       *ModelOverrides       `yaml:"model,omitempty"`
	Budget      *BudgetOverrides      `yaml:"budget,omitempty"`
	Threads     *ThreadOverrides      `yaml:"threads,omitempty"`
	Metrics     *MetricOverrides      `yaml:"metrics,omitempty"`
	Batch       *BatchOverrides       `yaml:"batch,omitempty"`
	RepoContext *RepoContextOverrides `yaml:"repo_context,omitempty"`
}

// GitHubOverrides - GitHub API access
type GitHubOverrides struct {
	MaxInFlight       *int     `yaml:"max_in_flight,omitempty"`
	RequestsPerSecond *float64 `yaml:"requests_per_second,omitempty"`
	Burst             *int     `yaml:"burst,omitempty"`
	RetryAttempts     *int     `yaml:"retry_attempts,omitempty"`
	RetryInitialDelay *string  `yaml:"retry_initial_delay,omitempty"`
	RetryMaxDelay     *string  `yaml:"retry_max_delay,omitempty"`
	Cache             *bool    `yaml:"cache,omitempty"`
	CacheTTL          *string  `yaml:"cache_ttl,omitempty"`
}

// ModelOverrides - language model backend
type ModelOverrides struct {
	Provider    *string  `yaml:"provider,omitempty"`
	Name        *string  `yaml:"name,omitempty"`
	ServerURL   *string  `yaml:"server_url,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
	Timeout     *string  `yaml:"timeout,omitempty"`
	MaxInFlight *int     `yaml:"max_in_flight,omitempty"`
	MaxAttempts *int     `yaml:"max_attempts,omitempty"`
}

// BudgetOverrides - context window budget
type BudgetOverrides struct {
	Tokens        *int `yaml:"tokens,omitempty"`
	CharsPerToken *int `yaml:"chars_per_token,omitempty"`
	MaxDiffFiles  *int `yaml:"max_diff_files,omitempty"`
}

// ThreadOverrides - conversation reconstruction
type ThreadOverrides struct {
	AnchorWindow *string `yaml:"anchor_window,omitempty"`
}

// MetricOverrides - size classes and activity periods
type MetricOverrides struct {
	SizeXS      *int    `yaml:"size_xs,omitempty"`
	SizeS       *int    `yaml:"size_s,omitempty"`
	SizeM       *int    `yaml:"size_m,omitempty"`
	SizeL       *int    `yaml:"size_l,omitempty"`
	ActivityGap *string `yaml:"activity_gap,omitempty"`
}

// BatchOverrides - batch execution
type BatchOverrides struct {
	Workers *int `yaml:"workers,omitempty"`
}

// RepoContextOverrides - repository context fetched for the model
type RepoContextOverrides struct {
	Enabled         *bool `yaml:"enabled,omitempty"`
	MaxFiles        *int  `yaml:"max_files,omitempty"`
	MaxBytesPerFile *int  `yaml:"max_bytes_per_file,omitempty"`
}

// Settings is the resolved, immutable run configuration threaded through
// every pipeline call.
type Settings struct {
	DefaultFormat string
	Bots          []string
	GitHub        GitHubSettings
	Model         ModelSettings
	Budget        BudgetSettings
	Threads       ThreadSettings
	Metrics       MetricSettings
	Batch         BatchSettings
	RepoContext   RepoContextSettings
}

// GitHubSettings bound traffic toward the GitHub API.
type GitHubSettings struct {
	MaxInFlight       int
	RequestsPerSecond float64
	Burst             int
	RetryAttempts     int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	Cache             bool
	CacheTTL          time.Duration
}

// ProviderNone disables insight synthesis; reports carry metrics only.
const ProviderNone = "none"

// ModelSettings configure the language model backend.
type ModelSettings struct {
	Provider    string
	Name        string
	ServerURL   string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxInFlight int
	MaxAttempts int
}

// BudgetSettings configure the context budgeter.
type BudgetSettings struct {
	Tokens        int
	CharsPerToken int
	MaxDiffFiles  int
}

// ThreadSettings configure conversation reconstruction.
type ThreadSettings struct {
	AnchorWindow time.Duration
}

// MetricSettings configure size classes and activity periods.
type MetricSettings struct {
	SizeXS      int // <= this = XS
	SizeS       int // <= this = S
	SizeM       int // <= this = M
	SizeL       int // <= this = L (> this = XL)
	ActivityGap time.Duration
}

// BatchSettings configure batch execution.
type BatchSettings struct {
	Workers int
}

// RepoContextSettings bound the repository context fetched per PR.
type RepoContextSettings struct {
	Enabled         bool
	MaxFiles        int
	MaxBytesPerFile int
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		DefaultFormat: "markdown",
		Bots:          []string{},
		GitHub: GitHubSettings{
			MaxInFlight:       4,
			RequestsPerSecond: 10,
			Burst:             5,
			RetryAttempts:     3,
			RetryInitialDelay: time.Second,
			RetryMaxDelay:     30 * time.Second,
			Cache:             true,
			CacheTTL:          24 * time.Hour,
		},
		Model: ModelSettings{
			Provider:    "ollama",
			Name:        "llama3:latest",
			ServerURL:   "http://localhost:11434",
			Temperature: 0.1,
			MaxTokens:   2048,
			Timeout:     5 * time.Minute,
			MaxInFlight: 1,
			MaxAttempts: 3,
		},
		Budget: BudgetSettings{
			Tokens:        6000,
			CharsPerToken: 4,
			MaxDiffFiles:  30,
		},
		Threads: ThreadSettings{
			AnchorWindow: 10 * time.Minute,
		},
		Metrics: MetricSettings{
			SizeXS:      10,
			SizeS:       50,
			SizeM:       200,
			SizeL:       500,
			ActivityGap: 24 * time.Hour,
		},
		Batch: BatchSettings{
			Workers: 4,
		},
		RepoContext: RepoContextSettings{
			Enabled:         true,
			MaxFiles:        10,
			MaxBytesPerFile: 8 * 1024,
		},
	}
}

// Settings resolves the config onto DefaultSettings and validates the
// result. Every problem is reported as a *model.ConfigError.
func (c *Config) Settings() (Settings, error) {
	s := DefaultSettings()

	if c.DefaultFormat != "" {
		s.DefaultFormat = c.DefaultFormat
	}
	if len(c.Bots) > 0 {
		s.Bots = append([]string(nil), c.Bots...)
	}

	var errs []error
	parse := func(field string, src *string, dst *time.Duration) {
		if src == nil {
			return
		}
		d, err := duration.Parse(*src)
		if err != nil {
			errs = append(errs, &model.ConfigError{Field: field, Reason: err.Error()})
			return
		}
		*dst = d
	}

	if g := c.GitHub; g != nil {
		set(&s.GitHub.MaxInFlight, g.MaxInFlight)
		set(&s.GitHub.RequestsPerSecond, g.RequestsPerSecond)
		set(&s.GitHub.Burst, g.Burst)
		set(&s.GitHub.RetryAttempts, g.RetryAttempts)
		parse("github.retry_initial_delay", g.RetryInitialDelay, &s.GitHub.RetryInitialDelay)
		parse("github.retry_max_delay", g.RetryMaxDelay, &s.GitHub.RetryMaxDelay)
		set(&s.GitHub.Cache, g.Cache)
		parse("github.cache_ttl", g.CacheTTL, &s.GitHub.CacheTTL)
	}

	if m := c.Model; m != nil {
		set(&s.Model.Provider, m.Provider)
		set(&s.Model.Name, m.Name)
		set(&s.Model.ServerURL, m.ServerURL)
		set(&s.Model.Temperature, m.Temperature)
		set(&s.Model.MaxTokens, m.MaxTokens)
		parse("model.timeout", m.Timeout, &s.Model.Timeout)
		set(&s.Model.MaxInFlight, m.MaxInFlight)
		set(&s.Model.MaxAttempts, m.MaxAttempts)
	}

	if b := c.Budget; b != nil {
		set(&s.Budget.Tokens, b.Tokens)
		set(&s.Budget.CharsPerToken, b.CharsPerToken)
		set(&s.Budget.MaxDiffFiles, b.MaxDiffFiles)
	}

	if t := c.Threads; t != nil {
		parse("threads.anchor_window", t.AnchorWindow, &s.Threads.AnchorWindow)
	}

	if m := c.Metrics; m != nil {
		set(&s.Metrics.SizeXS, m.SizeXS)
		set(&s.Metrics.SizeS, m.SizeS)
		set(&s.Metrics.SizeM, m.SizeM)
		set(&s.Metrics.SizeL, m.SizeL)
		parse("metrics.activity_gap", m.ActivityGap, &s.Metrics.ActivityGap)
	}

	if b := c.Batch; b != nil {
		set(&s.Batch.Workers, b.Workers)
	}

	if r := c.RepoContext; r != nil {
		set(&s.RepoContext.Enabled, r.Enabled)
		set(&s.RepoContext.MaxFiles, r.MaxFiles)
		set(&s.RepoContext.MaxBytesPerFile, r.MaxBytesPerFile)
	}

	if len(errs) > 0 {
		return Settings{}, errs[0]
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Validate checks the settings for values no run can work with.
func (s Settings) Validate() error {
	positive := []struct {
		field string
		value int
	}{
		{"github.max_in_flight", s.GitHub.MaxInFlight},
		{"github.burst", s.GitHub.Burst},
		{"github.retry_attempts", s.GitHub.RetryAttempts},
		{"model.max_in_flight", s.Model.MaxInFlight},
		{"model.max_attempts", s.Model.MaxAttempts},
		{"budget.tokens", s.Budget.Tokens},
		{"budget.chars_per_token", s.Budget.CharsPerToken},
		{"batch.workers", s.Batch.Workers},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &model.ConfigError{Field: p.field, Reason: fmt.Sprintf("must be positive, got %d", p.value)}
		}
	}

	if s.GitHub.RequestsPerSecond <= 0 {
		return &model.ConfigError{Field: "github.requests_per_second", Reason: "must be positive"}
	}
	if s.Model.Temperature < 0 || s.Model.Temperature > 2 {
		return &model.ConfigError{Field: "model.temperature", Reason: fmt.Sprintf("must be between 0 and 2, got %g", s.Model.Temperature)}
	}
	switch s.Model.Provider {
	case "ollama", "openai", ProviderNone:
	default:
		return &model.ConfigError{Field: "model.provider", Reason: fmt.Sprintf("unknown provider %q (use ollama, openai or none)", s.Model.Provider)}
	}
	if s.Threads.AnchorWindow < 0 {
		return &model.ConfigError{Field: "threads.anchor_window", Reason: "must not be negative"}
	}
	if !(s.Metrics.SizeXS < s.Metrics.SizeS && s.Metrics.SizeS < s.Metrics.SizeM && s.Metrics.SizeM < s.Metrics.SizeL) {
		return &model.ConfigError{Field: "metrics", Reason: "size thresholds must be strictly increasing"}
	}
	if s.RepoContext.Enabled && (s.RepoContext.MaxFiles <= 0 || s.RepoContext.MaxBytesPerFile <= 0) {
		return &model.ConfigError{Field: "repo_context", Reason: "max_files and max_bytes_per_file must be positive when enabled"}
	}
	return nil
}

// DefaultConfigDir returns the default config directory
func DefaultConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ".prlens"
	}
	return filepath.Join(configDir, "prlens")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LocalConfigPath returns the path to the local config file in the current directory
func LocalConfigPath() string {
	return ".prlens.yaml"
}

// Load loads the configuration from disk.
// It first loads the global config from the user config directory, then
// merges any local .prlens.yaml on top (local values take precedence).
func Load() (*Config, error) {
	return LoadFrom(ConfigPath(), LocalConfigPath())
}

// LoadFrom loads and merges the given global and local config files.
// Missing files are skipped.
func LoadFrom(globalPath, localPath string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(globalPath); err == nil {
		data, err := os.ReadFile(globalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read global config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse global config file: %w", err)
		}
	}

	if _, err := os.Stat(localPath); err == nil {
		data, err := os.ReadFile(localPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read local config file: %w", err)
		}

		var localCfg Config
		if err := yaml.Unmarshal(data, &localCfg); err != nil {
			return nil, fmt.Errorf("failed to parse local config file: %w", err)
		}

		cfg = mergeConfig(cfg, &localCfg)
	}

	return cfg, nil
}

// mergeConfig merges local config on top of global config.
// Local values take precedence; unset local values preserve global values.
func mergeConfig(global, local *Config) *Config {
	result := &Config{
		DefaultFormat: global.DefaultFormat,
		Bots:          global.Bots,
	}
	if local.DefaultFormat != "" {
		result.DefaultFormat = local.DefaultFormat
	}
	// lists are replaced, not appended
	if len(local.Bots) > 0 {
		result.Bots = local.Bots
	}

	result.GitHub = mergeSection(global.GitHub, local.GitHub, func(r, l *GitHubOverrides) {
		pick(&r.MaxInFlight, l.MaxInFlight)
		pick(&r.RequestsPerSecond, l.RequestsPerSecond)
		pick(&r.Burst, l.Burst)
		pick(&r.RetryAttempts, l.RetryAttempts)
		pick(&r.RetryInitialDelay, l.RetryInitialDelay)
		pick(&r.RetryMaxDelay, l.RetryMaxDelay)
		pick(&r.Cache, l.Cache)
		pick(&r.CacheTTL, l.CacheTTL)
	})
	result.Model = mergeSection(global.Model, local.Model, func(r, l *ModelOverrides) {
		pick(&r.Provider, l.Provider)
		pick(&r.Name, l.Name)
		pick(&r.ServerURL, l.ServerURL)
		pick(&r.Temperature, l.Temperature)
		pick(&r.MaxTokens, l.MaxTokens)
		pick(&r.Timeout, l.Timeout)
		pick(&r.MaxInFlight, l.MaxInFlight)
		pick(&r.MaxAttempts, l.MaxAttempts)
	})
	result.Budget = mergeSection(global.Budget, local.Budget, func(r, l *BudgetOverrides) {
		pick(&r.Tokens, l.Tokens)
		pick(&r.CharsPerToken, l.CharsPerToken)
		pick(&r.MaxDiffFiles, l.MaxDiffFiles)
	})
	result.Threads = mergeSection(global.Threads, local.Threads, func(r, l *ThreadOverrides) {
		pick(&r.AnchorWindow, l.AnchorWindow)
	})
	result.Metrics = mergeSection(global.Metrics, local.Metrics, func(r, l *MetricOverrides) {
		pick(&r.SizeXS, l.SizeXS)
		pick(&r.SizeS, l.SizeS)
		pick(&r.SizeM, l.SizeM)
		pick(&r.SizeL, l.SizeL)
		pick(&r.ActivityGap, l.ActivityGap)
	})
	result.Batch = mergeSection(global.Batch, local.Batch, func(r, l *BatchOverrides) {
		pick(&r.Workers, l.Workers)
	})
	result.RepoContext = mergeSection(global.RepoContext, local.RepoContext, func(r, l *RepoContextOverrides) {
		pick(&r.Enabled, l.Enabled)
		pick(&r.MaxFiles, l.MaxFiles)
		pick(&r.MaxBytesPerFile, l.MaxBytesPerFile)
	})

	return result
}

// mergeSection copies global and lets overlay apply the set local fields.
func mergeSection[T any](global, local *T, overlay func(result, local *T)) *T {
	if global == nil && local == nil {
		return nil
	}
	result := new(T)
	if global != nil {
		*result = *global
	}
	if local != nil {
		overlay(result, local)
	}
	return result
}

func pick[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

// Save saves the configuration to the global config file.
func (c *Config) Save() error {
	return c.SaveAs(ConfigPath())
}

// SaveAs writes the configuration to path.
func (c *Config) SaveAs(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return SaveTo(path, string(data))
}

// GetGitHubToken returns the GitHub token from the GITHUB_TOKEN environment variable.
// Tokens are only read from the environment, never from config files.
func (c *Config) GetGitHubToken() string {
	return os.Getenv("GITHUB_TOKEN")
}

// DefaultConfig returns a fully populated config with all default values.
// This is useful for generating a complete config file template.
func DefaultConfig() *Config {
	s := DefaultSettings()
	str := func(d time.Duration) *string {
		v := duration.Format(d)
		return &v
	}

	return &Config{
		DefaultFormat: s.DefaultFormat,
		Bots:          s.Bots,
		GitHub: &GitHubOverrides{
			MaxInFlight:       &s.GitHub.MaxInFlight,
			RequestsPerSecond: &s.GitHub.RequestsPerSecond,
			Burst:             &s.GitHub.Burst,
			RetryAttempts:     &s.GitHub.RetryAttempts,
			RetryInitialDelay: str(s.GitHub.RetryInitialDelay),
			RetryMaxDelay:     str(s.GitHub.RetryMaxDelay),
			Cache:             &s.GitHub.Cache,
			CacheTTL:          str(s.GitHub.CacheTTL),
		},
		Model: &ModelOverrides{
			Provider:    &s.Model.Provider,
			Name:        &s.Model.Name,
			ServerURL:   &s.Model.ServerURL,
			Temperature: &s.Model.Temperature,
			MaxTokens:   &s.Model.MaxTokens,
			Timeout:     str(s.Model.Timeout),
			MaxInFlight: &s.Model.MaxInFlight,
			MaxAttempts: &s.Model.MaxAttempts,
		},
		Budget: &BudgetOverrides{
			Tokens:        &s.Budget.Tokens,
			CharsPerToken: &s.Budget.CharsPerToken,
			MaxDiffFiles:  &s.Budget.MaxDiffFiles,
		},
		Threads: &ThreadOverrides{
			AnchorWindow: str(s.Threads.AnchorWindow),
		},
		Metrics: &MetricOverrides{
			SizeXS:      &s.Metrics.SizeXS,
			SizeS:       &s.Metrics.SizeS,
			SizeM:       &s.Metrics.SizeM,
			SizeL:       &s.Metrics.SizeL,
			ActivityGap: str(s.Metrics.ActivityGap),
		},
		Batch: &BatchOverrides{
			Workers: &s.Batch.Workers,
		},
		RepoContext: &RepoContextOverrides{
			Enabled:         &s.RepoContext.Enabled,
			MaxFiles:        &s.RepoContext.MaxFiles,
			MaxBytesPerFile: &s.RepoContext.MaxBytesPerFile,
		},
	}
}

// ToYAML returns the config as a YAML string
func (c *Config) ToYAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

// Set assigns a single dotted key, e.g. "model.name" or "batch.workers".
func (c *Config) Set(key, value string) error {
	if strings.EqualFold(key, "token") || strings.HasSuffix(key, ".token") {
		return fmt.Errorf("tokens cannot be stored in config files. Set the GITHUB_TOKEN environment variable instead")
	}
	if key == "format" {
		key = "default_format"
	}

	// Decode the value through YAML so numbers and booleans keep their types.
	section, field, nested := strings.Cut(key, ".")
	var doc map[string]any
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	if !nested {
		doc[section] = parsed
	} else {
		sub, _ := doc[section].(map[string]any)
		if sub == nil {
			sub = map[string]any{}
		}
		sub[field] = parsed
		doc[section] = sub
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	var updated Config
	dec := yaml.NewDecoder(strings.NewReader(string(out)))
	dec.KnownFields(true)
	if err := dec.Decode(&updated); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if _, err := updated.Settings(); err != nil {
		return err
	}

	*c = updated
	return nil
}

// ConfigPathInfo contains information about config file paths
type ConfigPathInfo struct {
	GlobalPath   string
	GlobalExists bool
	LocalPath    string
	LocalExists  bool
}

// GetConfigPaths returns path info for both global and local configs
func GetConfigPaths() ConfigPathInfo {
	globalPath := ConfigPath()
	localPath := LocalConfigPath()

	// Get absolute path for local config
	absLocalPath, err := filepath.Abs(localPath)
	if err != nil {
		absLocalPath = localPath
	}

	_, globalErr := os.Stat(globalPath)
	_, localErr := os.Stat(localPath)

	return ConfigPathInfo{
		GlobalPath:   globalPath,
		GlobalExists: globalErr == nil,
		LocalPath:    absLocalPath,
		LocalExists:  localErr == nil,
	}
}

// MinimalConfig returns a minimal config template with comments
func MinimalConfig() string {
	return `# prlens configuration file
# See: prlens config defaults  (for all available options)

# Output format: markdown, json or table
default_format: markdown

# Accounts treated as bots in addition to any login ending in [bot]
# bots:
#   - my-ci-user

# Language model backend (ollama or openai; OPENAI_API_KEY is read from the environment)
# model:
#   provider: ollama
#   name: llama3:latest
#   server_url: http://localhost:11434

# Context budget in tokens
# budget:
#   tokens: 6000

# Concurrent PR analyses
# batch:
#   workers: 4
`
}

// SaveTo writes content to a specific path, creating directories as needed
func SaveTo(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}
