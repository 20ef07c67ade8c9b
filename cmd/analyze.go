package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spiffcs/prlens/config"
	"github.com/spiffcs/prlens/internal/cache"
	"github.com/spiffcs/prlens/internal/constants"
	"github.com/spiffcs/prlens/internal/ghclient"
	"github.com/spiffcs/prlens/internal/insight"
	"github.com/spiffcs/prlens/internal/log"
	"github.com/spiffcs/prlens/internal/model"
	"github.com/spiffcs/prlens/internal/output"
	"github.com/spiffcs/prlens/internal/pipeline"
	"github.com/spiffcs/prlens/internal/tui"
)

// analyzeRuntime bundles TUI-related state that's threaded through the analyze command.
type analyzeRuntime struct {
	useTUI  bool
	events  chan tui.Event
	tuiDone chan error
	cancel  context.CancelFunc
}

// startTUI initializes and starts the TUI goroutine if TUI mode is enabled.
// Quitting the TUI early cancels the batch.
func (rt *analyzeRuntime) startTUI(prs []string, offline bool) {
	if !rt.useTUI {
		return
	}
	tasks := tui.DefaultTasks()
	if offline {
		tasks = tui.OfflineTasks()
	}
	rt.events = make(chan tui.Event, tui.EventBuffer(len(prs)))
	rt.tuiDone = make(chan error, 1)
	go func() {
		err := tui.Run(rt.events, tui.WithTasks(tasks), tui.WithPRs(prs))
		if errors.Is(err, tui.ErrInterrupted) {
			rt.cancel()
		}
		rt.tuiDone <- err
	}()
}

// close closes the event channel and waits for the TUI to finish.
func (rt *analyzeRuntime) close() {
	if rt.events == nil {
		return
	}
	tui.SendEvent(rt.events, tui.DoneEvent{})
	time.Sleep(constants.TUIDoneDelay)
	closeTUI(rt.events, rt.tuiDone)
	rt.events = nil
}

// sendEvent sends a task event to the TUI channel if it exists.
func (rt *analyzeRuntime) sendEvent(task tui.TaskID, status tui.TaskStatus, opts ...tui.TaskEventOption) {
	tui.SendTaskEvent(rt.events, task, status, opts...)
}

// closeTUI closes the event channel and waits for the TUI goroutine to finish.
func closeTUI(events chan tui.Event, done chan error) {
	if events == nil {
		return
	}
	close(events)
	if err := <-done; err != nil && !errors.Is(err, tui.ErrInterrupted) {
		log.Warn("progress display failed", "error", err)
	}
}

// NewCmdAnalyze creates the analyze command.
func NewCmdAnalyze(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [owner/repo#number | PR URL]...",
		Short: "Analyze pull requests (same as root prlens)",
		Long: `Fetches each pull request's timeline, reconstructs its review
conversations, computes review metrics, and asks a language model for
insights. Reports are printed to stdout or written to --out-dir.

Pull requests are given as owner/repo#number, owner/repo/number or a
github.com pull request URL. With --from-file, saved 'prlens fetch' dumps
are analyzed instead and no GitHub token is needed.`,
		Example: `  prlens analyze spiffcs/prlens#42
  prlens analyze -o json https://github.com/spiffcs/prlens/pull/42
  prlens analyze --provider none --from-file prs.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, args)
		},
	}

	addAnalyzeFlags(cmd, opts)
	return cmd
}

// addAnalyzeFlags adds the analyze-specific flags to a command.
func addAnalyzeFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVarP(&opts.Format, "output", "o", "", "Output format (markdown, json, table)")
	cmd.Flags().CountVarP(&opts.Verbosity, "verbose", "v", "Increase verbosity (-v info, -vv debug, -vvv trace)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "Number of pull requests analyzed concurrently")
	cmd.Flags().IntVar(&opts.Budget, "budget", 0, "Model context budget in tokens")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "Model provider (ollama, openai, none)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "Model name")
	cmd.Flags().StringVar(&opts.AnchorWindow, "anchor-window", "", "Group unlinked comments on the same line within this window (e.g., 30m, 2h)")
	cmd.Flags().BoolVar(&opts.NoRepoContext, "no-repo-context", false, "Do not fetch repository file contents for the model")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "Always fetch pull requests from GitHub")
	cmd.Flags().StringSliceVarP(&opts.FromFiles, "from-file", "f", nil, "Analyze saved pull request dumps instead of fetching")
	cmd.Flags().StringVar(&opts.OutDir, "out-dir", "", "Write one report file per pull request into this directory")

	// Progress flag: auto detects a terminal
	cmd.Flags().Var(newProgressFlag(opts), "progress", "Progress display (auto, tui, plain)")
}

func runAnalyze(cmd *cobra.Command, opts *Options, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	useTUI := shouldUseTUI(opts)
	// suppress logs during TUI to avoid interleaving with display
	if useTUI {
		log.Initialize(opts.Verbosity, io.Discard)
	} else {
		log.Initialize(opts.Verbosity, os.Stderr)
	}
	rt := &analyzeRuntime{useTUI: useTUI, cancel: cancel}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	settings, err := resolveSettings(cfg, opts)
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(settings.DefaultFormat)
	if err != nil {
		return err
	}

	src, refs, offline, err := prepareSource(ctx, cfg, settings, opts, args, rt)
	if err != nil {
		rt.close()
		return err
	}
	if len(refs) == 0 {
		rt.close()
		return fmt.Errorf("no pull requests given")
	}

	runnerOpts, err := completerOptions(settings)
	if err != nil {
		rt.close()
		return err
	}
	runner, err := pipeline.NewRunner(settings, src.source, runnerOpts...)
	if err != nil {
		rt.close()
		return err
	}

	if rt.events == nil {
		names := make([]string, len(refs))
		for i, r := range refs {
			names[i] = r.String()
		}
		rt.startTUI(names, offline)
	}
	stopWatch := func() {}
	if src.client != nil && rt.events != nil {
		stopWatch = watchRateLimit(ctx, src.client, rt.events)
	}

	progress := plainProgress()
	if rt.useTUI {
		progress = tui.BatchProgress(rt.events)
	}
	rt.sendEvent(tui.TaskAnalyze, tui.StatusRunning, tui.WithMessage(fmt.Sprintf("0/%d", len(refs))))
	batch := pipeline.NewBatch(runner, pipeline.WithProgress(progress))
	res := batch.Run(ctx, refs)
	stopWatch()
	if !rt.useTUI {
		log.ProgressDone()
	}

	status := tui.StatusComplete
	if res.Cancelled {
		status = tui.StatusSkipped
	}
	rt.sendEvent(tui.TaskAnalyze, status, tui.WithCount(len(res.Reports())), tui.WithProgress(1))

	// render before the TUI lets go of the terminal, print after
	var out bytes.Buffer
	rt.sendEvent(tui.TaskRender, tui.StatusRunning)
	written, err := writeResults(&out, res, format, opts.OutDir)
	if err != nil {
		rt.sendEvent(tui.TaskRender, tui.StatusError, tui.WithError(err))
		rt.close()
		return err
	}
	rt.sendEvent(tui.TaskRender, tui.StatusComplete, tui.WithCount(written))
	rt.close()

	if _, err := out.WriteTo(cmd.OutOrStdout()); err != nil {
		return err
	}
	return batchError(res)
}

// analysisSource is where the batch reads pull requests from. client is
// nil when analyzing saved dumps.
type analysisSource struct {
	source pipeline.Source
	client *ghclient.Client
}

// prepareSource resolves the pull request refs and builds the source the
// runner fetches from.
func prepareSource(ctx context.Context, cfg *config.Config, settings config.Settings, opts *Options, args []string, rt *analyzeRuntime) (analysisSource, []model.PRRef, bool, error) {
	refs, err := parseRefs(args)
	if err != nil {
		return analysisSource{}, nil, false, err
	}

	if len(opts.FromFiles) > 0 {
		mem, err := pipeline.LoadFiles(opts.FromFiles...)
		if err != nil {
			return analysisSource{}, nil, true, err
		}
		if len(refs) == 0 {
			refs = mem.Refs()
		}
		log.Info("loaded saved pull requests", "files", len(opts.FromFiles), "prs", len(mem.Refs()))
		return analysisSource{source: mem}, refs, true, nil
	}

	token := cfg.GetGitHubToken()
	if token == "" {
		return analysisSource{}, nil, false, fmt.Errorf("GitHub token not configured. Set the GITHUB_TOKEN environment variable or use --from-file")
	}

	client, err := ghclient.NewClient(ctx, token,
		ghclient.WithLimits(settings.GitHub.MaxInFlight, settings.GitHub.RequestsPerSecond, settings.GitHub.Burst),
		ghclient.WithRepoContext(settings.RepoContext.Enabled, settings.RepoContext.MaxFiles, settings.RepoContext.MaxBytesPerFile),
	)
	if err != nil {
		return analysisSource{}, nil, false, err
	}

	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.String()
	}
	rt.startTUI(names, false)

	rt.sendEvent(tui.TaskAuth, tui.StatusRunning)
	user, err := client.AuthenticatedUser(ctx)
	if err != nil {
		rt.sendEvent(tui.TaskAuth, tui.StatusError, tui.WithError(err))
		return analysisSource{}, nil, false, fmt.Errorf("failed to get authenticated user: %w", err)
	}
	rt.sendEvent(tui.TaskAuth, tui.StatusComplete, tui.WithMessage(user))
	log.Info("authenticated", "user", user)

	// a nil *cache.Cache must not become a non-nil Cacher
	store := ghclient.NewStore(client, nil)
	if settings.GitHub.Cache {
		c, err := cache.NewDefault(settings.GitHub.CacheTTL)
		if err != nil {
			log.Warn("failed to initialize cache", "error", err)
		} else {
			store = ghclient.NewStore(client, c)
		}
	}

	return analysisSource{source: store, client: client}, refs, false, nil
}

// parseRefs parses every argument as a pull request reference.
func parseRefs(args []string) ([]model.PRRef, error) {
	refs := make([]model.PRRef, 0, len(args))
	for _, arg := range args {
		ref, err := model.ParseRef(arg)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// completerOptions builds the model backend. Provider "none" runs the
// batch without insight synthesis.
func completerOptions(settings config.Settings) ([]pipeline.Option, error) {
	m := settings.Model
	if m.Provider == config.ProviderNone {
		log.Info("insight synthesis disabled")
		return nil, nil
	}

	serverURL := m.ServerURL
	if m.Provider == insight.ProviderOpenAI && serverURL == insight.DefaultServerURL {
		serverURL = ""
	}
	completer, err := insight.NewLangChainCompleter(insight.BackendConfig{
		Provider:   m.Provider,
		Model:      m.Name,
		ServerURL:  serverURL,
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		HTTPClient: &http.Client{Timeout: m.Timeout},
	})
	if err != nil {
		return nil, &model.ConfigError{Field: "model", Reason: err.Error()}
	}
	return []pipeline.Option{pipeline.WithCompleter(completer, completer.Model())}, nil
}

// plainProgress logs batch progress on stderr, throttled to every
// LogThrottlePercent percent.
func plainProgress() pipeline.ProgressFunc {
	var lastPercent atomic.Int64
	lastPercent.Store(-1)
	return func(p pipeline.Progress) {
		switch p.Stage {
		case pipeline.StageFailed:
			log.Warn("pull request failed", "pr", p.Ref.String(), "error", p.Err)
		case pipeline.StageStarted:
			log.Debug("analyzing pull request", "pr", p.Ref.String())
			return
		}
		if p.Total == 0 {
			return
		}
		percent := int64(p.Completed * 100 / p.Total)
		last := lastPercent.Load()
		if p.Completed < p.Total && percent-last < constants.LogThrottlePercent {
			return
		}
		if lastPercent.CompareAndSwap(last, percent) {
			log.Progress("Analyzing pull requests... %d/%d (%d%%)", p.Completed, p.Total, percent)
		}
	}
}

// watchRateLimit forwards GitHub rate limit changes to the TUI. The
// returned func stops the watcher and waits for it, so events can be
// closed safely afterwards.
func watchRateLimit(ctx context.Context, client *ghclient.Client, events chan<- tui.Event) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(constants.RateLimitPollInterval)
		defer ticker.Stop()

		limited := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := client.RateLimitStatus()
				if s.Limited == limited {
					continue
				}
				limited = s.Limited
				tui.SendEvent(events, tui.RateLimitEvent{Limited: s.Limited, ResetAt: s.ResetAt})
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// writeResults renders the batch. A single successful pull request is
// printed as a lone report; anything else as a batch summary. With outDir,
// every report gets its own file. It returns the number of files or
// documents written.
func writeResults(stdout io.Writer, res pipeline.Result, format output.Format, outDir string) (int, error) {
	formatter := output.NewFormatter(format)

	if outDir != "" {
		return writeReportFiles(res, formatter, format, outDir)
	}

	reports := res.Reports()
	if len(res.Outcomes) == 1 && len(reports) == 1 {
		return 1, formatter.FormatReport(reports[0], stdout)
	}
	return 1, formatter.FormatBatch(res, stdout)
}

// writeReportFiles writes owner_repo_N.<ext> per report plus a batch
// summary when more than one pull request was analyzed.
func writeReportFiles(res pipeline.Result, formatter output.Formatter, format output.Format, outDir string) (int, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	written := 0
	for _, r := range res.Reports() {
		ref := r.Provenance().PR
		name := fmt.Sprintf("%s_%s_%d%s", ref.Owner, ref.Repo, ref.Number, format.Extension())
		if err := writeFile(filepath.Join(outDir, name), func(w io.Writer) error {
			return formatter.FormatReport(r, w)
		}); err != nil {
			return written, err
		}
		written++
	}

	if len(res.Outcomes) > 1 {
		name := "batch-" + shortID(res.RunID) + format.Extension()
		if err := writeFile(filepath.Join(outDir, name), func(w io.Writer) error {
			return formatter.FormatBatch(res, w)
		}); err != nil {
			return written, err
		}
		written++
	}
	log.Info("wrote reports", "dir", outDir, "files", written)
	return written, nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// batchError turns a batch without usable output into a command error so
// the process exits non-zero.
func batchError(res pipeline.Result) error {
	if res.Cancelled {
		return fmt.Errorf("run %s cancelled: %d of %d pull requests analyzed",
			res.RunID, len(res.Reports()), len(res.Outcomes))
	}
	if len(res.Outcomes) == 1 && res.Outcomes[0].Failure != nil {
		f := res.Outcomes[0].Failure
		return fmt.Errorf("%s: %s", f.Kind, f.Reason)
	}
	if len(res.Reports()) == 0 {
		return fmt.Errorf("all %d pull requests failed", len(res.Outcomes))
	}
	return nil
}
