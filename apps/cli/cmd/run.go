package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apicheck/packages/core/config"
	"github.com/abdul-hamid-achik/apicheck/packages/core/env"
	"github.com/abdul-hamid-achik/apicheck/packages/core/runner"
	"github.com/abdul-hamid-achik/apicheck/packages/core/suite"
	"github.com/abdul-hamid-achik/apicheck/packages/history"
	"github.com/abdul-hamid-achik/apicheck/packages/http"
	"github.com/abdul-hamid-achik/apicheck/packages/metrics"
	"github.com/abdul-hamid-achik/apicheck/packages/notify"
	"github.com/abdul-hamid-achik/apicheck/packages/output"
)

var runCmd = &cobra.Command{
	Use:   "run [suite files|directories...]",
	Short: "Run API test suites",
	Long: `Run the cases of YAML (.yaml, .yml) or Excel (.xlsx) suites. Without
arguments the built-in reqres.in suite is run.

Examples:
  apicheck run
  apicheck run --env local
  apicheck run ./suites/ --tags auth
  apicheck run users.yaml --name "single*" -v
  apicheck run --base-url http://localhost:8080 -o junit --output-file report.xml
  apicheck run cases.xlsx -o xlsx --output-file cases.xlsx`,
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	envFlag         string
	baseURLFlag     string
	envFileFlag     string
	configFlag      string
	nameFlag        string
	tagsFlag        string
	verboseFlag     int // 0=off, 1=-v, 2=-vv
	quietFlag       bool
	bailFlag        bool
	noFailFastFlag  bool
	timeoutFlag     time.Duration
	noColorFlag     bool
	outputFlag      string
	outputFileFlag  string
	parallelFlag    bool
	concurrencyFlag int
	rateFlag        float64
	insecureFlag    bool
	watchFlag       bool

	historyDBFlag   string
	metricsFileFlag string

	notifyFlag       string
	notifyOnFlag     string
	slackWebhookFlag string
	slackChannelFlag string
)

func init() {
	// Target flags
	runCmd.Flags().StringVarP(&envFlag, "env", "e", os.Getenv("APICHECK_ENV"), "Environment from the config file (env: APICHECK_ENV)")
	runCmd.Flags().StringVar(&baseURLFlag, "base-url", os.Getenv("APICHECK_BASE_URL"), "Base URL, overrides the environment's (env: APICHECK_BASE_URL)")
	runCmd.Flags().StringVar(&envFileFlag, "env-file", os.Getenv("APICHECK_ENV_FILE"), "Path to .env file for variable interpolation (env: APICHECK_ENV_FILE)")
	runCmd.Flags().StringVar(&configFlag, "config", os.Getenv("APICHECK_CONFIG"), "Path to config file (env: APICHECK_CONFIG)")
	runCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Run only cases matching name pattern (prefix*, *suffix, *part*)")
	runCmd.Flags().StringVarP(&tagsFlag, "tags", "t", "", "Run only cases with any of these tags (comma-separated)")

	// Output flags
	runCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v requests, -vv request detail)")
	runCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all output except errors")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output format: console, json, junit, tap, xlsx")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", "", "Write output to file (default: stdout)")

	// Execution flags
	runCmd.Flags().BoolVar(&bailFlag, "bail", false, "Skip the remaining cases after the first failed one; with --parallel, cases already in flight still finish")
	runCmd.Flags().BoolVar(&noFailFastFlag, "no-fail-fast", false, "Evaluate every assertion of a case instead of stopping at the first failure")
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Request timeout (e.g., 30s, 1m)")
	runCmd.Flags().BoolVarP(&parallelFlag, "parallel", "p", false, "Run cases in parallel")
	runCmd.Flags().IntVar(&concurrencyFlag, "concurrency", 0, "Number of concurrent requests when running in parallel")
	runCmd.Flags().Float64Var(&rateFlag, "rate", 0, "Maximum requests per second (0 = unlimited)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", false, "Disable SSL certificate validation")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch suite files for changes and re-run")

	// Reporting flags
	runCmd.Flags().StringVar(&historyDBFlag, "history-db", "", "Record runs in this SQLite database")
	runCmd.Flags().StringVar(&metricsFileFlag, "metrics-file", "", "Write Prometheus metrics to this textfile")

	// Notification flags
	runCmd.Flags().StringVar(&notifyFlag, "notify", "", "Notification service: slack")
	runCmd.Flags().StringVar(&notifyOnFlag, "notify-on", "", "When to notify: always, failure, success, recovery")
	runCmd.Flags().StringVar(&slackWebhookFlag, "slack-webhook", "", "Slack webhook URL")
	runCmd.Flags().StringVar(&slackChannelFlag, "slack-channel", "", "Slack channel override")
}

// Formatter interface for all output formatters
type Formatter interface {
	FormatResult(result *runner.RunResult)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// runSettings is the configuration after flags were applied.
type runSettings struct {
	cfg     *config.Config
	target  *config.Target
	notify  []string
	verbose int
	quiet   bool
	watch   bool
}

func runCommand(cmd *cobra.Command, args []string) error {
	settings, err := loadRunSettings(cmd)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	logger := newLogger(cmd.ErrOrStderr(), settings.verbose, settings.quiet)

	suites, files, err := loadSuites(args)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	session, err := newRunSession(cmd, settings, suites, logger)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer session.Close()

	ctx := contextOf(cmd)
	code, err := session.runOnce(ctx)
	if err != nil {
		return withExitCode(code, err)
	}

	if !settings.watch {
		return withExitCode(code, nil)
	}
	if len(files) == 0 {
		return withExitCode(ExitUsageError, errors.New("--watch needs suite files or directories"))
	}
	return session.watch(ctx, args, files)
}

// loadRunSettings layers defaults, the config file, APICHECK_* variables
// and finally the flags the user actually set.
func loadRunSettings(cmd *cobra.Command) (*runSettings, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	override := &config.Config{
		Timeout:     timeoutFlag,
		Concurrency: concurrencyFlag,
		Rate:        rateFlag,
		Output:      strings.ToLower(outputFlag),
		OutputFile:  outputFileFlag,
		HistoryDB:   historyDBFlag,
		MetricsFile: metricsFileFlag,
		Notify: config.NotifyConfig{
			On:           notifyOnFlag,
			SlackWebhook: slackWebhookFlag,
			SlackChannel: slackChannelFlag,
		},
	}
	if flags.Changed("bail") {
		override.Bail = config.BoolPtr(bailFlag)
	}
	if flags.Changed("no-fail-fast") {
		override.FailFast = config.BoolPtr(!noFailFastFlag)
	}
	if flags.Changed("parallel") {
		override.Parallel = config.BoolPtr(parallelFlag)
	}
	if flags.Changed("insecure") {
		override.ValidateSSL = config.BoolPtr(!insecureFlag)
	}
	if flags.Changed("no-color") {
		override.NoColor = config.BoolPtr(noColorFlag)
	}
	cfg = cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	target, err := resolveTarget(cfg, envFlag, baseURLFlag)
	if err != nil {
		return nil, err
	}

	if envFileFlag != "" {
		vars, err := env.LoadDotEnv(envFileFlag)
		if err != nil {
			return nil, err
		}
		target.Variables = env.MergeVariables(target.Variables, vars)
	}

	var services []string
	for _, s := range strings.Split(notifyFlag, ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			services = append(services, s)
		}
	}
	if len(services) == 0 && cfg.Notify.SlackWebhook != "" {
		services = []string{"slack"}
	}

	return &runSettings{
		cfg:     cfg,
		target:  target,
		notify:  services,
		verbose: verboseFlag,
		quiet:   quietFlag,
		watch:   watchFlag,
	}, nil
}

// resolveTarget picks the environment and lets an explicit base URL win
// over the environment's. The environment still contributes headers and
// variables.
func resolveTarget(cfg *config.Config, envName, baseURL string) (*config.Target, error) {
	if baseURL == "" {
		return cfg.Resolve(envName)
	}
	if err := http.ValidateURL(baseURL); err != nil {
		return nil, &http.ConfigError{Field: "base URL", Err: err}
	}

	if envName == "" {
		envName = cfg.Environment
	}
	e, ok := cfg.Environments[envName]
	if envName == "" || !ok {
		// no environment, or an unknown one which Resolve reports
		return cfg.Merge(&config.Config{BaseURL: baseURL}).Resolve(envName)
	}

	withURL := cfg.Merge(&config.Config{BaseURL: baseURL})
	withURL.Environments = copyEnvironments(cfg.Environments)
	e.BaseURL = baseURL
	withURL.Environments[envName] = e
	return withURL.Resolve(envName)
}

func copyEnvironments(in map[string]config.Environment) map[string]config.Environment {
	out := make(map[string]config.Environment, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// loadSuites loads every suite named by args, or the built-in suite when
// args is empty. The second result lists the suite files for watch mode.
func loadSuites(args []string) ([]*suite.Suite, []string, error) {
	if len(args) == 0 {
		return []*suite.Suite{suite.Reqres()}, nil, nil
	}

	files, err := suite.Collect(args)
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no .yaml, .yml or .xlsx suites found in %s", strings.Join(args, ", "))
	}

	suites := make([]*suite.Suite, 0, len(files))
	for _, file := range files {
		s, err := suite.Load(file)
		if err != nil {
			return nil, nil, err
		}
		suites = append(suites, s)
	}
	return suites, files, nil
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// runSession holds everything that outlives a single pass over the
// suites, so watch mode can re-run without reconnecting.
type runSession struct {
	cmd      *cobra.Command
	settings *runSettings
	suites   []*suite.Suite
	runner   *runner.Runner
	logger   *slog.Logger
	history  *history.Store
	metrics  *metrics.Collector
	notifier *notify.Manager
}

func newRunSession(cmd *cobra.Command, settings *runSettings, suites []*suite.Suite, logger *slog.Logger) (*runSession, error) {
	cfg := settings.cfg
	s := &runSession{
		cmd:      cmd,
		settings: settings,
		suites:   suites,
		logger:   logger,
	}

	s.runner = runner.NewRunner(&runner.Config{
		BaseURL:            settings.target.BaseURL,
		Headers:            settings.target.Headers,
		Variables:          settings.target.Variables,
		Timeout:            cfg.GetTimeout(),
		NoFailFast:         !cfg.GetFailFast(),
		Bail:               cfg.GetBail(),
		NameFilter:         nameFlag,
		TagsFilter:         splitTags(tagsFlag),
		Parallel:           cfg.GetParallel(),
		Concurrency:        cfg.GetConcurrency(),
		Rate:               cfg.Rate,
		InsecureSkipVerify: !cfg.GetValidateSSL(),
		Logger:             logger,
	})

	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		s.history = store
	}

	if cfg.MetricsFile != "" {
		s.metrics = metrics.NewCollector()
	}

	if len(settings.notify) > 0 {
		manager, err := newNotifyManager(cfg, settings.notify)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.notifier = manager
		if cfg.Notify.On == string(notify.OnRecovery) && s.history == nil {
			logger.Warn("notify-on recovery needs a history database; recoveries will not be reported")
		}
	}

	return s, nil
}

func newNotifyManager(cfg *config.Config, services []string) (*notify.Manager, error) {
	policy, err := notify.ParsePolicy(cfg.Notify.On)
	if err != nil {
		return nil, err
	}

	manager := notify.NewManager(policy)
	for _, service := range services {
		switch service {
		case "slack":
			if cfg.Notify.SlackWebhook == "" {
				return nil, fmt.Errorf("--slack-webhook is required when using --notify slack")
			}
			var opts []notify.SlackOption
			if cfg.Notify.SlackChannel != "" {
				opts = append(opts, notify.WithSlackChannel(cfg.Notify.SlackChannel))
			}
			manager.AddNotifier(notify.NewSlackNotifier(cfg.Notify.SlackWebhook, opts...))
		default:
			return nil, fmt.Errorf("unknown notification service %q (supported: slack)", service)
		}
	}
	return manager, nil
}

func (s *runSession) Close() {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Warn("closing history database", "error", err)
		}
	}
}

// newFormatter creates the formatter for one pass. The returned closer
// releases the output file, if any.
func (s *runSession) newFormatter() (Formatter, func() error, error) {
	cfg := s.settings.cfg
	closer := func() error { return nil }

	var out io.Writer = s.cmd.OutOrStdout()
	format := cfg.GetOutput()

	if format == "xlsx" {
		path := cfg.OutputFile
		if path == "" {
			path = output.DefaultXLSXFile
		}
		return output.NewXLSXFormatter(output.XLSXWithFile(path)), closer, nil
	}

	if cfg.OutputFile != "" {
		f, err := os.Create(cfg.OutputFile)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot create output file: %w", err)
		}
		out = f
		closer = f.Close
	}

	switch format {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(out)), closer, nil
	case "junit":
		return output.NewJUnitFormatter(output.JUnitWithWriter(out)), closer, nil
	case "tap":
		return output.NewTAPFormatter(output.TAPWithWriter(out)), closer, nil
	default: // "console"
		if s.settings.quiet && cfg.OutputFile == "" {
			out = io.Discard
		}
		return output.NewConsoleFormatter(
			output.WithWriter(out),
			output.WithVerbose(s.settings.verbose > 0),
			output.WithNoColor(cfg.GetNoColor() || s.settings.quiet),
		), closer, nil
	}
}

// runOnce runs every suite once and reports the exit code for the pass.
func (s *runSession) runOnce(ctx context.Context) (int, error) {
	formatter, closeOutput, err := s.newFormatter()
	if err != nil {
		return ExitConfigError, err
	}
	defer func() {
		if err := closeOutput(); err != nil {
			s.logger.Warn("closing output file", "error", err)
		}
	}()

	formatter.FormatHeader(version)

	start := time.Now()
	failed, errored := 0, 0

	for _, st := range s.suites {
		startedAt := time.Now()
		result, err := s.runner.Run(ctx, st)
		if result == nil {
			formatter.FormatError(err)
			if http.IsConfigError(err) {
				return ExitConfigError, nil
			}
			return ExitTestFailure, nil
		}

		formatter.FormatResult(result)
		failed += result.Failed
		errored += result.Errored
		s.report(ctx, result, startedAt)

		if err != nil {
			// cancelled: stop without starting the next suite
			formatter.FormatError(err)
			break
		}
		if s.settings.cfg.GetBail() && !result.OK() {
			break
		}
	}

	if flushable, ok := formatter.(Flushable); ok {
		if err := flushable.Flush(time.Since(start)); err != nil {
			return ExitTestFailure, fmt.Errorf("error writing output: %w", err)
		}
	}

	if s.metrics != nil {
		if err := s.metrics.WriteTextfile(s.settings.cfg.MetricsFile); err != nil {
			s.logger.Warn("metrics export failed", "error", err)
		}
	}

	switch {
	case failed > 0:
		return ExitTestFailure, nil
	case errored > 0:
		return ExitNetworkError, nil
	default:
		return ExitSuccess, nil
	}
}

// report feeds one suite result to history, metrics and notifications.
// Failures here are logged and never change the exit code.
func (s *runSession) report(ctx context.Context, result *runner.RunResult, startedAt time.Time) {
	target := s.settings.target

	var previousOK *bool
	if s.history != nil {
		last, err := s.history.Last(ctx, result.Suite)
		if err != nil {
			s.logger.Warn("reading history failed", "error", err)
		} else if last != nil {
			ok := last.OK()
			previousOK = &ok
		}

		run := history.FromResult(result, target.Environment, target.BaseURL, startedAt)
		if id, err := s.history.Record(ctx, run); err != nil {
			s.logger.Warn("recording run failed", "error", err)
		} else {
			s.logger.Info("run recorded", "id", id, "database", s.history.Path())
		}
	}

	if s.metrics != nil {
		s.metrics.Record(result)
	}

	if s.notifier != nil {
		summary := notify.NewSummary(result, target.Environment, target.BaseURL)
		sent, err := s.notifier.Notify(ctx, summary, previousOK)
		if err != nil {
			s.logger.Warn("failed to send notification", "error", err)
		} else if sent {
			s.logger.Info("notification sent", "suite", result.Suite, "recovery", summary.IsRecovery)
		}
	}
}

// watch re-loads and re-runs the suites whenever one of them changes.
func (s *runSession) watch(ctx context.Context, args, files []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			watchedDirs[dir] = true
		}
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err == nil && d.IsDir() && !watchedDirs[path] {
				_ = watcher.Add(path)
				watchedDirs[path] = true
			}
			return nil
		})
	}

	out := s.cmd.OutOrStdout()
	fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	// Debounce: editors often write a file several times in a row.
	rerun := make(chan string, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isWatchedSuite(event.Name) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case rerun <- name:
				default:
				}
			})

		case name := <-rerun:
			fmt.Fprintf(out, "\nFile changed: %s\nRe-running...\n\n", name)
			suites, _, err := loadSuites(args)
			if err != nil {
				fmt.Fprintf(s.cmd.ErrOrStderr(), "Error: %v\n", err)
			} else {
				s.suites = suites
				if _, err := s.runOnce(ctx); err != nil {
					fmt.Fprintf(s.cmd.ErrOrStderr(), "Error: %v\n", err)
				}
			}
			fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

func isWatchedSuite(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".xlsx":
		return true
	}
	return false
}
