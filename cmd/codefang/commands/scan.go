package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/pkg/budget"
	"github.com/Sumatoshi-tech/codefang/pkg/config"
	"github.com/Sumatoshi-tech/codefang/pkg/engine"
	"github.com/Sumatoshi-tech/codefang/pkg/framework"
	"github.com/Sumatoshi-tech/codefang/pkg/observability"
	"github.com/Sumatoshi-tech/codefang/pkg/plugins/export"
	"github.com/Sumatoshi-tech/codefang/pkg/version"
)

// Sentinel errors for the scan command.
var (
	// ErrNoPluginsSelected is returned when no plugin IDs match the selection.
	ErrNoPluginsSelected = errors.New(
		"no plugins selected. Use --plugins, e.g.: --plugins commitstats,export")
	// ErrRepositoryLoad indicates a failure to open or load the git repository.
	ErrRepositoryLoad = errors.New("failed to load repository")
	// ErrPluginRejected indicates a requested plugin ID could not be built.
	ErrPluginRejected = errors.New("plugin rejected")
)

// scanOptions holds the flags for the scan command.
type scanOptions struct {
	verbose   bool
	quiet     bool
	debug     bool
	logFormat string

	configFile string
	pluginList string

	color   bool
	noColor bool

	exportFormat string
	exportConfig bool

	workers      int
	bufferSize   int
	queueCeiling string
	memoryBudget string
	gcPercent    int
	ballastSize  string
}

// NewScanCommand builds the "scan" command: it runs the Pipeline Engine
// over a repository with the requested plugins.
func NewScanCommand() *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan [repository]",
		Short: "Run the Pipeline Engine over a git repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath := "."
			if len(args) == 1 {
				repoPath = args[0]
			}

			return runScan(cmd.Context(), repoPath, opts, cmd.OutOrStdout())
		},
	}

	registerScanFlags(cmd, opts)

	return cmd
}

func registerScanFlags(cmd *cobra.Command, opts *scanOptions) {
	flags := cmd.Flags()

	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress non-error output")
	flags.BoolVar(&opts.debug, "debug", false, "debug-level logging and tracing")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log output format: text|json")

	flags.StringVar(&opts.configFile, "config", "", "configuration file path")
	flags.StringVar(&opts.pluginList, "plugins", "", "comma-separated plugin IDs to run")

	flags.BoolVar(&opts.color, "color", false, "force colour output")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colour output")

	flags.StringVar(&opts.exportFormat, "export-format", "table", "export plugin rendering: table|yaml|html")
	flags.BoolVar(&opts.exportConfig, "export-config", false, "print the effective configuration and exit")

	flags.IntVar(&opts.workers, "workers", 0, "dispatch worker count (0: auto)")
	flags.IntVar(&opts.bufferSize, "buffer-size", 0, "queue/bus buffer size (0: auto)")
	flags.StringVar(&opts.queueCeiling, "queue-ceiling", "", "bounded queue byte ceiling, e.g. 64MiB")
	flags.StringVar(&opts.memoryBudget, "memory-budget", "", "total memory budget, e.g. 2GiB (overrides individual knobs)")
	flags.IntVar(&opts.gcPercent, "gc-percent", 0, "GOGC value (0: Go default)")
	flags.StringVar(&opts.ballastSize, "ballast-size", "", "GC ballast allocation, e.g. 512MiB")
}

func runScan(ctx context.Context, repoPath string, opts *scanOptions, stdout io.Writer) error {
	cfg, loadErr := config.LoadConfig(opts.configFile)
	if loadErr != nil {
		return fmt.Errorf("load config: %w", loadErr)
	}

	if opts.exportConfig {
		return printEffectiveConfig(stdout, cfg)
	}

	logger := setupLogger(opts)

	engineCfg, _, cfgErr := buildEngineConfig(opts, cfg)
	if cfgErr != nil {
		return fmt.Errorf("build engine config: %w", cfgErr)
	}

	pluginIDs := resolvePluginIDs(opts.pluginList, cfg.Plugins)
	if len(pluginIDs) == 0 {
		return ErrNoPluginsSelected
	}

	noColor := resolveNoColor(opts)

	exportFormat, formatErr := parseExportFormat(opts.exportFormat)
	if formatErr != nil {
		return formatErr
	}

	plugins, buildErr := buildPlugins(pluginIDs, pluginOptions{
		writer:  stdout,
		noColor: noColor,
		format:  exportFormat,
	})
	if buildErr != nil {
		return fmt.Errorf("%w: %w", ErrPluginRejected, buildErr)
	}

	logger.Info("starting scan", "repository", repoPath, "plugins", pluginIDs)

	eng := engine.New(engineCfg, nil)

	result, runErr := eng.Run(ctx, repoPath, plugins)
	if runErr != nil {
		return fmt.Errorf("%w: %w", ErrRepositoryLoad, runErr)
	}

	logger.Info("scan complete",
		"commits", result.CommitsVisited,
		"files", result.FilesChanged,
		"warnings", result.Warnings,
		"duration", result.Duration,
		"timed_out", result.TimedOut,
	)

	for id, pluginErr := range result.PluginErrors {
		logger.Warn("plugin error", "plugin", id, "error", pluginErr)
	}

	return nil
}

func buildEngineConfig(opts *scanOptions, cfg *config.Config) (engine.Config, int64, error) {
	params := framework.ConfigParams{
		Workers:      opts.workers,
		BufferSize:   opts.bufferSize,
		QueueCeiling: firstNonEmpty(opts.queueCeiling, cfg.Pipeline.QueueCeiling),
		MemoryBudget: firstNonEmpty(opts.memoryBudget, cfg.Pipeline.MemoryBudget),
		GCPercent:    firstNonZero(opts.gcPercent, cfg.Pipeline.GOGC),
		BallastSize:  firstNonEmpty(opts.ballastSize, cfg.Pipeline.BallastSize),
	}

	if params.Workers == 0 {
		params.Workers = cfg.Pipeline.Workers
	}

	if cfg.Pipeline.ShutdownDeadline > 0 {
		params.ShutdownDeadline = cfg.Pipeline.ShutdownDeadline
	}

	return framework.BuildConfigFromParams(params, budget.SolveForBudget)
}

func resolvePluginIDs(flagValue string, configured []string) []string {
	if flagValue != "" {
		parts := strings.Split(flagValue, ",")
		ids := make([]string, 0, len(parts))

		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				ids = append(ids, trimmed)
			}
		}

		return ids
	}

	return configured
}

func resolveNoColor(opts *scanOptions) bool {
	if opts.color {
		return false
	}

	if opts.noColor {
		return true
	}

	return os.Getenv("NO_COLOR") != "" || color.NoColor
}

func parseExportFormat(raw string) (export.Format, error) {
	switch raw {
	case "table", "":
		return export.FormatTable, nil
	case "yaml":
		return export.FormatYAML, nil
	case "html":
		return export.FormatHTML, nil
	default:
		return export.FormatTable, fmt.Errorf("%w: unknown export format %q", ErrPluginRejected, raw)
	}
}

func setupLogger(opts *scanOptions) *slog.Logger {
	obsCfg := observability.DefaultConfig()
	obsCfg.LogJSON = opts.logFormat == "json"

	switch {
	case opts.debug:
		obsCfg.LogLevel = slog.LevelDebug
		obsCfg.DebugTrace = true
	case opts.quiet:
		obsCfg.LogLevel = slog.LevelError
	case opts.verbose:
		obsCfg.LogLevel = slog.LevelDebug
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return slog.Default()
	}

	return providers.Logger
}

func printEffectiveConfig(w io.Writer, cfg *config.Config) error {
	fmt.Fprintf(w, "plugins: %v\n", cfg.Plugins)
	fmt.Fprintf(w, "pipeline:\n")
	fmt.Fprintf(w, "  workers: %d\n", cfg.Pipeline.Workers)
	fmt.Fprintf(w, "  memory_budget: %q\n", cfg.Pipeline.MemoryBudget)
	fmt.Fprintf(w, "  queue_ceiling: %q\n", cfg.Pipeline.QueueCeiling)
	fmt.Fprintf(w, "  gogc: %d\n", cfg.Pipeline.GOGC)
	fmt.Fprintf(w, "  ballast_size: %q\n", cfg.Pipeline.BallastSize)
	fmt.Fprintf(w, "  shutdown_deadline: %s\n", cfg.Pipeline.ShutdownDeadline)
	fmt.Fprintf(w, "codefang %s\n", version.Version)

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}

	return 0
}
