package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ChrisB0-2/watch-sage/internal/auditor"
	"github.com/ChrisB0-2/watch-sage/internal/config"
	"github.com/ChrisB0-2/watch-sage/internal/core"
	"github.com/ChrisB0-2/watch-sage/internal/daemon"
	"github.com/ChrisB0-2/watch-sage/internal/logger"
	"github.com/ChrisB0-2/watch-sage/internal/metrics"
	"github.com/ChrisB0-2/watch-sage/internal/notifier"
	"github.com/ChrisB0-2/watch-sage/internal/procwatch"
	"github.com/ChrisB0-2/watch-sage/internal/report"
	"github.com/ChrisB0-2/watch-sage/internal/scanner"
	"github.com/ChrisB0-2/watch-sage/internal/watchindex"
)

// version is set via ldflags at build time.
var version = "dev"

// CLI flags
var (
	showVersion   = flag.Bool("version", false, "print version and exit")
	configPath    = flag.String("config", "", "path to YAML configuration file")
	root          = flag.String("root", "", "root directory to scan")
	threads       = flag.Int("threads", 0, "number of scan threads (0 = one per CPU)")
	ignoreDirs    = flag.String("ignoredir", "", "comma-separated directories to skip")
	noColor       = flag.Bool("no-color", false, "disable colored output")
	verbose       = flag.Bool("verbose", false, "show per-instance fdinfo paths")
	enableMetrics = flag.Bool("metrics", false, "enable Prometheus metrics endpoint")
	metricsAddr   = flag.String("metrics-addr", "", "metrics server address (default :9090)")
	auditPath     = flag.String("audit", "", "audit log path (jsonl)")
	auditDB       = flag.String("audit-db", "", "audit database path (sqlite)")

	// Monitor mode flags
	daemonMode = flag.Bool("daemon", false, "run as long-running usage monitor")
	schedule   = flag.String("schedule", "", "collection interval (e.g. '1h', '@every 30m')")
	daemonAddr = flag.String("daemon-addr", "", "monitor health endpoint address (default :8080)")
	webhookURL = flag.String("webhook", "", "webhook URL for watch-pressure alerts")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"Usage: %s [options] [appname | pid]...\n\n"+
			"Lists processes holding inotify instances. When app names or pids\n"+
			"are given, also scans the filesystem for their watched paths.\n\nOptions:\n",
		os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println("watch-sage", version)
		return
	}

	// 1. Load configuration
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(2)
	}

	// 2. Merge CLI flags over config values
	mergeFlags(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	// 3. Initialize logger from config
	log, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if *daemonMode {
		if err := runDaemon(cfg, log); err != nil {
			log.Error("monitor failed", logger.F("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, log, flag.Args()); err != nil {
		log.Error("run failed", logger.F("error", err.Error()))
		os.Exit(1)
	}
}

// mergeFlags applies CLI flag values over config values.
// CLI flags take precedence (only if explicitly set).
func mergeFlags(cfg *config.Config) {
	flagSet := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		flagSet[f.Name] = true
	})

	if flagSet["root"] && *root != "" {
		cfg.Scan.Root = *root
	}

	if flagSet["threads"] {
		cfg.Scan.Threads = *threads
	}

	// Ignore dirs append to the configured list rather than replacing it.
	if flagSet["ignoredir"] && *ignoreDirs != "" {
		for _, d := range strings.Split(*ignoreDirs, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.Scan.IgnoreDirs = append(cfg.Scan.IgnoreDirs, d)
			}
		}
	}

	if flagSet["metrics"] {
		cfg.Metrics.Enabled = *enableMetrics
	}
	if flagSet["metrics-addr"] && *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	if flagSet["audit"] {
		cfg.Audit.Path = *auditPath
	}
	if flagSet["audit-db"] {
		cfg.Audit.Database = *auditDB
	}

	if flagSet["schedule"] && *schedule != "" {
		cfg.Daemon.Schedule = *schedule
	}
	if flagSet["daemon-addr"] && *daemonAddr != "" {
		cfg.Daemon.Addr = *daemonAddr
	}
	if flagSet["webhook"] {
		cfg.Notify.WebhookURL = *webhookURL
	}
}

// initLogger creates a logger based on configuration.
func initLogger(cfg config.LoggingConfig) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		level = logger.LevelWarn
	}

	format, err := logger.ParseFormat(cfg.Format)
	if err != nil {
		format = logger.FormatText
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
	}

	return logger.New(level, format, output), nil
}

// run executes the main watch-sage logic.
func run(cfg *config.Config, log logger.Logger, args []string) error {
	ctx := context.Background()

	printer := report.NewPrinter(os.Stdout)
	if *noColor {
		printer.DisableColor()
	}
	printer.SetVerbose(*verbose)

	// Metrics (Prometheus or Noop)
	var m core.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewPrometheus(nil)
		server := metrics.NewServer(cfg.Metrics.Addr, log)

		go func() {
			log.Info("metrics server starting", logger.F("addr", server.Addr()))
			if err := server.Start(); err != nil {
				log.Error("metrics server error", logger.F("error", err.Error()))
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn("metrics server shutdown error", logger.F("error", err.Error()))
			}
		}()
	} else {
		m = metrics.NewNoop()
	}

	// Auditors (optional, both may be active)
	var auditors []core.Auditor
	if cfg.Audit.Path != "" {
		a, err := auditor.NewJSONL(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("audit init failed: %w", err)
		}
		auditors = append(auditors, a)
		defer func() {
			if err := a.Err(); err != nil {
				log.Warn("audit write error", logger.F("error", err.Error()))
			}
			_ = a.Close()
		}()
	}
	if cfg.Audit.Database != "" {
		a, err := auditor.NewSQLite(cfg.Audit.Database)
		if err != nil {
			return fmt.Errorf("audit database init failed: %w", err)
		}
		auditors = append(auditors, a)
		defer a.Close()
	}
	audit := func(evt core.AuditEvent) {
		for _, a := range auditors {
			a.Record(ctx, evt)
		}
	}

	// Phase 1: process table
	collector := procwatch.NewCollector(log)

	printer.PrintLimits(collector.ReadLimits())
	fmt.Println()

	procs, err := collector.Collect()
	if err != nil {
		return fmt.Errorf("collect processes: %w", err)
	}

	kernelHasWatchInfo := procwatch.KernelProvidesWatchInfo()
	if !kernelHasWatchInfo {
		log.Warn("kernel exposes no per-watch fdinfo data; watch counts unavailable")
	}

	selected := procwatch.Select(procs, args)
	printer.PrintProcesses(procs, kernelHasWatchInfo)

	watches, instances := procwatch.Totals(procs)
	m.SetWatches(watches)
	m.SetInstances(instances)

	// Phase 2: filesystem scan, only when processes were selected
	if selected == 0 {
		if len(args) > 0 {
			fmt.Printf("\nNo processes matching %v found.\n", args)
		}
		return nil
	}

	idx := watchindex.Build(procwatch.Records(procs))
	if idx.Len() == 0 {
		log.Warn("selected processes hold no identifiable watches; nothing to scan")
		return nil
	}

	printer.PrintScanHeader(cfg.Scan.Root, scanner.WorkerCount(cfg.Scan.Threads))

	sc := scanner.NewWithMetrics(idx, scanner.Options{
		Root:       cfg.Scan.Root,
		Workers:    cfg.Scan.Threads,
		IgnoreDirs: cfg.Scan.IgnoreDirs,
	}, log, m)

	res, err := sc.Run()
	if err != nil {
		if errors.Is(err, core.ErrEmptyIndex) {
			return nil
		}
		return fmt.Errorf("scan failed: %w", err)
	}

	printer.PrintMatches(res)

	audit(core.NewScanAuditEvent(cfg.Scan.Root, res))
	for _, match := range res.Matches {
		audit(core.NewMatchAuditEvent(match))
	}

	return nil
}

// runDaemon starts watch-sage as a long-running usage monitor that
// collects inotify usage on a schedule, exports it as metrics, and
// alerts when a user approaches the watch limit.
func runDaemon(cfg *config.Config, log logger.Logger) error {
	if cfg.Daemon.Schedule == "" {
		return fmt.Errorf("monitor mode requires -schedule or daemon.schedule in config")
	}

	var m core.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewPrometheus(nil)
		server := metrics.NewServer(cfg.Metrics.Addr, log)

		go func() {
			log.Info("metrics server starting", logger.F("addr", server.Addr()))
			if err := server.Start(); err != nil {
				log.Error("metrics server error", logger.F("error", err.Error()))
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	} else {
		m = metrics.NewNoop()
	}

	var notify notifier.Notifier = &notifier.NoopNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notify = notifier.NewWebhook(notifier.WebhookConfig{URL: cfg.Notify.WebhookURL})
	}

	var aud core.Auditor
	if cfg.Audit.Database != "" {
		a, err := auditor.NewSQLite(cfg.Audit.Database)
		if err != nil {
			return fmt.Errorf("audit database init failed: %w", err)
		}
		aud = a
		defer a.Close()
	}

	collector := procwatch.NewCollector(log)

	runFunc := func(ctx context.Context) error {
		return monitorPass(ctx, cfg, log, collector, m, notify, aud)
	}

	d := daemon.New(log, runFunc, daemon.Config{
		Schedule: cfg.Daemon.Schedule,
		HTTPAddr: cfg.Daemon.Addr,
	})

	return d.Run(context.Background())
}

// monitorPass is one scheduled collection: walk the process table,
// export the usage, and raise a pressure alert when the user is close
// to running out of watches.
func monitorPass(ctx context.Context, cfg *config.Config, log logger.Logger,
	collector *procwatch.Collector, m core.Metrics, notify notifier.Notifier,
	aud core.Auditor) error {

	procs, err := collector.Collect()
	if err != nil {
		return fmt.Errorf("collect processes: %w", err)
	}

	watches, instances := procwatch.Totals(procs)
	m.SetWatches(watches)
	m.SetInstances(instances)

	limits := collector.ReadLimits()

	log.Info("usage collected",
		logger.F("watches", watches),
		logger.F("instances", instances),
		logger.F("max_user_watches", limits.MaxUserWatches),
	)

	summary := notifier.UsageSummary{
		TotalWatches:   watches,
		TotalInstances: instances,
		MaxUserWatches: limits.MaxUserWatches,
		CollectedAt:    time.Now(),
	}
	for i, p := range procs {
		if i == 3 {
			break
		}
		summary.TopProcesses = append(summary.TopProcesses, notifier.ProcessUsage{
			PID: p.PID, App: p.AppName, Watches: p.Watches,
		})
	}

	if payload, fire := notifier.PressurePayload(summary, cfg.Notify.Threshold); fire {
		if err := notify.Notify(ctx, payload); err != nil {
			log.Warn("pressure alert delivery failed", logger.F("error", err.Error()))
		}
	}

	if aud != nil {
		aud.Record(ctx, core.AuditEvent{
			Action: "collect",
			Fields: map[string]any{
				"watches":          watches,
				"instances":        instances,
				"max_user_watches": limits.MaxUserWatches,
				"processes":        len(procs),
			},
		})
	}

	return nil
}
