package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cloakstyle/cloak/internal/batch"
	"github.com/cloakstyle/cloak/internal/config"
	"github.com/cloakstyle/cloak/internal/engine"
	"github.com/cloakstyle/cloak/internal/engine/detectors"
	"github.com/cloakstyle/cloak/internal/fileproc"
	"github.com/cloakstyle/cloak/internal/report"
	"github.com/cloakstyle/cloak/internal/storage"
	"github.com/cloakstyle/cloak/internal/store"
)

// Exit codes: 0 clean run, 2 policy violation (residual findings with
// residual_action block), 3 fatal or per-file errors.
const (
	exitOK     = 0
	exitPolicy = 2
	exitFatal  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "cloak.yaml", "path to YAML config")
		inDir      = flag.String("in", "", "input directory to scan (required)")
		outDir     = flag.String("out", "", "output directory for masked copies (required unless -dry-run)")
		recursive  = flag.Bool("recursive", false, "descend into subdirectories")
		include    = flag.String("include", "", "comma-separated base-name globs to include")
		exclude    = flag.String("exclude", "", "comma-separated base-name globs to exclude")
		reportsDir = flag.String("reports", "", "directory for report output (defaults to <out>/reports)")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
		dryRun     = flag.Bool("dry-run", false, "detect and report without writing masked copies")
	)
	flag.Parse()

	logger := mustBuildLogger(*logLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	if *inDir == "" {
		fmt.Fprintln(os.Stderr, "cloak: -in is required")
		flag.Usage()
		return exitFatal
	}
	if *outDir == "" && !*dryRun {
		fmt.Fprintln(os.Stderr, "cloak: -out is required unless -dry-run")
		flag.Usage()
		return exitFatal
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", zap.Error(err))
		return exitFatal
	}

	if *reportsDir == "" {
		if *outDir != "" {
			*reportsDir = filepath.Join(*outDir, "reports")
		} else {
			*reportsDir = "reports"
		}
	}

	logger.Info("starting scan",
		zap.String("in", *inDir),
		zap.String("out", *outDir),
		zap.Bool("recursive", *recursive),
		zap.Bool("dry_run", *dryRun),
		zap.String("mask_format", cfg.MaskFormat),
		zap.Int("workers", cfg.Workers),
	)

	// Detection engine. The model detector chain is optional; rule-based
	// detection always runs.
	var model engine.Detector
	if cfg.Model.Enabled {
		md := detectors.NewModelDetector(detectors.DefaultBackendFactories(cfg.Model.Dir), cfg.Entities, logger)
		defer md.Close() //nolint:errcheck
		if md.ActiveBackend() == "" {
			logger.Warn("no model backend available, running pattern-only")
		} else {
			logger.Info("model backend active", zap.String("backend", md.ActiveBackend()))
		}
		model = md
	}

	eng, err := engine.New(cfg.Engine(), detectors.NewRuleDetector(cfg.Entities), model, logger)
	if err != nil {
		logger.Error("engine init failed", zap.Error(err))
		return exitFatal
	}

	// Audit sink: ClickHouse or LogWriter fallback.
	var writer storage.EventWriter
	if dsn := cfg.Audit.ClickHouseDSN; dsn != "" {
		chWriter, err := storage.NewClickHouseWriter(dsn, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
	}
	defer writer.Close()

	// Review queue: optional Postgres store for questionable findings.
	var reviewStore *store.Store
	if cfg.Review.Enabled {
		db, err := sql.Open("pgx", cfg.Review.PostgresDSN)
		if err != nil {
			logger.Error("failed to open postgres", zap.Error(err))
			return exitFatal
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Error("failed to ping postgres", zap.Error(err))
			return exitFatal
		}
		reviewStore = store.NewStore(db)
		logger.Info("postgres review store connected")
	}

	proc := fileproc.New(eng, writer, fileproc.Options{
		InputDir:  *inDir,
		OutputDir: *outDir,
		Recursive: *recursive,
		Include:   splitList(*include),
		Exclude:   splitList(*exclude),
		MaxFileMB: cfg.Caps.MaxFileMB,
		MaxRows:   cfg.Caps.MaxRows,
		DryRun:    *dryRun,
	}, logger)

	paths, err := proc.Collect()
	if err != nil {
		logger.Error("file collection failed", zap.Error(err))
		return exitFatal
	}
	if len(paths) == 0 {
		logger.Warn("no files to process", zap.String("in", *inDir))
		return exitOK
	}

	// Cancel in-flight work on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	items := batch.NewRunner(proc, cfg.Workers, logger).Run(ctx, paths)

	if reviewStore != nil {
		if err := enqueueQuestionable(ctx, reviewStore, items); err != nil {
			logger.Error("review enqueue failed", zap.Error(err))
		}
	}

	summary := report.Build(items, cfg.MaskFormat, *dryRun)
	if err := report.WriteAll(summary, *reportsDir, cfg.Reports); err != nil {
		logger.Error("report write failed", zap.Error(err))
	}

	printSummary(summary)

	switch {
	case summary.Residuals > 0 && cfg.Validation.ResidualAction == config.ResidualBlock:
		return exitPolicy
	case len(summary.Failures) > 0:
		return exitFatal
	default:
		return exitOK
	}
}

// enqueueQuestionable persists every questionable finding for human review.
func enqueueQuestionable(ctx context.Context, s *store.Store, items []batch.Item) error {
	var queue []store.EnqueueItem
	for _, it := range items {
		if it.Err != nil {
			continue
		}
		for _, q := range it.Result.Questionable {
			queue = append(queue, store.EnqueueItem{
				ScanID:     it.Result.ScanID,
				File:       it.Result.Path,
				Unit:       q.Unit,
				EntityType: q.Type,
				MaskToken:  q.MaskToken,
				Confidence: q.Confidence,
				Method:     q.Method,
			})
		}
	}
	return s.EnqueueBatch(ctx, queue)
}

func printSummary(s *report.Summary) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	bold.Printf("\nScanned %d file(s)\n", len(s.Files)+len(s.Failures))
	total := 0
	for _, c := range s.EntityCounts {
		total += c
	}
	green.Printf("  %d entities masked\n", total)
	if s.Questionable > 0 {
		yellow.Printf("  %d questionable (masked, queued for review)\n", s.Questionable)
	}
	if s.Residuals > 0 {
		red.Printf("  %d residual finding(s) remain in masked output\n", s.Residuals)
	}
	for _, f := range s.Failures {
		red.Printf("  failed: %s: %s\n", f.Path, f.Error)
	}
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
