package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"

	"github.com/vfrank66/lucas-download/internal/camara"
	"github.com/vfrank66/lucas-download/internal/config"
	"github.com/vfrank66/lucas-download/internal/downloader"
	lucashttp "github.com/vfrank66/lucas-download/internal/http"
	"github.com/vfrank66/lucas-download/internal/progress"
	"github.com/vfrank66/lucas-download/internal/scheduler"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitStorageError = 3
	ExitNothingFound = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, code := buildConfig(args)
	if code != ExitSuccess {
		return code
	}

	logger, closeLog := newLogger(cfg.LogFile)
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bucket, err := openBucket(ctx, cfg.DownloadRoot)
	if err != nil {
		logger.Error("open download root failed", "root", cfg.DownloadRoot, "err", err)
		return ExitStorageError
	}
	defer bucket.Close()

	client := lucashttp.NewClient(lucashttp.Options{
		// Comfortably above the worker count so workers never queue
		// for a connection.
		MaxIdleConnsPerHost: cfg.Workers + cfg.Workers/2,
		Timeout:             cfg.RequestTimeout,
		UserAgent:           cfg.UserAgent,
	})

	resolver, err := camara.NewResolver(client, camara.Options{
		BaseURL:   cfg.BaseURL,
		YearsBack: cfg.YearsBack,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("invalid base URL", "base_url", cfg.BaseURL, "err", err)
		return ExitInvalidArgs
	}

	store := progress.Open(ctx, bucket, cfg.ProgressObject, logger)

	dl := downloader.New(client, bucket, store, downloader.Options{
		RetryAttempts: cfg.Retry.Attempts,
		RetryBackoff:  cfg.Retry.Backoff,
	}, logger)

	sched := scheduler.New(resolver, dl, store, scheduler.Options{
		Workers:     cfg.Workers,
		BatchSize:   cfg.BatchSize,
		PacingDelay: cfg.PacingDelay,
	}, logger)

	logger.Info("starting download run",
		"base_url", cfg.BaseURL,
		"root", cfg.DownloadRoot,
		"years_back", cfg.YearsBack,
		"workers", cfg.Workers,
		"batch_size", cfg.BatchSize)

	total, err := sched.Run(ctx)
	switch {
	case errors.Is(err, scheduler.ErrNoYears):
		logger.Error("no years found to process")
		return ExitNothingFound
	case errors.Is(err, context.Canceled):
		// Progress up to the last completed batch is already flushed;
		// the next run picks up from there.
		logger.Warn("run interrupted",
			"total_downloads", total,
			"failed_downloads", store.Stat("downloads_failed"))
		return ExitGeneralError
	case err != nil:
		logger.Error("run failed", "err", err)
		return ExitGeneralError
	}

	logger.Info("run completed",
		"total_downloads", total,
		"failed_downloads", store.Stat("downloads_failed"))
	return ExitSuccess
}

// buildConfig assembles the effective configuration: defaults, then
// config file, environment, flags, and finally positional arguments.
// The years-back override tracks whether it was given at all, so an
// explicit 0 (current year only) is honored instead of read as unset.
func buildConfig(args []string) (config.Config, int) {
	fs := flag.NewFlagSet("lucas-download", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	root := fs.String("root", "", "Download root: local directory or bucket URL")
	years := fs.Int("years", -1, "How many years back to cover (0 means the current year only)")
	workers := fs.Int("workers", 0, "Number of concurrent workers")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: lucas-download [options] [years-back [workers]]

Download the Chamber of Deputies session diaries (PDF) for the last N
years into a local directory tree, resumable across runs.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return config.Config{}, ExitInvalidArgs
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return config.Config{}, ExitInvalidArgs
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return config.Config{}, ExitInvalidArgs
	}

	override := config.Config{
		DownloadRoot: *root,
		Workers:      *workers,
	}
	yearsBack, yearsSet := *years, *years >= 0

	// Positional overrides, kept for operators used to the short form.
	rest := fs.Args()
	if len(rest) > 0 {
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid years-back argument %q. Using default: %d\n", rest[0], cfg.YearsBack)
		} else {
			yearsBack, yearsSet = n, true
		}
	}
	if len(rest) > 1 {
		n, err := strconv.Atoi(rest[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid workers argument %q. Using default: %d\n", rest[1], cfg.Workers)
		} else {
			override.Workers = n
		}
	}

	cfg = cfg.Merge(override)
	// Applied outside Merge: a zero years-back is a real value here,
	// not an unset field.
	if yearsSet {
		cfg.YearsBack = yearsBack
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return config.Config{}, ExitInvalidArgs
	}
	return cfg, ExitSuccess
}

// newLogger builds the run logger, writing to stderr and, when
// possible, to the run-log file as well. A log file that cannot be
// opened costs a warning, never the run.
func newLogger(logFile string) (*slog.Logger, func()) {
	out := io.Writer(os.Stderr)
	closeLog := func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v\n", logFile, err)
		} else {
			out = io.MultiWriter(os.Stderr, f)
			closeLog = func() { f.Close() }
		}
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})), closeLog
}

// openBucket opens the download root. A plain path becomes a local
// fileblob bucket (created if absent); anything with a scheme is
// passed to the blob URL muxer.
func openBucket(ctx context.Context, root string) (*blob.Bucket, error) {
	if strings.Contains(root, "://") {
		return blob.OpenBucket(ctx, root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve download root: %w", err)
	}
	return fileblob.OpenBucket(abs, &fileblob.Options{CreateDir: true})
}
