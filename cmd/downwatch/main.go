package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/use-agent/downwatch/config"
	"github.com/use-agent/downwatch/runner"
	"github.com/use-agent/downwatch/scraper"
	"github.com/use-agent/downwatch/webhook"
)

// exitConfigError tells a rejected configuration apart from a failed run
// (exit status 1).
const exitConfigError = 2

func main() {
	os.Exit(run())
}

func run() int {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitConfigError
	}
	slog.Info("downwatch starting",
		"target", cfg.Target.URL,
		"source", cfg.Target.Source,
		"headless", cfg.Browser.Headless,
		"strictDelivery", cfg.Collector.StrictDelivery,
	)

	// ── 3. Wire the run ─────────────────────────────────────────────
	r, err := runner.New(*cfg, scraper.NewLauncher(cfg.Browser), webhook.New(cfg.Collector))
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitConfigError
	}

	// ── 4. Run once; SIGINT/SIGTERM cut the run short ───────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome := r.Run(ctx)

	code := outcome.ExitCode()
	slog.Info("downwatch finished",
		"run_id", outcome.RunID,
		"ok", outcome.Result.OK,
		"delivered", outcome.Delivered(),
		"exitCode", code,
	)
	return code
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
