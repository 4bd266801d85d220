package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/downwatch/config"
	"github.com/use-agent/downwatch/models"
	"golang.org/x/time/rate"
)

// Readiness blocks until the page has rendered at least one entity title.
//
// Sites behind bot-detection middleware serve a shell or challenge page
// first, so the condition is polled in the page with a ceiling instead of
// waiting a fixed delay.
type Readiness struct {
	selector string
	timeout  time.Duration
	interval time.Duration
}

// NewReadiness builds a detector for titleSelector.
func NewReadiness(titleSelector string, cfg config.ReadinessConfig) *Readiness {
	return &Readiness{
		selector: titleSelector,
		timeout:  cfg.Timeout,
		interval: cfg.PollInterval,
	}
}

// Wait polls until at least one element matches the title selector.
//
// It returns READINESS_TIMEOUT when the ceiling elapses, and
// RUN_DEADLINE_EXCEEDED or RUN_CANCELED when ctx itself ends first. Probe errors (for
// example a navigation replacing the execution context mid-evaluation) are
// not fatal; polling continues.
func (r *Readiness) Wait(ctx context.Context, page Page) error {
	waitCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(r.interval), 1)
	start := time.Now()
	checks := 0

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			return r.expired(ctx, checks, err)
		}
		checks++

		n, err := page.CountElements(waitCtx, r.selector)
		if err != nil {
			if waitCtx.Err() != nil {
				return r.expired(ctx, checks, err)
			}
			slog.Debug("readiness probe failed", "selector", r.selector, "error", err)
			continue
		}
		if n > 0 {
			slog.Debug("page ready",
				"selector", r.selector,
				"matches", n,
				"checks", checks,
				"elapsed", time.Since(start),
			)
			return nil
		}
	}
}

func (r *Readiness) expired(ctx context.Context, checks int, cause error) error {
	if ctx.Err() != nil {
		return models.NewScrapeError(
			models.InterruptCode(ctx),
			"run ended while waiting for page structure",
			ctx.Err(),
		)
	}
	return models.NewScrapeError(
		models.ErrCodeReadinessTimeout,
		fmt.Sprintf("no %q elements rendered within %s after %d checks; page is likely blocked by bot protection, still behind a challenge, or redesigned",
			r.selector, r.timeout, checks),
		cause,
	)
}
