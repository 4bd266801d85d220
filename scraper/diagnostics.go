package scraper

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/downwatch/config"
	"github.com/use-agent/downwatch/models"
)

// DiagnosticCollector gathers forensic artifacts after a failed run.
// Collect never fails and never panics.
type DiagnosticCollector struct {
	previewChars int
	screenshot   bool
	timeout      time.Duration
}

// NewDiagnosticCollector builds a collector from configuration.
func NewDiagnosticCollector(cfg config.DiagnosticsConfig) *DiagnosticCollector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiagnosticCollector{
		previewChars: cfg.HTMLPreviewChars,
		screenshot:   cfg.Screenshot,
		timeout:      timeout,
	}
}

// Collect captures, in order and independently of each other: a viewport
// screenshot, the page title and a markup prefix. It returns nil only when
// there is no page to inspect.
//
// The captures run on a context detached from ctx's cancellation, since
// the run context is often already expired when we get here.
func (c *DiagnosticCollector) Collect(ctx context.Context, page Page) *models.Diagnostics {
	if page == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	diag := &models.Diagnostics{}

	if c.screenshot {
		img, err := capture(ctx, c.timeout, "screenshot", page.Screenshot)
		if err == nil && len(img) > 0 {
			encoded := base64.StdEncoding.EncodeToString(img)
			diag.Screenshot = &encoded
		}
	}

	if title, err := capture(ctx, c.timeout, "title", page.Title); err == nil {
		diag.PageTitle = title
	}

	if markup, err := capture(ctx, c.timeout, "html", page.HTML); err == nil {
		diag.HTMLPreview = truncateRunes(markup, c.previewChars)
	}

	return diag
}

// capture runs one artifact capture with its own timeout. Errors and
// panics are logged and returned for the caller to drop.
func capture[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s capture panicked: %v", name, r)
		}
		if err != nil {
			slog.Debug("diagnostic capture failed", "artifact", name, "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// truncateRunes returns at most n characters of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
