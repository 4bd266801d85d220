package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DismissConsent clicks the cookie-consent accept button when it is on the
// page. Absence of the overlay is the normal case and is not an error;
// callers discard the returned error. A positive timeout bounds the click.
func DismissConsent(ctx context.Context, page Page, selector string, timeout time.Duration) error {
	if selector == "" {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	clicked, err := page.ClickIfPresent(ctx, selector)
	if err != nil {
		return fmt.Errorf("dismiss consent %q: %w", selector, err)
	}
	if clicked {
		slog.Debug("consent overlay dismissed", "selector", selector)
	}
	return nil
}

// Settle sleeps for d or until ctx ends, whichever comes first.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
