package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/downwatch/models"
	"github.com/ysmood/gson"
)

// Page is the subset of browser-tab operations the pipeline needs. Every
// call is bounded by the given context.
type Page interface {
	// Navigate loads url and returns once DOMContentLoaded has fired.
	Navigate(ctx context.Context, url string) error

	// CountElements evaluates querySelectorAll(selector).length in the page.
	CountElements(ctx context.Context, selector string) (int, error)

	// ClickIfPresent clicks the first element matching selector, if any,
	// without waiting for it to appear.
	ClickIfPresent(ctx context.Context, selector string) (bool, error)

	// HTML returns the serialized markup of the rendered document.
	HTML(ctx context.Context) (string, error)

	// Title returns document.title.
	Title(ctx context.Context) (string, error)

	// Screenshot captures the current viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// rodPage implements Page on top of a go-rod page.
type rodPage struct {
	page       *rod.Page
	navTimeout time.Duration
}

func (r *rodPage) Navigate(ctx context.Context, url string) error {
	p := r.page.Context(ctx)
	if r.navTimeout > 0 {
		p = p.Timeout(r.navTimeout)
		defer p.CancelTimeout()
	}

	// The waiter MUST be registered before Navigate, otherwise the
	// lifecycle event can fire before we listen for it.
	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(url); err != nil {
		return categorizeError(ctx, err, "navigation to target URL failed")
	}
	wait()

	if err := p.GetContext().Err(); err != nil {
		return categorizeError(ctx, err, "timed out waiting for DOMContentLoaded")
	}
	return nil
}

func (r *rodPage) CountElements(ctx context.Context, selector string) (int, error) {
	res, err := r.page.Context(ctx).Eval(`(sel) => document.querySelectorAll(sel).length`, selector)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (r *rodPage) ClickIfPresent(ctx context.Context, selector string) (bool, error) {
	has, el, err := r.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return false, err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, err
	}
	return true, nil
}

func (r *rodPage) HTML(ctx context.Context) (string, error) {
	return r.page.Context(ctx).HTML()
}

func (r *rodPage) Title(ctx context.Context) (string, error) {
	res, err := r.page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (r *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return r.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw navigation errors into typed ScrapeErrors.
// A context error is attributed to the run (deadline or cancellation) only
// when the run's own context has ended; otherwise it is the navigation
// timeout.
func categorizeError(runCtx context.Context, err error, msg string) *models.ScrapeError {
	switch {
	case runCtx.Err() != nil:
		return models.NewScrapeError(models.InterruptCode(runCtx), msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeNavigation, msg+" (navigation timeout)", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
