package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/downwatch/config"
	"github.com/use-agent/downwatch/models"
)

// Launcher starts a browser session. The runner owns the returned session
// and must Close it exactly once.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is one exclusively owned browser.
type Session interface {
	// NewPage opens a tab with the profile applied before any navigation.
	NewPage(ctx context.Context, profile Profile) (Page, error)

	// Close stops request interception, closes the browser and removes its
	// user-data directory.
	Close() error
}

// RodLauncher launches a local Chromium through go-rod.
type RodLauncher struct {
	cfg config.BrowserConfig
}

// NewLauncher returns a launcher for the given browser configuration.
func NewLauncher(cfg config.BrowserConfig) *RodLauncher {
	return &RodLauncher{cfg: cfg}
}

// Launch starts the browser and connects to it.
func (r *RodLauncher) Launch(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewScrapeError(models.InterruptCode(ctx), "run ended before browser launch", err)
	}

	l := launcher.New().
		Headless(r.cfg.Headless).
		NoSandbox(r.cfg.NoSandbox)

	if r.cfg.BrowserBin != "" {
		l = l.Bin(r.cfg.BrowserBin)
	}
	if r.cfg.Proxy != "" {
		l = l.Proxy(r.cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-setuid-sandbox"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	return &rodSession{
		browser:    browser,
		launcher:   l,
		navTimeout: r.cfg.NavigationTimeout,
	}, nil
}

// rodSession is a Session backed by a go-rod browser.
type rodSession struct {
	browser    *rod.Browser
	launcher   *launcher.Launcher
	navTimeout time.Duration

	mu      sync.Mutex
	routers []*rod.HijackRouter
}

// NewPage opens a tab and applies the evasion profile.
//
// Order matters: the stealth script, user agent, headers and hijack router
// only take effect for navigations that happen after they are installed.
func (s *rodSession) NewPage(ctx context.Context, profile Profile) (Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to open page",
			err,
		)
	}
	p := page.Context(ctx)

	// ── 1. Stealth injection ──────────────────────────────────────────
	if profile.Stealth {
		if _, evalErr := p.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	// ── 2. User agent + locale ────────────────────────────────────────
	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      profile.UserAgent,
		AcceptLanguage: profile.AcceptLanguage,
	}); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to set user agent", err)
	}

	// ── 3. Viewport ───────────────────────────────────────────────────
	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             profile.Width,
		Height:            profile.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to set viewport", err)
	}

	// ── 4. Extra headers (Accept-Language + search Referer) ──────────
	if headers := profile.Headers(); len(headers) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(headers),
		}).Call(p); err != nil {
			slog.Warn("failed to set extra headers", "error", err)
		}
	}

	// ── 5. Request hijacking (fonts/media + ad domains) ──────────────
	if router := setupHijack(page, profile.BlockedResourceTypes, profile.BlockAds); router != nil {
		s.mu.Lock()
		s.routers = append(s.routers, router)
		s.mu.Unlock()
	}

	return &rodPage{page: page, navTimeout: s.navTimeout}, nil
}

// Close tears the browser down. Every step runs even if an earlier one
// failed; the joined error is informational only.
func (s *rodSession) Close() error {
	var errs []error

	s.mu.Lock()
	routers := s.routers
	s.routers = nil
	s.mu.Unlock()

	for _, router := range routers {
		if err := router.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.browser.Close(); err != nil {
		errs = append(errs, err)
		s.launcher.Kill()
	}
	s.launcher.Cleanup()

	return errors.Join(errs...)
}
