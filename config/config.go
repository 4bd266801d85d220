package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultUserAgent is a realistic desktop Chrome user-agent string.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds all application configuration. It is built once in main and
// passed by value; nothing in the program mutates it afterwards.
type Config struct {
	Target      TargetConfig
	Browser     BrowserConfig
	Evasion     EvasionConfig
	Readiness   ReadinessConfig
	Extract     ExtractConfig
	Diagnostics DiagnosticsConfig
	Collector   CollectorConfig
	Run         RunConfig
	Log         LogConfig
}

// TargetConfig identifies the monitored page.
type TargetConfig struct {
	// URL is the outage-tracking page to load.
	URL string // default: "https://downdetector.gr/"

	// Source is the site id reported in every envelope.
	Source string // default: "downdetector.gr"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is an optional proxy URL for the browser.
	Proxy string

	// NavigationTimeout bounds a single navigation.
	NavigationTimeout time.Duration // default: 30s
}

// EvasionConfig feeds the evasion profile builder.
type EvasionConfig struct {
	UserAgent string

	// Locale is put first in Accept-Language, e.g. "el-GR".
	Locale string // default: "el-GR"

	ViewportWidth  int // default: 1366
	ViewportHeight int // default: 768

	// HeightJitter is the upper bound of the random offset added to
	// ViewportHeight on every run.
	HeightJitter int // default: 120

	// Referer overrides the search-engine referer. Empty means a Google
	// search for the target host.
	Referer string

	// Stealth injects the stealth patches before navigation.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block.
	BlockedResourceTypes []string // default: ["Font", "Media"]

	// BlockAds blocks requests to well-known ad and tracking domains.
	BlockAds bool // default: true
}

// ReadinessConfig controls the wait between navigation and extraction.
type ReadinessConfig struct {
	// NavigationSettle is slept after navigation, before the consent click.
	NavigationSettle time.Duration // default: 2.5s

	// ConsentSelector matches the cookie-consent accept button.
	ConsentSelector string // default: "#onetrust-accept-btn-handler"

	// ConsentTimeout bounds the consent click. A button covered by another
	// overlay would otherwise be retried until the run deadline.
	ConsentTimeout time.Duration // default: 3s

	// ConsentSettle is slept after the consent dismissal attempt.
	ConsentSettle time.Duration // default: 1.2s

	// Timeout is the readiness ceiling.
	Timeout time.Duration // default: 15s

	// PollInterval is the spacing between structure checks.
	PollInterval time.Duration // default: 250ms
}

// ExtractConfig holds the selectors describing the page shape.
type ExtractConfig struct {
	TitleSelector             string   // default: "h5"
	ContainerSelectors        []string // default: ["article", "section", "li", "div"]
	IndicatorSelector         string   // default: "svg.sparkline"
	PriorityIndicatorSelector string   // default: "svg.sparkline.danger"
	SeriesAttribute           string   // default: "data-values"
}

// DiagnosticsConfig controls failure artifact capture.
type DiagnosticsConfig struct {
	// HTMLPreviewChars is the number of characters of markup kept.
	HTMLPreviewChars int // default: 1000

	// Screenshot toggles the viewport screenshot.
	Screenshot bool // default: true

	// Timeout bounds each individual capture.
	Timeout time.Duration // default: 10s
}

// CollectorConfig controls delivery of the result envelope.
type CollectorConfig struct {
	// URL is the collector endpoint. Required.
	URL string

	// Secret enables an HMAC-SHA256 signature header when non-empty.
	Secret string

	// Timeout bounds the single delivery attempt.
	Timeout time.Duration // default: 30s

	// StrictDelivery makes a rejected or unreachable delivery of a
	// successful scrape fail the run.
	StrictDelivery bool // default: true
}

// RunConfig bounds the whole run.
type RunConfig struct {
	// Deadline caps navigation through extraction. Zero disables it.
	Deadline time.Duration // default: 3m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Target: TargetConfig{
			URL:    envOr("DOWNWATCH_TARGET_URL", "https://downdetector.gr/"),
			Source: envOr("DOWNWATCH_SOURCE", "downdetector.gr"),
		},
		Browser: BrowserConfig{
			Headless:          envBoolOr("DOWNWATCH_HEADLESS", true),
			NoSandbox:         envBoolOr("DOWNWATCH_NO_SANDBOX", true),
			BrowserBin:        envOr("DOWNWATCH_BROWSER_BIN", os.Getenv("PUPPETEER_EXECUTABLE_PATH")),
			Proxy:             os.Getenv("DOWNWATCH_PROXY"),
			NavigationTimeout: envDurationOr("DOWNWATCH_NAV_TIMEOUT", 30*time.Second),
		},
		Evasion: EvasionConfig{
			UserAgent:      envOr("DOWNWATCH_USER_AGENT", DefaultUserAgent),
			Locale:         envOr("DOWNWATCH_LOCALE", "el-GR"),
			ViewportWidth:  envIntOr("DOWNWATCH_VIEWPORT_WIDTH", 1366),
			ViewportHeight: envIntOr("DOWNWATCH_VIEWPORT_HEIGHT", 768),
			HeightJitter:   envIntOr("DOWNWATCH_VIEWPORT_HEIGHT_JITTER", 120),
			Referer:        os.Getenv("DOWNWATCH_REFERER"),
			Stealth:        envBoolOr("DOWNWATCH_STEALTH", true),
			BlockedResourceTypes: envSliceOr("DOWNWATCH_BLOCKED_RESOURCES", []string{
				"Font", "Media",
			}),
			BlockAds: envBoolOr("DOWNWATCH_BLOCK_ADS", true),
		},
		Readiness: ReadinessConfig{
			NavigationSettle: envDurationOr("DOWNWATCH_NAV_SETTLE", 2500*time.Millisecond),
			ConsentSelector:  envOr("DOWNWATCH_CONSENT_SELECTOR", "#onetrust-accept-btn-handler"),
			ConsentTimeout:   envDurationOr("DOWNWATCH_CONSENT_TIMEOUT", 3*time.Second),
			ConsentSettle:    envDurationOr("DOWNWATCH_CONSENT_SETTLE", 1200*time.Millisecond),
			Timeout:          envDurationOr("DOWNWATCH_READY_TIMEOUT", 15*time.Second),
			PollInterval:     envDurationOr("DOWNWATCH_READY_POLL", 250*time.Millisecond),
		},
		Extract: ExtractConfig{
			TitleSelector: envOr("DOWNWATCH_TITLE_SELECTOR", "h5"),
			ContainerSelectors: envSliceOr("DOWNWATCH_CONTAINER_SELECTORS", []string{
				"article", "section", "li", "div",
			}),
			IndicatorSelector:         envOr("DOWNWATCH_INDICATOR_SELECTOR", "svg.sparkline"),
			PriorityIndicatorSelector: envOr("DOWNWATCH_PRIORITY_INDICATOR_SELECTOR", "svg.sparkline.danger"),
			SeriesAttribute:           envOr("DOWNWATCH_SERIES_ATTR", "data-values"),
		},
		Diagnostics: DiagnosticsConfig{
			HTMLPreviewChars: envIntOr("DOWNWATCH_PREVIEW_CHARS", 1000),
			Screenshot:       envBoolOr("DOWNWATCH_SCREENSHOT", true),
			Timeout:          envDurationOr("DOWNWATCH_DIAG_TIMEOUT", 10*time.Second),
		},
		Collector: CollectorConfig{
			URL:            os.Getenv("DOWNWATCH_COLLECTOR_URL"),
			Secret:         os.Getenv("DOWNWATCH_COLLECTOR_SECRET"),
			Timeout:        envDurationOr("DOWNWATCH_COLLECTOR_TIMEOUT", 30*time.Second),
			StrictDelivery: envBoolOr("DOWNWATCH_STRICT_DELIVERY", true),
		},
		Run: RunConfig{
			Deadline: envDurationOr("DOWNWATCH_RUN_DEADLINE", 3*time.Minute),
		},
		Log: LogConfig{
			Level:  envOr("DOWNWATCH_LOG_LEVEL", "info"),
			Format: envOr("DOWNWATCH_LOG_FORMAT", "json"),
		},
	}
}

// Validate reports every problem found in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if err := validateHTTPURL("target url", c.Target.URL); err != nil {
		errs = append(errs, err)
	}
	if c.Target.Source == "" {
		errs = append(errs, errors.New("source must not be empty"))
	}
	if c.Collector.URL == "" {
		errs = append(errs, errors.New("collector url is required (DOWNWATCH_COLLECTOR_URL)"))
	} else if err := validateHTTPURL("collector url", c.Collector.URL); err != nil {
		errs = append(errs, err)
	}
	if c.Readiness.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("readiness timeout must be positive, got %s", c.Readiness.Timeout))
	}
	if c.Readiness.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("readiness poll interval must be positive, got %s", c.Readiness.PollInterval))
	}
	if c.Evasion.ViewportWidth <= 0 || c.Evasion.ViewportHeight <= 0 {
		errs = append(errs, errors.New("viewport dimensions must be positive"))
	}
	if c.Evasion.HeightJitter < 0 {
		errs = append(errs, errors.New("viewport height jitter must not be negative"))
	}
	if c.Extract.TitleSelector == "" || c.Extract.IndicatorSelector == "" ||
		c.Extract.PriorityIndicatorSelector == "" || c.Extract.SeriesAttribute == "" {
		errs = append(errs, errors.New("extract selectors must not be empty"))
	}
	if len(c.Extract.ContainerSelectors) == 0 {
		errs = append(errs, errors.New("at least one container selector is required"))
	}
	if c.Diagnostics.HTMLPreviewChars < 0 {
		errs = append(errs, errors.New("html preview length must not be negative"))
	}

	return errors.Join(errs...)
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: unsupported scheme %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", name)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
