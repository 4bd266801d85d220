package scraper

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"

	"github.com/use-agent/downwatch/config"
)

// Profile is the per-run browser identity used to look less like automated
// traffic. It is plain data; Session.NewPage applies it.
type Profile struct {
	UserAgent      string
	Width          int
	Height         int
	AcceptLanguage string
	Referer        string

	// Stealth injects the go-rod/stealth patches before any navigation.
	Stealth bool

	// BlockedResourceTypes and BlockAds feed the request hijacker.
	BlockedResourceTypes []string
	BlockAds             bool
}

// NewProfile builds the profile for one run. The viewport height is the
// configured base plus a uniform offset in [0, HeightJitter], drawn from
// rng; callers seed rng per run so consecutive runs differ.
func NewProfile(cfg config.EvasionConfig, targetURL string, rng *rand.Rand) Profile {
	height := cfg.ViewportHeight
	if cfg.HeightJitter > 0 {
		height += rng.Intn(cfg.HeightJitter + 1)
	}

	referer := cfg.Referer
	if referer == "" {
		referer = searchReferer(targetURL)
	}

	return Profile{
		UserAgent:            cfg.UserAgent,
		Width:                cfg.ViewportWidth,
		Height:               height,
		AcceptLanguage:       acceptLanguage(cfg.Locale),
		Referer:              referer,
		Stealth:              cfg.Stealth,
		BlockedResourceTypes: cfg.BlockedResourceTypes,
		BlockAds:             cfg.BlockAds,
	}
}

// Headers returns the extra request headers sent with every request of the
// page.
func (p Profile) Headers() map[string]string {
	h := make(map[string]string, 2)
	if p.AcceptLanguage != "" {
		h["Accept-Language"] = p.AcceptLanguage
	}
	if p.Referer != "" {
		h["Referer"] = p.Referer
	}
	return h
}

// searchReferer simulates arrival from a Google search for the target host.
func searchReferer(targetURL string) string {
	u, err := url.Parse(targetURL)
	if err != nil || u.Hostname() == "" {
		return "https://www.google.com/"
	}
	return "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
}

// acceptLanguage puts the target locale first, then its bare language,
// then English, with descending q-values:
//
//	el-GR -> el-GR,el;q=0.9,en-US;q=0.8,en;q=0.7
func acceptLanguage(locale string) string {
	candidates := []string{locale}
	if lang, _, ok := strings.Cut(locale, "-"); ok {
		candidates = append(candidates, lang)
	}
	candidates = append(candidates, "en-US", "en")

	seen := make(map[string]struct{}, len(candidates))
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if len(parts) == 0 {
			parts = append(parts, c)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s;q=0.%d", c, 10-len(parts)))
	}
	return strings.Join(parts, ",")
}
