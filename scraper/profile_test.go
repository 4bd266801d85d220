package scraper

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/downwatch/config"
)

func evasionConfig() config.EvasionConfig {
	return config.EvasionConfig{
		UserAgent:            config.DefaultUserAgent,
		Locale:               "el-GR",
		ViewportWidth:        1366,
		ViewportHeight:       768,
		HeightJitter:         120,
		Stealth:              true,
		BlockedResourceTypes: []string{"Font", "Media"},
		BlockAds:             true,
	}
}

func TestNewProfile_HeightWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cfg := evasionConfig()

	heights := make(map[int]struct{})
	for i := 0; i < 200; i++ {
		p := NewProfile(cfg, "https://downdetector.gr/", rng)
		assert.GreaterOrEqual(t, p.Height, 768)
		assert.LessOrEqual(t, p.Height, 768+120)
		assert.Equal(t, 1366, p.Width)
		heights[p.Height] = struct{}{}
	}
	assert.Greater(t, len(heights), 1, "height should vary between runs")
}

func TestNewProfile_NoJitter(t *testing.T) {
	cfg := evasionConfig()
	cfg.HeightJitter = 0

	p := NewProfile(cfg, "https://downdetector.gr/", rand.New(rand.NewSource(7)))
	assert.Equal(t, 768, p.Height)
}

func TestNewProfile_FixedFields(t *testing.T) {
	p := NewProfile(evasionConfig(), "https://downdetector.gr/", rand.New(rand.NewSource(1)))

	assert.Equal(t, config.DefaultUserAgent, p.UserAgent)
	assert.Equal(t, "el-GR,el;q=0.9,en-US;q=0.8,en;q=0.7", p.AcceptLanguage)
	assert.Equal(t, "https://www.google.com/search?q=downdetector.gr", p.Referer)
	assert.True(t, p.Stealth)
	assert.Equal(t, map[string]string{
		"Accept-Language": "el-GR,el;q=0.9,en-US;q=0.8,en;q=0.7",
		"Referer":         "https://www.google.com/search?q=downdetector.gr",
	}, p.Headers())
}

func TestNewProfile_RefererOverride(t *testing.T) {
	cfg := evasionConfig()
	cfg.Referer = "https://duckduckgo.com/"

	p := NewProfile(cfg, "https://downdetector.gr/", rand.New(rand.NewSource(1)))
	assert.Equal(t, "https://duckduckgo.com/", p.Referer)
}

func TestAcceptLanguage(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{"el-GR", "el-GR,el;q=0.9,en-US;q=0.8,en;q=0.7"},
		{"en-US", "en-US,en;q=0.9"},
		{"de", "de,en-US;q=0.9,en;q=0.8"},
		{"", "en-US,en;q=0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			assert.Equal(t, tt.want, acceptLanguage(tt.locale))
		})
	}
}

func TestSearchReferer_BadURL(t *testing.T) {
	assert.Equal(t, "https://www.google.com/", searchReferer("::not a url"))
}
