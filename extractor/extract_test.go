package extractor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/downwatch/config"
	"github.com/use-agent/downwatch/models"
)

func defaultConfig() config.ExtractConfig {
	return config.ExtractConfig{
		TitleSelector:             "h5",
		ContainerSelectors:        []string{"article", "section", "li", "div"},
		IndicatorSelector:         "svg.sparkline",
		PriorityIndicatorSelector: "svg.sparkline.danger",
		SeriesAttribute:           "data-values",
	}
}

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(defaultConfig())
	require.NoError(t, err)
	return e
}

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return string(data)
}

func str(s string) *string { return &s }

func TestExtract_SiblingDangerIndicator(t *testing.T) {
	e := newExtractor(t)
	page := `<html><body><div class="row">
		<div class="caption"><h5>Vodafone</h5></div>
		<svg class="sparkline danger" data-values="1,2,3"></svg>
	</div></body></html>`

	records, err := e.Extract(page)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got, err := json.Marshal(records)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"h5":"Vodafone","sparkline_class":"sparkline danger","sparkline_values_raw":"1,2,3"}]`,
		string(got))
}

func TestExtract_Fixture(t *testing.T) {
	e := newExtractor(t)
	records, err := e.Extract(loadFixture(t, "status_page.html"))
	require.NoError(t, err)

	want := []models.StatusRecord{
		{Label: "Vodafone", IndicatorClass: str("sparkline danger"), IndicatorSeries: str("1,2,3")},
		{Label: "Cosmote", IndicatorClass: str("sparkline danger"), IndicatorSeries: str("9,9,9")},
		{Label: "Nova", IndicatorClass: str("sparkline success"), IndicatorSeries: nil},
	}
	assert.Equal(t, want, records)
}

func TestExtract_DangerPreferredOverPlain(t *testing.T) {
	e := newExtractor(t)
	page := `<ul><li>
		<h5>Wind</h5>
		<svg class="sparkline" data-values="1"></svg>
		<svg class="sparkline danger" data-values="2"></svg>
	</li></ul>`

	records, err := e.Extract(page)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "sparkline danger", *records[0].IndicatorClass)
	assert.Equal(t, "2", *records[0].IndicatorSeries)
}

func TestExtract_ContainerPreference(t *testing.T) {
	e := newExtractor(t)
	// The div is nearer, but article is preferred as a container class,
	// so the indicator inside the article (outside the div) is found.
	page := `<article>
		<div><h5>Inalan</h5></div>
		<svg class="sparkline" data-values="5,6"></svg>
	</article>`

	records, err := e.Extract(page)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "5,6", *records[0].IndicatorSeries)
}

func TestExtract_NoIndicatorWithinTwoLevels(t *testing.T) {
	e := newExtractor(t)
	page := `<div id="outer">
		<svg class="sparkline danger" data-values="far"></svg>
		<div id="mid"><div id="inner"><h5>Forthnet</h5></div></div>
	</div>`

	records, err := e.Extract(page)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Forthnet", records[0].Label)
	assert.Nil(t, records[0].IndicatorClass)
	assert.Nil(t, records[0].IndicatorSeries)
	assert.False(t, records[0].HasIndicator())
}

func TestExtract_NoContainer(t *testing.T) {
	cfg := defaultConfig()
	cfg.ContainerSelectors = []string{"article"}
	e, err := New(cfg)
	require.NoError(t, err)

	records, err := e.Extract(`<div><h5>Orphan</h5><svg class="sparkline" data-values="1"></svg></div>`)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].IndicatorClass)
}

func TestExtract_SkipsBlankTitles(t *testing.T) {
	e := newExtractor(t)
	records, err := e.Extract("<div><h5> \n\t </h5><h5></h5><h5>  Nova  </h5></div>")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Nova", records[0].Label)
}

func TestExtract_DuplicatesPreservedInOrder(t *testing.T) {
	e := newExtractor(t)
	page := `<section>
		<div><h5>Cosmote</h5></div>
		<div><h5>Vodafone</h5></div>
		<div><h5>Cosmote</h5></div>
	</section>`

	records, err := e.Extract(page)
	require.NoError(t, err)
	labels := make([]string, 0, len(records))
	for _, r := range records {
		labels = append(labels, r.Label)
	}
	assert.Equal(t, []string{"Cosmote", "Vodafone", "Cosmote"}, labels)
}

func TestExtract_EmptyPage(t *testing.T) {
	e := newExtractor(t)
	records, err := e.Extract("<html><body><p>nothing here</p></body></html>")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestExtract_Idempotent(t *testing.T) {
	e := newExtractor(t)
	page := loadFixture(t, "status_page.html")

	first, err := e.Extract(page)
	require.NoError(t, err)
	second, err := e.Extract(page)
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))
}

func TestNew_InvalidSelector(t *testing.T) {
	cfg := defaultConfig()
	cfg.PriorityIndicatorSelector = "svg[["

	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.ErrCodeInvalidConfig))
}

func TestSearchRoots(t *testing.T) {
	assert.Nil(t, searchRoots(nil))
}

func TestExtract_SectionWrapperWins(t *testing.T) {
	e := newExtractor(t)
	// A section ancestor outranks the nearer div, so every title inside it
	// resolves against the whole section and picks its first danger line.
	page := `<section>
		<div><h5>A</h5><svg class="sparkline danger" data-values="a"></svg></div>
		<div><h5>B</h5><svg class="sparkline danger" data-values="b"></svg></div>
	</section>`

	records, err := e.Extract(page)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", *records[0].IndicatorSeries)
	assert.Equal(t, "a", *records[1].IndicatorSeries)
}
