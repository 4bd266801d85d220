package scraper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/downwatch/scraper"
	"github.com/use-agent/downwatch/scraper/scrapertest"
)

const consentSelector = "#onetrust-accept-btn-handler"

func TestDismissConsent_Present(t *testing.T) {
	page := scrapertest.NewPage(`<div id="onetrust-banner-sdk"><button id="onetrust-accept-btn-handler">OK</button></div>`)

	require.NoError(t, scraper.DismissConsent(context.Background(), page, consentSelector, time.Second))
	assert.Equal(t, []string{consentSelector}, page.Clicked())
}

func TestDismissConsent_Absent(t *testing.T) {
	page := scrapertest.NewPage(loadedPage)

	require.NoError(t, scraper.DismissConsent(context.Background(), page, consentSelector, time.Second))
	assert.Empty(t, page.Clicked())
}

func TestDismissConsent_ClickError(t *testing.T) {
	page := scrapertest.NewPage(loadedPage)
	page.ClickErr = errors.New("node detached")

	err := scraper.DismissConsent(context.Background(), page, consentSelector, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node detached")
}

func TestDismissConsent_CoveredButtonGivesUp(t *testing.T) {
	page := scrapertest.NewPage(`<button id="onetrust-accept-btn-handler">OK</button>`)
	page.ClickHook = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	start := time.Now()
	err := scraper.DismissConsent(context.Background(), page, consentSelector, 30*time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, page.Clicked())
}

func TestDismissConsent_NoSelector(t *testing.T) {
	page := scrapertest.NewPage(loadedPage)
	page.ClickErr = errors.New("must not be called")

	assert.NoError(t, scraper.DismissConsent(context.Background(), page, "", time.Second))
}

func TestSettle(t *testing.T) {
	assert.NoError(t, scraper.Settle(context.Background(), 0))
	assert.NoError(t, scraper.Settle(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, scraper.Settle(ctx, time.Hour), context.Canceled)
}
