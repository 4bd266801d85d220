package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestRunResult_SuccessEnvelope(t *testing.T) {
	at := time.Date(2024, 5, 1, 13, 4, 5, 123_456_789, time.FixedZone("EEST", 3*3600))
	result := NewSuccess("downdetector.gr", at, []StatusRecord{
		NewStatusRecord("Vodafone", str("sparkline danger"), str("1,2,3")),
		NewStatusRecord("Nova", nil, nil),
	})

	body, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"ok": true,
		"source": "downdetector.gr",
		"timestamp": "2024-05-01T10:04:05.123Z",
		"data": [
			{"h5": "Vodafone", "sparkline_class": "sparkline danger", "sparkline_values_raw": "1,2,3"},
			{"h5": "Nova", "sparkline_class": null, "sparkline_values_raw": null}
		]
	}`, string(body))
}

func TestRunResult_EmptyData(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, result := range map[string]RunResult{
		"constructor": NewSuccess("downdetector.gr", at, nil),
		"literal":     {OK: true, Source: "downdetector.gr", Timestamp: at},
	} {
		t.Run(name, func(t *testing.T) {
			body, err := json.Marshal(result)
			require.NoError(t, err)
			assert.JSONEq(t, `{"ok":true,"source":"downdetector.gr","timestamp":"2024-05-01T10:00:00.000Z","data":[]}`, string(body))
		})
	}
}

func TestRunResult_FailureEnvelope(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("with diagnostics", func(t *testing.T) {
		result := NewFailure("downdetector.gr", at, "READINESS_TIMEOUT: blocked", &Diagnostics{
			PageTitle:   "Just a moment...",
			HTMLPreview: "<html>",
		})
		body, err := json.Marshal(result)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"ok": false,
			"source": "downdetector.gr",
			"timestamp": "2024-05-01T10:00:00.000Z",
			"error": "READINESS_TIMEOUT: blocked",
			"debug": {"title": "Just a moment...", "html_preview": "<html>", "screenshot_base64": null}
		}`, string(body))
	})

	t.Run("without page", func(t *testing.T) {
		body, err := json.Marshal(NewFailure("downdetector.gr", at, "BROWSER_CRASH: no chrome", nil))
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"ok": false,
			"source": "downdetector.gr",
			"timestamp": "2024-05-01T10:00:00.000Z",
			"error": "BROWSER_CRASH: no chrome",
			"debug": null
		}`, string(body))
	})
}

func TestStatusRecord_Copies(t *testing.T) {
	class := "sparkline"
	rec := NewStatusRecord("Wind", &class, nil)
	class = "changed"

	require.NotNil(t, rec.IndicatorClass)
	assert.Equal(t, "sparkline", *rec.IndicatorClass)
	assert.True(t, rec.HasIndicator())
	assert.False(t, NewStatusRecord("Nova", nil, nil).HasIndicator())
}

func TestScrapeError(t *testing.T) {
	cause := errors.New("context deadline exceeded")
	err := NewScrapeError(ErrCodeReadinessTimeout, "no titles", cause)

	assert.Equal(t, "READINESS_TIMEOUT: no titles: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "EXTRACTION_FAILED: empty", NewScrapeError(ErrCodeExtraction, "empty", nil).Error())

	wrapped := fmt.Errorf("run: %w", err)
	assert.Equal(t, ErrCodeReadinessTimeout, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeReadinessTimeout))
	assert.False(t, HasCode(wrapped, ErrCodeNavigation))
	assert.Empty(t, CodeOf(cause))
	assert.Empty(t, CodeOf(nil))
}

func TestInterruptCode(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ErrCodeRunCanceled, InterruptCode(canceled))

	expired, cancelTimeout := context.WithTimeout(context.Background(), -time.Second)
	defer cancelTimeout()
	assert.Equal(t, ErrCodeRunDeadline, InterruptCode(expired))
}
