package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/use-agent/downwatch/config"
	"github.com/use-agent/downwatch/models"
)

const (
	// SignatureHeader carries "sha256=<hex>" when a secret is configured.
	SignatureHeader = "X-Downwatch-Signature"

	userAgent = "downwatch/1.0"

	// maxResponseBody caps how much of the collector's answer is kept.
	maxResponseBody = 64 << 10
)

// Client delivers run results to the collector. It makes exactly one
// attempt per result; there is no retry or backoff.
type Client struct {
	url    string
	secret string
	http   *http.Client
}

// New builds a client from configuration.
func New(cfg config.CollectorConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:    cfg.URL,
		secret: cfg.Secret,
		http:   &http.Client{Timeout: timeout},
	}
}

// Deliver POSTs the result envelope.
//
// A response with status in [200,300) yields Delivered=true. Any other
// status is not an error: it yields Delivered=false with the status and
// body for the caller to log. Only transport failures (no response at all)
// return an error, coded DELIVERY_UNREACHABLE.
func (c *Client) Deliver(ctx context.Context, result models.RunResult) (*models.DeliveryOutcome, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("webhook: marshal result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webhook: create request: %w", err)
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	req.Header.Set("User-Agent", userAgent)

	if c.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(c.secret, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeDeliveryUnreachable,
			"collector unreachable",
			err,
		)
	}
	defer resp.Body.Close()

	// A truncated or failed body read still leaves us with a status code,
	// which is all the outcome needs.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	return &models.DeliveryOutcome{
		Delivered:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		HTTPStatus:   resp.StatusCode,
		ResponseBody: string(respBody),
	}, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// RejectedError converts a non-delivered outcome into a DELIVERY_REJECTED
// error for logging and exit classification. It returns nil when the
// outcome was delivered.
func RejectedError(outcome *models.DeliveryOutcome) error {
	if outcome == nil || outcome.Delivered {
		return nil
	}
	return models.NewScrapeError(
		models.ErrCodeDeliveryRejected,
		fmt.Sprintf("collector answered %d: %s", outcome.HTTPStatus, outcome.ResponseBody),
		nil,
	)
}
