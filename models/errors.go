package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes carried by ScrapeError and surfaced in failure envelopes.
const (
	ErrCodeReadinessTimeout = "READINESS_TIMEOUT"
	ErrCodeNavigation       = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash     = "BROWSER_CRASH"
	ErrCodeExtraction       = "EXTRACTION_FAILED"
	ErrCodeRunDeadline      = "RUN_DEADLINE_EXCEEDED"
	ErrCodeRunCanceled      = "RUN_CANCELED"
	ErrCodeInvalidConfig    = "INVALID_CONFIG"

	// Delivery codes. DELIVERY_REJECTED means the collector answered with a
	// non-2xx status; DELIVERY_UNREACHABLE means no response was received.
	ErrCodeDeliveryRejected    = "DELIVERY_REJECTED"
	ErrCodeDeliveryUnreachable = "DELIVERY_UNREACHABLE"
)

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first ScrapeError in err's chain, or ""
// when there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasCode reports whether err's chain contains a ScrapeError with code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

// InterruptCode names why ctx ended: RUN_DEADLINE_EXCEEDED when its
// deadline passed, RUN_CANCELED otherwise (e.g. SIGINT/SIGTERM).
func InterruptCode(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrCodeRunDeadline
	}
	return ErrCodeRunCanceled
}
