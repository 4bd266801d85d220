package models

import (
	"encoding/json"
	"time"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision,
// e.g. 2024-05-01T10:04:05.123Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Diagnostics holds best-effort forensic artifacts captured on failure.
// Any field may be empty if its capture failed.
type Diagnostics struct {
	PageTitle   string  `json:"title"`
	HTMLPreview string  `json:"html_preview"`
	Screenshot  *string `json:"screenshot_base64"` // base64 PNG
}

// RunResult is the single result of one run. Exactly one of the two
// variants is populated: OK=true carries Records, OK=false carries Message
// and (optionally) Diagnostics. Build it with NewSuccess or NewFailure.
type RunResult struct {
	OK        bool
	Source    string
	Timestamp time.Time

	Records []StatusRecord

	Message     string
	Diagnostics *Diagnostics
}

// NewSuccess builds the success variant. A nil records slice is normalised
// to an empty one so that the envelope always carries a JSON array.
func NewSuccess(source string, at time.Time, records []StatusRecord) RunResult {
	if records == nil {
		records = []StatusRecord{}
	}
	return RunResult{
		OK:        true,
		Source:    source,
		Timestamp: at,
		Records:   records,
	}
}

// NewFailure builds the failure variant.
func NewFailure(source string, at time.Time, message string, diag *Diagnostics) RunResult {
	return RunResult{
		OK:          false,
		Source:      source,
		Timestamp:   at,
		Message:     message,
		Diagnostics: diag,
	}
}

// successEnvelope is the wire shape of a successful run.
type successEnvelope struct {
	OK        bool           `json:"ok"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Data      []StatusRecord `json:"data"`
}

// failureEnvelope is the wire shape of a failed run.
type failureEnvelope struct {
	OK        bool         `json:"ok"`
	Source    string       `json:"source"`
	Timestamp string       `json:"timestamp"`
	Error     string       `json:"error"`
	Debug     *Diagnostics `json:"debug"`
}

// MarshalJSON encodes the result as the collector envelope.
func (r RunResult) MarshalJSON() ([]byte, error) {
	ts := r.Timestamp.UTC().Format(TimestampLayout)
	if r.OK {
		data := r.Records
		if data == nil {
			data = []StatusRecord{}
		}
		return json.Marshal(successEnvelope{
			OK:        true,
			Source:    r.Source,
			Timestamp: ts,
			Data:      data,
		})
	}
	return json.Marshal(failureEnvelope{
		OK:        false,
		Source:    r.Source,
		Timestamp: ts,
		Error:     r.Message,
		Debug:     r.Diagnostics,
	})
}

// DeliveryOutcome describes what the collector answered. It is only used
// to decide logging and exit status; it is never persisted.
type DeliveryOutcome struct {
	Delivered    bool
	HTTPStatus   int
	ResponseBody string
}
