// Package output provides JSONL output for pipeline run reporting.
//
// Output is structured as typed record envelopes containing stage
// outcomes, progress updates with remaining-time estimates, errors, and
// run summaries. Each line is a self-contained JSON object that can be
// parsed independently. This record stream is the narrow interface
// consumed by reporting surfaces; the core never depends on them.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: gostratus.<type>.v<version>
const (
	// TypeStage identifies per-stage outcome records.
	TypeStage = "gostratus.stage.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "gostratus.progress.v1"

	// TypeError identifies error records.
	TypeError = "gostratus.error.v1"

	// TypeSummary identifies final run summary records.
	TypeSummary = "gostratus.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "gostratus.stage.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for the pipeline run.
	RunID string `json:"run_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// StageRecord is the data payload for a finished stage.
type StageRecord struct {
	// RunID is carried redundantly so a stage line stands alone.
	RunID string `json:"run_id"`

	// Stage is the stage number (0-5).
	Stage int `json:"stage"`

	// Label is the stage's human name.
	Label string `json:"label"`

	// Status is the stage outcome: completed, failed, or skipped.
	Status string `json:"status"`

	// Errors and Warnings are the validation issue counts for the stage.
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`

	// Reason explains a skip or failure, when applicable.
	Reason string `json:"reason,omitempty"`

	// Duration is the stage's wall time.
	Duration time.Duration `json:"duration_ns"`
}

// ProgressRecord is the data payload for progress updates.
//
// Progress records carry the forecaster's live estimate so a consumer can
// render an ETA without recomputing rates.
type ProgressRecord struct {
	// Stage is the stage number reporting progress.
	Stage int `json:"stage"`

	// Label is the stage's human name.
	Label string `json:"label"`

	// Percent is completion in [0, 100], negative when unknown.
	Percent float64 `json:"percent"`

	// ProcessedUnits and TotalUnits are unit counts when known.
	ProcessedUnits int64 `json:"processed_units,omitempty"`
	TotalUnits     int64 `json:"total_units,omitempty"`

	// Remaining is the estimated time left, present only when an
	// estimate exists.
	Remaining *time.Duration `json:"remaining_ns,omitempty"`

	// Confidence is the estimate confidence in [0.1, 0.95].
	Confidence float64 `json:"confidence,omitempty"`

	// Display is a short human hint, e.g. "~2m30s remaining".
	Display string `json:"display,omitempty"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire run,
// allowing partial results when some stages fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Stage is the stage related to this error, negative if none.
	Stage int `json:"stage,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// SummaryRecord is the data payload for the final run summary.
type SummaryRecord struct {
	// RunID identifies the run being summarized.
	RunID string `json:"run_id"`

	// Status is the terminal run status.
	Status string `json:"status"`

	// Errors and Warnings are totals across all produced stage results.
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`

	// Duration is the run's wall time.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is Duration formatted for display.
	DurationHuman string `json:"duration_human"`
}

// NewSummaryRecord builds a SummaryRecord with the human duration filled.
func NewSummaryRecord(runID, status string, errs, warnings int, took time.Duration) *SummaryRecord {
	return &SummaryRecord{
		RunID:         runID,
		Status:        status,
		Errors:        errs,
		Warnings:      warnings,
		Duration:      took,
		DurationHuman: took.Round(time.Millisecond).String(),
	}
}

// Error codes for ErrorRecord.Code.
const (
	ErrCodeStageFailed       = "stage_failed"
	ErrCodeDependencyMissing = "dependency_missing"
	ErrCodeCancelled         = "cancelled"
	ErrCodeInternal          = "internal"
)

var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors from write operations with context.
type WriteError struct {
	// Op is the operation that failed (e.g., "marshal_data", "write").
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("output %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}
