package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// StageStatus is the terminal state of one stage within a run.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageResult records one stage's outcome. Produced exactly once per stage
// per run; read-only afterward.
type StageResult struct {
	Stage  int         `json:"stage"`
	Label  string      `json:"label"`
	Status StageStatus `json:"status"`

	// Output is the worker's result, nil when the stage failed or was
	// skipped.
	Output *Output `json:"-"`

	// Errors and Warnings mirror the output counts for aggregation.
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`

	// Reason explains a skip or failure.
	Reason string `json:"reason,omitempty"`

	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Run is one pipeline execution. Created at submission and mutated only by
// the scheduler; terminal once Execute returns.
type Run struct {
	// ID is the unique run identifier.
	ID string `json:"id"`

	// Status is the overall outcome.
	Status RunStatus `json:"status"`

	// Stages holds the result for every stage that produced one. Disabled
	// stages without a fallback obligation are absent.
	Stages map[int]*StageResult `json:"stages"`

	// Errors and Warnings are totals across all produced stage results.
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// newRun creates a Run in the running state.
func newRun() *Run {
	return &Run{
		ID:        uuid.NewString(),
		Status:    RunRunning,
		Stages:    make(map[int]*StageResult),
		StartedAt: time.Now(),
	}
}

// Result returns the recorded result for a stage, or nil.
func (r *Run) Result(stage int) *StageResult {
	return r.Stages[stage]
}

// completedOutput returns a stage's output only when the stage completed.
func (r *Run) completedOutput(stage int) *Output {
	res := r.Stages[stage]
	if res == nil || res.Status != StageCompleted {
		return nil
	}
	return res.Output
}

// aggregate folds every stage result's counts into the run totals.
func (r *Run) aggregate() {
	r.Errors = 0
	r.Warnings = 0
	for _, res := range r.Stages {
		r.Errors += res.Errors
		r.Warnings += res.Warnings
	}
}
