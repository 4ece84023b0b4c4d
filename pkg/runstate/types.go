package runstate

import "time"

// RunState is the lifecycle state of a tracked pipeline run.
//
// NOTE: These values are persisted in run.json and are part of the stable
// on-disk contract.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStatePartial   RunState = "partial"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
	RunStateUnknown   RunState = "unknown"
)

// StageOutcome is a per-stage summary captured for operator clarity.
//
// This is intentionally shallow so the run registry stays stable even if
// deeper stage result schemas evolve.
type StageOutcome struct {
	Stage    int    `json:"stage"`
	Label    string `json:"label"`
	Status   string `json:"status"`
	Errors   int    `json:"errors,omitempty"`
	Warnings int    `json:"warnings,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// RunRecord is the persistent record written to run.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type RunRecord struct {
	RunID        string   `json:"run_id"`
	Name         string   `json:"name,omitempty"`
	State        RunState `json:"state"`
	ManifestPath string   `json:"manifest_path,omitempty"`
	PID          int      `json:"pid,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	Stages     []StageOutcome `json:"stages,omitempty"`
	Errors     int            `json:"errors,omitempty"`
	Warnings   int            `json:"warnings,omitempty"`
	OutputPath string         `json:"output_path,omitempty"`
}
