package runstate

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Tracker records the lifecycle of an in-process pipeline run in the
// run registry, so `gostratus runs` can report on past and live runs.
type Tracker struct {
	store *Store
}

func NewTracker(root string) *Tracker {
	return &Tracker{store: NewStore(root)}
}

func (t *Tracker) Store() *Store {
	return t.store
}

// Begin registers a run as running and returns its record.
//
// The run directory is created so output files can be placed inside it
// before the first state transition.
func (t *Tracker) Begin(runID, manifestPath, name string) (*RunRecord, error) {
	if t == nil || t.store == nil {
		return nil, fmt.Errorf("tracker is not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}

	if err := os.MkdirAll(t.store.RunDir(runID), 0755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	now := time.Now().UTC()
	record := &RunRecord{
		RunID:        runID,
		Name:         name,
		State:        RunStateRunning,
		ManifestPath: manifestPath,
		PID:          os.Getpid(),
		CreatedAt:    now,
		StartedAt:    &now,
	}
	if err := t.store.Write(record); err != nil {
		return nil, err
	}
	return record, nil
}

// Heartbeat refreshes the run's heartbeat timestamp.
func (t *Tracker) Heartbeat(runID string) error {
	record, err := t.store.Get(runID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	record.LastHeartbeat = &now
	return t.store.Write(record)
}

// Finish records the terminal state and per-stage outcomes of a run.
func (t *Tracker) Finish(runID string, state RunState, stages []StageOutcome, errors, warnings int) error {
	record, err := t.store.Get(runID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	record.State = state
	record.Stages = stages
	record.Errors = errors
	record.Warnings = warnings
	record.EndedAt = &now
	record.PID = 0
	return t.store.Write(record)
}
