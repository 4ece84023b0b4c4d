package runstate

import (
	"testing"
	"time"
)

func TestStore_WriteGetRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	rec := &RunRecord{
		RunID:        "run-1",
		Name:         "demo",
		State:        RunStateCompleted,
		ManifestPath: "/tmp/manifest.yaml",
		CreatedAt:    now,
		StartedAt:    &now,
		Stages: []StageOutcome{
			{Stage: 0, Label: "format", Status: "completed"},
			{Stage: 1, Label: "tables", Status: "failed", Errors: 3, Reason: "schema mismatch"},
		},
		Errors: 3,
	}

	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Get("run-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.RunID != rec.RunID {
		t.Fatalf("run_id mismatch: got=%q want=%q", got.RunID, rec.RunID)
	}
	if got.State != rec.State {
		t.Fatalf("state mismatch: got=%q want=%q", got.State, rec.State)
	}
	if len(got.Stages) != 2 || got.Stages[1].Errors != 3 {
		t.Fatalf("stage outcomes not persisted: %+v", got.Stages)
	}
}

func TestStore_ListSortsNewestFirst(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	t1 := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 29, 13, 0, 0, 0, time.UTC)

	if err := s.Write(&RunRecord{RunID: "run-1", State: RunStateCompleted, CreatedAt: t1, StartedAt: &t1}); err != nil {
		t.Fatalf("Write run-1: %v", err)
	}
	if err := s.Write(&RunRecord{RunID: "run-2", State: RunStateCompleted, CreatedAt: t2, StartedAt: &t2}); err != nil {
		t.Fatalf("Write run-2: %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected run count: %d", len(got))
	}
	if got[0].RunID != "run-2" {
		t.Fatalf("expected newest first, got[0]=%q", got[0].RunID)
	}
}

func TestStore_ZombieDetection(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	// PID that cannot exist on a live system.
	rec := &RunRecord{RunID: "run-z", State: RunStateRunning, PID: 1 << 22, CreatedAt: now, StartedAt: &now}
	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Get("run-z")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != RunStateUnknown {
		t.Fatalf("expected zombie run to be marked unknown, got %q", got.State)
	}
}

func TestTracker_Lifecycle(t *testing.T) {
	root := t.TempDir()
	tr := NewTracker(root)

	rec, err := tr.Begin("run-t", "/tmp/manifest.yaml", "nightly")
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if rec.State != RunStateRunning || rec.PID == 0 {
		t.Fatalf("unexpected begin record: %+v", rec)
	}

	if err := tr.Heartbeat("run-t"); err != nil {
		t.Fatalf("Heartbeat() error: %v", err)
	}

	outcomes := []StageOutcome{{Stage: 0, Label: "format", Status: "completed"}}
	if err := tr.Finish("run-t", RunStateCompleted, outcomes, 0, 1); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}

	got, err := tr.Store().Get("run-t")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != RunStateCompleted {
		t.Fatalf("state mismatch: got=%q", got.State)
	}
	if got.EndedAt == nil || got.LastHeartbeat == nil {
		t.Fatalf("timestamps not persisted: %+v", got)
	}
	if got.Warnings != 1 || len(got.Stages) != 1 {
		t.Fatalf("summary not persisted: %+v", got)
	}
}
