package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gostratus/pkg/output"
)

// independentOrder lists the stages with no predecessor. They fan out
// concurrently; nothing orders them relative to each other.
var independentOrder = [...]int{0, 1, 4, 5}

// Scheduler executes pipeline runs over the fixed stage topology.
//
// Register a Worker per stage before calling Execute. A Scheduler is safe
// for concurrent Execute calls; runs share no mutable state.
type Scheduler struct {
	topology [StageCount]Descriptor
	workers  [StageCount]Worker
	logger   *zap.Logger
	writer   output.Writer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecordWriter emits stage and summary records to the given writer as
// runs execute. Writes are best-effort; a failing writer never fails a run.
func WithRecordWriter(w output.Writer) Option {
	return func(s *Scheduler) { s.writer = w }
}

// NewScheduler creates a Scheduler. A nil logger falls back to zap.NewNop.
func NewScheduler(logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		topology: Topology(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs the worker for a stage number.
func (s *Scheduler) Register(stage int, w Worker) error {
	if stage < 0 || stage >= StageCount {
		return fmt.Errorf("stage %d out of range [0, %d)", stage, StageCount)
	}
	if w == nil {
		return fmt.Errorf("stage %d: nil worker", stage)
	}
	s.workers[stage] = w
	return nil
}

// Execute runs the pipeline for the given per-stage enable flags.
//
// Enabled independent stages (0, 1, 4, 5) run concurrently; a failure in
// one never aborts its siblings. Stage 2 then runs with stage 1's output,
// and stage 3 with stage 2's, or with stage 1's when stage 2 is disabled
// (the documented fallback, not an error path). A dependent stage whose
// required predecessor produced no result is skipped with a warning and
// leaves no result of its own.
//
// Per-stage validation failures are normal outcomes recorded in the run's
// counts. Execute returns a non-nil error only for a fault inside the
// orchestration itself, which also marks the run failed. Cancelling ctx
// aborts unstarted stages at the next stage boundary and marks the run
// cancelled; in-flight workers observe the same ctx cooperatively.
func (s *Scheduler) Execute(ctx context.Context, enabled [StageCount]bool) (run *Run, err error) {
	run = newRun()

	defer func() {
		if rec := recover(); rec != nil {
			run.Status = RunFailed
			run.EndedAt = time.Now()
			err = fmt.Errorf("orchestration fault: %v", rec)
			s.logger.Error("pipeline orchestration fault",
				zap.String("run_id", run.ID),
				zap.Any("panic", rec))
		}
	}()

	s.logger.Info("pipeline run started",
		zap.String("run_id", run.ID),
		zap.Bools("enabled", enabled[:]))

	s.runIndependent(ctx, run, enabled)

	if s.checkCancelled(ctx, run) {
		return run, nil
	}

	if enabled[2] {
		s.runDependent(ctx, run, s.topology[2], run.completedOutput(1), 1)
	}

	if s.checkCancelled(ctx, run) {
		return run, nil
	}

	if enabled[3] {
		desc := s.topology[3]
		if enabled[2] {
			s.runDependent(ctx, run, desc, run.completedOutput(2), 2)
		} else {
			// Contractual fallback: with geometry disabled, the attribute
			// stage consumes the table listing directly.
			s.logger.Info("stage falling back to alternate dependency",
				zap.String("run_id", run.ID),
				zap.Int("stage", desc.Number),
				zap.Int("fallback", desc.FallbackDep))
			s.runDependent(ctx, run, desc, run.completedOutput(desc.FallbackDep), desc.FallbackDep)
		}
	}

	if s.checkCancelled(ctx, run) {
		return run, nil
	}

	s.finish(ctx, run, RunCompleted)
	return run, nil
}

// runIndependent fans out every enabled independent stage and awaits the
// whole set. Failures stay isolated per stage.
func (s *Scheduler) runIndependent(ctx context.Context, run *Run, enabled [StageCount]bool) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, n := range independentOrder {
		if !enabled[n] {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		desc := s.topology[n]
		worker := s.workers[n]
		if worker == nil {
			s.logger.Warn("no worker registered for enabled stage",
				zap.String("run_id", run.ID),
				zap.Int("stage", n))
			mu.Lock()
			run.Stages[n] = &StageResult{
				Stage:  n,
				Label:  desc.Label,
				Status: StageSkipped,
				Reason: "no worker registered",
			}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(desc Descriptor, worker Worker) {
			defer wg.Done()
			res := s.runStage(ctx, run.ID, desc, worker, nil)
			mu.Lock()
			run.Stages[desc.Number] = res
			mu.Unlock()
		}(desc, worker)
	}

	wg.Wait()
}

// runDependent executes a dependent stage synchronously with the given
// predecessor output. A missing dependency skips the stage with a warning
// and records nothing; there is no input to run the check against.
func (s *Scheduler) runDependent(ctx context.Context, run *Run, desc Descriptor, dep *Output, depStage int) {
	if dep == nil {
		s.logger.Warn("dependency result missing, skipping stage",
			zap.String("run_id", run.ID),
			zap.Int("stage", desc.Number),
			zap.Int("dependency", depStage))
		return
	}
	worker := s.workers[desc.Number]
	if worker == nil {
		s.logger.Warn("no worker registered for enabled stage",
			zap.String("run_id", run.ID),
			zap.Int("stage", desc.Number))
		run.Stages[desc.Number] = &StageResult{
			Stage:  desc.Number,
			Label:  desc.Label,
			Status: StageSkipped,
			Reason: "no worker registered",
		}
		return
	}
	run.Stages[desc.Number] = s.runStage(ctx, run.ID, desc, worker, dep)
}

// runStage invokes one worker and converts its outcome into a StageResult.
func (s *Scheduler) runStage(ctx context.Context, runID string, desc Descriptor, worker Worker, dep *Output) *StageResult {
	res := &StageResult{
		Stage:     desc.Number,
		Label:     desc.Label,
		StartedAt: time.Now(),
	}

	out, err := invokeWorker(ctx, worker, &Input{RunID: runID, Stage: desc, Dependency: dep})
	res.CompletedAt = time.Now()

	if err != nil {
		res.Status = StageFailed
		res.Reason = err.Error()
		s.logger.Warn("stage failed",
			zap.String("run_id", runID),
			zap.Int("stage", desc.Number),
			zap.String("label", desc.Label),
			zap.Error(err))
	} else {
		res.Status = StageCompleted
		res.Output = out
		if out != nil {
			res.Errors = out.Errors
			res.Warnings = out.Warnings
		}
		s.logger.Debug("stage completed",
			zap.String("run_id", runID),
			zap.Int("stage", desc.Number),
			zap.String("label", desc.Label),
			zap.Int("errors", res.Errors),
			zap.Int("warnings", res.Warnings),
			zap.Duration("took", res.CompletedAt.Sub(res.StartedAt)))
	}

	s.writeStageRecord(ctx, runID, res)
	return res
}

// invokeWorker calls a worker with panic isolation: a panicking stage is a
// failed stage, not a dead process, and must not take its siblings with it.
func invokeWorker(ctx context.Context, worker Worker, in *Input) (out *Output, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("stage panic: %v", rec)
		}
	}()
	return worker(ctx, in)
}

// checkCancelled finalizes the run as cancelled when ctx is done. Called
// at each stage boundary.
func (s *Scheduler) checkCancelled(ctx context.Context, run *Run) bool {
	if ctx.Err() == nil {
		return false
	}
	s.finish(ctx, run, RunCancelled)
	return true
}

// finish aggregates counts, stamps the terminal status, and emits the
// summary record.
func (s *Scheduler) finish(ctx context.Context, run *Run, status RunStatus) {
	run.aggregate()
	run.Status = status
	run.EndedAt = time.Now()

	s.logger.Info("pipeline run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("errors", run.Errors),
		zap.Int("warnings", run.Warnings),
		zap.Duration("took", run.EndedAt.Sub(run.StartedAt)))

	if s.writer != nil {
		// Best effort - a failing record writer never fails the run.
		_ = s.writer.WriteSummary(ctx, output.NewSummaryRecord(run.ID, string(status), run.Errors, run.Warnings, run.EndedAt.Sub(run.StartedAt)))
	}
}

// writeStageRecord emits a stage record, best effort.
func (s *Scheduler) writeStageRecord(ctx context.Context, runID string, res *StageResult) {
	if s.writer == nil {
		return
	}
	_ = s.writer.WriteStage(ctx, &output.StageRecord{
		RunID:    runID,
		Stage:    res.Stage,
		Label:    res.Label,
		Status:   string(res.Status),
		Errors:   res.Errors,
		Warnings: res.Warnings,
		Reason:   res.Reason,
		Duration: res.CompletedAt.Sub(res.StartedAt),
	})
}
