// Package pipeline orchestrates the fixed six-stage validation pipeline:
// independent stages fan out concurrently, dependent stages sequence after
// their predecessor's result, and per-stage failures stay isolated.
//
// The concrete validation logic lives outside this package. Stages are
// opaque Workers registered per stage number; each worker acquires its own
// capacity permits (file/stage/table/rule) and pushes progress samples to
// the forecaster as it runs. The scheduler only fans out, sequences, and
// aggregates.
package pipeline

import "context"

// StageCount is the number of stages in the fixed topology.
const StageCount = 6

// NoDependency marks a stage with no predecessor.
const NoDependency = -1

// Descriptor describes one stage of the fixed topology. Descriptors are
// immutable; the dependency graph is acyclic and a dependency's number is
// always strictly less than the dependent's.
type Descriptor struct {
	// Number is the stage position, 0-5.
	Number int

	// Label is the human name used in logs and records.
	Label string

	// DependsOn is the predecessor stage number, or NoDependency.
	DependsOn int

	// FallbackDep is the alternate predecessor consulted when DependsOn
	// is disabled, or NoDependency.
	FallbackDep int

	// Skippable reports whether the stage may be disabled for a run.
	Skippable bool
}

// Independent reports whether the stage has no predecessor.
func (d Descriptor) Independent() bool { return d.DependsOn == NoDependency }

// Topology returns the fixed stage graph.
//
// Stages 0, 1, 4 and 5 are mutually independent. Stage 2 consumes stage
// 1's table listing; stage 3 consumes stage 2's result, falling back to
// stage 1's tables when stage 2 is disabled.
func Topology() [StageCount]Descriptor {
	return [StageCount]Descriptor{
		{Number: 0, Label: "format", DependsOn: NoDependency, FallbackDep: NoDependency, Skippable: true},
		{Number: 1, Label: "tables", DependsOn: NoDependency, FallbackDep: NoDependency, Skippable: true},
		{Number: 2, Label: "geometry", DependsOn: 1, FallbackDep: NoDependency, Skippable: true},
		{Number: 3, Label: "attributes", DependsOn: 2, FallbackDep: 1, Skippable: true},
		{Number: 4, Label: "relations", DependsOn: NoDependency, FallbackDep: NoDependency, Skippable: true},
		{Number: 5, Label: "metadata", DependsOn: NoDependency, FallbackDep: NoDependency, Skippable: true},
	}
}

// Input is what the scheduler hands a worker.
type Input struct {
	// RunID identifies the pipeline run.
	RunID string

	// Stage is the descriptor for the stage being executed.
	Stage Descriptor

	// Dependency is the predecessor's output, nil for independent stages.
	// For stage 3 with stage 2 disabled this carries stage 1's output.
	Dependency *Output
}

// Output is the opaque result a worker returns. Produced exactly once per
// stage per run and read-only afterward.
type Output struct {
	// Payload is stage-specific. Stage 1 conventionally returns its table
	// listing here for downstream stages.
	Payload any

	// Errors and Warnings are the validation issue counts found by the
	// stage. A non-zero error count is a normal outcome, not a failure of
	// the pipeline itself.
	Errors   int
	Warnings int
}

// Worker executes one stage. Workers observe ctx cooperatively and return
// early on cancellation. A returned error marks the stage failed without
// aborting sibling independent stages.
type Worker func(ctx context.Context, in *Input) (*Output, error)
