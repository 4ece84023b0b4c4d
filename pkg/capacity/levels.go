package capacity

import "fmt"

// Level identifies the granularity a pool guards.
type Level string

const (
	// LevelFile bounds whole-dataset work. File-level units are the most
	// resource-heavy, so this pool is deliberately small.
	LevelFile Level = "file"

	// LevelStage bounds concurrent pipeline stages within one run.
	LevelStage Level = "stage"

	// LevelTable bounds concurrent per-table work within a stage.
	LevelTable Level = "table"

	// LevelRule bounds concurrent rule checks within a table. Rule checks
	// are assumed lightweight and numerous.
	LevelRule Level = "rule"
)

// Levels lists all levels in outer-to-inner order.
func Levels() []Level {
	return []Level{LevelFile, LevelStage, LevelTable, LevelRule}
}

// Workload distinguishes IO-bound from CPU-bound work. Only the Table and
// Rule levels are partitioned by workload; File and Stage are single-typed.
type Workload string

const (
	// WorkloadDefault selects the single pool of an unpartitioned level.
	WorkloadDefault Workload = ""

	WorkloadIO  Workload = "io"
	WorkloadCPU Workload = "cpu"
)

// partitioned reports whether a level carries per-workload pools.
func partitioned(level Level) bool {
	return level == LevelTable || level == LevelRule
}

// poolKey addresses one pool in the controller's hierarchy.
type poolKey struct {
	level    Level
	workload Workload
}

func (k poolKey) String() string {
	if k.workload == WorkloadDefault {
		return string(k.level)
	}
	return fmt.Sprintf("%s/%s", k.level, k.workload)
}
