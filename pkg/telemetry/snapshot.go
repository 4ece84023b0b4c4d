package telemetry

import (
	"runtime"
	"time"
)

// LoadLevel is a coarse classification of current host load.
type LoadLevel string

const (
	LoadLow    LoadLevel = "low"
	LoadMedium LoadLevel = "medium"
	LoadHigh   LoadLevel = "high"
)

// Snapshot is an immutable view of host resources at a point in time.
//
// Snapshots are produced by a Monitor and superseded by the next sample.
// Consumers must not mutate a Snapshot after receiving it.
type Snapshot struct {
	// Processors is the logical CPU count.
	Processors int `json:"processors"`

	// CPUPercent is the aggregate CPU utilization in [0, 100].
	CPUPercent float64 `json:"cpu_percent"`

	// MemoryTotal is total physical memory in bytes.
	MemoryTotal uint64 `json:"memory_total"`

	// MemoryAvailable is memory available to new allocations in bytes.
	MemoryAvailable uint64 `json:"memory_available"`

	// ProcessRSS is this process's resident set size in bytes.
	ProcessRSS uint64 `json:"process_rss"`

	// MemoryPressure is used/total memory as a ratio in [0, 1].
	MemoryPressure float64 `json:"memory_pressure"`

	// Load is the coarse load classification derived from CPU and memory.
	Load LoadLevel `json:"load"`

	// MaxParallelism is the recommended concurrency ceiling for new work.
	MaxParallelism int `json:"max_parallelism"`

	// BatchSize is the recommended number of units per processing batch.
	BatchSize int `json:"batch_size"`

	// TakenAt is when the underlying probe ran.
	TakenAt time.Time `json:"taken_at"`
}

// defaultMemoryBudget is the assumed available memory when probing fails.
const defaultMemoryBudget = 512 << 20 // 512 MiB

// DefaultSnapshot returns the conservative snapshot used when a probe fails.
//
// Telemetry is never a fatal path: rather than surfacing a probe error the
// Monitor hands out this snapshot, which recommends half the logical
// processors and a fixed memory budget.
func DefaultSnapshot() Snapshot {
	procs := runtime.NumCPU()
	parallel := procs / 2
	if parallel < 1 {
		parallel = 1
	}
	return Snapshot{
		Processors:      procs,
		MemoryAvailable: defaultMemoryBudget,
		MemoryPressure:  0.5,
		Load:            LoadMedium,
		MaxParallelism:  parallel,
		BatchSize:       defaultBatchSize,
		TakenAt:         time.Now(),
	}
}

// classifyLoad buckets CPU utilization and memory pressure into a LoadLevel.
func classifyLoad(cpuPercent, memoryPressure float64) LoadLevel {
	switch {
	case cpuPercent > 85 || memoryPressure > 0.85:
		return LoadHigh
	case cpuPercent > 60 || memoryPressure > 0.70:
		return LoadMedium
	default:
		return LoadLow
	}
}

const (
	defaultBatchSize = 1000
	minBatchSize     = 100
	maxBatchSize     = 10000

	// bytesPerBatchUnit sizes batches against available memory: one batch
	// unit per 256 KiB of headroom keeps worst-case working sets bounded.
	bytesPerBatchUnit = 256 << 10
)

// recommendParallelism derives a concurrency ceiling from the load bucket.
func recommendParallelism(procs int, load LoadLevel) int {
	var p int
	switch load {
	case LoadHigh:
		p = procs / 4
	case LoadMedium:
		p = procs / 2
	default:
		p = procs
	}
	if p < 1 {
		p = 1
	}
	return p
}

// recommendBatchSize scales batch size with available memory, clamped to
// [minBatchSize, maxBatchSize].
func recommendBatchSize(memoryAvailable uint64) int {
	units := int(memoryAvailable / bytesPerBatchUnit)
	if units < minBatchSize {
		return minBatchSize
	}
	if units > maxBatchSize {
		return maxBatchSize
	}
	return units
}
