package capacity

import (
	"github.com/3leaps/gostratus/pkg/telemetry"
)

// Bounds clamps pool capacity targets.
type Bounds struct {
	// Min is the capacity floor. Values below 1 are treated as 1.
	Min int

	// Max is the configured hard limit for capacity growth.
	Max int
}

func (b Bounds) clamp(n int) int {
	min := b.Min
	if min < 1 {
		min = 1
	}
	if n < min {
		return min
	}
	if b.Max > 0 && n > b.Max {
		return b.Max
	}
	return n
}

// CPU utilization bands for the hysteretic adjustment policy. Between the
// two thresholds capacity holds steady, which keeps the loop from
// oscillating on noisy readings.
const (
	cpuDecreaseAbove = 90.0
	cpuIncreaseBelow = 50.0
	capacityStep     = 2

	memoryClampRatio    = 0.9
	memoryNoGrowthRatio = 0.8
)

// computeTarget returns the next capacity for a pool given the current
// capacity and a resource snapshot.
//
// The CPU band contributes an additive step: above 90% utilization the
// target drops by 2, below 50% it grows by 2, in between it holds. Memory
// pressure contributes an independent ceiling: above 0.9 the ceiling is
// half the current capacity (emergency clamp), in (0.8, 0.9] the ceiling
// pins to current (no growth this cycle). The final target is the minimum
// of the two, clamped to bounds. Exceeding processMemoryLimit (when set)
// triggers the same emergency clamp as high pressure.
func computeTarget(current int, snap telemetry.Snapshot, processMemoryLimit uint64, bounds Bounds) int {
	cpuTarget := current
	switch {
	case snap.CPUPercent > cpuDecreaseAbove:
		cpuTarget = current - capacityStep
	case snap.CPUPercent < cpuIncreaseBelow:
		cpuTarget = current + capacityStep
	}

	memCeiling := cpuTarget
	overLimit := processMemoryLimit > 0 && snap.ProcessRSS > processMemoryLimit
	switch {
	case snap.MemoryPressure > memoryClampRatio || overLimit:
		memCeiling = current / 2
	case snap.MemoryPressure > memoryNoGrowthRatio:
		memCeiling = current
	}

	target := cpuTarget
	if memCeiling < target {
		target = memCeiling
	}
	return bounds.clamp(target)
}

// initialCapacity derives a pool's starting capacity from a snapshot.
//
// File-level work is the most resource-heavy per unit and stays at 1-2.
// Table and Rule scale with the snapshot's recommended parallelism, with
// Rule doubled since rule checks are lightweight. IO-bound pools cap at a
// quarter of the processors (at most 4); CPU-bound pools cap at three
// quarters.
func initialCapacity(level Level, workload Workload, snap telemetry.Snapshot) int {
	procs := snap.Processors
	if procs < 1 {
		procs = 1
	}

	var base int
	switch level {
	case LevelFile:
		base = minInt(2, procs/4)
	case LevelStage:
		base = minInt(3, procs/3)
	case LevelTable:
		base = minInt(snap.MaxParallelism, procs)
	case LevelRule:
		base = minInt(snap.MaxParallelism*2, procs*2)
	}

	switch workload {
	case WorkloadIO:
		base = minInt(base, minInt(procs/4, 4))
	case WorkloadCPU:
		base = minInt(base, minInt(procs*3/4, procs))
	}

	if base < 1 {
		base = 1
	}
	return base
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
