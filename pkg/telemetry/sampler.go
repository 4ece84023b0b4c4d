package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Sampler probes the host for raw resource readings.
//
// Implementations may be expensive (the system sampler blocks briefly to
// measure CPU utilization); the Monitor is responsible for caching and
// single-flight coordination so Probe is never called concurrently.
type Sampler interface {
	// Probe takes one reading. A non-nil error means the reading is
	// unusable and the caller should fall back to defaults.
	Probe(ctx context.Context) (Snapshot, error)
}

// SystemSampler probes the host via gopsutil.
type SystemSampler struct {
	// CPUWindow is how long the CPU utilization measurement blocks.
	// Default: 500ms.
	CPUWindow time.Duration
}

// NewSystemSampler returns a SystemSampler with the default CPU window.
func NewSystemSampler() *SystemSampler {
	return &SystemSampler{CPUWindow: 500 * time.Millisecond}
}

// Probe implements Sampler.
func (s *SystemSampler) Probe(ctx context.Context) (Snapshot, error) {
	window := s.CPUWindow
	if window <= 0 {
		window = 500 * time.Millisecond
	}

	percents, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("cpu probe: %w", err)
	}
	var cpuPercent float64
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("memory probe: %w", err)
	}

	// Process RSS is best-effort: a failed self-lookup should not discard
	// an otherwise usable reading.
	var rss uint64
	if proc, perr := process.NewProcessWithContext(ctx, int32(os.Getpid())); perr == nil {
		if info, merr := proc.MemoryInfoWithContext(ctx); merr == nil && info != nil {
			rss = info.RSS
		}
	}

	pressure := 0.0
	if vm.Total > 0 {
		pressure = float64(vm.Total-vm.Available) / float64(vm.Total)
	}

	procs := runtime.NumCPU()
	load := classifyLoad(cpuPercent, pressure)

	return Snapshot{
		Processors:      procs,
		CPUPercent:      cpuPercent,
		MemoryTotal:     vm.Total,
		MemoryAvailable: vm.Available,
		ProcessRSS:      rss,
		MemoryPressure:  pressure,
		Load:            load,
		MaxParallelism:  recommendParallelism(procs, load),
		BatchSize:       recommendBatchSize(vm.Available),
		TakenAt:         time.Now(),
	}, nil
}
