package capacity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/gostratus/pkg/telemetry"
)

// Control loop interval bounds. The default is deliberately long: pool
// adjustments are cheap but telemetry probes are not.
const (
	DefaultInterval = 5 * time.Minute
	MinInterval     = 10 * time.Second
	MaxInterval     = 5 * time.Minute
)

// Config tunes the Controller.
type Config struct {
	// Interval is the control loop tick. Clamped to [10s, 5m].
	// Default: 5 minutes.
	Interval time.Duration

	// AutoBalance enables load-reactive pool resizing. When false the
	// loop still samples telemetry (keeping the cache warm for other
	// consumers) but never resizes.
	// Default: true (see DefaultConfig).
	AutoBalance bool

	// Bounds clamps every pool's capacity target.
	// Default Max: twice the processor count from the startup snapshot.
	Bounds Bounds

	// ProcessMemoryLimit triggers the emergency capacity clamp when this
	// process's RSS exceeds it, in bytes. Zero disables the check.
	ProcessMemoryLimit uint64

	// DisabledLevels lists levels that get no pool. Acquire on a
	// disabled level admits immediately with a no-op permit.
	DisabledLevels []Level
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		AutoBalance: true,
	}
}

// Controller owns the hierarchy of capacity pools and the background loop
// that retunes them from resource telemetry.
//
// Construct with NewController, then Start the loop and Stop it during
// shutdown. Stop closes every pool.
type Controller struct {
	cfg         Config
	monitor     *telemetry.Monitor
	logger      *zap.Logger
	requesterID string

	pools map[poolKey]*Pool

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewController builds the pool hierarchy, sizing each pool from a
// telemetry snapshot taken at construction time.
func NewController(ctx context.Context, monitor *telemetry.Monitor, cfg Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < MinInterval {
		cfg.Interval = MinInterval
	}
	if cfg.Interval > MaxInterval {
		cfg.Interval = MaxInterval
	}

	c := &Controller{
		cfg:         cfg,
		monitor:     monitor,
		logger:      logger,
		requesterID: "capacity-controller-" + uuid.NewString(),
		pools:       make(map[poolKey]*Pool),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	snap := monitor.Sample(ctx, c.requesterID, false)
	if c.cfg.Bounds.Max <= 0 {
		procs := snap.Processors
		if procs < 1 {
			procs = 1
		}
		c.cfg.Bounds.Max = procs * 2
	}

	disabled := make(map[Level]bool, len(cfg.DisabledLevels))
	for _, lvl := range cfg.DisabledLevels {
		disabled[lvl] = true
	}

	for _, level := range Levels() {
		if disabled[level] {
			continue
		}
		for _, key := range keysForLevel(level) {
			size := c.cfg.Bounds.clamp(initialCapacity(key.level, key.workload, snap))
			c.pools[key] = NewPool(key.String(), size)
			logger.Debug("capacity pool created",
				zap.String("pool", key.String()),
				zap.Int("capacity", size))
		}
	}

	return c
}

func keysForLevel(level Level) []poolKey {
	if partitioned(level) {
		return []poolKey{
			{level: level, workload: WorkloadIO},
			{level: level, workload: WorkloadCPU},
		}
	}
	return []poolKey{{level: level, workload: WorkloadDefault}}
}

// Pool returns the pool for a level and workload, or nil if the level is
// disabled. Passing a workload on an unpartitioned level, or omitting it
// on a partitioned one, is an error.
func (c *Controller) Pool(level Level, workload Workload) (*Pool, error) {
	if partitioned(level) && workload == WorkloadDefault {
		return nil, fmt.Errorf("level %s requires a workload type", level)
	}
	if !partitioned(level) && workload != WorkloadDefault {
		return nil, fmt.Errorf("level %s is not partitioned by workload", level)
	}
	return c.pools[poolKey{level: level, workload: workload}], nil
}

// Pools returns every active pool, ordered by level then workload.
func (c *Controller) Pools() []*Pool {
	out := make([]*Pool, 0, len(c.pools))
	for _, level := range Levels() {
		for _, key := range keysForLevel(level) {
			if pool, ok := c.pools[key]; ok {
				out = append(out, pool)
			}
		}
	}
	return out
}

// Acquire admits one unit of work at the given level and workload. A nil
// permit with nil error means the level is disabled and work may proceed
// ungated; Permit.Release on a nil permit is a no-op either way.
func (c *Controller) Acquire(ctx context.Context, level Level, workload Workload) (*Permit, error) {
	pool, err := c.Pool(level, workload)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, nil
	}
	return pool.Acquire(ctx)
}

// Start launches the background control loop. Subsequent calls are no-ops.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

// Stop terminates the control loop and closes every pool. Outstanding
// permits remain valid; holders release against closed pools without error.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	c.Start() // ensure done is eventually closed even if Start was never called
	<-c.done
	for _, pool := range c.pools {
		pool.Close()
	}
}

// run is the control loop body.
func (c *Controller) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.adjustOnce(context.Background())
		}
	}
}

// adjustOnce samples telemetry and retunes every pool. The monitor absorbs
// probe failures into a conservative default snapshot, so one bad tick can
// never stop the loop or the pipeline.
func (c *Controller) adjustOnce(ctx context.Context) {
	snap := c.monitor.Sample(ctx, c.requesterID, false)

	if !c.cfg.AutoBalance {
		return
	}

	for key, pool := range c.pools {
		current := pool.Capacity()
		target := computeTarget(current, snap, c.cfg.ProcessMemoryLimit, c.cfg.Bounds)
		if target == current {
			continue
		}
		pool.Resize(target)
		c.logger.Info("capacity pool resized",
			zap.String("pool", key.String()),
			zap.Int("from", current),
			zap.Int("to", target),
			zap.Float64("cpu_percent", snap.CPUPercent),
			zap.Float64("memory_pressure", snap.MemoryPressure),
			zap.String("load", string(snap.Load)))
	}
}
