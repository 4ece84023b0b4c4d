// Package telemetry samples host CPU and memory pressure and derives
// concurrency recommendations for the pipeline scheduler.
//
// Sampling is expensive (the CPU probe blocks for a measurement window), so
// the Monitor caches the last Snapshot and coordinates refreshes with a
// single-flight group: concurrent callers requesting a refresh share one
// in-flight probe instead of stacking duplicates. Probe failures are
// absorbed into a conservative default snapshot; telemetry is never a
// fatal path for the pipeline.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// DefaultRefreshWindow is how long a cached snapshot stays fresh.
const DefaultRefreshWindow = 10 * time.Minute

// Observer receives every refreshed snapshot.
//
// Observers are invoked synchronously after a probe completes, from the
// goroutine that triggered the refresh. They must not block.
type Observer func(Snapshot)

// Config tunes Monitor caching behavior.
type Config struct {
	// RefreshWindow is the maximum cache age before a sample triggers a
	// fresh probe. Per-requester entries expire on the same window.
	// Default: 10 minutes.
	RefreshWindow time.Duration

	// ForceRefreshEvery throttles forced refreshes: at most one forced
	// probe per this interval, regardless of how many callers pass
	// force=true. Zero disables forced refreshes entirely.
	// Default: 30 seconds.
	ForceRefreshEvery time.Duration
}

// DefaultConfig returns the default Monitor configuration.
func DefaultConfig() Config {
	return Config{
		RefreshWindow:     DefaultRefreshWindow,
		ForceRefreshEvery: 30 * time.Second,
	}
}

// Monitor caches host resource snapshots and hands them out to requesters.
//
// Monitor is safe for concurrent use.
type Monitor struct {
	sampler Sampler
	logger  *zap.Logger
	window  time.Duration
	limiter *rate.Limiter

	group singleflight.Group

	mu         sync.RWMutex
	last       Snapshot
	haveLast   bool
	requesters map[string]time.Time
	observers  []Observer
}

// NewMonitor creates a Monitor over the given sampler.
//
// A nil logger falls back to zap.NewNop. Use NewSystemSampler for
// production probing.
func NewMonitor(sampler Sampler, cfg Config, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	window := cfg.RefreshWindow
	if window <= 0 {
		window = DefaultRefreshWindow
	}

	var limiter *rate.Limiter
	if cfg.ForceRefreshEvery > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.ForceRefreshEvery), 1)
	}

	return &Monitor{
		sampler:    sampler,
		logger:     logger,
		window:     window,
		limiter:    limiter,
		requesters: make(map[string]time.Time),
	}
}

// Subscribe registers an observer for refreshed snapshots.
func (m *Monitor) Subscribe(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// Sample returns the current resource snapshot for the given requester.
//
// The cached snapshot is returned while it is younger than the refresh
// window. Passing force requests an immediate probe, subject to the forced
// refresh limiter. When the limiter denies the request the cached snapshot
// is returned instead, so forcing can never stall the caller behind
// back-to-back probes.
//
// Sample never returns an error: a failed probe yields DefaultSnapshot.
func (m *Monitor) Sample(ctx context.Context, requesterID string, force bool) Snapshot {
	m.mu.Lock()
	m.requesters[requesterID] = time.Now()
	m.pruneRequestersLocked()
	cached := m.last
	fresh := m.haveLast && time.Since(m.last.TakenAt) < m.window
	m.mu.Unlock()

	if force {
		if m.limiter != nil && m.limiter.Allow() {
			return m.refresh(ctx)
		}
		if fresh {
			return cached
		}
		// Limiter denied the force but the cache is stale anyway.
		return m.refresh(ctx)
	}

	if fresh {
		return cached
	}
	return m.refresh(ctx)
}

// Last returns the most recent snapshot without triggering a probe.
// The second return is false when no probe has completed yet.
func (m *Monitor) Last() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.haveLast
}

// RequesterCount reports how many distinct requesters have unexpired
// cache entries. Exposed for monitoring.
func (m *Monitor) RequesterCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requesters)
}

// refresh runs one probe through the single-flight group. Every concurrent
// caller blocks on the same probe and receives the same snapshot.
func (m *Monitor) refresh(ctx context.Context) Snapshot {
	v, _, _ := m.group.Do("probe", func() (any, error) {
		snap, err := m.sampler.Probe(ctx)
		if err != nil {
			m.logger.Warn("resource probe failed, using conservative defaults",
				zap.Error(err))
			return DefaultSnapshot(), nil
		}

		m.mu.Lock()
		m.last = snap
		m.haveLast = true
		observers := make([]Observer, len(m.observers))
		copy(observers, m.observers)
		m.mu.Unlock()

		for _, obs := range observers {
			obs(snap)
		}
		return snap, nil
	})
	return v.(Snapshot)
}

// pruneRequestersLocked drops requester entries older than the refresh
// window. Caller must hold mu.
func (m *Monitor) pruneRequestersLocked() {
	cutoff := time.Now().Add(-m.window)
	for id, seen := range m.requesters {
		if seen.Before(cutoff) {
			delete(m.requesters, id)
		}
	}
}
