// Package capacity provides resizable admission gates that bound concurrent
// pipeline work at four granularities (file, stage, table, rule), plus a
// controller that retunes gate capacities from live resource telemetry.
//
// A Pool is a named counting gate: workers Acquire a Permit before running
// and Release it when done. Pools resize while work is in flight: permits
// already granted are always honored, and new admissions respect the new
// capacity immediately.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed indicates Acquire was called on a closed pool. This is a
// lifecycle bug in the caller, never swallowed.
var ErrPoolClosed = errors.New("capacity pool closed")

// Pool is a named, resizable counting admission gate.
//
// Pool is safe for concurrent Acquire/Release/Resize from any number of
// goroutines. The capacity invariant holds at all times: admissions never
// push the number of outstanding permits above the current capacity.
// Shrinking below the number of outstanding permits does not revoke them;
// new admissions simply stay blocked until releases bring the count back
// under the new capacity.
type Pool struct {
	name string

	mu       sync.Mutex
	capacity int
	inUse    int
	closed   bool

	// slotFreed is closed and replaced whenever a slot may have opened
	// (release, resize, close), waking all blocked acquirers to re-check.
	slotFreed chan struct{}
}

// Permit represents one granted admission. Release it exactly once; extra
// calls are no-ops.
type Permit struct {
	pool     *Pool
	released atomic.Bool
}

// NewPool creates a pool with the given capacity. Capacity is floored at 1.
func NewPool(name string, capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		name:      name,
		capacity:  capacity,
		slotFreed: make(chan struct{}),
	}
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Capacity returns the current capacity.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// InUse returns the number of outstanding permits.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Acquire blocks until a permit is available, the context is cancelled, or
// the pool is closed.
func (p *Pool) Acquire(ctx context.Context) (*Permit, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("pool %s: %w", p.name, ErrPoolClosed)
		}
		if p.inUse < p.capacity {
			p.inUse++
			p.mu.Unlock()
			return &Permit{pool: p}, nil
		}
		wait := p.slotFreed
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
			// Re-check under the lock; another waiter may have won the slot.
		}
	}
}

// TryAcquire grants a permit only if one is immediately available.
func (p *Pool) TryAcquire() (*Permit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("pool %s: %w", p.name, ErrPoolClosed)
	}
	if p.inUse >= p.capacity {
		return nil, nil
	}
	p.inUse++
	return &Permit{pool: p}, nil
}

// Resize sets a new capacity. Outstanding permits above a smaller capacity
// are honored; growth wakes blocked acquirers. Capacity is floored at 1.
func (p *Pool) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || capacity == p.capacity {
		return
	}
	p.capacity = capacity
	p.wakeLocked()
}

// Close rejects further Acquire calls. It does not wait for outstanding
// permits; holders release independently.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.wakeLocked()
}

// release returns one permit to the pool.
func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse > 0 {
		p.inUse--
	}
	p.wakeLocked()
}

// wakeLocked wakes all blocked acquirers. Caller must hold mu.
func (p *Pool) wakeLocked() {
	close(p.slotFreed)
	p.slotFreed = make(chan struct{})
}

// Release returns the permit to its pool. Safe to call more than once;
// only the first call has any effect.
func (pm *Permit) Release() {
	if pm == nil || pm.pool == nil {
		return
	}
	if pm.released.CompareAndSwap(false, true) {
		pm.pool.release()
	}
}
