// Package guard provides the system-wide admission control in front of hook
// process spawning.
package guard

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"

	"github.com/smykla-skalski/hookgate/pkg/hook"
)

const (
	// DefaultAcquireTimeout is how long Acquire waits for a free slot.
	DefaultAcquireTimeout = 2 * time.Second

	// concurrencyPerCPU sets the default capacity relative to NumCPU.
	concurrencyPerCPU = 4
)

// DefaultCapacity returns the default number of concurrent hook processes.
func DefaultCapacity() int {
	return runtime.NumCPU() * concurrencyPerCPU
}

// Guard caps the number of simultaneously running hook processes across
// every dispatch sharing it.
type Guard struct {
	sem            *semaphore.Weighted
	capacity       int
	acquireTimeout time.Duration
	inFlight       atomic.Int64
}

// New creates a Guard. Non-positive values select the defaults.
func New(capacity int, acquireTimeout time.Duration) *Guard {
	if capacity <= 0 {
		capacity = DefaultCapacity()
	}

	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}

	return &Guard{
		sem:            semaphore.NewWeighted(int64(capacity)),
		capacity:       capacity,
		acquireTimeout: acquireTimeout,
	}
}

// Acquire takes a slot, waiting at most the acquire timeout. The returned
// release func must be called exactly once; calling it again is a no-op.
//
// When the wait times out the error is marked hook.ErrGuardSaturated. When
// ctx ends first the error is marked hook.ErrCancelled.
func (g *Guard) Acquire(ctx context.Context) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, g.acquireTimeout)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(hook.ErrCancelled, "waiting for hook slot: %v", context.Cause(ctx))
		}

		return nil, errors.Wrapf(
			hook.ErrGuardSaturated,
			"%d hooks running, no slot within %s",
			g.capacity,
			g.acquireTimeout,
		)
	}

	g.inFlight.Add(1)

	var released atomic.Bool

	return func() {
		if released.CompareAndSwap(false, true) {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		}
	}, nil
}

// InFlight returns the number of slots currently held.
func (g *Guard) InFlight() int {
	return int(g.inFlight.Load())
}

// Capacity returns the maximum number of concurrent slots.
func (g *Guard) Capacity() int {
	return g.capacity
}

// AcquireTimeout returns how long Acquire waits.
func (g *Guard) AcquireTimeout() time.Duration {
	return g.acquireTimeout
}
