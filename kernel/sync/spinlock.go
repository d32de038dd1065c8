// Package sync provides the busy-waiting primitives that the processors
// participating in a memory test use to coordinate with each other.
package sync

import (
	"runtime"
	"sync/atomic"
)

const attemptsBeforeYielding = 64

var (
	// yieldFn is invoked by busy-wait loops after attemptsBeforeYielding
	// unsuccessful attempts.
	yieldFn = runtime.Gosched
)

// Spinlock implements a lock where each processor trying to acquire it
// busy-waits till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the calling processor.
// Any attempt to re-acquire a lock already held by the caller will cause a
// deadlock.
func (l *Spinlock) Acquire() {
	acquireSpinlock(&l.state, attemptsBeforeYielding)
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other processors to acquire it.
// Calling Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

func acquireSpinlock(state *uint32, attemptsBeforeYielding uint32) {
	for attempts := uint32(0); ; attempts++ {
		if atomic.LoadUint32(state) == 0 && atomic.CompareAndSwapUint32(state, 0, 1) {
			return
		}

		if attempts == attemptsBeforeYielding {
			yieldFn()
			attempts = 0
		}
	}
}
