package sync

import "sync/atomic"

// Barrier is a reusable rendezvous point for a fixed number of participants.
// No participant returns from Wait until all participants have called it.
//
// A barrier may optionally be bound to a cancel flag. Once the flag is
// raised, waiters return false instead of blocking. A cancelled barrier
// has an undefined arrival count and must be discarded; callers build a
// new barrier for the next phase.
type Barrier struct {
	participants uint32
	arrived      uint32
	generation   uint32
	cancel       *Flag
}

// NewBarrier returns a barrier for the given number of participants. If
// cancel is not nil, Wait aborts once the flag is raised.
func NewBarrier(participants int, cancel *Flag) *Barrier {
	if participants < 1 {
		participants = 1
	}

	return &Barrier{
		participants: uint32(participants),
		cancel:       cancel,
	}
}

// Participants returns the number of processors that must reach the
// barrier before any of them is released.
func (b *Barrier) Participants() int {
	return int(b.participants)
}

// Wait blocks until all participants have arrived. It returns true when the
// barrier released normally and false if it was cancelled.
func (b *Barrier) Wait() bool {
	if b.cancel.IsSet() {
		return false
	}

	gen := atomic.LoadUint32(&b.generation)
	if atomic.AddUint32(&b.arrived, 1) == b.participants {
		// The count must be reset before the generation changes so that
		// released waiters re-entering Wait observe a clean count.
		atomic.StoreUint32(&b.arrived, 0)
		atomic.AddUint32(&b.generation, 1)
		return true
	}

	for attempts := uint32(0); atomic.LoadUint32(&b.generation) == gen; attempts++ {
		if b.cancel.IsSet() {
			return false
		}

		if attempts == attemptsBeforeYielding {
			yieldFn()
			attempts = 0
		}
	}

	return true
}
