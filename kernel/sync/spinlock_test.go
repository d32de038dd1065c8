package sync

import (
	"sync"
	"testing"
	"time"
)

func TestSpinlock(t *testing.T) {
	var (
		sl         Spinlock
		wg         sync.WaitGroup
		numWorkers = 10
		counter    int
	)

	sl.Acquire()

	if sl.TryToAcquire() != false {
		t.Error("expected TryToAcquire to return false when lock is held")
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(worker int) {
			sl.Acquire()
			counter++
			sl.Release()
			wg.Done()
		}(i)
	}

	<-time.After(100 * time.Millisecond)
	sl.Release()
	wg.Wait()

	if counter != numWorkers {
		t.Fatalf("expected counter to be %d; got %d", numWorkers, counter)
	}

	if !sl.TryToAcquire() {
		t.Fatal("expected TryToAcquire to succeed on a released lock")
	}
	sl.Release()
}

func TestFlag(t *testing.T) {
	var nilFlag *Flag
	if nilFlag.IsSet() {
		t.Fatal("expected a nil flag to never be set")
	}

	var f Flag
	if f.IsSet() {
		t.Fatal("expected a zero flag to be clear")
	}
	f.Set()
	if !f.IsSet() {
		t.Fatal("expected flag to be set")
	}
	f.Clear()
	if f.IsSet() {
		t.Fatal("expected flag to be clear")
	}
}
