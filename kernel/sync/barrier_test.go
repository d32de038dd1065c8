package sync

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestBarrierSingleParticipant(t *testing.T) {
	b := NewBarrier(0, nil)
	if b.Participants() != 1 {
		t.Fatalf("expected participant count to be clamped to 1; got %d", b.Participants())
	}

	for i := 0; i < 3; i++ {
		if !b.Wait() {
			t.Fatal("expected a single participant barrier to release immediately")
		}
	}
}

func TestBarrierRendezvous(t *testing.T) {
	var (
		numWorkers = 8
		rounds     = 200
		b          = NewBarrier(numWorkers, nil)
		wg         sync.WaitGroup
		arrivals   [200]uint32
		failed     uint32
	)

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for round := 0; round < rounds; round++ {
				atomic.AddUint32(&arrivals[round], 1)
				b.Wait()

				// Every participant must have arrived for this round
				// before anyone is released.
				if atomic.LoadUint32(&arrivals[round]) != uint32(numWorkers) {
					atomic.StoreUint32(&failed, 1)
				}
				b.Wait()
			}
		}()
	}
	wg.Wait()

	if failed != 0 {
		t.Fatal("a participant was released before all others arrived")
	}
}

func TestBarrierCancel(t *testing.T) {
	var (
		cancel Flag
		b      = NewBarrier(3, &cancel)
		wg     sync.WaitGroup
		result = make(chan bool, 2)
	)

	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			result <- b.Wait()
		}()
	}

	cancel.Set()
	wg.Wait()
	close(result)

	for res := range result {
		if res {
			t.Error("expected Wait to report cancellation")
		}
	}

	if b.Wait() {
		t.Error("expected Wait on a cancelled barrier to return false immediately")
	}
}
