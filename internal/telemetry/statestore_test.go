package telemetry

import (
	"sync"
	"testing"
	"time"
)

func TestStateStoreUpdateAndGet(t *testing.T) {
	store := NewStateStore()

	if store.Get("DLH401") != nil {
		t.Error("unknown flight should have nil state")
	}

	store.Update("DLH401", func(prior *PhaseState) *PhaseState {
		if prior != nil {
			t.Error("first update should see nil prior state")
		}
		return &PhaseState{Phase: PhasePreflight}
	})

	got := store.Get("DLH401")
	if got == nil || got.Phase != PhasePreflight {
		t.Fatalf("state = %v, want PREFLIGHT", got)
	}

	// Get returns a copy; mutating it must not leak back
	got.Phase = PhaseCruise
	if store.Get("DLH401").Phase != PhasePreflight {
		t.Error("Get must return a copy of the state")
	}
}

func TestStateStoreRemove(t *testing.T) {
	store := NewStateStore()
	store.Update("DLH401", func(*PhaseState) *PhaseState {
		return &PhaseState{Phase: PhaseTaxi}
	})

	store.Remove("DLH401")
	if store.Get("DLH401") != nil {
		t.Error("removed flight should have nil state")
	}
}

func TestStateStoreSerializesPerFlight(t *testing.T) {
	store := NewStateStore()
	store.Update("DLH401", func(*PhaseState) *PhaseState {
		return &PhaseState{}
	})

	// Concurrent counter increments through Update: lost updates would
	// show up as a short count
	const workers = 8
	const rounds = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				store.Update("DLH401", func(prior *PhaseState) *PhaseState {
					next := *prior
					next.LastTimestamp = next.LastTimestamp.Add(time.Second)
					return &next
				})
			}
		}()
	}
	wg.Wait()

	got := store.Get("DLH401")
	want := time.Time{}.Add(workers * rounds * time.Second)
	if !got.LastTimestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v (updates lost)", got.LastTimestamp, want)
	}
}
