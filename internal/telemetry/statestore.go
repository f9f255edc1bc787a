package telemetry

import (
	"sync"
)

// flightEntry pairs a flight's phase state with its own lock so updates
// for one flight serialize without blocking other flights.
type flightEntry struct {
	mu    sync.Mutex
	state *PhaseState
}

// StateStore holds per-flight phase state keyed by callsign. Concurrent
// updates to different flights proceed independently; updates to the same
// flight are serialized through the entry lock.
type StateStore struct {
	mu      sync.RWMutex
	entries map[string]*flightEntry
}

// NewStateStore creates an empty state store
func NewStateStore() *StateStore {
	return &StateStore{
		entries: make(map[string]*flightEntry),
	}
}

// Update runs fn with exclusive access to the flight's state and stores
// whatever state fn returns. fn receives nil when the flight is new.
func (s *StateStore) Update(key string, fn func(prior *PhaseState) *PhaseState) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		entry = &flightEntry{}
		s.entries[key] = entry
	}
	s.mu.Unlock()

	entry.mu.Lock()
	entry.state = fn(entry.state)
	entry.mu.Unlock()
}

// Get returns a copy of the flight's state, or nil if unknown
func (s *StateStore) Get(key string) *PhaseState {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state == nil {
		return nil
	}
	copied := *entry.state
	return &copied
}

// Remove discards the flight's state when its session ends
func (s *StateStore) Remove(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}
