// Package cache holds the TTL-bounded current state of every tracked
// flight together with an active index for cheap enumeration.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/skytrack-va/skytrack/internal/telemetry"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

// entry pairs a flight state blob with the index timestamp that drives
// expiry. Both are written under the same lock so the blob can never
// outlive its index pointer.
type entry struct {
	state     *telemetry.FlightState
	updatedAt time.Time
}

// FlightCache is the TTL'd current-state cache keyed by callsign.
// Expired entries are pruned lazily on reads; there is no background
// sweeper, which bounds index growth without another timer.
type FlightCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	logger  *logger.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewFlightCache creates a cache with the given entry TTL
func NewFlightCache(ttl time.Duration, log *logger.Logger) *FlightCache {
	return &FlightCache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		logger:  log.Named("flight-cache"),
		now:     time.Now,
	}
}

// Upsert stores the flight's current state and refreshes its index
// timestamp in one operation.
func (c *FlightCache) Upsert(key string, state *telemetry.FlightState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		state:     state,
		updatedAt: c.now(),
	}
}

// Get returns the flight's current state, or nil if unknown or expired.
// An expired entry is removed as part of the read.
func (c *FlightCache) Get(key string) *telemetry.FlightState {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().Sub(e.updatedAt) > c.ttl {
		delete(c.entries, key)
		c.logger.Debug("Expired flight pruned from cache",
			logger.String("callsign", key))
		return nil
	}
	return e.state
}

// ListActive returns the current state of every unexpired flight, sorted
// by callsign. Expired entries are pruned as a side effect, so the list
// never contains a flight whose last update exceeds the TTL.
func (c *FlightCache) ListActive() []*telemetry.FlightState {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	active := make([]*telemetry.FlightState, 0, len(c.entries))
	for key, e := range c.entries {
		if now.Sub(e.updatedAt) > c.ttl {
			delete(c.entries, key)
			continue
		}
		active = append(active, e.state)
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].Callsign < active[j].Callsign
	})
	return active
}

// Remove drops the flight from the cache, typically on flight end
func (c *FlightCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries currently held, expired or not.
// Used for the status endpoint.
func (c *FlightCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
