package cache

import (
	"testing"
	"time"

	"github.com/skytrack-va/skytrack/internal/telemetry"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

func newTestCache(ttl time.Duration) (*FlightCache, *time.Time) {
	c := NewFlightCache(ttl, logger.NewNop())
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func state(callsign string) *telemetry.FlightState {
	return &telemetry.FlightState{
		Callsign: callsign,
		Phase:    telemetry.PhaseCruise,
	}
}

func TestUpsertAndGet(t *testing.T) {
	c, _ := newTestCache(300 * time.Second)

	c.Upsert("DLH401", state("DLH401"))

	got := c.Get("DLH401")
	if got == nil || got.Callsign != "DLH401" {
		t.Fatalf("Get returned %v, want DLH401", got)
	}
	if c.Get("BAW22") != nil {
		t.Error("Get for unknown callsign should return nil")
	}
}

func TestGetPrunesExpiredEntry(t *testing.T) {
	c, now := newTestCache(300 * time.Second)

	c.Upsert("DLH401", state("DLH401"))
	*now = now.Add(301 * time.Second)

	if c.Get("DLH401") != nil {
		t.Error("expired entry should not be returned")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be pruned on read, Len = %d", c.Len())
	}
}

func TestUpsertRefreshesTTL(t *testing.T) {
	c, now := newTestCache(300 * time.Second)

	c.Upsert("DLH401", state("DLH401"))
	*now = now.Add(200 * time.Second)
	c.Upsert("DLH401", state("DLH401"))
	*now = now.Add(200 * time.Second)

	// 400s since first write, 200s since the refresh
	if c.Get("DLH401") == nil {
		t.Error("refreshed entry should still be live")
	}
}

func TestListActivePrunesAndSorts(t *testing.T) {
	c, now := newTestCache(300 * time.Second)

	c.Upsert("UAL5", state("UAL5"))
	c.Upsert("AFR100", state("AFR100"))
	*now = now.Add(200 * time.Second)
	c.Upsert("DLH401", state("DLH401"))
	*now = now.Add(150 * time.Second)

	// UAL5 and AFR100 are now 350s old; DLH401 is 150s old
	active := c.ListActive()
	if len(active) != 1 {
		t.Fatalf("ListActive returned %d flights, want 1", len(active))
	}
	if active[0].Callsign != "DLH401" {
		t.Errorf("active flight = %s, want DLH401", active[0].Callsign)
	}
	if c.Len() != 1 {
		t.Errorf("expired entries should be pruned, Len = %d", c.Len())
	}
}

func TestListActiveSortedByCallsign(t *testing.T) {
	c, _ := newTestCache(300 * time.Second)

	for _, cs := range []string{"UAL5", "AFR100", "DLH401"} {
		c.Upsert(cs, state(cs))
	}

	active := c.ListActive()
	want := []string{"AFR100", "DLH401", "UAL5"}
	for i, cs := range want {
		if active[i].Callsign != cs {
			t.Errorf("active[%d] = %s, want %s", i, active[i].Callsign, cs)
		}
	}
}

func TestRemove(t *testing.T) {
	c, _ := newTestCache(300 * time.Second)

	c.Upsert("DLH401", state("DLH401"))
	c.Remove("DLH401")

	if c.Get("DLH401") != nil {
		t.Error("removed entry should be gone")
	}
}
