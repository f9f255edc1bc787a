package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/skytrack-va/skytrack/internal/report"
	"github.com/skytrack-va/skytrack/internal/telemetry"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPosition(sessionID string, offsetSecs int) *telemetry.Position {
	return &telemetry.Position{
		SessionID:   sessionID,
		Callsign:    "DLH401",
		Latitude:    50.033,
		Longitude:   8.570,
		Altitude:    35000,
		Heading:     270,
		GroundSpeed: 450,
		FuelKg:      15000,
		Phase:       telemetry.PhaseCruise,
		Timestamp:   time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC).Add(time.Duration(offsetSecs) * time.Second),
	}
}

func testSession(id string) *telemetry.FlightSession {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	return &telemetry.FlightSession{
		ID:            id,
		Callsign:      "DLH401",
		AircraftICAO:  "A20N",
		DepartureICAO: "EDDF",
		ArrivalICAO:   "KJFK",
		Simulator:     "MSFS",
		Status:        telemetry.SessionActive,
		StartedAt:     now,
		LastSeen:      now,
	}
}

// ---

func TestPositionAppendAndQuery(t *testing.T) {
	db := testDB(t)
	store := NewPositionStorage(db, 600, logger.NewNop())

	// Append out of insertion order; queries sort by timestamp
	for _, offset := range []int{10, 0, 20} {
		if err := store.Append(testPosition("sess-1", offset)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	if err := store.Append(testPosition("sess-other", 5)); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	positions, err := store.QueryRange("sess-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(positions) != 3 {
		t.Fatalf("got %d positions, want 3", len(positions))
	}
	for i := 1; i < len(positions); i++ {
		if positions[i].Timestamp.Before(positions[i-1].Timestamp) {
			t.Error("positions not ordered by timestamp ascending")
		}
	}
}

func TestPositionQueryRangeBounds(t *testing.T) {
	db := testDB(t)
	store := NewPositionStorage(db, 600, logger.NewNop())

	for _, offset := range []int{0, 60, 120, 180} {
		if err := store.Append(testPosition("sess-1", offset)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	positions, err := store.QueryRange("sess-1", base.Add(30*time.Second), base.Add(150*time.Second))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(positions) != 2 {
		t.Errorf("got %d positions in range, want 2", len(positions))
	}
}

func TestPositionDuplicateTimestampsStored(t *testing.T) {
	db := testDB(t)
	store := NewPositionStorage(db, 600, logger.NewNop())

	for i := 0; i < 2; i++ {
		if err := store.Append(testPosition("sess-1", 0)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	count, err := store.Count("sess-1")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("duplicate timestamps should both be stored, count = %d", count)
	}
}

func TestPositionSubSecondOrdering(t *testing.T) {
	db := testDB(t)
	store := NewPositionStorage(db, 600, logger.NewNop())

	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	// High-rate feeders sample within the same second; append out of
	// order and expect queries back in chronological order
	for _, ms := range []int{500, 0, 750, 250} {
		p := testPosition("sess-1", 0)
		p.Timestamp = base.Add(time.Duration(ms) * time.Millisecond)
		p.Altitude = float64(ms)
		if err := store.Append(p); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	positions, err := store.QueryRange("sess-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	want := []float64{0, 250, 500, 750}
	if len(positions) != len(want) {
		t.Fatalf("got %d positions, want %d", len(positions), len(want))
	}
	for i, p := range positions {
		if p.Altitude != want[i] {
			t.Errorf("position %d altitude = %v, want %v", i, p.Altitude, want[i])
		}
	}

	// Samples sharing an exact timestamp keep insertion order
	for _, alt := range []float64{1000, 2000} {
		p := testPosition("sess-tie", 0)
		p.Altitude = alt
		if err := store.Append(p); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	ties, err := store.QueryRange("sess-tie", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(ties) != 2 || ties[0].Altitude != 1000 || ties[1].Altitude != 2000 {
		t.Errorf("tied timestamps returned out of insertion order: %v", ties)
	}
	latest, err := store.Latest("sess-tie")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if latest == nil || latest.Altitude != 2000 {
		t.Errorf("latest of tied timestamps = %v, want the later insert", latest)
	}
}

func TestPositionLatest(t *testing.T) {
	db := testDB(t)
	store := NewPositionStorage(db, 600, logger.NewNop())

	latest, err := store.Latest("sess-1")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if latest != nil {
		t.Error("latest on empty session should return nil")
	}

	for _, offset := range []int{0, 60, 30} {
		if err := store.Append(testPosition("sess-1", offset)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	latest, err = store.Latest("sess-1")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	want := time.Date(2024, 6, 15, 12, 1, 0, 0, time.UTC)
	if latest == nil || !latest.Timestamp.Equal(want) {
		t.Errorf("latest = %v, want timestamp %v", latest, want)
	}
}

func TestPositionQueryRecentCapped(t *testing.T) {
	db := testDB(t)
	store := NewPositionStorage(db, 2, logger.NewNop())

	for _, offset := range []int{0, 60, 120} {
		if err := store.Append(testPosition("sess-1", offset)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	positions, err := store.QueryRecent("sess-1")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("got %d positions, want cap of 2", len(positions))
	}
	// The cap keeps the most recent samples, still ordered ascending
	if !positions[0].Timestamp.Before(positions[1].Timestamp) {
		t.Error("capped results not ordered ascending")
	}
	want := time.Date(2024, 6, 15, 12, 2, 0, 0, time.UTC)
	if !positions[1].Timestamp.Equal(want) {
		t.Errorf("newest sample = %v, want %v", positions[1].Timestamp, want)
	}
}

// ---

func TestSessionLifecycle(t *testing.T) {
	db := testDB(t)
	store := NewSessionStorage(db, logger.NewNop())

	sess := testSession("sess-1")
	if err := store.Create(sess); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := store.GetActiveByCallsign("DLH401")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if got == nil || got.ID != "sess-1" {
		t.Fatalf("active session = %v, want sess-1", got)
	}
	if got.DepartureICAO != "EDDF" || got.ArrivalICAO != "KJFK" {
		t.Errorf("route = %s-%s, want EDDF-KJFK", got.DepartureICAO, got.ArrivalICAO)
	}

	endedAt := sess.StartedAt.Add(time.Hour)
	ended, err := store.End("sess-1", telemetry.SessionCompleted, endedAt)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if !ended {
		t.Fatal("first end should report the transition")
	}

	// Ending twice must not transition again
	ended, err = store.End("sess-1", telemetry.SessionCancelled, endedAt)
	if err != nil {
		t.Fatalf("second end failed: %v", err)
	}
	if ended {
		t.Error("second end should be a no-op")
	}

	got, err = store.Get("sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != telemetry.SessionCompleted {
		t.Errorf("status = %s, want completed (second end must not overwrite)", got.Status)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(endedAt) {
		t.Errorf("ended_at = %v, want %v", got.EndedAt, endedAt)
	}

	if active, _ := store.GetActiveByCallsign("DLH401"); active != nil {
		t.Error("ended session should not be returned as active")
	}
}

func TestSessionListIdleActive(t *testing.T) {
	db := testDB(t)
	store := NewSessionStorage(db, logger.NewNop())

	stale := testSession("sess-stale")
	if err := store.Create(stale); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	fresh := testSession("sess-fresh")
	fresh.Callsign = "BAW22"
	fresh.LastSeen = stale.LastSeen.Add(30 * time.Minute)
	if err := store.Create(fresh); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	idle, err := store.ListIdleActive(stale.LastSeen.Add(15 * time.Minute))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(idle) != 1 || idle[0].ID != "sess-stale" {
		t.Errorf("idle sessions = %v, want only sess-stale", idle)
	}
}

// ---

func TestReportWriteOnce(t *testing.T) {
	db := testDB(t)
	store := NewReportStorage(db, logger.NewNop())

	fuel := 33.0
	r := &report.FlightReport{
		SessionID:     "sess-1",
		Callsign:      "DLH401",
		DistanceNM:    3350,
		FlightTimeMin: 465,
		BlockTimeMin:  480,
		FuelUsed:      &fuel,
		Score:         95,
		Status:        report.StatusPending,
	}

	if err := store.Create(r); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err := store.Create(r)
	if !errors.Is(err, report.ErrReportExists) {
		t.Errorf("second create err = %v, want ErrReportExists", err)
	}
}

func TestReportRoundTrip(t *testing.T) {
	db := testDB(t)
	store := NewReportStorage(db, logger.NewNop())

	fuel := 33.0
	rate := 180.0
	if err := store.Create(&report.FlightReport{
		SessionID:     "sess-1",
		Callsign:      "DLH401",
		DistanceNM:    3350,
		FlightTimeMin: 465,
		BlockTimeMin:  480,
		FuelUsed:      &fuel,
		LandingRate:   &rate,
		Score:         95,
		Status:        report.StatusPending,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := store.Get("sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("report not found")
	}
	if got.Score != 95 || got.Status != report.StatusPending {
		t.Errorf("score/status = %d/%s, want 95/PENDING", got.Score, got.Status)
	}
	if got.FuelUsed == nil || *got.FuelUsed != 33.0 {
		t.Errorf("fuel used = %v, want 33.0", got.FuelUsed)
	}
	if got.LandingRate == nil || *got.LandingRate != 180.0 {
		t.Errorf("landing rate = %v, want 180.0", got.LandingRate)
	}
	if got.SubmittedAt != nil {
		t.Error("submitted_at should be nil before submission")
	}

	at := time.Date(2024, 6, 15, 20, 0, 0, 0, time.UTC)
	if err := store.MarkSubmitted("sess-1", at); err != nil {
		t.Fatalf("mark submitted failed: %v", err)
	}

	got, err = store.Get("sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SubmittedAt == nil || !got.SubmittedAt.Equal(at) {
		t.Errorf("submitted_at = %v, want %v", got.SubmittedAt, at)
	}

	if missing, err := store.Get("sess-none"); err != nil || missing != nil {
		t.Errorf("missing report = (%v, %v), want (nil, nil)", missing, err)
	}
}
