package telemetry

import (
	"testing"
	"time"

	"github.com/skytrack-va/skytrack/internal/config"
)

func testPhaseConfig() config.FlightPhasesConfig {
	return config.FlightPhasesConfig{
		Enabled:                  true,
		GroundMaxAltFt:           50,
		GroundMaxSpeedKts:        10,
		AirborneMinAltFt:         200,
		GroundFallbackAltFt:      20,
		BlockedMaxSpeedKts:       1,
		BlockedMinStationarySecs: 30,
		TaxiMaxSpeedKts:          40,
		LandedMinGroundSecs:      3,
		TakeoffMinSpeedKts:       40,
		TakeoffMaxHeightFt:       1500,
		ApproachMaxHeightFt:      3000,
		VerticalRateThresholdFPM: 300,
		CruiseMinStableSecs:      120,
		ConfirmationSecs:         5,
		TeleportMinAltJumpFt:     5000,
		TeleportMaxWindowSecs:    10,
	}
}

var phaseTestEpoch = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// sample builds a snapshot at the given offset from the test epoch
func sample(offsetSecs int, alt, gs, vs float64, onGround bool) *Snapshot {
	return &Snapshot{
		Callsign:      "DLH401",
		Latitude:      50.033,
		Longitude:     8.570,
		Altitude:      alt,
		GroundSpeed:   gs,
		VerticalSpeed: vs,
		OnGround:      onGround,
		Timestamp:     phaseTestEpoch.Add(time.Duration(offsetSecs) * time.Second),
	}
}

// run feeds samples through the engine and returns the phase after each
func run(t *testing.T, engine *PhaseEngine, samples []*Snapshot) []Phase {
	t.Helper()
	var state *PhaseState
	phases := make([]Phase, 0, len(samples))
	for _, s := range samples {
		var phase Phase
		phase, _, state = engine.Detect(s, state)
		phases = append(phases, phase)
	}
	return phases
}

// ---

func TestFullFlightSequence(t *testing.T) {
	engine := NewPhaseEngine(testPhaseConfig())

	samples := []*Snapshot{
		sample(0, 0, 0, 0, true),          // at the gate
		sample(10, 0, 15, 0, true),        // taxi out
		sample(20, 0, 80, 0, true),        // takeoff roll
		sample(30, 1000, 160, 2500, false), // initial climb
		sample(40, 3500, 200, 2000, false), // sustained climb
		sample(160, 35000, 450, 0, false),  // level at altitude
		sample(170, 34000, 440, -1800, false),
		sample(180, 2500, 180, -800, false), // on final
		sample(190, 0, 30, -100, true),      // touchdown rollout
		sample(200, 0, 20, 0, true),
		sample(210, 0, 0, 0, true),
		sample(250, 0, 0, 0, true), // parked
	}

	want := []Phase{
		PhasePreflight, PhaseTaxi, PhaseTakeoff, PhaseTakeoff,
		PhaseClimb, PhaseCruise, PhaseDescent, PhaseApproach,
		PhaseApproach, PhaseLanded, PhaseLanded, PhaseBlocked,
	}

	got := run(t, engine, samples)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d (t+%ds): phase = %s, want %s",
				i, int(samples[i].Timestamp.Sub(phaseTestEpoch).Seconds()), got[i], want[i])
		}
	}
}

func TestHysteresisHoldsPhase(t *testing.T) {
	engine := NewPhaseEngine(testPhaseConfig())

	// The taxi candidate appears 2s after the flight started; the
	// confirmation window has not elapsed yet
	samples := []*Snapshot{
		sample(0, 0, 0, 0, true),
		sample(2, 0, 15, 0, true),
	}

	got := run(t, engine, samples)
	if got[1] != PhasePreflight {
		t.Errorf("phase = %s, want PREFLIGHT before the confirmation window", got[1])
	}
}

func TestIllegalTransitionHolds(t *testing.T) {
	engine := NewPhaseEngine(testPhaseConfig())

	var state *PhaseState
	var phase Phase

	phase, _, state = engine.Detect(sample(0, 0, 0, 0, true), state)
	phase, _, state = engine.Detect(sample(10, 0, 15, 0, true), state)
	if phase != PhaseTaxi {
		t.Fatalf("setup failed: phase = %s, want TAXI", phase)
	}

	// A climb candidate straight from TAXI is not in the table; the
	// altitude change stays inside the teleport threshold
	phase, transitioned, _ := engine.Detect(sample(25, 4800, 180, 400, false), state)
	if transitioned || phase != PhaseTaxi {
		t.Errorf("phase = %s (transitioned=%v), want TAXI held", phase, transitioned)
	}
}

func TestTeleportBypassesLegalityAndConfirmation(t *testing.T) {
	engine := NewPhaseEngine(testPhaseConfig())

	var state *PhaseState
	var phase Phase

	// Build up to CRUISE
	phase, _, state = engine.Detect(sample(0, 0, 0, 0, true), state)
	phase, _, state = engine.Detect(sample(10, 0, 15, 0, true), state)
	phase, _, state = engine.Detect(sample(20, 0, 80, 0, true), state)
	phase, _, state = engine.Detect(sample(30, 3500, 200, 2000, false), state)
	phase, _, state = engine.Detect(sample(160, 35000, 450, 0, false), state)
	if phase != PhaseCruise {
		t.Fatalf("setup failed: phase = %s, want CRUISE", phase)
	}

	// Slewed to the ground 5s later: CRUISE→LANDED is not in the table,
	// but the 35000 ft jump inside the window is a teleport
	phase, transitioned, _ := engine.Detect(sample(165, 0, 0, 0, true), state)
	if !transitioned || phase != PhaseLanded {
		t.Errorf("phase = %s (transitioned=%v), want LANDED via teleport", phase, transitioned)
	}
}

func TestOutOfOrderSnapshotHoldsPhase(t *testing.T) {
	engine := NewPhaseEngine(testPhaseConfig())

	var state *PhaseState
	var phase Phase

	phase, _, state = engine.Detect(sample(0, 0, 0, 0, true), state)
	phase, _, state = engine.Detect(sample(10, 0, 15, 0, true), state)
	if phase != PhaseTaxi {
		t.Fatalf("setup failed: phase = %s, want TAXI", phase)
	}

	// A stale reading from before taxi must not rewind the state machine
	phase, transitioned, _ := engine.Detect(sample(5, 0, 0, 0, true), state)
	if transitioned || phase != PhaseTaxi {
		t.Errorf("phase = %s (transitioned=%v), want TAXI held on stale sample", phase, transitioned)
	}
}

func TestGroundInferenceWithoutFlag(t *testing.T) {
	engine := NewPhaseEngine(testPhaseConfig())

	tests := []struct {
		name     string
		snap     *Snapshot
		onGround bool
	}{
		{"low and slow", sample(0, 30, 5, 0, false), true},
		{"clearly airborne", sample(0, 5000, 250, 0, false), false},
		{"no prior, near field elevation", sample(0, 10, 15, 0, false), true},
		{"no prior, ambiguous band", sample(0, 120, 15, 0, false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &PhaseState{Phase: PhasePreflight, PhaseStartedAt: tt.snap.Timestamp}
			if got := engine.inferGround(tt.snap, st); got != tt.onGround {
				t.Errorf("inferGround = %v, want %v", got, tt.onGround)
			}
		})
	}
}

// ---

func TestLegalTransitionTable(t *testing.T) {
	legal := [][2]Phase{
		{PhasePreflight, PhaseTaxi},
		{PhaseTaxi, PhaseTakeoff},
		{PhaseTakeoff, PhaseClimb},
		{PhaseClimb, PhaseCruise},
		{PhaseCruise, PhaseDescent},
		{PhaseDescent, PhaseApproach},
		{PhaseApproach, PhaseLanded},
		{PhaseLanded, PhaseBlocked},
		{PhaseBlocked, PhasePreflight},
		{PhaseTakeoff, PhaseTaxi},    // aborted takeoff
		{PhaseApproach, PhaseClimb},  // go-around
		{PhaseApproach, PhaseCruise}, // go-around leveling off
	}
	for _, pair := range legal {
		if !transitionAllowed(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be legal", pair[0], pair[1])
		}
	}

	illegal := [][2]Phase{
		{PhasePreflight, PhaseCruise},
		{PhaseTaxi, PhaseClimb},
		{PhaseCruise, PhaseLanded},
		{PhaseLanded, PhaseClimb},
		{PhaseBlocked, PhaseTakeoff},
	}
	for _, pair := range illegal {
		if transitionAllowed(pair[0], pair[1]) {
			t.Errorf("%s -> %s should not be legal", pair[0], pair[1])
		}
	}
}
