package telemetry

import (
	"math"
	"time"

	"github.com/skytrack-va/skytrack/internal/config"
)

// legalTransitions lists every phase change the engine will accept.
// Anything not in this table holds the current phase, unless a teleport
// bypasses the check. Aborted takeoffs (TAKEOFF→TAXI/LANDED) and
// go-arounds (APPROACH→CLIMB/CRUISE) are deliberately legal.
var legalTransitions = map[Phase][]Phase{
	PhasePreflight: {PhaseTaxi, PhaseBlocked, PhaseTakeoff},
	PhaseTaxi:      {PhasePreflight, PhaseBlocked, PhaseTakeoff},
	PhaseTakeoff:   {PhaseClimb, PhaseCruise, PhaseApproach, PhaseLanded, PhaseTaxi},
	PhaseClimb:     {PhaseCruise, PhaseDescent, PhaseApproach},
	PhaseCruise:    {PhaseDescent, PhaseClimb, PhaseApproach},
	PhaseDescent:   {PhaseCruise, PhaseClimb, PhaseApproach, PhaseLanded},
	PhaseApproach:  {PhaseLanded, PhaseDescent, PhaseClimb, PhaseCruise},
	PhaseLanded:    {PhaseTaxi, PhaseBlocked, PhasePreflight},
	PhaseBlocked:   {PhasePreflight, PhaseTaxi},
}

// transitionAllowed reports whether the change from → to is in the table.
func transitionAllowed(from, to Phase) bool {
	for _, p := range legalTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// PhaseEngine derives the flight phase from successive telemetry snapshots.
// It is a pure state machine: Detect never fails on a valid snapshot and
// has no side effects beyond the returned state, which the caller owns.
// The engine is not safe for concurrent calls with the same state; callers
// serialize per flight.
type PhaseEngine struct {
	cfg config.FlightPhasesConfig
}

// NewPhaseEngine creates a phase engine with the given thresholds
func NewPhaseEngine(cfg config.FlightPhasesConfig) *PhaseEngine {
	return &PhaseEngine{cfg: cfg}
}

// NewState returns the initial per-flight state for a first snapshot
func (e *PhaseEngine) NewState(s *Snapshot) *PhaseState {
	st := &PhaseState{
		Phase:          PhasePreflight,
		PhaseStartedAt: s.Timestamp,
	}
	if s.OnGround {
		st.GroundAltitudeFt = s.Altitude
	}
	return st
}

// Detect evaluates one snapshot against the prior state and returns the
// confirmed phase, whether a transition happened, and the updated state.
// Out-of-order snapshots (timestamp not after the previous one) hold the
// current phase; the sample is still usable for storage and fan-out.
func (e *PhaseEngine) Detect(s *Snapshot, prior *PhaseState) (Phase, bool, *PhaseState) {
	if prior == nil {
		prior = e.NewState(s)
	}
	st := *prior // work on a copy so the caller's state survives a discarded update

	if st.HasPrev && !s.Timestamp.After(st.LastTimestamp) {
		// Reordered or duplicate sample: keep the phase, do not let a
		// stale reading rewind the state machine
		return st.Phase, false, &st
	}

	if !e.cfg.Enabled {
		st.LastAltitude = s.Altitude
		st.LastTimestamp = s.Timestamp
		st.PrevOnGround = s.OnGround
		st.HasPrev = true
		return st.Phase, false, &st
	}

	onGround := e.inferGround(s, &st)
	e.trackGround(s, &st, onGround)

	candidate := e.candidate(s, &st, onGround)

	transitioned := false
	if candidate != st.Phase {
		teleport := e.isTeleport(s, &st)
		inPhase := s.Timestamp.Sub(st.PhaseStartedAt)
		confirm := time.Duration(e.cfg.ConfirmationSecs) * time.Second

		if teleport || (inPhase >= confirm && transitionAllowed(st.Phase, candidate)) {
			st.Phase = candidate
			st.PhaseStartedAt = s.Timestamp
			transitioned = true
		}
	}

	st.LastAltitude = s.Altitude
	st.LastTimestamp = s.Timestamp
	st.PrevOnGround = onGround
	st.HasPrev = true

	return st.Phase, transitioned, &st
}

// inferGround resolves the on-ground flag. The client-supplied flag wins;
// without it the flag is inferred from kinematics, falling back to the
// previous sample's flag in the ambiguous band.
func (e *PhaseEngine) inferGround(s *Snapshot, st *PhaseState) bool {
	if s.OnGround {
		return true
	}
	// The feeder may report on_ground=false while clearly stationary at
	// field elevation, so the kinematic checks still run
	if s.Altitude < e.cfg.GroundMaxAltFt && s.GroundSpeed < e.cfg.GroundMaxSpeedKts {
		return true
	}
	if s.Altitude > e.cfg.AirborneMinAltFt {
		return false
	}
	if st.HasPrev {
		return st.PrevOnGround
	}
	return s.Altitude < e.cfg.GroundFallbackAltFt
}

// trackGround maintains the airborne/ground bookkeeping the candidate
// detection depends on.
func (e *PhaseEngine) trackGround(s *Snapshot, st *PhaseState, onGround bool) {
	if onGround {
		// Record field elevation while on the ground so height above
		// ground can be estimated once airborne
		st.GroundAltitudeFt = s.Altitude

		if st.HasPrev && !st.PrevOnGround {
			st.GroundContactAt = s.Timestamp
		}
		if s.GroundSpeed < e.cfg.BlockedMaxSpeedKts {
			if st.StationarySince.IsZero() {
				st.StationarySince = s.Timestamp
			}
		} else {
			st.StationarySince = time.Time{}
		}
		return
	}

	st.StationarySince = time.Time{}
	if !st.HasPrev || st.PrevOnGround {
		st.AirborneSince = s.Timestamp
	}
	st.WasAirborne = true
}

// candidate computes the instantaneous phase candidate from the snapshot,
// ignoring hysteresis.
func (e *PhaseEngine) candidate(s *Snapshot, st *PhaseState, onGround bool) Phase {
	if onGround {
		return e.groundCandidate(s, st)
	}
	return e.airborneCandidate(s, st)
}

func (e *PhaseEngine) groundCandidate(s *Snapshot, st *PhaseState) Phase {
	stationary := s.GroundSpeed < e.cfg.BlockedMaxSpeedKts
	if stationary && !st.StationarySince.IsZero() {
		held := s.Timestamp.Sub(st.StationarySince)
		if held > time.Duration(e.cfg.BlockedMinStationarySecs)*time.Second {
			return PhaseBlocked
		}
	}

	if st.WasAirborne && s.GroundSpeed < e.cfg.TaxiMaxSpeedKts {
		if !st.GroundContactAt.IsZero() &&
			s.Timestamp.Sub(st.GroundContactAt) >= time.Duration(e.cfg.LandedMinGroundSecs)*time.Second {
			return PhaseLanded
		}
		// Rollout immediately after touchdown still reads as the phase
		// that brought the aircraft down
		if st.Phase == PhaseApproach || st.Phase == PhaseDescent || st.Phase == PhaseTakeoff {
			return st.Phase
		}
		return PhaseLanded
	}

	if s.GroundSpeed >= e.cfg.BlockedMaxSpeedKts && s.GroundSpeed < e.cfg.TaxiMaxSpeedKts {
		return PhaseTaxi
	}
	if s.GroundSpeed >= e.cfg.TaxiMaxSpeedKts {
		// High-speed ground run: takeoff roll
		return PhaseTakeoff
	}
	return PhasePreflight
}

func (e *PhaseEngine) airborneCandidate(s *Snapshot, st *PhaseState) Phase {
	heightAGL := s.Altitude - st.GroundAltitudeFt
	vs := s.VerticalSpeed
	level := math.Abs(vs) < e.cfg.VerticalRateThresholdFPM

	if heightAGL < e.cfg.ApproachMaxHeightFt && (vs <= 0 || level) {
		return PhaseApproach
	}
	if s.GroundSpeed >= e.cfg.TakeoffMinSpeedKts &&
		heightAGL < e.cfg.TakeoffMaxHeightFt &&
		vs > e.cfg.VerticalRateThresholdFPM {
		return PhaseTakeoff
	}
	if vs < -e.cfg.VerticalRateThresholdFPM {
		return PhaseDescent
	}
	if vs > e.cfg.VerticalRateThresholdFPM {
		return PhaseClimb
	}

	// Level flight: call it CRUISE once the current phase has been stable
	// long enough, otherwise stay put or lean on the VS sign
	inPhase := s.Timestamp.Sub(st.PhaseStartedAt)
	if level && inPhase >= time.Duration(e.cfg.CruiseMinStableSecs)*time.Second {
		return PhaseCruise
	}
	if st.Phase == PhaseCruise {
		return PhaseCruise
	}
	if vs < 0 {
		return PhaseDescent
	}
	return PhaseClimb
}

// isTeleport reports a sudden altitude jump consistent with a sim slew or
// position reset. Teleports bypass both the confirmation window and the
// legal-transition table.
func (e *PhaseEngine) isTeleport(s *Snapshot, st *PhaseState) bool {
	if !st.HasPrev {
		return false
	}
	dt := s.Timestamp.Sub(st.LastTimestamp)
	if dt <= 0 || dt >= time.Duration(e.cfg.TeleportMaxWindowSecs)*time.Second {
		return false
	}
	return math.Abs(s.Altitude-st.LastAltitude) > e.cfg.TeleportMinAltJumpFt
}
