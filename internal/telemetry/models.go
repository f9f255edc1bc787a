package telemetry

import (
	"strings"
	"time"
)

// Phase represents a flight phase reported by the detection engine
type Phase string

// Flight phase constants
const (
	PhasePreflight Phase = "PREFLIGHT" // Parked at the gate before taxi
	PhaseTaxi      Phase = "TAXI"      // Moving on the ground under own power
	PhaseTakeoff   Phase = "TAKEOFF"   // Takeoff roll and initial climb
	PhaseClimb     Phase = "CLIMB"     // Sustained climb to cruise
	PhaseCruise    Phase = "CRUISE"    // Level flight at altitude
	PhaseDescent   Phase = "DESCENT"   // Sustained descent from cruise
	PhaseApproach  Phase = "APPROACH"  // Final approach segment near the ground
	PhaseLanded    Phase = "LANDED"    // Back on the ground after flight
	PhaseBlocked   Phase = "BLOCKED"   // Stationary on the ground (blocks on)
)

// Valid reports whether p is one of the known flight phases.
func (p Phase) Valid() bool {
	switch p {
	case PhasePreflight, PhaseTaxi, PhaseTakeoff, PhaseClimb, PhaseCruise,
		PhaseDescent, PhaseApproach, PhaseLanded, PhaseBlocked:
		return true
	}
	return false
}

// RawTimestamp is a feeder timestamp before parsing. Feeders send either
// an RFC3339 string or a bare unix epoch number; both decode into the
// literal text for the validator to interpret.
type RawTimestamp string

// UnmarshalJSON accepts a JSON string or number
func (t *RawTimestamp) UnmarshalJSON(data []byte) error {
	*t = RawTimestamp(strings.Trim(string(data), `"`))
	return nil
}

// RawSnapshot is a telemetry sample exactly as posted by a feeder client.
// Pointer fields distinguish "absent" from zero values so validation can
// report every missing field at once.
type RawSnapshot struct {
	Callsign      *string       `json:"callsign"`
	AircraftICAO  *string       `json:"aircraft_icao"`
	DepartureICAO *string       `json:"departure_icao"`
	ArrivalICAO   *string       `json:"arrival_icao"`
	Simulator     *string       `json:"simulator"`
	Latitude      *float64      `json:"latitude"`
	Longitude     *float64      `json:"longitude"`
	Altitude      *float64      `json:"altitude"`
	Heading       *float64      `json:"heading"`
	IAS           *float64      `json:"ias"`
	GroundSpeed   *float64      `json:"ground_speed"`
	VerticalSpeed *float64      `json:"vertical_speed"`
	OnGround      *bool         `json:"on_ground"`
	FuelKg        *float64      `json:"fuel_kg"`
	FlightPhase   *string       `json:"flight_phase"`
	Timestamp     *RawTimestamp `json:"timestamp"`
}

// Snapshot is a validated, normalized telemetry sample. Callsign and ICAO
// codes are upper-cased, the heading is normalized to [0, 360), and the
// timestamp is parsed to UTC.
type Snapshot struct {
	Callsign      string    `json:"callsign"`
	AircraftICAO  string    `json:"aircraft_icao"`
	DepartureICAO string    `json:"departure_icao"`
	ArrivalICAO   string    `json:"arrival_icao"`
	Simulator     string    `json:"simulator"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Altitude      float64   `json:"altitude"`       // Feet MSL
	Heading       float64   `json:"heading"`        // Degrees true, [0, 360)
	IAS           float64   `json:"ias"`            // Knots indicated
	GroundSpeed   float64   `json:"ground_speed"`   // Knots
	VerticalSpeed float64   `json:"vertical_speed"` // Feet per minute, negative = descending
	OnGround      bool      `json:"on_ground"`
	FuelKg        float64   `json:"fuel_kg"`
	ClientPhase   string    `json:"client_phase,omitempty"` // Phase as claimed by the client, informational only
	MagneticDecl  float64   `json:"magnetic_declination"`   // Degrees east-positive at the sample position
	Timestamp     time.Time `json:"timestamp"`
}

// PhaseState is the accumulated per-flight state the phase engine carries
// between snapshots. It is mutated only while the flight's lock is held.
type PhaseState struct {
	Phase            Phase     // Current confirmed phase
	PhaseStartedAt   time.Time // When the current phase was entered
	LastAltitude     float64   // Altitude of the previous snapshot (teleport detection)
	LastTimestamp    time.Time // Timestamp of the previous snapshot
	WasAirborne      bool      // The flight has been airborne at least once
	AirborneSince    time.Time // When the flight last became airborne
	GroundContactAt  time.Time // When the flight last touched the ground after being airborne
	StationarySince  time.Time // Start of the current stationary period on the ground
	GroundAltitudeFt float64   // Field elevation estimate, recorded while on the ground
	PrevOnGround     bool      // Ground flag of the previous snapshot
	HasPrev          bool      // A previous snapshot exists
}

// FlightState is the cached current state of a flight as served by the
// flights API and pushed over WebSocket.
type FlightState struct {
	SessionID     string    `json:"session_id"`
	Callsign      string    `json:"callsign"`
	AircraftICAO  string    `json:"aircraft_icao"`
	DepartureICAO string    `json:"departure_icao"`
	ArrivalICAO   string    `json:"arrival_icao"`
	Simulator     string    `json:"simulator"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Altitude      float64   `json:"altitude"`
	Heading       float64   `json:"heading"`
	GroundSpeed   float64   `json:"ground_speed"`
	VerticalSpeed float64   `json:"vertical_speed"`
	OnGround      bool      `json:"on_ground"`
	FuelKg        float64   `json:"fuel_kg"`
	Phase         Phase     `json:"phase"`
	MagneticDecl  float64   `json:"magnetic_declination"`
	LastSeen      time.Time `json:"last_seen"`
	StartedAt     time.Time `json:"started_at"`
}

// Session lifecycle states
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

// FlightSession represents one continuous tracked flight for a callsign,
// from first snapshot to flight end (or idle cancellation).
type FlightSession struct {
	ID            string     `json:"id"` // UUID assigned on first snapshot
	Callsign      string     `json:"callsign"`
	AircraftICAO  string     `json:"aircraft_icao"`
	DepartureICAO string     `json:"departure_icao"`
	ArrivalICAO   string     `json:"arrival_icao"`
	Simulator     string     `json:"simulator"`
	Status        string     `json:"status"` // active, completed, or cancelled
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	LastSeen      time.Time  `json:"last_seen"`
}

// Position is a stored history sample for a flight session
type Position struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	Callsign      string    `json:"callsign"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Altitude      float64   `json:"altitude"`
	Heading       float64   `json:"heading"`
	GroundSpeed   float64   `json:"ground_speed"`
	VerticalSpeed float64   `json:"vertical_speed"`
	OnGround      bool      `json:"on_ground"`
	FuelKg        float64   `json:"fuel_kg"`
	Phase         Phase     `json:"phase"`
	Timestamp     time.Time `json:"timestamp"`
}

// PositionFromSnapshot builds a history sample from a validated snapshot
// and the phase confirmed for it.
func PositionFromSnapshot(sessionID string, s *Snapshot, phase Phase) *Position {
	return &Position{
		SessionID:     sessionID,
		Callsign:      s.Callsign,
		Latitude:      s.Latitude,
		Longitude:     s.Longitude,
		Altitude:      s.Altitude,
		Heading:       s.Heading,
		GroundSpeed:   s.GroundSpeed,
		VerticalSpeed: s.VerticalSpeed,
		OnGround:      s.OnGround,
		FuelKg:        s.FuelKg,
		Phase:         phase,
		Timestamp:     s.Timestamp,
	}
}
