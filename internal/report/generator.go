package report

import (
	"errors"
	"math"

	"github.com/skytrack-va/skytrack/internal/config"
	"github.com/skytrack-va/skytrack/internal/telemetry"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

// ErrInsufficientData is returned when a flight ends with no stored
// positions to derive a report from.
var ErrInsufficientData = errors.New("insufficient position data to generate report")

// FuelMassToVolumeFactor converts fuel burn from kilograms to the
// volumetric unit the virtual-airline backend expects.
const FuelMassToVolumeFactor = 0.33

// Landing and flight-quality scoring thresholds
const (
	hardLandingFPM         = 600
	overspeedKts           = 350
	altitudeCeilingFt      = 45000
	hardLandingPenalty     = 20
	overspeedPenalty       = 10
	altitudeCeilingPenalty = 5
)

// Generator derives flight reports from a session's ordered position
// history.
type Generator struct {
	cfg    config.SkynetConfig
	logger *logger.Logger
}

// NewGenerator creates a report generator
func NewGenerator(cfg config.SkynetConfig, log *logger.Logger) *Generator {
	return &Generator{
		cfg:    cfg,
		logger: log.Named("report-generator"),
	}
}

// Generate computes the report for a completed flight. Positions must be
// ordered by timestamp ascending, as returned by the position store.
// Returns ErrInsufficientData when positions is empty.
func (g *Generator) Generate(sess *telemetry.FlightSession, positions []*telemetry.Position) (*FlightReport, error) {
	if len(positions) == 0 {
		return nil, ErrInsufficientData
	}

	first := positions[0]
	last := positions[len(positions)-1]

	r := &FlightReport{
		SessionID: sess.ID,
		Callsign:  sess.Callsign,
		Status:    StatusPending,
	}
	if g.cfg.AutoApprove {
		r.Status = StatusApproved
	}

	// Distance: sum of great-circle legs between consecutive positions
	for i := 1; i < len(positions); i++ {
		r.DistanceNM += telemetry.Haversine(
			positions[i-1].Latitude, positions[i-1].Longitude,
			positions[i].Latitude, positions[i].Longitude)
	}

	r.FlightTimeMin = last.Timestamp.Sub(first.Timestamp).Minutes()
	r.BlockTimeMin = g.blockTime(positions, r.FlightTimeMin)

	// Fuel burn, converted from mass to the backend's volumetric unit
	if burned := first.FuelKg - last.FuelKg; burned > 0 {
		fuel := burned * FuelMassToVolumeFactor
		r.FuelUsed = &fuel
	} else {
		zero := 0.0
		r.FuelUsed = &zero
	}

	// Landing rate: only meaningful if the flight ended on the ground
	if last.OnGround {
		rate := math.Abs(last.VerticalSpeed)
		r.LandingRate = &rate
	}

	r.Score = g.score(positions, r.LandingRate)

	g.logger.Info("Flight report generated",
		logger.String("session_id", sess.ID),
		logger.String("callsign", sess.Callsign),
		logger.Float64("distance_nm", r.DistanceNM),
		logger.Float64("flight_time_min", r.FlightTimeMin),
		logger.Int("score", r.Score))

	return r, nil
}

// blockTime measures from the first moving airborne-bound sample to the
// last slow on-ground sample after flight. Falls back to flight time when
// either boundary is missing.
func (g *Generator) blockTime(positions []*telemetry.Position, flightTimeMin float64) float64 {
	var start, end *telemetry.Position

	for _, p := range positions {
		if p.GroundSpeed > 0 && !p.OnGround {
			start = p
			break
		}
	}

	airborne := false
	for _, p := range positions {
		if !p.OnGround {
			airborne = true
			continue
		}
		if airborne && p.GroundSpeed < 10 {
			end = p
		}
	}

	if start == nil || end == nil || !end.Timestamp.After(start.Timestamp) {
		return flightTimeMin
	}
	return end.Timestamp.Sub(start.Timestamp).Minutes()
}

// score applies the deduction-based flight score, clamped to [0, 100].
// Disabled scoring always reports a full score.
func (g *Generator) score(positions []*telemetry.Position, landingRate *float64) int {
	score := 100
	if !g.cfg.ScoringEnabled {
		return score
	}

	if landingRate != nil && *landingRate > hardLandingFPM {
		score -= hardLandingPenalty
	}

	var maxGS, maxAlt float64
	for _, p := range positions {
		if p.GroundSpeed > maxGS {
			maxGS = p.GroundSpeed
		}
		if p.Altitude > maxAlt {
			maxAlt = p.Altitude
		}
	}
	if maxGS > overspeedKts {
		score -= overspeedPenalty
	}
	if maxAlt > altitudeCeilingFt {
		score -= altitudeCeilingPenalty
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
