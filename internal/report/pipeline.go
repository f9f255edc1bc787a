package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/skytrack-va/skytrack/internal/skynet"
	"github.com/skytrack-va/skytrack/internal/telemetry"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

// PositionSource provides a session's full ordered history
type PositionSource interface {
	QueryRange(sessionID string, from, to time.Time) ([]*telemetry.Position, error)
}

// Store persists generated reports
type Store interface {
	Create(r *FlightReport) error
	MarkSubmitted(sessionID string, at time.Time) error
	Get(sessionID string) (*FlightReport, error)
}

// Submitter posts the finished report to the virtual-airline backend
type Submitter interface {
	SubmitPIREP(ctx context.Context, pirep *skynet.PIREPSubmission) (*skynet.PIREPResponse, error)
}

// Pipeline runs the flight-end sequence: pull the session's history,
// derive the report, persist it, and submit it to the backend. The
// stored report is write-once; a session that already has one is not
// recomputed.
type Pipeline struct {
	generator *Generator
	positions PositionSource
	store     Store
	submitter Submitter
	logger    *logger.Logger
}

// NewPipeline creates a flight-end pipeline
func NewPipeline(generator *Generator, positions PositionSource, store Store, submitter Submitter, log *logger.Logger) *Pipeline {
	return &Pipeline{
		generator: generator,
		positions: positions,
		store:     store,
		submitter: submitter,
		logger:    log.Named("report-pipeline"),
	}
}

// FinishFlight generates, stores, and submits the report for an ended
// session.
func (p *Pipeline) FinishFlight(ctx context.Context, sess *telemetry.FlightSession) error {
	positions, err := p.positions.QueryRange(sess.ID, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to load position history: %w", err)
	}

	r, err := p.generator.Generate(sess, positions)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			p.logger.Warn("No report for flight without positions",
				logger.String("session_id", sess.ID),
				logger.String("callsign", sess.Callsign))
		}
		return err
	}

	if err := p.store.Create(r); err != nil {
		if errors.Is(err, ErrReportExists) {
			p.logger.Warn("Report already generated for session, skipping",
				logger.String("session_id", sess.ID))
			return nil
		}
		return fmt.Errorf("failed to store report: %w", err)
	}

	p.logger.Info("Flight completed",
		logger.String("callsign", sess.Callsign),
		logger.String("route", sess.DepartureICAO+"-"+sess.ArrivalICAO),
		logger.String("distance", humanize.CommafWithDigits(r.DistanceNM, 1)+" nm"),
		logger.String("flight_time", humanize.CommafWithDigits(r.FlightTimeMin, 0)+" min"),
		logger.Int("score", r.Score))

	return p.submit(ctx, sess, r)
}

func (p *Pipeline) submit(ctx context.Context, sess *telemetry.FlightSession, r *FlightReport) error {
	endedAt := time.Now().UTC()
	if sess.EndedAt != nil {
		endedAt = *sess.EndedAt
	}

	pirep := &skynet.PIREPSubmission{
		Callsign:      sess.Callsign,
		AircraftICAO:  sess.AircraftICAO,
		DepartureICAO: sess.DepartureICAO,
		ArrivalICAO:   sess.ArrivalICAO,
		Simulator:     sess.Simulator,
		DistanceNM:    r.DistanceNM,
		FlightTimeMin: r.FlightTimeMin,
		BlockTimeMin:  r.BlockTimeMin,
		FuelUsed:      r.FuelUsed,
		LandingRate:   r.LandingRate,
		Score:         r.Score,
		Status:        r.Status,
		StartedAt:     sess.StartedAt.UTC().Format(time.RFC3339),
		EndedAt:       endedAt.Format(time.RFC3339),
	}

	resp, err := p.submitter.SubmitPIREP(ctx, pirep)
	if err != nil {
		// The report stays PENDING locally; submission can be retried by
		// operations tooling against the stored row
		return fmt.Errorf("failed to submit PIREP: %w", err)
	}

	now := time.Now().UTC()
	if err := p.store.MarkSubmitted(sess.ID, now); err != nil {
		p.logger.Error("Failed to record submission timestamp",
			logger.String("session_id", sess.ID),
			logger.Error(err))
	}

	p.logger.Info("PIREP accepted by backend",
		logger.String("callsign", sess.Callsign),
		logger.String("pirep_id", resp.ID))
	return nil
}
