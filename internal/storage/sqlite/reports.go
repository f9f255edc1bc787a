package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/skytrack-va/skytrack/internal/report"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

// ReportStorage is a SQLite-based write-once store for flight reports
type ReportStorage struct {
	db     *DB
	logger *logger.Logger
}

// NewReportStorage creates a report store on the shared database
func NewReportStorage(db *DB, log *logger.Logger) *ReportStorage {
	return &ReportStorage{
		db:     db,
		logger: log.Named("report-storage"),
	}
}

// Create stores a report. Returns report.ErrReportExists if the session already
// has one; the primary key enforces write-once.
func (s *ReportStorage) Create(r *report.FlightReport) error {
	var submittedAt interface{}
	if r.SubmittedAt != nil {
		submittedAt = r.SubmittedAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.db.Exec(`
		INSERT INTO flight_reports (
			session_id, callsign, distance_nm, flight_time_min,
			block_time_min, fuel_used, landing_rate, score, status,
			submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.SessionID, r.Callsign, r.DistanceNM, r.FlightTimeMin,
		r.BlockTimeMin, nullableFloat(r.FuelUsed), nullableFloat(r.LandingRate),
		r.Score, r.Status, submittedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") ||
			strings.Contains(err.Error(), "PRIMARY KEY") {
			return report.ErrReportExists
		}
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// MarkSubmitted records a successful submission timestamp
func (s *ReportStorage) MarkSubmitted(sessionID string, at time.Time) error {
	_, err := s.db.db.Exec(`
		UPDATE flight_reports SET submitted_at = ? WHERE session_id = ?
	`, at.UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark report submitted: %w", err)
	}
	return nil
}

// Get returns the report for a session, or nil if none exists
func (s *ReportStorage) Get(sessionID string) (*report.FlightReport, error) {
	row := s.db.db.QueryRow(`
		SELECT session_id, callsign, distance_nm, flight_time_min,
		       block_time_min, fuel_used, landing_rate, score, status,
		       submitted_at, created_at
		FROM flight_reports
		WHERE session_id = ?
	`, sessionID)

	var r report.FlightReport
	var fuelUsed, landingRate sql.NullFloat64
	var submittedAt sql.NullString
	var createdAt string

	err := row.Scan(&r.SessionID, &r.Callsign, &r.DistanceNM, &r.FlightTimeMin,
		&r.BlockTimeMin, &fuelUsed, &landingRate, &r.Score, &r.Status,
		&submittedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}

	if fuelUsed.Valid {
		r.FuelUsed = &fuelUsed.Float64
	}
	if landingRate.Valid {
		r.LandingRate = &landingRate.Float64
	}
	if submittedAt.Valid {
		t, err := time.Parse(time.RFC3339, submittedAt.String)
		if err == nil {
			r.SubmittedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		r.CreatedAt = t
	}

	return &r, nil
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
