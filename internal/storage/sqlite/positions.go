package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skytrack-va/skytrack/internal/telemetry"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

// positionTimeLayout pins the fractional seconds to fixed width so the
// TEXT column compares chronologically even for sub-second samples.
const positionTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// PositionStorage is a SQLite-based append-only store for flight position
// history. Duplicate timestamps are stored as-is; the report generator
// handles them. Equal timestamps keep insertion order via the rowid.
type PositionStorage struct {
	db                *DB
	logger            *logger.Logger
	maxPositionsInAPI int
}

// NewPositionStorage creates a position store on the shared database
func NewPositionStorage(db *DB, maxPositionsInAPI int, log *logger.Logger) *PositionStorage {
	return &PositionStorage{
		db:                db,
		logger:            log.Named("position-storage"),
		maxPositionsInAPI: maxPositionsInAPI,
	}
}

// Append stores one position sample. Failures are returned to the caller
// but are expected to be logged and dropped there: history is best-effort
// and must never block the live path.
func (s *PositionStorage) Append(p *telemetry.Position) error {
	// Ensure all timestamps are in UTC
	ts := p.Timestamp.UTC()

	var err error
	// Retry up to 3 times with exponential backoff
	for i := 0; i < 3; i++ {
		_, err = s.db.db.Exec(`
			INSERT INTO positions (
				session_id, callsign, latitude, longitude, altitude,
				heading, ground_speed, vertical_speed, on_ground,
				fuel_kg, phase, timestamp
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			p.SessionID, p.Callsign, p.Latitude, p.Longitude, p.Altitude,
			p.Heading, p.GroundSpeed, p.VerticalSpeed, boolToInt(p.OnGround),
			p.FuelKg, string(p.Phase), ts.Format(positionTimeLayout),
		)
		if err == nil {
			return nil
		}

		s.logger.Warn("Failed to append position, retrying...",
			logger.Error(err),
			logger.String("callsign", p.Callsign),
			logger.Int("attempt", i+1))

		// Exponential backoff: 100ms, 200ms, 400ms
		time.Sleep(time.Duration(100*(1<<i)) * time.Millisecond)
	}

	return fmt.Errorf("failed to append position after retries: %w", err)
}

// QueryRange returns the session's positions ordered by timestamp
// ascending, optionally bounded by [from, to]. Zero times mean unbounded.
func (s *PositionStorage) QueryRange(sessionID string, from, to time.Time) ([]*telemetry.Position, error) {
	query := `
		SELECT id, session_id, callsign, latitude, longitude, altitude,
		       heading, ground_speed, vertical_speed, on_ground,
		       fuel_kg, phase, timestamp
		FROM positions
		WHERE session_id = ?
	`
	args := []interface{}{sessionID}

	if !from.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, from.UTC().Format(positionTimeLayout))
	}
	if !to.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, to.UTC().Format(positionTimeLayout))
	}
	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := s.db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows, s.logger)
}

// QueryRecent returns the session's positions ordered ascending, capped to
// the API response limit (most recent samples win).
func (s *PositionStorage) QueryRecent(sessionID string) ([]*telemetry.Position, error) {
	rows, err := s.db.db.Query(`
		SELECT id, session_id, callsign, latitude, longitude, altitude,
		       heading, ground_speed, vertical_speed, on_ground,
		       fuel_kg, phase, timestamp
		FROM (
			SELECT * FROM positions
			WHERE session_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC, id ASC
	`, sessionID, s.maxPositionsInAPI)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows, s.logger)
}

// Latest returns the most recent position for the session, or nil if the
// session has no positions yet.
func (s *PositionStorage) Latest(sessionID string) (*telemetry.Position, error) {
	row := s.db.db.QueryRow(`
		SELECT id, session_id, callsign, latitude, longitude, altitude,
		       heading, ground_speed, vertical_speed, on_ground,
		       fuel_kg, phase, timestamp
		FROM positions
		WHERE session_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, sessionID)

	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest position: %w", err)
	}
	return p, nil
}

// Count returns the number of stored positions for the session
func (s *PositionStorage) Count(sessionID string) (int, error) {
	var count int
	err := s.db.db.QueryRow("SELECT COUNT(*) FROM positions WHERE session_id = ?", sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*telemetry.Position, error) {
	var p telemetry.Position
	var onGround int
	var phase, timestamp string

	err := row.Scan(&p.ID, &p.SessionID, &p.Callsign, &p.Latitude, &p.Longitude,
		&p.Altitude, &p.Heading, &p.GroundSpeed, &p.VerticalSpeed, &onGround,
		&p.FuelKg, &phase, &timestamp)
	if err != nil {
		return nil, err
	}

	p.OnGround = onGround != 0
	p.Phase = telemetry.Phase(phase)

	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse position timestamp: %w", err)
	}
	p.Timestamp = t

	return &p, nil
}

func scanPositions(rows *sql.Rows, log *logger.Logger) ([]*telemetry.Position, error) {
	var positions []*telemetry.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			log.Warn("Skipping unreadable position row", logger.Error(err))
			continue
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}
