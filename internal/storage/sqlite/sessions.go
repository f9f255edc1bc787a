package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skytrack-va/skytrack/internal/telemetry"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

// SessionStorage is a SQLite-based store for flight session lifecycle
type SessionStorage struct {
	db     *DB
	logger *logger.Logger
}

// NewSessionStorage creates a session store on the shared database
func NewSessionStorage(db *DB, log *logger.Logger) *SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: log.Named("session-storage"),
	}
}

// Create inserts a new active session
func (s *SessionStorage) Create(sess *telemetry.FlightSession) error {
	_, err := s.db.db.Exec(`
		INSERT INTO flight_sessions (
			id, callsign, aircraft_icao, departure_icao, arrival_icao,
			simulator, status, started_at, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sess.ID, sess.Callsign, sess.AircraftICAO, sess.DepartureICAO,
		sess.ArrivalICAO, sess.Simulator, sess.Status,
		sess.StartedAt.UTC().Format(time.RFC3339),
		sess.LastSeen.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Flight session created",
		logger.String("session_id", sess.ID),
		logger.String("callsign", sess.Callsign),
		logger.String("route", sess.DepartureICAO+"-"+sess.ArrivalICAO))
	return nil
}

// Touch updates the session's last-seen timestamp
func (s *SessionStorage) Touch(sessionID string, lastSeen time.Time) error {
	_, err := s.db.db.Exec(`
		UPDATE flight_sessions SET last_seen = ? WHERE id = ? AND status = ?
	`, lastSeen.UTC().Format(time.RFC3339), sessionID, telemetry.SessionActive)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// End transitions an active session to the given terminal status. The
// transition happens at most once: an already-ended session is left
// untouched and reported via the returned bool.
func (s *SessionStorage) End(sessionID, status string, endedAt time.Time) (bool, error) {
	res, err := s.db.db.Exec(`
		UPDATE flight_sessions
		SET status = ?, ended_at = ?
		WHERE id = ? AND status = ?
	`, status, endedAt.UTC().Format(time.RFC3339), sessionID, telemetry.SessionActive)
	if err != nil {
		return false, fmt.Errorf("failed to end session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// GetActiveByCallsign returns the active session for a callsign, or nil
func (s *SessionStorage) GetActiveByCallsign(callsign string) (*telemetry.FlightSession, error) {
	row := s.db.db.QueryRow(`
		SELECT id, callsign, aircraft_icao, departure_icao, arrival_icao,
		       simulator, status, started_at, ended_at, last_seen
		FROM flight_sessions
		WHERE callsign = ? AND status = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, callsign, telemetry.SessionActive)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}
	return sess, nil
}

// Get returns the session with the given id, or nil
func (s *SessionStorage) Get(sessionID string) (*telemetry.FlightSession, error) {
	row := s.db.db.QueryRow(`
		SELECT id, callsign, aircraft_icao, departure_icao, arrival_icao,
		       simulator, status, started_at, ended_at, last_seen
		FROM flight_sessions
		WHERE id = ?
	`, sessionID)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return sess, nil
}

// ListIdleActive returns active sessions whose last-seen timestamp is
// older than the cutoff. Used by the idle sweep.
func (s *SessionStorage) ListIdleActive(cutoff time.Time) ([]*telemetry.FlightSession, error) {
	rows, err := s.db.db.Query(`
		SELECT id, callsign, aircraft_icao, departure_icao, arrival_icao,
		       simulator, status, started_at, ended_at, last_seen
		FROM flight_sessions
		WHERE status = ? AND last_seen < ?
	`, telemetry.SessionActive, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query idle sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*telemetry.FlightSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			s.logger.Warn("Skipping unreadable session row", logger.Error(err))
			continue
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// CountByStatus returns the number of sessions per status value
func (s *SessionStorage) CountByStatus() (map[string]int, error) {
	rows, err := s.db.db.Query(`
		SELECT status, COUNT(*) FROM flight_sessions GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan session count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanSession(row rowScanner) (*telemetry.FlightSession, error) {
	var sess telemetry.FlightSession
	var startedAt, lastSeen string
	var endedAt sql.NullString

	err := row.Scan(&sess.ID, &sess.Callsign, &sess.AircraftICAO,
		&sess.DepartureICAO, &sess.ArrivalICAO, &sess.Simulator,
		&sess.Status, &startedAt, &endedAt, &lastSeen)
	if err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	sess.StartedAt = t

	t, err = time.Parse(time.RFC3339, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_seen: %w", err)
	}
	sess.LastSeen = t

	if endedAt.Valid {
		t, err = time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ended_at: %w", err)
		}
		sess.EndedAt = &t
	}

	return &sess, nil
}
