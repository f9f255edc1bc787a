package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/skytrack-va/skytrack/pkg/logger"
	_ "modernc.org/sqlite"
)

// DB wraps the shared SQLite connection used by the position, session,
// and report stores.
type DB struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open opens (or creates) the database at the given path and ensures the
// schema exists.
func Open(dbPath string, log *logger.Logger) (*DB, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	// Open the database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA cache_size=10000"); err != nil {
		return nil, fmt.Errorf("failed to set cache size: %w", err)
	}

	if err := initSchema(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db, logger: storageLogger}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// initSchema creates the tables and indexes if they don't exist
func initSchema(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	// Flight sessions: one row per tracked flight
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flight_sessions (
			id TEXT PRIMARY KEY,
			callsign TEXT NOT NULL,
			aircraft_icao TEXT,
			departure_icao TEXT,
			arrival_icao TEXT,
			simulator TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			last_seen TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flight_sessions table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_sessions_callsign_status
		ON flight_sessions(callsign, status)
	`)
	if err != nil {
		return fmt.Errorf("failed to create session index: %w", err)
	}

	// Positions: append-only history, never mutated
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			callsign TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			altitude REAL NOT NULL,
			heading REAL NOT NULL,
			ground_speed REAL NOT NULL,
			vertical_speed REAL NOT NULL,
			on_ground INTEGER NOT NULL DEFAULT 0,
			fuel_kg REAL NOT NULL,
			phase TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create positions table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_positions_session_ts
		ON positions(session_id, timestamp)
	`)
	if err != nil {
		return fmt.Errorf("failed to create position index: %w", err)
	}

	// Flight reports: write-once per session, enforced by the primary key
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS flight_reports (
			session_id TEXT PRIMARY KEY,
			callsign TEXT NOT NULL,
			distance_nm REAL NOT NULL,
			flight_time_min REAL NOT NULL,
			block_time_min REAL NOT NULL,
			fuel_used REAL,
			landing_rate REAL,
			score INTEGER NOT NULL,
			status TEXT NOT NULL,
			submitted_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flight_reports table: %w", err)
	}

	log.Info("Database schema initialized successfully")
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
