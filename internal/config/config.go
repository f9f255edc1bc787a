package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server       ServerConfig       `toml:"server"`        // HTTP server settings
	Logging      LoggingConfig      `toml:"logging"`       // Application logging settings
	Storage      StorageConfig      `toml:"storage"`       // Data persistence settings
	Telemetry    TelemetryConfig    `toml:"telemetry"`     // Telemetry ingestion and caching settings
	FlightPhases FlightPhasesConfig `toml:"flight_phases"` // Flight phase detection settings
	Skynet       SkynetConfig       `toml:"skynet"`        // Virtual-airline backend settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, recommended for streaming)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	FeederToken        string   `toml:"feeder_token"`          // Shared token expected in the X-Feeder-Token header on telemetry posts (empty = no auth)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Type              string `toml:"type"`                 // Storage backend type (currently only "sqlite" is supported)
	SQLiteBasePath    string `toml:"sqlite_base_path"`     // Base path for SQLite database files (actual filename will be generated as skytrack-YYYY-MM-DD.db)
	MaxPositionsInAPI int    `toml:"max_positions_in_api"` // Maximum number of positions to return in the positions API response
}

// TelemetryConfig contains telemetry ingestion and caching settings
type TelemetryConfig struct {
	CacheTTLSecs           int `toml:"cache_ttl_seconds"`            // Time-to-live for current-state cache entries (default: 300)
	SessionIdleTimeoutSecs int `toml:"session_idle_timeout_seconds"` // Idle time after which an active flight session is cancelled (default: 900)
	SweepIntervalSecs      int `toml:"sweep_interval_seconds"`       // How often the idle-session sweep runs (default: 60)
}

// FlightPhasesConfig contains settings for flight phase detection
type FlightPhasesConfig struct {
	Enabled bool `toml:"enabled"` // Enable flight phase detection

	// Ground-state inference thresholds
	GroundMaxAltFt      float64 `toml:"ground_max_alt_ft"`      // Below this altitude with low speed, the aircraft is on the ground (default: 50)
	GroundMaxSpeedKts   float64 `toml:"ground_max_speed_kts"`   // Speed bound paired with ground_max_alt_ft (default: 10)
	AirborneMinAltFt    float64 `toml:"airborne_min_alt_ft"`    // Above this altitude the aircraft is airborne regardless of speed (default: 200)
	GroundFallbackAltFt float64 `toml:"ground_fallback_alt_ft"` // With no prior state, below this altitude assume ground (default: 20)

	// Ground phase thresholds
	BlockedMaxSpeedKts       float64 `toml:"blocked_max_speed_kts"`          // Speed below which an aircraft counts as stationary (default: 1)
	BlockedMinStationarySecs int     `toml:"blocked_min_stationary_seconds"` // Sustained stationary time before BLOCKED (default: 30)
	TaxiMaxSpeedKts          float64 `toml:"taxi_max_speed_kts"`             // Upper taxi speed bound (default: 40)
	LandedMinGroundSecs      int     `toml:"landed_min_ground_seconds"`      // Ground contact time before LANDED is reported (default: 3)

	// Airborne phase thresholds
	TakeoffMinSpeedKts       float64 `toml:"takeoff_min_speed_kts"`       // Minimum ground speed for TAKEOFF (default: 40)
	TakeoffMaxHeightFt       float64 `toml:"takeoff_max_height_ft"`       // Height above ground ceiling for TAKEOFF (default: 1500)
	ApproachMaxHeightFt      float64 `toml:"approach_max_height_ft"`      // Height above ground ceiling for APPROACH (default: 3000)
	VerticalRateThresholdFPM float64 `toml:"vertical_rate_threshold_fpm"` // Vertical rate magnitude below which flight is level (default: 300)
	CruiseMinStableSecs      int     `toml:"cruise_min_stable_seconds"`   // Level time in the current phase before CRUISE (default: 120)

	// Hysteresis and teleport detection
	ConfirmationSecs      int     `toml:"confirmation_seconds"`        // Minimum time in the current phase before a transition is accepted (default: 5)
	TeleportMinAltJumpFt  float64 `toml:"teleport_min_alt_jump_ft"`    // Altitude jump that counts as a teleport (default: 5000)
	TeleportMaxWindowSecs int     `toml:"teleport_max_window_seconds"` // Window within which the jump must occur (default: 10)
}

// SkynetConfig contains settings for the external virtual-airline backend
type SkynetConfig struct {
	BaseURL               string `toml:"base_url"`                 // Base URL of the virtual-airline API (e.g., https://skynet.example.com/api)
	APIKey                string `toml:"api_key"`                  // API key sent as a Bearer token with each request
	TimeoutSeconds        int    `toml:"timeout_seconds"`          // HTTP timeout for backend requests (default: 10)
	MaxRetries            int    `toml:"max_retries"`              // Maximum retry attempts for failed calls (default: 3)
	RetryInitialBackoffMs int    `toml:"retry_initial_backoff_ms"` // Initial backoff time in milliseconds (default: 500)
	RetryMaxBackoffMs     int    `toml:"retry_max_backoff_ms"`     // Maximum backoff time in milliseconds (default: 8000)
	ScoringEnabled        bool   `toml:"scoring_enabled"`          // Apply the deduction-based score to generated flight reports
	AutoApprove           bool   `toml:"auto_approve"`             // Submit reports with APPROVED status instead of PENDING
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	// Validate logging config
	switch c.Logging.Level {
	case "":
		c.Logging.Level = "info"
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "":
		c.Logging.Format = "console"
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate storage config
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (only 'sqlite' is supported)", c.Storage.Type)
	}
	if c.Storage.SQLiteBasePath == "" {
		return fmt.Errorf("sqlite_base_path is required when storage type is sqlite")
	}
	if c.Storage.MaxPositionsInAPI <= 0 {
		c.Storage.MaxPositionsInAPI = 600
	}

	// Validate telemetry config
	if c.Telemetry.CacheTTLSecs <= 0 {
		c.Telemetry.CacheTTLSecs = 300
	}
	if c.Telemetry.SessionIdleTimeoutSecs <= 0 {
		c.Telemetry.SessionIdleTimeoutSecs = 900
	}
	if c.Telemetry.SweepIntervalSecs <= 0 {
		c.Telemetry.SweepIntervalSecs = 60
	}

	// Validate flight phases config
	if err := c.validateFlightPhases(); err != nil {
		return err
	}

	// Validate skynet config
	if c.Skynet.BaseURL == "" {
		return fmt.Errorf("skynet base_url is required")
	}
	if c.Skynet.TimeoutSeconds <= 0 {
		c.Skynet.TimeoutSeconds = 10
	}
	if c.Skynet.MaxRetries < 0 {
		return fmt.Errorf("skynet max_retries must not be negative")
	}
	if c.Skynet.MaxRetries == 0 {
		c.Skynet.MaxRetries = 3
	}
	if c.Skynet.RetryInitialBackoffMs <= 0 {
		c.Skynet.RetryInitialBackoffMs = 500
	}
	if c.Skynet.RetryMaxBackoffMs <= 0 {
		c.Skynet.RetryMaxBackoffMs = 8000
	}
	if c.Skynet.RetryMaxBackoffMs < c.Skynet.RetryInitialBackoffMs {
		return fmt.Errorf("retry_max_backoff_ms (%d) must not be less than retry_initial_backoff_ms (%d)",
			c.Skynet.RetryMaxBackoffMs, c.Skynet.RetryInitialBackoffMs)
	}

	return nil
}

// validateFlightPhases fills phase detection defaults and checks threshold ordering
func (c *Config) validateFlightPhases() error {
	fp := &c.FlightPhases

	if fp.GroundMaxAltFt <= 0 {
		fp.GroundMaxAltFt = 50
	}
	if fp.GroundMaxSpeedKts <= 0 {
		fp.GroundMaxSpeedKts = 10
	}
	if fp.AirborneMinAltFt <= 0 {
		fp.AirborneMinAltFt = 200
	}
	if fp.GroundFallbackAltFt <= 0 {
		fp.GroundFallbackAltFt = 20
	}
	if fp.BlockedMaxSpeedKts <= 0 {
		fp.BlockedMaxSpeedKts = 1
	}
	if fp.BlockedMinStationarySecs <= 0 {
		fp.BlockedMinStationarySecs = 30
	}
	if fp.TaxiMaxSpeedKts <= 0 {
		fp.TaxiMaxSpeedKts = 40
	}
	if fp.LandedMinGroundSecs <= 0 {
		fp.LandedMinGroundSecs = 3
	}
	if fp.TakeoffMinSpeedKts <= 0 {
		fp.TakeoffMinSpeedKts = 40
	}
	if fp.TakeoffMaxHeightFt <= 0 {
		fp.TakeoffMaxHeightFt = 1500
	}
	if fp.ApproachMaxHeightFt <= 0 {
		fp.ApproachMaxHeightFt = 3000
	}
	if fp.VerticalRateThresholdFPM <= 0 {
		fp.VerticalRateThresholdFPM = 300
	}
	if fp.CruiseMinStableSecs <= 0 {
		fp.CruiseMinStableSecs = 120
	}
	if fp.ConfirmationSecs <= 0 {
		fp.ConfirmationSecs = 5
	}
	if fp.TeleportMinAltJumpFt <= 0 {
		fp.TeleportMinAltJumpFt = 5000
	}
	if fp.TeleportMaxWindowSecs <= 0 {
		fp.TeleportMaxWindowSecs = 10
	}

	if fp.TaxiMaxSpeedKts <= fp.BlockedMaxSpeedKts {
		return fmt.Errorf("taxi_max_speed_kts (%.1f) must be greater than blocked_max_speed_kts (%.1f)",
			fp.TaxiMaxSpeedKts, fp.BlockedMaxSpeedKts)
	}
	if fp.ApproachMaxHeightFt <= fp.TakeoffMaxHeightFt {
		return fmt.Errorf("approach_max_height_ft (%.0f) must be greater than takeoff_max_height_ft (%.0f)",
			fp.ApproachMaxHeightFt, fp.TakeoffMaxHeightFt)
	}

	return nil
}
