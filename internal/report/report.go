// Package report derives flight reports from stored position history.
package report

import (
	"errors"
	"time"
)

// Report status values
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
)

// ErrReportExists is returned by a Store when a report was already
// written for the session. Reports are write-once: a stored report is
// never recomputed or overwritten.
var ErrReportExists = errors.New("report already exists for session")

// FlightReport is the write-once summary computed when a flight ends.
// Nullable metrics use pointers: a nil FuelUsed means the boundary fuel
// samples were unusable, a nil LandingRate means the flight never ended
// on the ground with a vertical speed reading.
type FlightReport struct {
	SessionID     string     `json:"session_id"`
	Callsign      string     `json:"callsign"`
	DistanceNM    float64    `json:"distance_nm"`
	FlightTimeMin float64    `json:"flight_time_min"`
	BlockTimeMin  float64    `json:"block_time_min"`
	FuelUsed      *float64   `json:"fuel_used,omitempty"`
	LandingRate   *float64   `json:"landing_rate,omitempty"`
	Score         int        `json:"score"`
	Status        string     `json:"status"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
