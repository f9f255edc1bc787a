package skynet

import (
	"time"
)

// PIREPSubmission is the flight report payload posted to the
// virtual-airline backend when a flight ends.
type PIREPSubmission struct {
	Callsign      string   `json:"callsign"`
	AircraftICAO  string   `json:"aircraft_icao"`
	DepartureICAO string   `json:"departure_icao"`
	ArrivalICAO   string   `json:"arrival_icao"`
	Simulator     string   `json:"simulator"`
	DistanceNM    float64  `json:"distance_nm"`
	FlightTimeMin float64  `json:"flight_time_min"`
	BlockTimeMin  float64  `json:"block_time_min"`
	FuelUsed      *float64 `json:"fuel_used,omitempty"`
	LandingRate   *float64 `json:"landing_rate,omitempty"`
	Score         int      `json:"score"`
	Status        string   `json:"status"`
	StartedAt     string   `json:"started_at"`
	EndedAt       string   `json:"ended_at"`
}

// PIREPResponse is the backend's acknowledgement of a submission
type PIREPResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Pilot is the backend's record of a community pilot
type Pilot struct {
	ID       string `json:"id"`
	Callsign string `json:"callsign"`
	Name     string `json:"name"`
	Rank     string `json:"rank"`
	Hours    int    `json:"hours"`
}

// Flight is the backend's scheduled flight record
type Flight struct {
	ID            string `json:"id"`
	Callsign      string `json:"callsign"`
	AircraftICAO  string `json:"aircraft_icao"`
	DepartureICAO string `json:"departure_icao"`
	ArrivalICAO   string `json:"arrival_icao"`
	Status        string `json:"status"`
}

// Bid is a pilot's active claim on a scheduled flight
type Bid struct {
	ID       string    `json:"id"`
	FlightID string    `json:"flight_id"`
	Callsign string    `json:"callsign"`
	PlacedAt time.Time `json:"placed_at"`
}

// Airport is the backend's airport record used for route validation
type Airport struct {
	ICAO      string  `json:"icao"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation int     `json:"elevation"`
}

// APIError is a structured error from the backend
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Retryable reports whether the call that produced this error may be
// retried. Client errors never are: a 4xx will fail the same way again.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}
