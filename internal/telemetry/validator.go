package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldError describes a single failed validation check
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field failure found in a raw snapshot,
// not just the first one.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// ValidateSnapshot checks a raw telemetry record against the field
// constraints and returns the normalized snapshot. On failure it returns
// a ValidationError listing all failing fields. Unknown extra fields in
// the input JSON are already discarded by decoding into RawSnapshot.
//
// Pure function: no side effects beyond the returned values.
func ValidateSnapshot(raw *RawSnapshot, now time.Time) (*Snapshot, *ValidationError) {
	verr := &ValidationError{}
	snap := &Snapshot{}

	// Callsign: required, non-empty, at most 10 characters, upper-cased
	if raw.Callsign == nil || strings.TrimSpace(*raw.Callsign) == "" {
		verr.add("callsign", "is required")
	} else {
		cs := strings.ToUpper(strings.TrimSpace(*raw.Callsign))
		if len(cs) > 10 {
			verr.add("callsign", "must be at most 10 characters")
		} else {
			snap.Callsign = cs
		}
	}

	snap.AircraftICAO = validateICAO(verr, "aircraft_icao", raw.AircraftICAO)
	snap.DepartureICAO = validateICAO(verr, "departure_icao", raw.DepartureICAO)
	snap.ArrivalICAO = validateICAO(verr, "arrival_icao", raw.ArrivalICAO)

	if raw.Simulator != nil {
		snap.Simulator = strings.TrimSpace(*raw.Simulator)
	}

	// Position
	if raw.Latitude == nil {
		verr.add("latitude", "is required")
	} else if *raw.Latitude < -90 || *raw.Latitude > 90 {
		verr.add("latitude", "must be between -90 and 90")
	} else {
		snap.Latitude = *raw.Latitude
	}

	if raw.Longitude == nil {
		verr.add("longitude", "is required")
	} else if *raw.Longitude < -180 || *raw.Longitude > 180 {
		verr.add("longitude", "must be between -180 and 180")
	} else {
		snap.Longitude = *raw.Longitude
	}

	if raw.Altitude == nil {
		verr.add("altitude", "is required")
	} else if *raw.Altitude < -1000 || *raw.Altitude > 100000 {
		verr.add("altitude", "must be between -1000 and 100000 feet")
	} else {
		snap.Altitude = *raw.Altitude
	}

	// Heading: [0, 360), with exactly 360 normalized to 0
	if raw.Heading == nil {
		verr.add("heading", "is required")
	} else if *raw.Heading < 0 || *raw.Heading > 360 {
		verr.add("heading", "must be between 0 and 360")
	} else {
		h := *raw.Heading
		if h == 360 {
			h = 0
		}
		snap.Heading = h
	}

	// Speeds
	if raw.GroundSpeed == nil {
		verr.add("ground_speed", "is required")
	} else if *raw.GroundSpeed < 0 {
		verr.add("ground_speed", "must not be negative")
	} else {
		snap.GroundSpeed = *raw.GroundSpeed
	}

	if raw.IAS != nil {
		if *raw.IAS < 0 {
			verr.add("ias", "must not be negative")
		} else {
			snap.IAS = *raw.IAS
		}
	}

	// Vertical speed is optional; absent means level
	if raw.VerticalSpeed != nil {
		snap.VerticalSpeed = *raw.VerticalSpeed
	}

	if raw.FuelKg == nil {
		verr.add("fuel_kg", "is required")
	} else if *raw.FuelKg < 0 {
		verr.add("fuel_kg", "must not be negative")
	} else {
		snap.FuelKg = *raw.FuelKg
	}

	// On-ground is optional; when absent it is inferred from altitude and
	// speed by the phase engine
	if raw.OnGround != nil {
		snap.OnGround = *raw.OnGround
	} else if raw.Altitude != nil && raw.GroundSpeed != nil {
		snap.OnGround = *raw.Altitude < 50 && *raw.GroundSpeed < 10
	}

	// Client-reported phase is kept for diagnostics but never trusted
	if raw.FlightPhase != nil {
		snap.ClientPhase = strings.ToUpper(strings.TrimSpace(*raw.FlightPhase))
	}

	if raw.Timestamp == nil || strings.TrimSpace(string(*raw.Timestamp)) == "" {
		verr.add("timestamp", "is required")
	} else {
		ts, err := parseTimestamp(strings.TrimSpace(string(*raw.Timestamp)))
		if err != nil {
			verr.add("timestamp", "must be RFC3339 or a unix epoch")
		} else {
			snap.Timestamp = ts.UTC()
		}
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = now.UTC()
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}

	// Enrich with the magnetic declination at the sample position so
	// consumers can derive magnetic headings
	snap.MagneticDecl = MagneticVariation(snap.Latitude, snap.Longitude, snap.Altitude, snap.Timestamp)

	return snap, nil
}

// validateICAO checks a required 4-character ICAO identifier and returns
// it upper-cased.
func validateICAO(verr *ValidationError, field string, value *string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		verr.add(field, "is required")
		return ""
	}
	code := strings.ToUpper(strings.TrimSpace(*value))
	if len(code) != 4 {
		verr.add(field, "must be exactly 4 characters")
		return ""
	}
	return code
}

// parseTimestamp accepts RFC3339 (with or without sub-second precision)
// or a unix epoch in seconds.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if epoch, err := strconv.ParseFloat(s, 64); err == nil && epoch > 0 {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * 1e9)
		return time.Unix(sec, nsec), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %s", s)
}
