package skynet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/skytrack-va/skytrack/internal/config"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

func testConfig(baseURL string) config.SkynetConfig {
	return config.SkynetConfig{
		BaseURL:               baseURL,
		APIKey:                "test-key",
		TimeoutSeconds:        5,
		MaxRetries:            2,
		RetryInitialBackoffMs: 1,
		RetryMaxBackoffMs:     4,
	}
}

func testPIREP() *PIREPSubmission {
	return &PIREPSubmission{
		Callsign:      "DLH401",
		DepartureICAO: "EDDF",
		ArrivalICAO:   "KJFK",
		DistanceNM:    3350,
		FlightTimeMin: 465,
		Score:         95,
		Status:        "PENDING",
	}
}

func TestSubmitPIREP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pireps" {
			t.Errorf("path = %s, want /pireps", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}

		var pirep PIREPSubmission
		if err := json.NewDecoder(r.Body).Decode(&pirep); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if pirep.Callsign != "DLH401" {
			t.Errorf("callsign = %s, want DLH401", pirep.Callsign)
		}

		json.NewEncoder(w).Encode(PIREPResponse{ID: "pirep-1", Status: "PENDING"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewNop())
	resp, err := client.SubmitPIREP(context.Background(), testPIREP())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID != "pirep-1" {
		t.Errorf("response id = %s, want pirep-1", resp.ID)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(PIREPResponse{ID: "pirep-2", Status: "PENDING"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewNop())
	resp, err := client.SubmitPIREP(context.Background(), testPIREP())
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if resp.ID != "pirep-2" {
		t.Errorf("response id = %s, want pirep-2", resp.ID)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid route"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewNop())
	_, err := client.SubmitPIREP(context.Background(), testPIREP())
	if err == nil {
		t.Fatal("expected error for 422 response")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", apiErr.StatusCode)
	}
	if apiErr.Message != "invalid route" {
		t.Errorf("message = %q, want backend message", apiErr.Message)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1 (no retries on 4xx)", got)
	}
}

func TestExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewNop())
	_, err := client.SubmitPIREP(context.Background(), testPIREP())
	if err == nil {
		t.Fatal("expected error when all attempts fail")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3 (initial + 2 retries)", got)
	}
}

func TestGetPilot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pilots/DLH401" {
			t.Errorf("path = %s, want /pilots/DLH401", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Pilot{ID: "p-1", Callsign: "DLH401", Rank: "Captain"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewNop())
	pilot, err := client.GetPilot(context.Background(), "DLH401")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pilot.Rank != "Captain" {
		t.Errorf("rank = %s, want Captain", pilot.Rank)
	}
}

func TestGetFlight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/flights/fl-42" {
			t.Errorf("path = %s, want /flights/fl-42", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Flight{
			ID:            "fl-42",
			Callsign:      "DLH401",
			DepartureICAO: "EDDF",
			ArrivalICAO:   "KJFK",
			Status:        "scheduled",
		})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewNop())
	flight, err := client.GetFlight(context.Background(), "fl-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flight.DepartureICAO != "EDDF" || flight.ArrivalICAO != "KJFK" {
		t.Errorf("route = %s-%s, want EDDF-KJFK", flight.DepartureICAO, flight.ArrivalICAO)
	}
}

func TestGetActiveBid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pilots/DLH401/bids/active" {
			t.Errorf("path = %s, want /pilots/DLH401/bids/active", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Bid{ID: "bid-7", FlightID: "fl-42", Callsign: "DLH401"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewNop())
	bid, err := client.GetActiveBid(context.Background(), "DLH401")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bid.FlightID != "fl-42" {
		t.Errorf("flight id = %s, want fl-42", bid.FlightID)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	client := NewClient(config.SkynetConfig{
		RetryInitialBackoffMs: 500,
		RetryMaxBackoffMs:     2000,
		MaxRetries:            10,
	}, logger.NewNop())

	for attempt, wantMs := range map[int]int{1: 500, 2: 1000, 3: 2000, 8: 2000} {
		if got := client.backoff(attempt); got.Milliseconds() != int64(wantMs) {
			t.Errorf("backoff(%d) = %v, want %dms", attempt, got, wantMs)
		}
	}
}
