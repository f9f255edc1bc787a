package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skytrack-va/skytrack/internal/config"
	"github.com/skytrack-va/skytrack/internal/report"
	"github.com/skytrack-va/skytrack/internal/telemetry"
	"github.com/skytrack-va/skytrack/internal/websocket"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

// ReportReader exposes stored reports to the API
type ReportReader interface {
	Get(sessionID string) (*report.FlightReport, error)
}

// Handler contains the API handlers
type Handler struct {
	telemetryService *telemetry.Service
	reports          ReportReader
	config           *config.Config
	logger           *logger.Logger
	wsServer         *websocket.Server
	startedAt        time.Time
}

// NewHandler creates a new API handler
func NewHandler(telemetryService *telemetry.Service, reports ReportReader, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) *Handler {
	return &Handler{
		telemetryService: telemetryService,
		reports:          reports,
		config:           cfg,
		logger:           log.Named("api-handler"),
		wsServer:         wsServer,
		startedAt:        time.Now().UTC(),
	}
}

// PostTelemetry ingests one telemetry record from a feeder client
func (h *Handler) PostTelemetry(w http.ResponseWriter, r *http.Request) {
	if token := h.config.Server.FeederToken; token != "" {
		if r.Header.Get("X-Feeder-Token") != token {
			http.Error(w, "invalid feeder token", http.StatusUnauthorized)
			return
		}
	}

	var raw telemetry.RawSnapshot
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.logger.Debug("Failed to decode telemetry body", logger.Error(err))
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	result, verr, err := h.telemetryService.Ingest(r.Context(), &raw)
	if err != nil {
		h.logger.Error("Telemetry ingestion failed", logger.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if verr != nil {
		WriteJSON(w, http.StatusUnprocessableEntity, verr)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// GetFlights returns all active flights
func (h *Handler) GetFlights(w http.ResponseWriter, r *http.Request) {
	flights := h.telemetryService.ListFlights()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"flights": flights,
		"count":   len(flights),
	})
}

// GetFlight returns the current state of one flight by callsign
func (h *Handler) GetFlight(w http.ResponseWriter, r *http.Request) {
	callsign := strings.ToUpper(chi.URLParam(r, "callsign"))

	flight := h.telemetryService.GetFlight(callsign)
	if flight == nil {
		http.Error(w, "flight not found", http.StatusNotFound)
		return
	}

	WriteJSON(w, http.StatusOK, flight)
}

// DeleteFlight cancels the active session for a callsign without
// generating a report
func (h *Handler) DeleteFlight(w http.ResponseWriter, r *http.Request) {
	callsign := strings.ToUpper(chi.URLParam(r, "callsign"))

	sess, err := h.telemetryService.RemoveFlight(r.Context(), callsign)
	if err != nil {
		h.logger.Error("Failed to remove flight", logger.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.Error(w, "flight not found", http.StatusNotFound)
		return
	}

	WriteJSON(w, http.StatusOK, sess)
}

// GetFlightPositions returns the stored history for a flight, optionally
// bounded by from/to query parameters (RFC3339).
func (h *Handler) GetFlightPositions(w http.ResponseWriter, r *http.Request) {
	callsign := strings.ToUpper(chi.URLParam(r, "callsign"))

	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid 'from' timestamp", http.StatusBadRequest)
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid 'to' timestamp", http.StatusBadRequest)
			return
		}
		to = t
	}

	positions, err := h.telemetryService.Positions(callsign, from, to)
	if err != nil {
		h.logger.Error("Failed to query positions", logger.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []*telemetry.Position{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"callsign":  callsign,
		"positions": positions,
		"count":     len(positions),
	})
}

// EndFlight completes the active session for a callsign and triggers
// report generation and submission.
func (h *Handler) EndFlight(w http.ResponseWriter, r *http.Request) {
	callsign := strings.ToUpper(chi.URLParam(r, "callsign"))

	sess, err := h.telemetryService.EndFlight(r.Context(), callsign)
	if sess == nil {
		if err != nil {
			h.logger.Error("Failed to end flight", logger.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		http.Error(w, "flight not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"session": sess,
	}
	if rep, repErr := h.reports.Get(sess.ID); repErr == nil && rep != nil {
		response["report"] = rep
	}
	if err != nil {
		// The session closed but the report pipeline did not complete
		if errors.Is(err, report.ErrInsufficientData) {
			response["report_error"] = "no position data recorded for this flight"
		} else {
			response["report_error"] = "report generation or submission failed"
		}
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetStatus reports server health and service counters
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"uptime":      time.Since(h.startedAt).String(),
		"server_time": time.Now().UTC().Format(time.RFC3339),
		"ws_clients":  h.wsServer.ClientCount(),
		"telemetry":   h.telemetryService.Stats(),
	})
}

// HandleWebSocket upgrades the connection and hands it to the hub
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
