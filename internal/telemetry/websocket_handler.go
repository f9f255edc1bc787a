package telemetry

import (
	"fmt"

	"github.com/skytrack-va/skytrack/internal/websocket"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

// WebSocketHandler serves inbound client messages on the flight stream
type WebSocketHandler struct {
	service *Service
	logger  *logger.Logger
}

// NewWebSocketHandler creates a handler bound to the telemetry service
func NewWebSocketHandler(service *Service, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		logger:  log.Named("ws-handler"),
	}
}

// HandleMessage dispatches one inbound WebSocket message
func (h *WebSocketHandler) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	switch messageType {
	case websocket.MessageTypeFlightsBulkRequest:
		return h.handleBulkRequest(client)
	default:
		return fmt.Errorf("unknown message type: %s", messageType)
	}
}

// handleBulkRequest sends the full active flight list to one client,
// typically right after it connects.
func (h *WebSocketHandler) handleBulkRequest(client *websocket.Client) error {
	flights := h.service.ListFlights()

	h.logger.Debug("Serving bulk flight request",
		logger.Int("flight_count", len(flights)))

	sent := client.SendMessage(&websocket.Message{
		Type: websocket.MessageTypeFlightsBulkData,
		Data: map[string]any{
			"flights": flights,
			"count":   len(flights),
		},
	})
	if !sent {
		return fmt.Errorf("client send buffer full")
	}
	return nil
}
