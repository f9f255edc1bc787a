package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skytrack-va/skytrack/internal/config"
	"github.com/skytrack-va/skytrack/internal/telemetry"
	"github.com/skytrack-va/skytrack/internal/websocket"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

// Router wires the HTTP surface
type Router struct {
	handler *Handler
	config  *config.Config
	logger  *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(
	telemetryService *telemetry.Service,
	reports ReportReader,
	cfg *config.Config,
	log *logger.Logger,
	wsServer *websocket.Server,
) *Router {
	return &Router{
		handler: NewHandler(telemetryService, reports, cfg, log, wsServer),
		config:  cfg,
		logger:  log.Named("api-router"),
	}
}

// Routes builds the chi route tree
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(rt.corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/telemetry", rt.handler.PostTelemetry)

		r.Route("/flights", func(r chi.Router) {
			r.Get("/", rt.handler.GetFlights)
			r.Get("/{callsign}", rt.handler.GetFlight)
			r.Delete("/{callsign}", rt.handler.DeleteFlight)
			r.Get("/{callsign}/positions", rt.handler.GetFlightPositions)
			r.Post("/{callsign}/end", rt.handler.EndFlight)
		})

		r.Get("/status", rt.handler.GetStatus)
		r.Get("/ws", rt.handler.HandleWebSocket)
	})

	return r
}

// corsMiddleware applies the configured allowed origins
func (rt *Router) corsMiddleware(next http.Handler) http.Handler {
	allowed := rt.config.Server.CORSAllowedOrigins

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, o := range allowed {
				if o == "*" || o == origin {
					w.Header().Set("Access-Control-Allow-Origin", o)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Feeder-Token")
					break
				}
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
