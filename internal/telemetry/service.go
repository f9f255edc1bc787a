package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skytrack-va/skytrack/internal/config"
	"github.com/skytrack-va/skytrack/internal/websocket"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

// PositionStore is the durable history the service appends to. Appends
// are best-effort: a storage failure never blocks the live path.
type PositionStore interface {
	Append(p *Position) error
	QueryRange(sessionID string, from, to time.Time) ([]*Position, error)
	QueryRecent(sessionID string) ([]*Position, error)
	Latest(sessionID string) (*Position, error)
	Count(sessionID string) (int, error)
}

// SessionStore persists flight session lifecycle
type SessionStore interface {
	Create(sess *FlightSession) error
	Touch(sessionID string, lastSeen time.Time) error
	End(sessionID, status string, endedAt time.Time) (bool, error)
	GetActiveByCallsign(callsign string) (*FlightSession, error)
	Get(sessionID string) (*FlightSession, error)
	ListIdleActive(cutoff time.Time) ([]*FlightSession, error)
	CountByStatus() (map[string]int, error)
}

// StateCache is the TTL'd current-state cache the API and WebSocket
// consumers read from.
type StateCache interface {
	Upsert(key string, state *FlightState)
	Get(key string) *FlightState
	ListActive() []*FlightState
	Remove(key string)
	Len() int
}

// FlightFinisher runs the flight-end pipeline: report generation and
// backend submission.
type FlightFinisher interface {
	FinishFlight(ctx context.Context, sess *FlightSession) error
}

// Service is the telemetry ingestion core. Each inbound snapshot is
// validated, run through the phase engine under the flight's lock, then
// persisted, cached, and broadcast. History and cache writes are
// independent of the broadcast: live viewers keep receiving updates even
// when durable storage is degraded.
type Service struct {
	cfg       config.TelemetryConfig
	engine    *PhaseEngine
	states    *StateStore
	cache     StateCache
	positions PositionStore
	sessions  SessionStore
	finisher  FlightFinisher
	wsServer  *websocket.Server
	logger    *logger.Logger

	lastIngest atomic.Int64 // unix nanos of the last accepted snapshot
}

// NewService creates the telemetry service
func NewService(
	cfg config.TelemetryConfig,
	engine *PhaseEngine,
	cache StateCache,
	positions PositionStore,
	sessions SessionStore,
	wsServer *websocket.Server,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		engine:    engine,
		states:    NewStateStore(),
		cache:     cache,
		positions: positions,
		sessions:  sessions,
		wsServer:  wsServer,
		logger:    log.Named("telemetry"),
	}
}

// SetFinisher wires the flight-end pipeline. Set after construction to
// keep the service and the report pipeline independently constructible.
func (s *Service) SetFinisher(f FlightFinisher) {
	s.finisher = f
}

// IngestResult is returned to the feeder client as the acknowledgement
type IngestResult struct {
	SessionID  string    `json:"session_id"`
	Phase      Phase     `json:"phase"`
	ServerTime time.Time `json:"server_time"`
}

// Ingest processes one raw telemetry record end to end. A validation
// failure is returned to the caller; storage failures are logged and
// swallowed so the fan-out path keeps flowing.
func (s *Service) Ingest(ctx context.Context, raw *RawSnapshot) (*IngestResult, *ValidationError, error) {
	now := time.Now().UTC()

	snap, verr := ValidateSnapshot(raw, now)
	if verr != nil {
		s.logger.Debug("Rejected telemetry record", logger.String("error", verr.Error()))
		return nil, verr, nil
	}

	s.lastIngest.Store(now.UnixNano())

	sess, created, err := s.ensureSession(snap, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve flight session: %w", err)
	}

	// Phase detection runs under the flight's lock so concurrent posts
	// for one callsign cannot interleave state updates
	var phase Phase
	var transitioned bool
	s.states.Update(snap.Callsign, func(prior *PhaseState) *PhaseState {
		var next *PhaseState
		phase, transitioned, next = s.engine.Detect(snap, prior)
		return next
	})

	if transitioned {
		s.logger.Info("Flight phase transition",
			logger.String("callsign", snap.Callsign),
			logger.String("phase", string(phase)),
			logger.Time("at", snap.Timestamp))
	}

	state := s.buildState(sess, snap, phase)

	// The cache upsert is in-memory and feeds both the broadcast payload
	// and the flights API, so it stays on the request path
	s.cache.Upsert(snap.Callsign, state)

	// Durable writes run detached: a degraded store must not delay the
	// broadcast below or the feeder ack
	pos := PositionFromSnapshot(sess.ID, snap, phase)
	var g errgroup.Group
	g.Go(func() error {
		if err := s.positions.Append(pos); err != nil {
			return fmt.Errorf("append position history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.sessions.Touch(sess.ID, now); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return nil
	})
	go func() {
		if err := g.Wait(); err != nil {
			s.logger.Error("Best-effort persistence failed",
				logger.String("callsign", snap.Callsign),
				logger.Error(err))
		}
	}()

	msgType := websocket.MessageTypeFlightUpdate
	if created {
		msgType = websocket.MessageTypeFlightAdded
	}
	s.wsServer.Broadcast(&websocket.Message{
		Type: msgType,
		Data: map[string]any{"flight": state},
	})

	return &IngestResult{
		SessionID:  sess.ID,
		Phase:      phase,
		ServerTime: now,
	}, nil, nil
}

// ensureSession finds the active session for the callsign or starts a
// fresh one with a new UUID.
func (s *Service) ensureSession(snap *Snapshot, now time.Time) (*FlightSession, bool, error) {
	sess, err := s.sessions.GetActiveByCallsign(snap.Callsign)
	if err != nil {
		return nil, false, err
	}
	if sess != nil {
		return sess, false, nil
	}

	sess = &FlightSession{
		ID:            uuid.NewString(),
		Callsign:      snap.Callsign,
		AircraftICAO:  snap.AircraftICAO,
		DepartureICAO: snap.DepartureICAO,
		ArrivalICAO:   snap.ArrivalICAO,
		Simulator:     snap.Simulator,
		Status:        SessionActive,
		StartedAt:     now,
		LastSeen:      now,
	}
	if err := s.sessions.Create(sess); err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

func (s *Service) buildState(sess *FlightSession, snap *Snapshot, phase Phase) *FlightState {
	return &FlightState{
		SessionID:     sess.ID,
		Callsign:      snap.Callsign,
		AircraftICAO:  snap.AircraftICAO,
		DepartureICAO: snap.DepartureICAO,
		ArrivalICAO:   snap.ArrivalICAO,
		Simulator:     snap.Simulator,
		Latitude:      snap.Latitude,
		Longitude:     snap.Longitude,
		Altitude:      snap.Altitude,
		Heading:       snap.Heading,
		GroundSpeed:   snap.GroundSpeed,
		VerticalSpeed: snap.VerticalSpeed,
		OnGround:      snap.OnGround,
		FuelKg:        snap.FuelKg,
		Phase:         phase,
		MagneticDecl:  snap.MagneticDecl,
		LastSeen:      snap.Timestamp,
		StartedAt:     sess.StartedAt,
	}
}

// ListFlights returns the current state of every active flight
func (s *Service) ListFlights() []*FlightState {
	return s.cache.ListActive()
}

// GetFlight returns the current state for a callsign, or nil
func (s *Service) GetFlight(callsign string) *FlightState {
	return s.cache.Get(callsign)
}

// Positions returns the active session's stored history for a callsign,
// optionally bounded by [from, to].
func (s *Service) Positions(callsign string, from, to time.Time) ([]*Position, error) {
	sess, err := s.sessions.GetActiveByCallsign(callsign)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if from.IsZero() && to.IsZero() {
		return s.positions.QueryRecent(sess.ID)
	}
	return s.positions.QueryRange(sess.ID, from, to)
}

// EndFlight completes the active session for a callsign and runs the
// flight-end pipeline. Returns the ended session, or nil when no active
// session exists. A non-nil session together with a non-nil error means
// the session closed but the report pipeline failed.
func (s *Service) EndFlight(ctx context.Context, callsign string) (*FlightSession, error) {
	return s.closeFlight(ctx, callsign, SessionCompleted, true)
}

// RemoveFlight cancels the active session without generating a report
func (s *Service) RemoveFlight(ctx context.Context, callsign string) (*FlightSession, error) {
	return s.closeFlight(ctx, callsign, SessionCancelled, false)
}

func (s *Service) closeFlight(ctx context.Context, callsign, status string, finish bool) (*FlightSession, error) {
	sess, err := s.sessions.GetActiveByCallsign(callsign)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	ended, err := s.sessions.End(sess.ID, status, now)
	if err != nil {
		return nil, err
	}
	if !ended {
		// Lost the race with another close; nothing left to do
		return nil, nil
	}
	sess.Status = status
	sess.EndedAt = &now

	s.cache.Remove(callsign)
	s.states.Remove(callsign)

	s.wsServer.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeFlightRemoved,
		Data: map[string]any{
			"callsign":   callsign,
			"session_id": sess.ID,
			"status":     status,
		},
	})

	s.logger.Info("Flight session closed",
		logger.String("callsign", callsign),
		logger.String("session_id", sess.ID),
		logger.String("status", status))

	if finish && s.finisher != nil {
		if err := s.finisher.FinishFlight(ctx, sess); err != nil {
			s.logger.Error("Flight-end pipeline failed",
				logger.String("session_id", sess.ID),
				logger.Error(err))
			// The session is already closed; the caller sees the report
			// failure alongside the closed session
			return sess, err
		}
	}

	return sess, nil
}

// Run drives the idle-session sweep until the context is cancelled.
// Sessions that stop posting telemetry are cancelled; no report is
// generated for them.
func (s *Service) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.SweepIntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Starting idle-session sweep",
		logger.Duration("interval", interval),
		logger.Int("idle_timeout_seconds", s.cfg.SessionIdleTimeoutSecs))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Idle-session sweep stopped")
			return
		case <-ticker.C:
			s.sweepIdle(ctx)
		}
	}
}

func (s *Service) sweepIdle(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-time.Duration(s.cfg.SessionIdleTimeoutSecs) * time.Second)
	idle, err := s.sessions.ListIdleActive(cutoff)
	if err != nil {
		s.logger.Error("Idle sweep query failed", logger.Error(err))
		return
	}

	for _, sess := range idle {
		s.logger.Info("Cancelling idle flight session",
			logger.String("callsign", sess.Callsign),
			logger.String("session_id", sess.ID),
			logger.Time("last_seen", sess.LastSeen))
		if _, err := s.RemoveFlight(ctx, sess.Callsign); err != nil {
			s.logger.Error("Failed to cancel idle session",
				logger.String("session_id", sess.ID),
				logger.Error(err))
		}
	}
}

// Stats summarizes service state for the status endpoint
func (s *Service) Stats() map[string]any {
	stats := map[string]any{
		"active_flights": len(s.cache.ListActive()),
		"cached_entries": s.cache.Len(),
	}
	if ns := s.lastIngest.Load(); ns > 0 {
		stats["last_ingest"] = time.Unix(0, ns).UTC().Format(time.RFC3339)
	}
	if counts, err := s.sessions.CountByStatus(); err == nil {
		stats["sessions"] = counts
	}
	return stats
}
