package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/skytrack-va/skytrack/internal/api"
	"github.com/skytrack-va/skytrack/internal/cache"
	"github.com/skytrack-va/skytrack/internal/config"
	"github.com/skytrack-va/skytrack/internal/report"
	"github.com/skytrack-va/skytrack/internal/skynet"
	"github.com/skytrack-va/skytrack/internal/storage/sqlite"
	"github.com/skytrack-va/skytrack/internal/telemetry"
	"github.com/skytrack-va/skytrack/internal/websocket"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting SkyTrack server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Generate today's database filename
	today := time.Now().Format("2006-01-02")
	dbFilename := fmt.Sprintf("skytrack-%s.db", today)
	dbPath := filepath.Join(cfg.Storage.SQLiteBasePath, dbFilename)

	// Ensure the directory exists
	if err := os.MkdirAll(cfg.Storage.SQLiteBasePath, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", cfg.Storage.SQLiteBasePath))
		os.Exit(1)
	}

	log.Info("Using daily database", logger.String("path", dbPath))

	db, err := sqlite.Open(dbPath, log)
	if err != nil {
		log.Error("Failed to open SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	positionStorage := sqlite.NewPositionStorage(db, cfg.Storage.MaxPositionsInAPI, log)
	sessionStorage := sqlite.NewSessionStorage(db, log)
	reportStorage := sqlite.NewReportStorage(db, log)

	// Create WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	// Create the current-state cache
	flightCache := cache.NewFlightCache(
		time.Duration(cfg.Telemetry.CacheTTLSecs)*time.Second, log)

	// Create the telemetry core
	phaseEngine := telemetry.NewPhaseEngine(cfg.FlightPhases)
	telemetryService := telemetry.NewService(
		cfg.Telemetry,
		phaseEngine,
		flightCache,
		positionStorage,
		sessionStorage,
		wsServer,
		log,
	)

	// Create the flight-end pipeline: report generation and submission
	skynetClient := skynet.NewClient(cfg.Skynet, log)
	reportGenerator := report.NewGenerator(cfg.Skynet, log)
	reportPipeline := report.NewPipeline(reportGenerator, positionStorage, reportStorage, skynetClient, log)
	telemetryService.SetFinisher(reportPipeline)

	// Wire inbound WebSocket messages to the telemetry service
	wsHandler := telemetry.NewWebSocketHandler(telemetryService, log)
	wsServer.SetMessageHandler(wsHandler)

	// Start the idle-session sweep
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go telemetryService.Run(ctx)

	// Create API router
	router := api.NewRouter(telemetryService, reportStorage, cfg, log, wsServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Stop the idle sweep before the HTTP surface
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete")
	}

	log.Info("Server fully stopped")
}
