/*
main.go - Application entry point

PURPOSE:
  Starts the points dashboard API and the run orchestrator in one process.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load the YAML configuration (missing file = defaults)
  3. Open the configured store (json documents or sqlite)
  4. Start the coordinator, the runner and the scheduler
  5. Start the HTTP server

COMMAND-LINE FLAGS:
  -config  YAML configuration path (default: config.yaml)
  -port    HTTP server port, overrides `listen`
  -store   Store backend, overrides `store` ("json" or "sqlite")

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Stop the active run, if any, wait for its workers, stop the coordinator
  5. Close the store
  6. Exit

EXAMPLES:
  # Run with the default JSON documents
  ./server -config=./config.yaml

  # Run on sqlite, different port
  ./server -store=sqlite -port=3000

ENVIRONMENT:
  LOG_LEVEL     debug | info | warn | error (default: info)
  LOG_ENCODING  console | json (default: console)

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Scheduled runs
  - config/config.go: Configuration file
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/points-engine/api"
	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/logging"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/progress"
	"github.com/warp/points-engine/runner"
	"github.com/warp/points-engine/runner/browser"
	"github.com/warp/points-engine/store"
)

func main() {
	// Flags
	configPath := flag.String("config", "config.yaml", "YAML configuration path")
	port := flag.Int("port", 0, "HTTP server port (overrides listen)")
	backend := flag.String("store", "", `store backend, "json" or "sqlite" (overrides store)`)
	flag.Parse()

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if *port > 0 {
		cfg.Listen = fmt.Sprintf(":%d", *port)
	}
	if *backend != "" {
		cfg.Store = *backend
		if err := cfg.Validate(); err != nil {
			logger.Fatal("Invalid -store flag", zap.Error(err))
		}
	}

	// Initialize store
	backendStores, err := store.Open(cfg, time.Local)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer func() {
		if err := backendStores.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
	}()

	// Domain wiring
	engine := points.NewEngine(backendStores.History)
	recorder := points.NewRecorder(backendStores.History)
	tracker := progress.NewTracker(backendStores.Progress)

	coord := runner.NewCoordinator(recorder, tracker, logger.Named("coordinator"))
	coord.Start()

	rod := browser.New(browser.Config{Bin: cfg.BrowserBin, Headless: cfg.Headless, Logger: logger.Named("browser")})
	run := runner.New(rod, coord, tracker, runner.OptionsFrom(cfg), logger.Named("runner"))

	scheduler, err := api.NewScheduler(run, coord, cfg, logger.Named("scheduler"))
	if err != nil {
		logger.Fatal("Failed to configure scheduler", zap.Error(err))
	}
	scheduler.Start()
	if next, ok := scheduler.NextRun(); ok {
		logger.Info("Next scheduled run", zap.Time("at", next))
	}

	// Initialize handler and router
	handler := api.NewHandler(engine, coord, run, tracker, cfg, logger.Named("api"))
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting",
			zap.String("listen", cfg.Listen),
			zap.String("store", cfg.Store),
			zap.Int("profiles", len(cfg.Profiles)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	scheduler.Stop()
	if err := run.StopAll(); err == nil {
		logger.Info("Stopping active run")
	}
	if err := run.Wait(ctx); err != nil {
		logger.Error("Run did not stop in time", zap.Error(err))
	}
	coord.Close()

	logger.Info("Server stopped")
}
