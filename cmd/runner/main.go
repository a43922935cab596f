/*
main.go - One-shot search run from the command line

PURPOSE:
  Runs today's searches for the configured profiles without the API, logs
  each worker's progress and exits once every worker has finished.

COMMAND-LINE FLAGS:
  -config    YAML configuration path (default: config.yaml)
  -profiles  Comma-separated profile names (default: all configured)
  -store     Store backend, overrides `store` ("json" or "sqlite")
  -import    Copy the JSON point history into the sqlite database and exit

SIGNALS:
  SIGINT/SIGTERM stops every worker. Progress saved so far is kept, so the
  next run resumes where this one stopped.

EXIT CODES:
  0  every worker completed
  1  setup failed
  2  at least one worker did not complete

EXAMPLES:
  ./runner -profiles="Default,Profile 2"
  ./runner -import -config=./config.yaml

SEE ALSO:
  - cmd/server/main.go: Long-running server with the same wiring
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/logging"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/progress"
	"github.com/warp/points-engine/runner"
	"github.com/warp/points-engine/runner/browser"
	"github.com/warp/points-engine/store"
	"github.com/warp/points-engine/store/jsonfile"
	"github.com/warp/points-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "YAML configuration path")
	names := flag.String("profiles", "", "comma-separated profile names (default: all)")
	backend := flag.String("store", "", `store backend, "json" or "sqlite" (overrides store)`)
	importJSON := flag.Bool("import", false, "copy the JSON point history into sqlite and exit")
	flag.Parse()

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if *backend != "" {
		cfg.Store = *backend
		if err := cfg.Validate(); err != nil {
			logger.Fatal("Invalid -store flag", zap.Error(err))
		}
	}

	if *importJSON {
		if err := importHistory(context.Background(), cfg, logger); err != nil {
			logger.Fatal("Import failed", zap.Error(err))
		}
		return
	}

	// os.Exit skips deferred calls.
	code := runOnce(cfg, *names, logger)
	_ = logger.Sync()
	os.Exit(code)
}

func runOnce(cfg *config.Config, names string, logger *zap.Logger) int {
	profiles, err := selectProfiles(cfg, names)
	if err != nil {
		logger.Error("Invalid -profiles flag", zap.Error(err))
		return 1
	}

	backendStores, err := store.Open(cfg, time.Local)
	if err != nil {
		logger.Error("Failed to open store", zap.Error(err))
		return 1
	}
	defer func() {
		if err := backendStores.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
	}()

	tracker := progress.NewTracker(backendStores.Progress)
	coord := runner.NewCoordinator(points.NewRecorder(backendStores.History), tracker, logger.Named("coordinator"))
	coord.Start()
	defer coord.Close()

	rod := browser.New(browser.Config{Bin: cfg.BrowserBin, Headless: cfg.Headless, Logger: logger.Named("browser")})
	run := runner.New(rod, coord, tracker, runner.OptionsFrom(cfg), logger.Named("runner"))

	events, unsubscribe := coord.Subscribe()
	defer unsubscribe()

	info, err := run.Start(context.Background(), runner.ProfilesFrom(profiles))
	if err != nil {
		logger.Error("Failed to start run", zap.Error(err))
		return 1
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	for {
		select {
		case <-quit:
			logger.Info("Interrupted, stopping every worker")
			if err := run.StopAll(); err != nil && !errors.Is(err, runner.ErrNoActiveRun) {
				logger.Error("Failed to stop run", zap.Error(err))
			}
		case ev, ok := <-events:
			if !ok {
				return 1
			}
			if ev.Type == runner.EventProgress {
				fmt.Printf("[%d] %s: %d/%d %q\n", ev.Number, ev.Identity, ev.Completed, ev.Target, ev.Query)
			}
			if ev.Type != runner.EventRunFinished || ev.RunID != info.ID {
				continue
			}
			if err := run.Wait(context.Background()); err != nil {
				logger.Error("Failed waiting for run", zap.Error(err))
			}
			return report(run, logger)
		}
	}
}

// report logs each worker's outcome. It returns 2 when any did not complete.
func report(run *runner.Runner, logger *zap.Logger) int {
	info, _ := run.State()
	code := 0
	for _, w := range info.Workers {
		fields := []zap.Field{
			zap.String("identity", string(w.Identity)),
			zap.String("status", string(w.Status)),
			zap.Int("completed", w.Completed),
			zap.Int("target", w.Target),
			zap.String("points", w.Points),
		}
		if w.Status != runner.StatusCompleted {
			code = 2
			logger.Warn("Worker did not complete", append(fields, zap.String("error", w.Error))...)
			continue
		}
		logger.Info("Worker completed", fields...)
	}
	return code
}

func selectProfiles(cfg *config.Config, names string) ([]config.Profile, error) {
	if strings.TrimSpace(names) == "" {
		return cfg.Profiles, nil
	}
	var out []config.Profile
	seen := make(map[string]bool)
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		p, ok := cfg.Profile(name)
		if !ok {
			return nil, fmt.Errorf("profile %q is not configured", name)
		}
		out = append(out, p)
	}
	return out, nil
}

// importHistory copies the JSON history into an empty sqlite database.
func importHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	history, err := jsonfile.New(cfg.HistoryFile, time.Local).Load(ctx)
	if err != nil {
		return err
	}

	db, err := sqlite.New(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	existing, err := db.SnapshotCount(ctx)
	if err != nil {
		return err
	}
	if existing > 0 {
		return fmt.Errorf("%s already holds %d snapshots", cfg.SQLitePath, existing)
	}

	if err := db.ImportHistory(ctx, history); err != nil {
		return err
	}

	total := 0
	for _, acct := range history {
		total += len(acct.Snapshots)
	}
	logger.Info("History imported",
		zap.String("from", cfg.HistoryFile),
		zap.String("to", cfg.SQLitePath),
		zap.Int("identities", len(history)),
		zap.Int("snapshots", total))
	return nil
}
