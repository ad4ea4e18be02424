// Package main runs an optimization of soft-body controllers: a population
// optimizer proposes genotypes, episodes score them in parallel and the best
// genotype is checkpointed every time it improves.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/squish/config"
	"github.com/pthm-cable/squish/evolve"
	"github.com/pthm-cable/squish/telemetry"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	outputDir := flag.String("output", "", "Output directory for results")
	iterations := flag.Int("iterations", 0, "Optimizer iterations (0 = use config)")
	workers := flag.Int("workers", 0, "Parallel episode workers (0 = use config)")
	seed := flag.Int64("seed", -1, "Run seed (-1 = use config)")
	store := flag.String("store", "", "Checkpoint store: file or sqlite (empty = use config)")
	dbPath := flag.String("db", "", "SQLite database path (empty = <output>/runs.db)")
	hallSize := flag.Int("hall", 10, "Genotypes kept in the hall of fame")
	verbose := flag.Bool("verbose", false, "Log per-episode and timing records")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if *outputDir == "" {
		slog.Error("--output is required")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath, *iterations, *workers, *seed, *store)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, *outputDir, *dbPath, *hallSize); err != nil {
		slog.Error("optimization failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig applies the command-line overrides on top of the config file.
func loadConfig(path string, iterations, workers int, seed int64, store string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if iterations > 0 {
		cfg.Run.Iterations = iterations
	}
	if workers > 0 {
		cfg.Run.Workers = workers
	}
	if seed >= 0 {
		cfg.Run.Seed = seed
	}
	if store != "" {
		cfg.Run.Store = store
	}
	if cfg.Run.Store != "file" && cfg.Run.Store != "sqlite" {
		return nil, fmt.Errorf("%w: run.store must be file or sqlite, got %q", config.ErrInvalid, cfg.Run.Store)
	}
	return cfg, cfg.Refresh()
}

func run(cfg *config.Config, outputDir, dbPath string, hallSize int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runID := uuid.NewString()

	om, err := telemetry.NewOutputManager(outputDir, hallSize)
	if err != nil {
		return err
	}
	defer func() {
		if err := om.Close(); err != nil {
			slog.Error("failed to close output", "error", err)
		}
	}()
	if err := om.WriteConfig(cfg); err != nil {
		return err
	}

	listeners := telemetry.Multi{om}
	if cfg.Run.Store == "sqlite" {
		if dbPath == "" {
			dbPath = filepath.Join(outputDir, "runs.db")
		}
		db := telemetry.NewSQLiteStore(dbPath, runID)
		yml, err := cfg.YAML()
		if err != nil {
			return err
		}
		if err := db.Init(ctx, yml); err != nil {
			return fmt.Errorf("open checkpoint store: %w", err)
		}
		defer db.Close()
		listeners = append(listeners, db)
	}

	c, err := evolve.FromConfig(cfg, runListener{Multi: listeners, runID: runID})
	if err != nil {
		return err
	}

	slog.Info("starting optimization",
		"run_id", runID,
		"solver", cfg.Solver.Name,
		"popsize", cfg.Solver.PopSize,
		"workers", cfg.Run.Workers,
		"iterations", cfg.Run.Iterations,
		"controller", cfg.Controller.Kind,
		"task", cfg.Task.Name,
		"store", cfg.Run.Store,
		"seed", cfg.Run.Seed,
	)

	start := time.Now()
	_, fitness, err := c.Run(ctx, cfg.Run.Iterations)
	if err != nil {
		return err
	}

	slog.Info("optimization complete",
		"run_id", runID,
		"iterations", c.Iteration(),
		"evaluations", c.Evaluations(),
		"best_fitness", fitness,
		"elapsed", formatDuration(time.Since(start)),
		"checkpoint", filepath.Join(outputDir, telemetry.BestFile),
	)
	return nil
}

// runListener stamps the run ID onto every checkpoint before fanning it out.
type runListener struct {
	telemetry.Multi
	runID string
}

func (l runListener) SaveBest(ctx context.Context, s *telemetry.Snapshot) error {
	s.RunID = l.runID
	return l.Multi.SaveBest(ctx, s)
}
