package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/pthm-cable/squish/config"
	"github.com/pthm-cable/squish/controller"
	"github.com/pthm-cable/squish/sim"
	"github.com/pthm-cable/squish/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	mode := flag.String("mode", "random", "Episode to run: random, best, hall or inflate")
	bestPath := flag.String("best", "", "Checkpoint to replay: best.json, an output directory or a .db file")
	top := flag.Int("top", 5, "Hall of fame entries to re-evaluate in hall mode")
	runID := flag.String("run", "", "Run ID to replay from a .db file (empty = latest run)")
	output := flag.String("output", "", "CSV trace file (empty = no trace, - = stdout)")
	stride := flag.Int("stride", 10, "Trace every N ticks")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	verbose := flag.Bool("verbose", false, "Log episode debug records")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg().Clone()

	// Set up seed
	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, closeOut, err := openOutput(*output)
	if err != nil {
		slog.Error("failed to open output", "error", err)
		os.Exit(1)
	}
	defer closeOut()

	switch *mode {
	case "inflate":
		err = runInflate(ctx, cfg, out)
	case "best":
		err = runBest(ctx, cfg, *bestPath, *runID, rngSeed, *stride, out)
	case "hall":
		err = runHall(ctx, *bestPath, *top, rngSeed)
	case "random":
		err = runRandom(ctx, cfg, rngSeed, *stride, out)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		slog.Error("episode failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

func openOutput(path string) (io.Writer, func(), error) {
	switch path {
	case "":
		return nil, func() {}, nil
	case "-":
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// runRandom plays the configured controller with a genotype drawn around zero.
func runRandom(ctx context.Context, cfg *config.Config, seed int64, stride int, out io.Writer) error {
	kind, err := controller.ParseKind(cfg.Controller.Kind)
	if err != nil {
		return err
	}
	dims := controller.BodyDims(cfg.Body.NMasses, cfg.Pressure.Control)
	genotype, err := controller.RandomGenotype(kind, dims, cfg.Solver.SigmaInit, rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}
	return replay(ctx, cfg, genotype, seed, stride, out)
}

// runBest replays a checkpoint using the setup it was trained with.
func runBest(ctx context.Context, cfg *config.Config, path, runID string, seed int64, stride int, out io.Writer) error {
	if path == "" {
		return fmt.Errorf("-best is required in best mode")
	}

	var snap *telemetry.Snapshot
	var err error
	if strings.HasSuffix(path, ".db") {
		store := telemetry.NewSQLiteStore(path, runID)
		if err := store.Open(ctx); err != nil {
			return err
		}
		defer store.Close()
		snap, err = store.LoadBest(ctx, runID)
	} else {
		snap, err = telemetry.LoadBest(path)
	}
	if err != nil {
		return err
	}

	cfg.Controller.Kind = snap.Controller
	cfg.Task.Name = snap.Task
	cfg.Body.NMasses = snap.NMasses
	cfg.Pressure.Control = snap.Active
	if err := cfg.Refresh(); err != nil {
		return err
	}

	slog.Info("replaying checkpoint",
		"run_id", snap.RunID,
		"iteration", snap.Iteration,
		"fitness", snap.Fitness,
		"controller", snap.Controller,
		"task", snap.Task,
	)
	return replay(ctx, cfg, snap.Genotype, seed, stride, out)
}

// runHall re-evaluates the top entries of an output directory's hall of fame under
// the configuration that run was written with.
func runHall(ctx context.Context, dir string, top int, seed int64) error {
	if dir == "" {
		return fmt.Errorf("-best must name an output directory in hall mode")
	}
	cfg, err := config.Load(filepath.Join(dir, telemetry.ConfigFile))
	if err != nil {
		return err
	}
	hof, err := telemetry.LoadHallOfFameFromFile(filepath.Join(dir, telemetry.HallOfFameFile), top)
	if err != nil {
		return err
	}

	entries := hof.Entries()
	if len(entries) > top {
		entries = entries[:top]
	}
	for rank, e := range entries {
		fitness, err := sim.Evaluate(ctx, cfg, e.Genotype, seed)
		if err != nil {
			return fmt.Errorf("entry %d: %w", rank, err)
		}
		slog.Info("hall of fame entry",
			"rank", rank,
			"iteration", e.Iteration,
			"index", e.Index,
			"recorded_fitness", e.Fitness,
			"fitness", fitness,
		)
	}
	return nil
}

func runInflate(ctx context.Context, cfg *config.Config, out io.Writer) error {
	samples, err := sim.Inflate(ctx, cfg, out)
	if err != nil {
		return err
	}
	if len(samples) > 0 {
		last := samples[len(samples)-1]
		slog.Info("inflation finished",
			"samples", len(samples),
			"pressure", last.Pressure,
			"area", last.Area,
			"area_ratio", last.AreaRatio,
			"pressure_over_rest", last.Pressure/cfg.RestPressure(),
		)
	}
	return nil
}

func replay(ctx context.Context, cfg *config.Config, genotype []float64, seed int64, stride int, out io.Writer) error {
	start := time.Now()
	res, samples, err := sim.Trace(ctx, cfg, genotype, seed, stride, out)
	if err != nil {
		return err
	}
	slog.Info("episode finished",
		"controller", cfg.Controller.Kind,
		"task", cfg.Task.Name,
		"ticks", res.Ticks,
		"stopped", res.Stopped,
		"fitness", res.Fitness,
		"samples", len(samples),
		"wall_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
