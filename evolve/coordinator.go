// Package evolve runs population optimization: each iteration asks the solver for
// a population, evaluates it on a fixed pool of workers, tells the solver the
// fitness in population order and checkpoints the best genotype.
package evolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/pthm-cable/squish/config"
	"github.com/pthm-cable/squish/controller"
	"github.com/pthm-cable/squish/es"
	"github.com/pthm-cable/squish/sim"
	"github.com/pthm-cable/squish/telemetry"
)

// ErrPopulationSplit is returned when the population cannot be divided evenly
// among the workers.
var ErrPopulationSplit = errors.New("population size not divisible by worker count")

// EvalFunc scores one genotype. It is called concurrently from the worker pool.
type EvalFunc func(ctx context.Context, genotype []float64, seed int64) (float64, error)

// Options configures a Coordinator.
type Options struct {
	Solver   es.Solver
	Workers  int
	Seed     int64 // base of the per-episode seeds
	Evaluate EvalFunc

	// Listener receives progress and checkpoints; nil discards them.
	Listener telemetry.Listener

	// Template supplies the setup fields copied into every checkpoint.
	Template telemetry.Snapshot
}

// Coordinator drives the ask, evaluate, tell loop.
type Coordinator struct {
	solver   es.Solver
	workers  int
	seed     int64
	eval     EvalFunc
	listener telemetry.Listener
	template telemetry.Snapshot
	perf     *telemetry.PerfCollector

	start       time.Time
	iteration   int
	evaluations int
	best        float64
	saved       bool
}

// New validates opts and returns a coordinator. A population that does not split
// evenly across the workers is rejected before any evaluation runs.
func New(opts Options) (*Coordinator, error) {
	if opts.Solver == nil || opts.Evaluate == nil {
		return nil, errors.New("evolve: solver and evaluator are required")
	}
	if opts.Workers < 1 {
		return nil, fmt.Errorf("evolve: workers must be >= 1, got %d", opts.Workers)
	}
	if p := opts.Solver.PopSize(); p%opts.Workers != 0 {
		return nil, fmt.Errorf("%w: popsize %d, workers %d", ErrPopulationSplit, p, opts.Workers)
	}

	listener := opts.Listener
	if listener == nil {
		listener = telemetry.Multi{}
	}
	return &Coordinator{
		solver:   opts.Solver,
		workers:  opts.Workers,
		seed:     opts.Seed,
		eval:     opts.Evaluate,
		listener: listener,
		template: opts.Template,
		perf:     telemetry.NewPerfCollector(10),
	}, nil
}

// FromConfig builds the solver and the episode evaluator described by cfg.
func FromConfig(cfg *config.Config, listener telemetry.Listener) (*Coordinator, error) {
	kind, err := controller.ParseKind(cfg.Controller.Kind)
	if err != nil {
		return nil, err
	}
	nParams, err := controller.NumParams(kind, cfg.Body.NMasses, cfg.Pressure.Control)
	if err != nil {
		return nil, err
	}
	scfg := cfg.Solver
	if scfg.Name == "cmaes" {
		scfg.PopSize = es.CMAPopSize(nParams, cfg.Run.Workers, scfg.PopSize)
	}
	solver, err := es.New(scfg, nParams, rand.New(rand.NewSource(cfg.Run.Seed)))
	if err != nil {
		return nil, err
	}

	return New(Options{
		Solver:  solver,
		Workers: cfg.Run.Workers,
		Seed:    cfg.Run.Seed,
		Evaluate: func(ctx context.Context, genotype []float64, seed int64) (float64, error) {
			return sim.Evaluate(ctx, cfg, genotype, seed)
		},
		Listener: listener,
		Template: telemetry.Snapshot{
			Controller: kind.String(),
			Task:       cfg.Task.Name,
			NMasses:    cfg.Body.NMasses,
			Active:     cfg.Pressure.Control,
		},
	})
}

// Iteration returns the number of completed iterations.
func (c *Coordinator) Iteration() int { return c.iteration }

// Evaluations returns the number of completed episode evaluations.
func (c *Coordinator) Evaluations() int { return c.evaluations }

// Iterate runs one generation and returns its progress record. An evaluation
// error aborts the generation before the solver is told anything.
func (c *Coordinator) Iterate(ctx context.Context) (telemetry.Progress, error) {
	if c.start.IsZero() {
		c.start = time.Now()
	}
	c.perf.StartIteration()

	c.perf.StartPhase(telemetry.PhaseAsk)
	population := c.solver.Ask()

	c.perf.StartPhase(telemetry.PhaseEvaluate)
	fitness, err := c.evaluate(ctx, population)
	if err != nil {
		return telemetry.Progress{}, fmt.Errorf("iteration %d: %w", c.iteration, err)
	}
	c.evaluations += len(population)

	c.perf.StartPhase(telemetry.PhaseTell)
	if err := c.solver.Tell(fitness); err != nil {
		return telemetry.Progress{}, fmt.Errorf("iteration %d: %w", c.iteration, err)
	}
	bestGenotype, bestFitness := c.solver.Result()

	c.perf.StartPhase(telemetry.PhaseCheckpoint)
	if !c.saved || bestFitness >= c.best {
		snap := c.template
		snap.Iteration = c.iteration
		snap.Evaluations = c.evaluations
		snap.Fitness = bestFitness
		snap.Genotype = append([]float64(nil), bestGenotype...)
		snap.SavedAt = time.Now().UTC()
		if err := c.listener.SaveBest(ctx, &snap); err != nil {
			return telemetry.Progress{}, fmt.Errorf("save best: %w", err)
		}
		c.best = bestFitness
		c.saved = true
	}

	p := telemetry.NewProgress(c.iteration, time.Since(c.start).Seconds(), c.evaluations, bestFitness, fitness)
	if err := c.listener.Listen(ctx, p); err != nil {
		return p, fmt.Errorf("listen: %w", err)
	}
	if r, ok := c.listener.(telemetry.PopulationRecorder); ok {
		if err := r.RecordPopulation(c.iteration, population, fitness); err != nil {
			return p, fmt.Errorf("record population: %w", err)
		}
	}
	c.perf.EndIteration(len(population))

	stats := c.perf.Stats()
	if r, ok := c.listener.(telemetry.PerfRecorder); ok {
		if err := r.RecordPerf(c.iteration, stats); err != nil {
			return p, fmt.Errorf("record perf: %w", err)
		}
	}

	slog.Info("iteration", "progress", p)
	slog.Debug("perf", "iteration", c.iteration, "stats", stats)

	c.iteration++
	return p, nil
}

// Run iterates until iterations generations have completed or ctx is done, and
// returns the best genotype found.
func (c *Coordinator) Run(ctx context.Context, iterations int) ([]float64, float64, error) {
	for c.iteration < iterations {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if _, err := c.Iterate(ctx); err != nil {
			return nil, 0, err
		}
	}
	best, fitness := c.solver.Result()
	return best, fitness, nil
}

// evaluate scores the population on at most c.workers goroutines. Results are
// written by population index, so the returned order matches the input order
// whatever order the episodes finish in. The first error cancels the rest.
func (c *Coordinator) evaluate(ctx context.Context, population [][]float64) ([]float64, error) {
	fitness := make([]float64, len(population))

	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(c.workers).
		WithCancelOnError().
		WithFirstError()
	for i, genotype := range population {
		seed := c.episodeSeed(i, len(population))
		p.Go(func(ctx context.Context) error {
			f, err := c.eval(ctx, genotype, seed)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", i, err)
			}
			fitness[i] = f
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return fitness, nil
}

// episodeSeed gives every evaluation of a run its own reproducible seed.
func (c *Coordinator) episodeSeed(index, popSize int) int64 {
	return c.seed + int64(c.iteration)*int64(popSize) + int64(index) + 1
}
