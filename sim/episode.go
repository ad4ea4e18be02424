package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pthm-cable/squish/body"
	"github.com/pthm-cable/squish/config"
	"github.com/pthm-cable/squish/controller"
	"github.com/pthm-cable/squish/neural"
	"github.com/pthm-cable/squish/physics"
	"github.com/pthm-cable/squish/task"
)

// ctxCheckInterval is how many ticks pass between context checks.
const ctxCheckInterval = 60

// Observer is called after every tick with the tick just completed.
type Observer func(tick int, m *body.Pressure)

// Result summarizes a finished episode.
type Result struct {
	Fitness float64
	Ticks   int
	Stopped bool // the task ended the episode before the tick budget
}

// Episode owns everything one evaluation needs. It must be run by a single goroutine.
type Episode struct {
	Task  task.Task
	World *physics.World
	Agent *Agent

	budget   int
	observer Observer
	closed   bool
}

// NewEpisode builds world, task geometry, body and controller in that order.
func NewEpisode(cfg *config.Config, t task.Task, genotype []float64, rng *rand.Rand) (*Episode, error) {
	kind, err := controller.ParseKind(cfg.Controller.Kind)
	if err != nil {
		return nil, err
	}
	act, err := neural.ParseActivation(cfg.Controller.Activation)
	if err != nil {
		return nil, err
	}

	w := physics.NewWorld(cfg)
	if err := t.Build(w); err != nil {
		w.Destroy()
		return nil, fmt.Errorf("building task %s: %w", t.Name(), err)
	}
	m := body.NewPressure(w, cfg, t.Start())

	dims := controller.BodyDims(cfg.Body.NMasses, m.Mode() == body.Active)
	c, err := controller.Create(kind, dims, genotype, controller.Options{
		Rng:        rng,
		Activation: act,
		StartTick:  cfg.Inflate.StartTick,
	})
	if err != nil {
		w.Destroy()
		return nil, fmt.Errorf("creating %v controller: %w", kind, err)
	}

	return &Episode{
		Task:   t,
		World:  w,
		Agent:  &Agent{Body: m, Controller: c},
		budget: cfg.Task.Timesteps,
	}, nil
}

// Body returns the episode's pressure body.
func (e *Episode) Body() *body.Pressure { return e.Agent.Body }

// OnTick installs a per-tick observer, replacing any previous one.
func (e *Episode) OnTick(fn Observer) { e.observer = fn }

// Run steps the episode until the tick budget is spent or the task stops it, then
// scores it. A cancelled context aborts the run with the context's error.
func (e *Episode) Run(ctx context.Context) (Result, error) {
	m := e.Agent.Body
	tick := 0
	stopped := false
	for tick < e.budget {
		if !e.Task.Continue(m) {
			stopped = true
			break
		}
		if tick%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{Ticks: tick}, fmt.Errorf("episode aborted at tick %d: %w", tick, err)
			}
		}

		e.World.Step()
		m.PhysicsStep()
		if err := e.Agent.Act(tick); err != nil {
			return Result{Ticks: tick}, fmt.Errorf("tick %d: %w", tick, err)
		}
		if e.observer != nil {
			e.observer(tick, m)
		}
		tick++
	}

	return Result{
		Fitness: e.Task.Fitness(m, tick),
		Ticks:   tick,
		Stopped: stopped,
	}, nil
}

// Close tears the world down. It is safe to call more than once.
func (e *Episode) Close() {
	if e.closed {
		return
	}
	e.observer = nil
	e.World.Destroy()
	e.closed = true
}

// Evaluate runs one full episode of genotype under cfg and returns its fitness.
// seed drives the episode's controller randomness. When cfg.Run.EpisodeTimeoutSec is
// set the episode is abandoned once that much wall-clock time has passed.
func Evaluate(ctx context.Context, cfg *config.Config, genotype []float64, seed int64) (float64, error) {
	t, err := task.New(cfg.Task.Name, task.Options{Seed: cfg.Run.Seed, TerrainDir: cfg.Task.TerrainDir})
	if err != nil {
		return 0, err
	}

	if cfg.Run.EpisodeTimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Run.EpisodeTimeoutSec*float64(time.Second)))
		defer cancel()
	}

	ep, err := NewEpisode(cfg, t, genotype, rand.New(rand.NewSource(seed)))
	if err != nil {
		return 0, err
	}
	defer ep.Close()

	res, err := ep.Run(ctx)
	if err != nil {
		return 0, err
	}
	slog.Debug("episode finished",
		"task", t.Name(),
		"ticks", res.Ticks,
		"stopped", res.Stopped,
		"fitness", res.Fitness,
	)
	return res.Fitness, nil
}
