package es

import (
	"math"
	"math/rand"
	randv2 "math/rand/v2"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/squish/config"
)

// CMAPopSize returns the CMA-ES population for nParams parameters: the larger of
// requested and 4+⌊3·ln n⌋, rounded up to a multiple of workers.
func CMAPopSize(nParams, workers, requested int) int {
	p := requested
	if nParams > 0 {
		if d := 4 + int(3*math.Log(float64(nParams))); d > p {
			p = d
		}
	}
	if workers > 1 {
		p = (p + workers - 1) / workers * workers
	}
	return p
}

// CMAES adapts gonum's Cholesky CMA-ES to ask/tell. The gonum method runs on its
// own goroutine and exchanges optimize.Tasks over channels: Ask collects a
// generation of FuncEvaluation tasks, Tell returns them with negated fitness
// since gonum minimizes. When the distribution collapses the method reports
// MethodDone and is restarted around the best candidate.
type CMAES struct {
	cfg     config.SolverConfig
	nParams int
	src     randv2.Source

	ops      chan optimize.Task
	results  chan optimize.Task
	pending  []optimize.Task
	asked    bool
	restarts int

	best        []float64
	bestFitness float64
	first       bool
}

// NewCMAES creates a CMA-ES solver with mean zero and step size cfg.SigmaInit.
func NewCMAES(cfg config.SolverConfig, nParams int, rng *rand.Rand) *CMAES {
	return &CMAES{
		cfg:     cfg,
		nParams: nParams,
		src:     randv2.NewPCG(rng.Uint64(), rng.Uint64()),
		best:    make([]float64, nParams),
		first:   true,
	}
}

func (c *CMAES) PopSize() int { return c.cfg.PopSize }

// Restarts reports how often the search distribution collapsed and was reseeded.
func (c *CMAES) Restarts() int { return c.restarts }

func (c *CMAES) start(mean []float64) {
	m := &optimize.CmaEsChol{
		InitStepSize: c.cfg.SigmaInit,
		Population:   c.cfg.PopSize,
		Src:          c.src,
	}
	n := m.Init(c.nParams, c.cfg.PopSize)
	tasks := make([]optimize.Task, n)
	for i := range tasks {
		tasks[i].Location = &optimize.Location{X: make([]float64, c.nParams)}
	}
	copy(tasks[0].X, mean)

	c.ops = make(chan optimize.Task, n+1)
	c.results = make(chan optimize.Task, n+1)
	go m.Run(c.ops, c.results, tasks)
}

// stop tells the running method to finish and discards whatever it sends back.
func (c *CMAES) stop() {
	c.results <- optimize.Task{Op: optimize.PostIteration}
	close(c.results)
	ops := c.ops
	go func() {
		for range ops {
		}
	}()
	c.ops, c.results = nil, nil
}

func (c *CMAES) restart() {
	c.restarts++
	c.pending = c.pending[:0]
	c.start(c.best)
}

// Ask returns the next generation sampled by the method.
func (c *CMAES) Ask() [][]float64 {
	p := c.cfg.PopSize
	c.asked = true
	if c.nParams == 0 {
		out := make([][]float64, p)
		for i := range out {
			out[i] = []float64{}
		}
		return out
	}
	if c.ops == nil {
		c.start(c.best)
	}

	c.pending = c.pending[:0]
	for len(c.pending) < p {
		task, ok := <-c.ops
		if !ok {
			c.ops = nil
			c.restart()
			continue
		}
		switch task.Op {
		case optimize.FuncEvaluation:
			c.pending = append(c.pending, task)
		case optimize.MajorIteration:
			c.results <- task
		case optimize.MethodDone:
			c.stop()
			c.restart()
		}
	}

	out := make([][]float64, p)
	for i, task := range c.pending {
		out[i] = append([]float64(nil), task.X...)
	}
	return out
}

// Tell hands the fitness of the last Ask back to the method.
func (c *CMAES) Tell(fitness []float64) error {
	if !c.asked {
		return ErrNotAsked
	}
	if err := checkFitness(fitness, c.cfg.PopSize); err != nil {
		return err
	}
	c.asked = false

	top := argsortDesc(fitness)[0]
	if c.first || c.cfg.ForgetBest || fitness[top] > c.bestFitness {
		c.first = false
		c.bestFitness = fitness[top]
		if c.nParams > 0 {
			c.best = append(c.best[:0], c.pending[top].X...)
		}
	}
	if c.nParams == 0 {
		return nil
	}

	for i, task := range c.pending {
		task.F = -fitness[i]
		c.results <- task
	}
	c.pending = c.pending[:0]
	return nil
}

func (c *CMAES) Result() ([]float64, float64) {
	return append([]float64(nil), c.best...), c.bestFitness
}
