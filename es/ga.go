package es

import (
	"math/rand"

	"github.com/pthm-cable/squish/config"
)

// SimpleGA is an elitist genetic algorithm: children are uniform crossovers of two
// random elites plus Gaussian mutation, and the elite set is the top fraction of
// children and previous elites together.
type SimpleGA struct {
	cfg       config.SolverConfig
	nParams   int
	rng       *rand.Rand
	sigma     float64
	eliteSize int

	elites       [][]float64
	eliteFitness []float64
	solutions    [][]float64

	best        []float64
	bestFitness float64
	first       bool
}

// NewSimpleGA creates a GA whose initial elites are all at the origin.
func NewSimpleGA(cfg config.SolverConfig, nParams int, rng *rand.Rand) *SimpleGA {
	eliteSize := int(float64(cfg.PopSize) * cfg.EliteRatio)
	eliteSize = max(1, min(eliteSize, cfg.PopSize))

	elites := make([][]float64, eliteSize)
	for i := range elites {
		elites[i] = make([]float64, nParams)
	}
	return &SimpleGA{
		cfg:          cfg,
		nParams:      nParams,
		rng:          rng,
		sigma:        cfg.SigmaInit,
		eliteSize:    eliteSize,
		elites:       elites,
		eliteFitness: make([]float64, eliteSize),
		best:         make([]float64, nParams),
		first:        true,
	}
}

func (g *SimpleGA) PopSize() int { return g.cfg.PopSize }

// Sigma returns the current mutation standard deviation.
func (g *SimpleGA) Sigma() float64 { return g.sigma }

func (g *SimpleGA) Ask() [][]float64 {
	g.solutions = make([][]float64, g.cfg.PopSize)
	out := make([][]float64, g.cfg.PopSize)
	for i := range g.solutions {
		a := g.elites[g.rng.Intn(g.eliteSize)]
		b := g.elites[g.rng.Intn(g.eliteSize)]
		child := make([]float64, g.nParams)
		for j := range child {
			if g.rng.Float64() > 0.5 {
				child[j] = b[j]
			} else {
				child[j] = a[j]
			}
			child[j] += g.rng.NormFloat64() * g.sigma
		}
		g.solutions[i] = child
		out[i] = append([]float64(nil), child...)
	}
	return out
}

func (g *SimpleGA) Tell(fitness []float64) error {
	if g.solutions == nil {
		return ErrNotAsked
	}
	if err := checkFitness(fitness, g.cfg.PopSize); err != nil {
		return err
	}

	reward := append([]float64(nil), fitness...)
	if g.cfg.WeightDecay > 0 {
		for i, d := range weightDecay(g.cfg.WeightDecay, g.solutions) {
			reward[i] += d
		}
	}

	pool := g.solutions
	if !g.first && !g.cfg.ForgetBest {
		reward = append(reward, g.eliteFitness...)
		pool = append(append([][]float64(nil), g.solutions...), g.elites...)
	}

	idx := argsortDesc(reward)[:g.eliteSize]
	elites := make([][]float64, g.eliteSize)
	eliteFitness := make([]float64, g.eliteSize)
	for k, i := range idx {
		elites[k] = pool[i]
		eliteFitness[k] = reward[i]
	}
	g.elites, g.eliteFitness = elites, eliteFitness

	top := argsortDesc(fitness)[0]
	if g.first || fitness[top] > g.bestFitness {
		g.first = false
		g.bestFitness = fitness[top]
		g.best = append(g.best[:0], g.solutions[top]...)
	}

	if g.sigma > g.cfg.SigmaLimit {
		g.sigma *= g.cfg.SigmaDecay
	}
	g.solutions = nil
	return nil
}

func (g *SimpleGA) Result() ([]float64, float64) {
	return append([]float64(nil), g.best...), g.bestFitness
}
