// Package es provides ask/tell population optimizers over flat parameter vectors.
// All solvers maximize fitness.
package es

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/pthm-cable/squish/config"
)

var (
	// ErrUnknownSolver is returned by New for an unrecognized solver name.
	ErrUnknownSolver = errors.New("unknown solver")
	// ErrFitnessLength is returned when Tell gets a vector not matching PopSize.
	ErrFitnessLength = errors.New("fitness vector length mismatch")
	// ErrNotAsked is returned when Tell is called without a preceding Ask.
	ErrNotAsked = errors.New("tell called before ask")
	// ErrNonFinite is returned when a fitness value is NaN or infinite.
	ErrNonFinite = errors.New("non-finite fitness")
)

// Solver is an ask/tell optimizer. Ask returns PopSize candidates; Tell takes their
// fitness in the same order. Result reports the best candidate seen so far.
// A Solver is not safe for concurrent use.
type Solver interface {
	Ask() [][]float64
	Tell(fitness []float64) error
	Result() (best []float64, fitness float64)
	PopSize() int
}

// New creates the solver named by cfg.Name for nParams parameters.
func New(cfg config.SolverConfig, nParams int, rng *rand.Rand) (Solver, error) {
	if nParams < 0 {
		return nil, fmt.Errorf("es: negative parameter count %d", nParams)
	}
	switch cfg.Name {
	case "es", "openes":
		return NewOpenES(cfg, nParams, rng), nil
	case "ga":
		return NewSimpleGA(cfg, nParams, rng), nil
	case "cmaes":
		return NewCMAES(cfg, nParams, rng), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, cfg.Name)
}

func checkFitness(fitness []float64, popSize int) error {
	if len(fitness) != popSize {
		return fmt.Errorf("%w: got %d, want %d", ErrFitnessLength, len(fitness), popSize)
	}
	for i, f := range fitness {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: candidate %d scored %v", ErrNonFinite, i, f)
		}
	}
	return nil
}

// weightDecay returns -decay * mean(x²) for each row.
func weightDecay(decay float64, rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		var s float64
		for _, v := range r {
			s += v * v
		}
		out[i] = -decay * s / float64(len(r))
	}
	return out
}
