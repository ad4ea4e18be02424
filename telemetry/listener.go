// Package telemetry records the progress of optimization runs: per-iteration
// statistics, best-genotype checkpoints, timing and notable events.
package telemetry

import (
	"context"
	"errors"
)

// Listener receives the checkpoint stream of an optimization run.
// Calls arrive sequentially from the coordinator goroutine.
type Listener interface {
	// Listen records one iteration's progress.
	Listen(ctx context.Context, p Progress) error
	// SaveBest checkpoints a new best genotype.
	SaveBest(ctx context.Context, s *Snapshot) error
}

// PerfRecorder is implemented by listeners that also keep iteration timing.
type PerfRecorder interface {
	RecordPerf(iteration int, s PerfStats) error
}

// PopulationRecorder is implemented by listeners that inspect whole populations.
type PopulationRecorder interface {
	RecordPopulation(iteration int, population [][]float64, fitness []float64) error
}

// Multi fans every call out to each listener in order. All listeners are called
// even when one fails; the errors are joined.
type Multi []Listener

func (m Multi) Listen(ctx context.Context, p Progress) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.Listen(ctx, p))
	}
	return errors.Join(errs...)
}

func (m Multi) SaveBest(ctx context.Context, s *Snapshot) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.SaveBest(ctx, s))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordPerf(iteration int, s PerfStats) error {
	var errs []error
	for _, l := range m {
		if r, ok := l.(PerfRecorder); ok {
			errs = append(errs, r.RecordPerf(iteration, s))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) RecordPopulation(iteration int, population [][]float64, fitness []float64) error {
	var errs []error
	for _, l := range m {
		if r, ok := l.(PopulationRecorder); ok {
			errs = append(errs, r.RecordPopulation(iteration, population, fitness))
		}
	}
	return errors.Join(errs...)
}
