package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Progress is the per-iteration record of an optimization run.
type Progress struct {
	Iteration   int     `csv:"iteration"`
	ElapsedSec  float64 `csv:"elapsed_sec"`
	Evaluations int     `csv:"evaluations"`
	BestFitness float64 `csv:"best_fitness"` // best seen so far

	// Fitness distribution of this iteration's population
	GenBest float64 `csv:"gen_best"`
	GenMean float64 `csv:"gen_mean"`
	GenStd  float64 `csv:"gen_std"`
	GenP10  float64 `csv:"gen_p10"`
	GenP50  float64 `csv:"gen_p50"`
	GenP90  float64 `csv:"gen_p90"`
}

// NewProgress fills the generation statistics from a population's fitness.
func NewProgress(iteration int, elapsedSec float64, evaluations int, best float64, fitness []float64) Progress {
	p := Progress{
		Iteration:   iteration,
		ElapsedSec:  elapsedSec,
		Evaluations: evaluations,
		BestFitness: best,
	}
	p.GenMean, p.GenStd, p.GenP10, p.GenP50, p.GenP90 = ComputeFitnessStats(fitness)
	if len(fitness) > 0 {
		p.GenBest = fitness[0]
		for _, f := range fitness[1:] {
			p.GenBest = max(p.GenBest, f)
		}
	}
	return p
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeFitnessStats returns the population mean, standard deviation and the 10th,
// 50th and 90th percentiles of values.
func ComputeFitnessStats(values []float64) (mean, std, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0, 0
	}
	mean, std = stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return mean, std, Percentile(sorted, 0.10), Percentile(sorted, 0.50), Percentile(sorted, 0.90)
}

// LogValue implements slog.LogValuer for structured logging.
func (p Progress) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("iteration", p.Iteration),
		slog.Float64("elapsed_sec", p.ElapsedSec),
		slog.Int("evaluations", p.Evaluations),
		slog.Float64("best_fitness", p.BestFitness),
		slog.Float64("gen_best", p.GenBest),
		slog.Float64("gen_mean", p.GenMean),
		slog.Float64("gen_std", p.GenStd),
		slog.Float64("gen_p10", p.GenP10),
		slog.Float64("gen_p50", p.GenP50),
		slog.Float64("gen_p90", p.GenP90),
	)
}
