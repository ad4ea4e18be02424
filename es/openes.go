package es

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/squish/config"
)

// OpenES is a natural evolution strategy with an isotropic Gaussian search
// distribution whose mean is moved by Adam along the estimated fitness gradient.
type OpenES struct {
	cfg     config.SolverConfig
	nParams int
	rng     *rand.Rand

	mu    []float64
	sigma float64
	lr    float64
	opt   *adam

	epsilon   *mat.Dense // popsize x nParams noise of the last Ask
	solutions [][]float64

	best        []float64
	bestFitness float64
	first       bool
}

// NewOpenES creates a solver with its mean at the origin.
func NewOpenES(cfg config.SolverConfig, nParams int, rng *rand.Rand) *OpenES {
	return &OpenES{
		cfg:     cfg,
		nParams: nParams,
		rng:     rng,
		mu:      make([]float64, nParams),
		sigma:   cfg.SigmaInit,
		lr:      cfg.LearningRate,
		opt:     newAdam(nParams, cfg.LearningRate),
		best:    make([]float64, nParams),
		first:   true,
	}
}

func (s *OpenES) PopSize() int { return s.cfg.PopSize }

// Sigma returns the current search standard deviation.
func (s *OpenES) Sigma() float64 { return s.sigma }

// Ask samples mu + sigma·N(0, I) for every population member.
func (s *OpenES) Ask() [][]float64 {
	p := s.cfg.PopSize
	if s.nParams == 0 {
		s.epsilon = nil
		s.solutions = make([][]float64, p)
		for i := range s.solutions {
			s.solutions[i] = []float64{}
		}
		return s.copySolutions()
	}

	noise := make([]float64, p*s.nParams)
	for i := range noise {
		noise[i] = s.rng.NormFloat64()
	}
	s.epsilon = mat.NewDense(p, s.nParams, noise)

	s.solutions = make([][]float64, p)
	for i := range s.solutions {
		row := make([]float64, s.nParams)
		floats.AddScaledTo(row, s.mu, s.sigma, s.epsilon.RawRowView(i))
		s.solutions[i] = row
	}
	return s.copySolutions()
}

func (s *OpenES) copySolutions() [][]float64 {
	out := make([][]float64, len(s.solutions))
	for i, r := range s.solutions {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

// Tell updates the distribution from the fitness of the last Ask.
func (s *OpenES) Tell(fitness []float64) error {
	if s.solutions == nil {
		return ErrNotAsked
	}
	if err := checkFitness(fitness, s.cfg.PopSize); err != nil {
		return err
	}

	reward := append([]float64(nil), fitness...)
	if s.cfg.RankFitness {
		reward = CenteredRanks(reward)
	}
	if s.cfg.WeightDecay > 0 {
		floats.Add(reward, weightDecay(s.cfg.WeightDecay, s.solutions))
	}

	top := argsortDesc(fitness)[0]
	if s.first || s.cfg.ForgetBest || fitness[top] > s.bestFitness {
		s.first = false
		s.bestFitness = fitness[top]
		s.best = append(s.best[:0], s.solutions[top]...)
	}

	if s.epsilon != nil {
		mean, std := stat.PopMeanStdDev(reward, nil)
		normalized := make([]float64, len(reward))
		if std > 0 {
			for i, r := range reward {
				normalized[i] = (r - mean) / std
			}
		}

		// grad = εᵀ · r / (P σ)
		var grad mat.VecDense
		grad.MulVec(s.epsilon.T(), mat.NewVecDense(len(normalized), normalized))
		grad.ScaleVec(1/(float64(s.cfg.PopSize)*s.sigma), &grad)

		neg := make([]float64, s.nParams)
		for i := range neg {
			neg[i] = -grad.AtVec(i)
		}
		s.opt.update(s.mu, neg)
	}

	if s.sigma > s.cfg.SigmaLimit {
		s.sigma *= s.cfg.SigmaDecay
	}
	if s.lr > s.cfg.LearningRateLimit {
		s.lr *= s.cfg.LearningRateDecay
		s.opt.stepSize = s.lr
	}
	s.solutions = nil
	return nil
}

// Result returns a copy of the best candidate and its fitness.
func (s *OpenES) Result() ([]float64, float64) {
	return append([]float64(nil), s.best...), s.bestFitness
}
