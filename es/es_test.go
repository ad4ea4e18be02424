package es

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/squish/config"
)

func testSolverConfig(name string) config.SolverConfig {
	return config.SolverConfig{
		Name:              name,
		PopSize:           40,
		SigmaInit:         0.5,
		SigmaDecay:        0.999,
		SigmaLimit:        0.01,
		LearningRate:      0.1,
		LearningRateDecay: 1.0,
		LearningRateLimit: 0.001,
		EliteRatio:        0.1,
	}
}

var target = []float64{1, -2, 0.5}

// sphere peaks at target with value 0.
func sphere(x []float64) float64 {
	return -floats.Distance(x, target, 2) * floats.Distance(x, target, 2)
}

func run(t *testing.T, s Solver, iterations int) []float64 {
	t.Helper()
	history := make([]float64, 0, iterations)
	for it := 0; it < iterations; it++ {
		pop := s.Ask()
		fit := make([]float64, len(pop))
		for i, x := range pop {
			fit[i] = sphere(x)
		}
		if err := s.Tell(fit); err != nil {
			t.Fatalf("iteration %d: %v", it, err)
		}
		_, best := s.Result()
		history = append(history, best)
	}
	return history
}

func TestNew(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, name := range []string{"es", "openes", "ga", "cmaes"} {
		s, err := New(testSolverConfig(name), 5, rng)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if s.PopSize() != 40 {
			t.Errorf("%s: PopSize = %d, want 40", name, s.PopSize())
		}
	}
	if _, err := New(testSolverConfig("pepg"), 5, rng); !errors.Is(err, ErrUnknownSolver) {
		t.Errorf("err = %v, want ErrUnknownSolver", err)
	}
}

func TestAskShape(t *testing.T) {
	for _, name := range []string{"es", "ga"} {
		s, err := New(testSolverConfig(name), 7, rand.New(rand.NewSource(2)))
		if err != nil {
			t.Fatal(err)
		}
		pop := s.Ask()
		if len(pop) != 40 {
			t.Fatalf("%s: Ask returned %d candidates", name, len(pop))
		}
		for i, x := range pop {
			if len(x) != 7 {
				t.Fatalf("%s: candidate %d has %d params", name, i, len(x))
			}
		}
		// Callers may scribble on what Ask returned
		pop[0][0] = math.NaN()
		if err := s.Tell(make([]float64, 40)); err != nil {
			t.Fatal(err)
		}
		if best, _ := s.Result(); math.IsNaN(best[0]) {
			t.Errorf("%s: solver state aliased caller's slice", name)
		}
	}
}

func TestTellErrors(t *testing.T) {
	for _, name := range []string{"es", "ga"} {
		t.Run(name, func(t *testing.T) {
			s, err := New(testSolverConfig(name), 3, rand.New(rand.NewSource(3)))
			if err != nil {
				t.Fatal(err)
			}
			if err := s.Tell(make([]float64, 40)); !errors.Is(err, ErrNotAsked) {
				t.Errorf("tell before ask: err = %v, want ErrNotAsked", err)
			}

			s.Ask()
			if err := s.Tell(make([]float64, 39)); !errors.Is(err, ErrFitnessLength) {
				t.Errorf("short fitness: err = %v, want ErrFitnessLength", err)
			}
			fit := make([]float64, 40)
			fit[5] = math.NaN()
			if err := s.Tell(fit); !errors.Is(err, ErrNonFinite) {
				t.Errorf("NaN fitness: err = %v, want ErrNonFinite", err)
			}
			fit[5] = math.Inf(-1)
			if err := s.Tell(fit); !errors.Is(err, ErrNonFinite) {
				t.Errorf("-Inf fitness: err = %v, want ErrNonFinite", err)
			}
		})
	}
}

func TestBestNeverRegresses(t *testing.T) {
	for _, name := range []string{"es", "ga", "cmaes"} {
		t.Run(name, func(t *testing.T) {
			s, err := New(testSolverConfig(name), 3, rand.New(rand.NewSource(4)))
			if err != nil {
				t.Fatal(err)
			}
			history := run(t, s, 60)
			for i := 1; i < len(history); i++ {
				if history[i] < history[i-1] {
					t.Fatalf("best fitness fell from %v to %v at iteration %d", history[i-1], history[i], i)
				}
			}
		})
	}
}

func TestOpenESConverges(t *testing.T) {
	s := NewOpenES(testSolverConfig("es"), 3, rand.New(rand.NewSource(5)))
	start := floats.Distance(s.mu, target, 2)
	run(t, s, 300)

	if d := floats.Distance(s.mu, target, 2); d > 0.5 {
		t.Errorf("mean ended %v from the optimum (started %v)", d, start)
	}
	if s.Sigma() >= 0.5 {
		t.Errorf("sigma did not decay: %v", s.Sigma())
	}
}

func TestSimpleGAConverges(t *testing.T) {
	s := NewSimpleGA(testSolverConfig("ga"), 3, rand.New(rand.NewSource(6)))
	history := run(t, s, 150)
	if last := history[len(history)-1]; last < -0.5 {
		t.Errorf("best fitness after 150 iterations = %v, want > -0.5", last)
	}
}

func TestBestTracksRawFitness(t *testing.T) {
	for _, name := range []string{"es", "ga"} {
		t.Run(name, func(t *testing.T) {
			cfg := testSolverConfig(name)
			cfg.PopSize = 8
			cfg.RankFitness = true
			cfg.WeightDecay = 0.01
			s, err := New(cfg, 3, rand.New(rand.NewSource(8)))
			if err != nil {
				t.Fatal(err)
			}
			for it := 1; it <= 3; it++ {
				s.Ask()
				fit := make([]float64, 8)
				for i := range fit {
					fit[i] = float64(100*it + i)
				}
				if err := s.Tell(fit); err != nil {
					t.Fatal(err)
				}
				if _, best := s.Result(); best != float64(100*it+7) {
					t.Errorf("iteration %d: best = %v, want %v", it, best, 100*it+7)
				}
			}
		})
	}
}

func TestCMAESConverges(t *testing.T) {
	cfg := testSolverConfig("cmaes")
	cfg.PopSize = CMAPopSize(3, 4, 0)
	s := NewCMAES(cfg, 3, rand.New(rand.NewSource(9)))
	history := run(t, s, 200)
	if last := history[len(history)-1]; last < -1e-3 {
		t.Errorf("best fitness after 200 iterations = %v, want > -1e-3", last)
	}
	best, _ := s.Result()
	if d := floats.Distance(best, target, 2); d > 0.05 {
		t.Errorf("best candidate %v is %v from the optimum", best, d)
	}
}

func TestCMAESTellBeforeAsk(t *testing.T) {
	s := NewCMAES(testSolverConfig("cmaes"), 3, rand.New(rand.NewSource(10)))
	if err := s.Tell(make([]float64, 40)); !errors.Is(err, ErrNotAsked) {
		t.Errorf("err = %v, want ErrNotAsked", err)
	}
	s.Ask()
	if err := s.Tell(make([]float64, 3)); !errors.Is(err, ErrFitnessLength) {
		t.Errorf("err = %v, want ErrFitnessLength", err)
	}
}

func TestCMAPopSize(t *testing.T) {
	tests := []struct {
		nParams, workers, requested, want int
	}{
		{nParams: 3, workers: 1, requested: 0, want: 7},
		{nParams: 3, workers: 4, requested: 0, want: 8},
		{nParams: 100, workers: 8, requested: 0, want: 24},
		{nParams: 100, workers: 8, requested: 40, want: 40},
		{nParams: 0, workers: 3, requested: 4, want: 6},
	}
	for _, tt := range tests {
		if got := CMAPopSize(tt.nParams, tt.workers, tt.requested); got != tt.want {
			t.Errorf("CMAPopSize(%d, %d, %d) = %d, want %d", tt.nParams, tt.workers, tt.requested, got, tt.want)
		}
	}
}

func TestZeroParams(t *testing.T) {
	for _, name := range []string{"es", "ga", "cmaes"} {
		s, err := New(testSolverConfig(name), 0, rand.New(rand.NewSource(7)))
		if err != nil {
			t.Fatal(err)
		}
		pop := s.Ask()
		if len(pop) != 40 || len(pop[0]) != 0 {
			t.Fatalf("%s: unexpected population shape", name)
		}
		fit := make([]float64, 40)
		fit[3] = 2
		if err := s.Tell(fit); err != nil {
			t.Fatal(err)
		}
		if _, best := s.Result(); best != 2 {
			t.Errorf("%s: best = %v, want 2", name, best)
		}
	}
}

func TestCenteredRanks(t *testing.T) {
	got := CenteredRanks([]float64{3, 1, 2})
	want := []float64{0.5, -0.5, 0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("rank[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if got := CenteredRanks([]float64{9}); got[0] != 0 {
		t.Errorf("single value rank = %v, want 0", got[0])
	}
}

func TestWeightDecay(t *testing.T) {
	got := weightDecay(0.1, [][]float64{{1, 1}, {2, 0}, {}})
	want := []float64{-0.1, -0.2, 0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("decay[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAdamDescends(t *testing.T) {
	theta := []float64{3, -4}
	a := newAdam(2, 0.1)
	before := floats.Norm(theta, 2)
	for i := 0; i < 50; i++ {
		// gradient of ½|θ|²
		a.update(theta, append([]float64(nil), theta...))
	}
	if after := floats.Norm(theta, 2); after >= before {
		t.Errorf("|θ| went from %v to %v", before, after)
	}
}
