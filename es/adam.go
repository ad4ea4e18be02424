package es

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// adam is the Adam first-order optimizer applied to a mean vector in place.
type adam struct {
	stepSize     float64
	beta1, beta2 float64
	epsilon      float64
	m, v         []float64
	t            int
}

func newAdam(dim int, stepSize float64) *adam {
	return &adam{
		stepSize: stepSize,
		beta1:    0.99,
		beta2:    0.999,
		epsilon:  1e-8,
		m:        make([]float64, dim),
		v:        make([]float64, dim),
	}
}

// update moves theta against gradient g and returns |step| / |theta|.
func (a *adam) update(theta, g []float64) float64 {
	a.t++
	t := float64(a.t)
	lr := a.stepSize * math.Sqrt(1-math.Pow(a.beta2, t)) / (1 - math.Pow(a.beta1, t))

	step := make([]float64, len(theta))
	for i, gi := range g {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*gi
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*gi*gi
		step[i] = -lr * a.m[i] / (math.Sqrt(a.v[i]) + a.epsilon)
	}
	ratio := floats.Norm(step, 2) / (floats.Norm(theta, 2) + a.epsilon)
	floats.Add(theta, step)
	return ratio
}
