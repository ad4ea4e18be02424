package controller

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/squish/neural"
)

// RandomController emits an independent uniform draw in [-1, 1] per entry per tick.
type RandomController struct {
	rng *rand.Rand
	out []float64
}

func (c *RandomController) Kind() Kind { return Random }

func (c *RandomController) Control(int, []float64) []float64 {
	for i := range c.out {
		c.out[i] = c.rng.Float64()*2 - 1
	}
	return c.out
}

// PhaseController drives every output with sin(2π·freq·t·phase[i]·ampl).
// Genotype layout: freq, ampl, then one phase per output.
type PhaseController struct {
	Freq   float64
	Ampl   float64
	Phases []float64
	out    []float64
}

func newPhase(d Dims, params []float64) *PhaseController {
	return &PhaseController{
		Freq:   params[0],
		Ampl:   params[1],
		Phases: append([]float64(nil), params[2:]...),
		out:    make([]float64, d.Output()),
	}
}

func (c *PhaseController) Kind() Kind { return Phase }

func (c *PhaseController) Control(t int, _ []float64) []float64 {
	tt := float64(t)
	for i := range c.out {
		c.out[i] = math.Sin(2 * math.Pi * c.Freq * tt * c.Phases[i] * c.Ampl)
	}
	return c.out
}

// InflateController holds every joint at rest and, from tick Start on, sets the
// pressure entry to Delta. Before Start it emits zeros.
type InflateController struct {
	dims  Dims
	Delta float64
	Start int
	out   []float64
}

func (c *InflateController) Kind() Kind { return Inflate }

func (c *InflateController) Control(t int, _ []float64) []float64 {
	clear(c.out)
	if c.dims.Active && t >= c.Start {
		c.out[c.dims.Joints] = c.Delta
	}
	return c.out
}

// FeedForwardController runs a single-layer joint network and, with active
// pressure, a linear one-output pressure network. Genotype layout: joint weights
// (row-major), joint biases, then pressure weights and bias.
type FeedForwardController struct {
	joints   *neural.Network
	pressure *neural.Network // nil in passive mode
	out      []float64
}

// feedForwardNets builds the unparameterized joint and pressure networks for d.
func feedForwardNets(d Dims, act neural.Activation) (joints, pressure *neural.Network, err error) {
	joints, err = neural.NewMLP([]int{d.Input, d.Joints}, act, act)
	if err != nil {
		return nil, nil, err
	}
	if d.Active {
		pressure, err = neural.NewMLP([]int{d.Input, 1}, neural.Identity, neural.Identity)
		if err != nil {
			return nil, nil, err
		}
	}
	return joints, pressure, nil
}

func newFeedForward(d Dims, params []float64, act neural.Activation) (*FeedForwardController, error) {
	joints, pressure, err := feedForwardNets(d, act)
	if err != nil {
		return nil, err
	}
	n, err := joints.SetParams(params)
	if err != nil {
		return nil, err
	}
	if pressure != nil {
		if _, err := pressure.SetParams(params[n:]); err != nil {
			return nil, err
		}
	}
	return &FeedForwardController{joints: joints, pressure: pressure, out: make([]float64, d.Output())}, nil
}

func (c *FeedForwardController) Kind() Kind { return FeedForward }

func (c *FeedForwardController) Control(_ int, obs []float64) []float64 {
	n := copy(c.out, c.joints.Forward(obs))
	if c.pressure != nil {
		c.out[n] = c.pressure.Forward(obs)[0]
	}
	return c.out
}

// Params returns the controller's genotype in Create order.
func (c *FeedForwardController) Params() []float64 {
	p := c.joints.Params()
	if c.pressure != nil {
		p = append(p, c.pressure.Params()...)
	}
	return p
}
