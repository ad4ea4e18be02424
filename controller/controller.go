// Package controller maps observations to control vectors for a pressure body.
//
// The set of controllers is closed: Random, Phase, Inflate and FeedForward. Each is
// built from a flat genotype by Create, and NumParams gives the genotype length for
// a kind without building anything.
package controller

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/pthm-cable/squish/neural"
)

var (
	// ErrUnknownKind is returned for a controller name outside the closed set.
	ErrUnknownKind = errors.New("unknown controller kind")
	// ErrParams is returned when a genotype's length does not match NumParams.
	ErrParams = errors.New("genotype length mismatch")
)

// Kind identifies a controller variant.
type Kind int

const (
	Random Kind = iota
	Phase
	Inflate
	FeedForward
)

var kindNames = [...]string{
	Random:      "random",
	Phase:       "phase",
	Inflate:     "inflate",
	FeedForward: "ffnn",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a config name to a Kind. "mlp" is accepted for FeedForward.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "mlp" {
		return FeedForward, nil
	}
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Controller produces one control vector per tick. The returned slice may be reused
// by the next call.
type Controller interface {
	Control(t int, obs []float64) []float64
	Kind() Kind
}

// Dims describes the body a controller drives.
type Dims struct {
	Input  int  // observation length
	Joints int  // one control entry per joint
	Active bool // a trailing pressure entry follows the joints
}

// BodyDims returns the dimensions of a ring of n masses: 3n+3 inputs and n joints.
func BodyDims(nMasses int, active bool) Dims {
	return Dims{Input: 3*nMasses + 3, Joints: nMasses, Active: active}
}

// Output returns the control vector length.
func (d Dims) Output() int {
	if d.Active {
		return d.Joints + 1
	}
	return d.Joints
}

// NumParams returns the genotype length for kind on a ring of nMasses masses.
func NumParams(kind Kind, nMasses int, active bool) (int, error) {
	return BodyDims(nMasses, active).params(kind)
}

func (d Dims) params(kind Kind) (int, error) {
	switch kind {
	case Random:
		return 0, nil
	case Phase:
		return d.Output() + 2, nil
	case Inflate:
		return 1, nil
	case FeedForward:
		n := neural.LayerParams(d.Input, d.Joints)
		if d.Active {
			n += neural.LayerParams(d.Input, 1)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
}

// Options carries the per-kind settings that are not part of the genotype.
type Options struct {
	Rng        *rand.Rand        // Random draws; required for Random
	Activation neural.Activation // FeedForward joint network output
	StartTick  int               // Inflate: first tick the pressure delta is emitted
}

// RandomGenotype draws an initial genotype for kind. FeedForward networks get
// Xavier-scaled weights and zero biases; every other kind gets N(0, sigma²) entries.
func RandomGenotype(kind Kind, d Dims, sigma float64, rng *rand.Rand) ([]float64, error) {
	n, err := d.params(kind)
	if err != nil {
		return nil, err
	}
	if kind == FeedForward {
		joints, pressure, err := feedForwardNets(d, neural.Tanh)
		if err != nil {
			return nil, err
		}
		joints.Randomize(rng)
		out := joints.Params()
		if pressure != nil {
			pressure.Randomize(rng)
			out = append(out, pressure.Params()...)
		}
		return out, nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64() * sigma
	}
	return out, nil
}

// Create builds a controller of the given kind from genotype params.
func Create(kind Kind, d Dims, params []float64, opts Options) (Controller, error) {
	want, err := d.params(kind)
	if err != nil {
		return nil, err
	}
	if len(params) != want {
		return nil, fmt.Errorf("%w: %v needs %d, got %d", ErrParams, kind, want, len(params))
	}

	switch kind {
	case Random:
		if opts.Rng == nil {
			return nil, errors.New("random controller requires an rng")
		}
		return &RandomController{rng: opts.Rng, out: make([]float64, d.Output())}, nil
	case Phase:
		return newPhase(d, params), nil
	case Inflate:
		return &InflateController{
			dims:  d,
			Delta: params[0],
			Start: opts.StartTick,
			out:   make([]float64, d.Output()),
		}, nil
	case FeedForward:
		return newFeedForward(d, params, opts.Activation)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
}
