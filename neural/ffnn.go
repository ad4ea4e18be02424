// Package neural provides fixed-shape feedforward networks whose weights are read
// from a flat parameter vector.
package neural

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrParamCount is returned when a parameter vector is too short for a network.
	ErrParamCount = errors.New("parameter count mismatch")
	// ErrShape is returned when consecutive layers do not fit together.
	ErrShape = errors.New("layer shape mismatch")
	// ErrActivation is returned for an unknown activation name.
	ErrActivation = errors.New("unknown activation")
)

// Activation is an element-wise output function.
type Activation int

const (
	Tanh Activation = iota
	Identity
)

// ParseActivation maps a config name to an Activation.
func ParseActivation(name string) (Activation, error) {
	switch name {
	case "tanh":
		return Tanh, nil
	case "identity", "linear":
		return Identity, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrActivation, name)
}

func (a Activation) String() string {
	if a == Identity {
		return "identity"
	}
	return "tanh"
}

func (a Activation) apply(x float64) float64 {
	if a == Tanh {
		return math.Tanh(x)
	}
	return x
}

// Layer is a dense affine map followed by an activation: y = act(W x + b).
// W is out x in, matching the row-major order weights are read in.
type Layer struct {
	W   *mat.Dense
	B   *mat.VecDense
	Act Activation
}

// NewLayer creates a zero-initialized layer.
func NewLayer(in, out int, act Activation) *Layer {
	return &Layer{
		W:   mat.NewDense(out, in, nil),
		B:   mat.NewVecDense(out, nil),
		Act: act,
	}
}

// LayerParams returns the number of parameters of an in -> out layer.
func LayerParams(in, out int) int {
	return in*out + out
}

// In returns the input width.
func (l *Layer) In() int {
	_, c := l.W.Dims()
	return c
}

// Out returns the output width.
func (l *Layer) Out() int {
	r, _ := l.W.Dims()
	return r
}

// NumParams returns the layer's weight and bias count.
func (l *Layer) NumParams() int { return LayerParams(l.In(), l.Out()) }

// SetParams reads weights (row-major) then biases from the head of flat and
// returns how many values were consumed.
func (l *Layer) SetParams(flat []float64) (int, error) {
	n := l.NumParams()
	if len(flat) < n {
		return 0, fmt.Errorf("%w: layer needs %d, have %d", ErrParamCount, n, len(flat))
	}
	in, out := l.In(), l.Out()
	for i := 0; i < out; i++ {
		l.W.SetRow(i, flat[i*in:(i+1)*in])
	}
	for i := 0; i < out; i++ {
		l.B.SetVec(i, flat[in*out+i])
	}
	return n, nil
}

// Params appends the layer's parameters to dst in SetParams order.
func (l *Layer) Params(dst []float64) []float64 {
	for i := 0; i < l.Out(); i++ {
		dst = append(dst, l.W.RawRowView(i)...)
	}
	for i := 0; i < l.Out(); i++ {
		dst = append(dst, l.B.AtVec(i))
	}
	return dst
}

// Forward computes act(W x + b) into dst.
func (l *Layer) Forward(dst, x *mat.VecDense) {
	dst.MulVec(l.W, x)
	dst.AddVec(dst, l.B)
	for i := 0; i < dst.Len(); i++ {
		dst.SetVec(i, l.Act.apply(dst.AtVec(i)))
	}
}

// Network is a chain of layers. It is not safe for concurrent use: Forward reuses
// per-layer buffers.
type Network struct {
	layers []*Layer
	in     *mat.VecDense
	bufs   []*mat.VecDense
}

// NewNetwork chains layers, checking that each layer's input matches the previous output.
func NewNetwork(layers ...*Layer) (*Network, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrShape)
	}
	nn := &Network{
		layers: layers,
		in:     mat.NewVecDense(layers[0].In(), nil),
		bufs:   make([]*mat.VecDense, len(layers)),
	}
	for i, l := range layers {
		if i > 0 && l.In() != layers[i-1].Out() {
			return nil, fmt.Errorf("%w: layer %d takes %d inputs, previous emits %d",
				ErrShape, i, l.In(), layers[i-1].Out())
		}
		nn.bufs[i] = mat.NewVecDense(l.Out(), nil)
	}
	return nn, nil
}

// NewMLP builds a network with the given widths, using act on hidden layers and
// out on the last layer. sizes[0] is the input width.
func NewMLP(sizes []int, act, out Activation) (*Network, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("%w: need at least input and output widths", ErrShape)
	}
	layers := make([]*Layer, len(sizes)-1)
	for i := range layers {
		a := act
		if i == len(layers)-1 {
			a = out
		}
		layers[i] = NewLayer(sizes[i], sizes[i+1], a)
	}
	return NewNetwork(layers...)
}

// In returns the input width.
func (nn *Network) In() int { return nn.layers[0].In() }

// Out returns the output width.
func (nn *Network) Out() int { return nn.layers[len(nn.layers)-1].Out() }

// NumParams returns the total parameter count.
func (nn *Network) NumParams() int {
	n := 0
	for _, l := range nn.layers {
		n += l.NumParams()
	}
	return n
}

// SetParams loads layers in order from the head of flat and returns how many values
// were consumed. Extra trailing values are left for the caller.
func (nn *Network) SetParams(flat []float64) (int, error) {
	if len(flat) < nn.NumParams() {
		return 0, fmt.Errorf("%w: network needs %d, have %d", ErrParamCount, nn.NumParams(), len(flat))
	}
	off := 0
	for _, l := range nn.layers {
		n, err := l.SetParams(flat[off:])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

// Params returns a flat copy of every parameter.
func (nn *Network) Params() []float64 {
	out := make([]float64, 0, nn.NumParams())
	for _, l := range nn.layers {
		out = l.Params(out)
	}
	return out
}

// Randomize fills weights with Xavier-scaled Gaussian noise and zeroes the biases.
func (nn *Network) Randomize(rng *rand.Rand) {
	for _, l := range nn.layers {
		scale := math.Sqrt(2.0 / float64(l.In()))
		r, c := l.W.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				l.W.Set(i, j, rng.NormFloat64()*scale)
			}
		}
		l.B.Zero()
	}
}

// Forward computes the network output. The returned slice is owned by the network
// and overwritten by the next call. Inputs shorter than In are zero padded.
func (nn *Network) Forward(inputs []float64) []float64 {
	nn.in.Zero()
	for i := 0; i < len(inputs) && i < nn.in.Len(); i++ {
		nn.in.SetVec(i, inputs[i])
	}
	x := nn.in
	for i, l := range nn.layers {
		l.Forward(nn.bufs[i], x)
		x = nn.bufs[i]
	}
	return x.RawVector().Data
}
