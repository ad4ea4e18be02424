package controller

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/squish/neural"
)

var allKinds = []Kind{Random, Phase, Inflate, FeedForward}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		want    Kind
		wantErr bool
	}{
		{"random", Random, false},
		{"phase", Phase, false},
		{"inflate", Inflate, false},
		{"ffnn", FeedForward, false},
		{"mlp", FeedForward, false},
		{" Phase ", Phase, false},
		{"cppn", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownKind) {
					t.Errorf("err = %v, want ErrUnknownKind", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseKind(%q) = %v, %v; want %v", tt.name, got, err, tt.want)
			}
		})
	}
}

func TestNumParamsKnownValues(t *testing.T) {
	tests := []struct {
		kind   Kind
		n      int
		active bool
		want   int
	}{
		{Random, 15, true, 0},
		{Phase, 15, false, 17},
		{Phase, 15, true, 18},
		{Inflate, 15, true, 1},
		{FeedForward, 15, false, 48*15 + 15},
		{FeedForward, 15, true, 48*16 + 16},
		{FeedForward, 4, true, (3*4+3)*5 + 5},
	}
	for _, tt := range tests {
		got, err := NumParams(tt.kind, tt.n, tt.active)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("NumParams(%v, %d, %v) = %d, want %d", tt.kind, tt.n, tt.active, got, tt.want)
		}
	}
}

// Every genotype of length NumParams is accepted, and one entry more or less is not.
func TestGenotypeLengthConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, kind := range allKinds {
		for _, n := range []int{3, 4, 8, 15, 28} {
			for _, active := range []bool{false, true} {
				want, err := NumParams(kind, n, active)
				if err != nil {
					t.Fatal(err)
				}
				d := BodyDims(n, active)
				opts := Options{Rng: rng, Activation: neural.Tanh, StartTick: 360}

				params := make([]float64, want)
				for i := range params {
					params[i] = rng.NormFloat64()
				}
				c, err := Create(kind, d, params, opts)
				if err != nil {
					t.Fatalf("%v n=%d active=%v: Create: %v", kind, n, active, err)
				}
				out := c.Control(400, make([]float64, d.Input))
				if len(out) != d.Output() {
					t.Errorf("%v n=%d active=%v: output len %d, want %d", kind, n, active, len(out), d.Output())
				}
				if ff, ok := c.(*FeedForwardController); ok && len(ff.Params()) != want {
					t.Errorf("n=%d active=%v: network holds %d params, want %d", n, active, len(ff.Params()), want)
				}

				for _, bad := range []int{want - 1, want + 1} {
					if bad < 0 {
						continue
					}
					_, err := Create(kind, d, make([]float64, bad), opts)
					if !errors.Is(err, ErrParams) {
						t.Errorf("%v n=%d active=%v len=%d: err = %v, want ErrParams", kind, n, active, bad, err)
					}
				}
			}
		}
	}
}

func TestRandomGenotype(t *testing.T) {
	for _, kind := range allKinds {
		for _, active := range []bool{false, true} {
			d := BodyDims(6, active)
			want, err := NumParams(kind, 6, active)
			if err != nil {
				t.Fatal(err)
			}
			g, err := RandomGenotype(kind, d, 0.1, rand.New(rand.NewSource(2)))
			if err != nil {
				t.Fatalf("%v active=%v: %v", kind, active, err)
			}
			if len(g) != want {
				t.Fatalf("%v active=%v: genotype len %d, want %d", kind, active, len(g), want)
			}
			if _, err := Create(kind, d, g, Options{Rng: rand.New(rand.NewSource(3)), Activation: neural.Tanh}); err != nil {
				t.Errorf("%v active=%v: Create rejected the genotype: %v", kind, active, err)
			}
		}
	}

	// Joint biases come after the input x joints weight block and start at zero.
	d := BodyDims(6, false)
	g, err := RandomGenotype(FeedForward, d, 0.1, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatal(err)
	}
	weights, biases := g[:d.Input*d.Joints], g[d.Input*d.Joints:]
	for i, b := range biases {
		if b != 0 {
			t.Errorf("bias %d = %v, want 0", i, b)
		}
	}
	nonzero := 0
	for _, w := range weights {
		if w != 0 {
			nonzero++
		}
	}
	if nonzero == 0 {
		t.Error("all weights are zero")
	}
}

func TestRandomControllerRange(t *testing.T) {
	d := BodyDims(6, true)
	c, err := Create(Random, d, nil, Options{Rng: rand.New(rand.NewSource(3))})
	if err != nil {
		t.Fatal(err)
	}
	first := append([]float64(nil), c.Control(0, nil)...)
	second := c.Control(1, nil)
	same := true
	for i := range first {
		if first[i] < -1 || first[i] > 1 {
			t.Errorf("entry %d = %v outside [-1, 1]", i, first[i])
		}
		if first[i] != second[i] {
			same = false
		}
	}
	if same {
		t.Error("consecutive draws are identical")
	}

	if _, err := Create(Random, d, nil, Options{}); err == nil {
		t.Error("Create(Random) without rng succeeded")
	}
}

func TestPhaseController(t *testing.T) {
	d := BodyDims(3, false)
	params := []float64{0.5, 0.1, 1, 2, 0}
	c, err := Create(Phase, d, params, Options{})
	if err != nil {
		t.Fatal(err)
	}

	for _, tick := range []int{0, 7, 60} {
		out := c.Control(tick, nil)
		for i, phase := range params[2:] {
			want := math.Sin(2 * math.Pi * 0.5 * float64(tick) * phase * 0.1)
			if math.Abs(out[i]-want) > 1e-12 {
				t.Errorf("t=%d out[%d] = %v, want %v", tick, i, out[i], want)
			}
		}
	}
	// A zero phase pins its output at rest
	if out := c.Control(123, nil); out[2] != 0 {
		t.Errorf("zero-phase output = %v, want 0", out[2])
	}
}

func TestInflateController(t *testing.T) {
	d := BodyDims(5, true)
	c, err := Create(Inflate, d, []float64{90000}, Options{StartTick: 360})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		tick     int
		pressure float64
	}{
		{0, 0},
		{359, 0},
		{360, 90000},
		{1000, 90000},
	}
	for _, tt := range tests {
		out := c.Control(tt.tick, nil)
		for i := 0; i < d.Joints; i++ {
			if out[i] != 0 {
				t.Errorf("t=%d joint %d = %v, want 0", tt.tick, i, out[i])
			}
		}
		if out[d.Joints] != tt.pressure {
			t.Errorf("t=%d pressure entry = %v, want %v", tt.tick, out[d.Joints], tt.pressure)
		}
	}
}

func TestFeedForwardPressureUnbounded(t *testing.T) {
	d := Dims{Input: 2, Joints: 1, Active: true}
	// joint: w=[10 10] b=0 under tanh; pressure: w=[10 10] b=5, linear
	params := []float64{10, 10, 0, 10, 10, 5}
	c, err := Create(FeedForward, d, params, Options{Activation: neural.Tanh})
	if err != nil {
		t.Fatal(err)
	}
	out := c.Control(0, []float64{1, 1})
	if out[0] > 1 || out[0] < 0.99 {
		t.Errorf("joint output = %v, want saturated tanh near 1", out[0])
	}
	if math.Abs(out[1]-25) > 1e-12 {
		t.Errorf("pressure output = %v, want 25", out[1])
	}
}

func TestKindString(t *testing.T) {
	for _, k := range allKinds {
		parsed, err := ParseKind(k.String())
		if err != nil || parsed != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), parsed, err)
		}
	}
}
