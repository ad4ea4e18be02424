package neural

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestLayerForwardKnownWeights(t *testing.T) {
	l := NewLayer(2, 2, Identity)
	// W = [[1 2] [3 4]], b = [0.5 -1]
	if _, err := l.SetParams([]float64{1, 2, 3, 4, 0.5, -1}); err != nil {
		t.Fatal(err)
	}
	nn, err := NewNetwork(l)
	if err != nil {
		t.Fatal(err)
	}

	out := nn.Forward([]float64{1, -1})
	want := []float64{-0.5, -2}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestTanhBounded(t *testing.T) {
	nn, err := NewMLP([]int{3, 4}, Tanh, Tanh)
	if err != nil {
		t.Fatal(err)
	}
	params := make([]float64, nn.NumParams())
	for i := range params {
		params[i] = 100
	}
	if _, err := nn.SetParams(params); err != nil {
		t.Fatal(err)
	}
	for _, v := range nn.Forward([]float64{1, -2, 3}) {
		if v < -1 || v > 1 {
			t.Errorf("tanh output %v outside [-1, 1]", v)
		}
	}
}

func TestNumParams(t *testing.T) {
	tests := []struct {
		sizes []int
		want  int
	}{
		{[]int{48, 15}, 48*15 + 15},
		{[]int{48, 16}, 48*16 + 16},
		{[]int{4, 8, 2}, 4*8 + 8 + 8*2 + 2},
	}
	for _, tt := range tests {
		nn, err := NewMLP(tt.sizes, Tanh, Identity)
		if err != nil {
			t.Fatal(err)
		}
		if got := nn.NumParams(); got != tt.want {
			t.Errorf("NumParams(%v) = %d, want %d", tt.sizes, got, tt.want)
		}
	}
}

func TestSetParamsRoundTrip(t *testing.T) {
	nn, err := NewMLP([]int{3, 5, 2}, Tanh, Identity)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(7))
	flat := make([]float64, nn.NumParams()+3)
	for i := range flat {
		flat[i] = rng.NormFloat64()
	}

	n, err := nn.SetParams(flat)
	if err != nil {
		t.Fatal(err)
	}
	if n != nn.NumParams() {
		t.Errorf("consumed %d, want %d", n, nn.NumParams())
	}
	got := nn.Params()
	for i := range got {
		if got[i] != flat[i] {
			t.Fatalf("Params()[%d] = %v, want %v", i, got[i], flat[i])
		}
	}
}

func TestSetParamsTooShort(t *testing.T) {
	nn, err := NewMLP([]int{3, 2}, Tanh, Tanh)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := nn.SetParams(make([]float64, 7)); !errors.Is(err, ErrParamCount) {
		t.Errorf("err = %v, want ErrParamCount", err)
	}
}

func TestNewNetworkShapeMismatch(t *testing.T) {
	_, err := NewNetwork(NewLayer(3, 4, Tanh), NewLayer(5, 2, Tanh))
	if !errors.Is(err, ErrShape) {
		t.Errorf("err = %v, want ErrShape", err)
	}
}

func TestParseActivation(t *testing.T) {
	tests := []struct {
		name    string
		want    Activation
		wantErr bool
	}{
		{"tanh", Tanh, false},
		{"identity", Identity, false},
		{"linear", Identity, false},
		{"relu", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseActivation(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForwardDeterministic(t *testing.T) {
	nn, err := NewMLP([]int{6, 8, 3}, Tanh, Tanh)
	if err != nil {
		t.Fatal(err)
	}
	nn.Randomize(rand.New(rand.NewSource(42)))

	inputs := []float64{0.1, 0.2, -0.3, 0.4, 0.5, -0.6}
	first := append([]float64(nil), nn.Forward(inputs)...)
	second := nn.Forward(inputs)
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("output %d differs between calls: %v vs %v", i, first[i], second[i])
		}
	}
}

func BenchmarkForward(b *testing.B) {
	nn, err := NewMLP([]int{48, 16}, Tanh, Tanh)
	if err != nil {
		b.Fatal(err)
	}
	nn.Randomize(rand.New(rand.NewSource(1)))
	inputs := make([]float64, 48)
	for i := range inputs {
		inputs[i] = 0.5
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		nn.Forward(inputs)
	}
}
