package telemetry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHallOfFameKeepsTopK(t *testing.T) {
	hof := NewHallOfFame(3)

	pop := [][]float64{{0}, {1}, {2}, {3}, {4}}
	// 0.5 and -1 get in while the hall has room, then fitter siblings evict them
	if n := hof.Consider(0, pop, []float64{0.5, 2, -1, 7, 3}); n != 3 {
		t.Errorf("kept %d, want 3", n)
	}

	want := []float64{7, 3, 2}
	if hof.Size() != len(want) {
		t.Fatalf("Size() = %d, want %d", hof.Size(), len(want))
	}
	for i, e := range hof.Entries() {
		if e.Fitness != want[i] {
			t.Errorf("entry %d fitness = %v, want %v", i, e.Fitness, want[i])
		}
	}
	if top := hof.Entries()[0]; top.Index != 3 || top.Genotype[0] != 3 {
		t.Errorf("top entry = %+v", top)
	}

	// Entries below the floor of a full hall are rejected
	if n := hof.Consider(1, [][]float64{{9}}, []float64{1}); n != 0 {
		t.Errorf("kept %d, want 0", n)
	}
	if hof.Consider(1, [][]float64{{9}}, []float64{10}) != 1 || hof.TopFitness() != 10 {
		t.Errorf("TopFitness() = %v, want 10", hof.TopFitness())
	}
}

func TestHallOfFameCountsSurvivorsOnly(t *testing.T) {
	hof := NewHallOfFame(2)
	hof.Consider(0, [][]float64{{0}, {1}}, []float64{5, 6})

	// 5.5 displaces 5, then 8 and 9 displace 6 and 5.5
	if n := hof.Consider(1, [][]float64{{2}, {3}, {4}}, []float64{5.5, 8, 9}); n != 2 {
		t.Errorf("kept %d, want 2", n)
	}
	want := []float64{9, 8}
	for i, e := range hof.Entries() {
		if e.Fitness != want[i] || e.Iteration != 1 {
			t.Errorf("entry %d = %+v, want fitness %v from iteration 1", i, e, want[i])
		}
	}
}

func TestHallOfFameCopiesGenotypes(t *testing.T) {
	hof := NewHallOfFame(2)
	pop := [][]float64{{1, 2}}
	hof.Consider(0, pop, []float64{1})

	pop[0][0] = 99
	if hof.Entries()[0].Genotype[0] != 1 {
		t.Error("hall entry aliases the population")
	}
}

func TestHallOfFameEmpty(t *testing.T) {
	hof := NewHallOfFame(0)
	if hof.TopFitness() != 0 || hof.Size() != 0 {
		t.Error("empty hall should report zero")
	}
}

func TestHallOfFameRoundTrip(t *testing.T) {
	hof := NewHallOfFame(4)
	hof.Consider(2, [][]float64{{1, 1}, {2, 2}, {3, 3}}, []float64{1, 3, 2})

	data, err := hof.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "hall_of_fame.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadHallOfFameFromFile(path, 2)
	if err != nil {
		t.Fatalf("LoadHallOfFameFromFile failed: %v", err)
	}
	if loaded.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", loaded.Size())
	}
	for i, want := range []float64{3, 2, 1} {
		if got := loaded.Entries()[i].Fitness; got != want {
			t.Errorf("entry %d fitness = %v, want %v", i, got, want)
		}
	}
	if loaded.Entries()[0].Iteration != 2 || loaded.Entries()[0].Genotype[1] != 2 {
		t.Errorf("top entry = %+v", loaded.Entries()[0])
	}
}
