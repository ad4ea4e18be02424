package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()

	snapshot := &Snapshot{
		RunID:       "3f1c9a0e-7a52-4d0e-9a55-0b8d1c2e4f60",
		Iteration:   12,
		Evaluations: 520,
		Fitness:     3.25,
		Controller:  "ffnn",
		Task:        "hilly-1-5",
		NMasses:     15,
		Active:      true,
		Genotype:    []float64{0.5, -1.25, 3, 0},
		SavedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if path != filepath.Join(tmpDir, BestFile) {
		t.Errorf("path = %s, want %s", path, filepath.Join(tmpDir, BestFile))
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if loaded.Version != SnapshotVersion {
		t.Errorf("Version = %d, want %d", loaded.Version, SnapshotVersion)
	}
	if loaded.Fitness != snapshot.Fitness || loaded.Iteration != snapshot.Iteration {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Controller != "ffnn" || loaded.Task != "hilly-1-5" || !loaded.Active || loaded.NMasses != 15 {
		t.Errorf("setup fields lost: %+v", loaded)
	}
	if len(loaded.Genotype) != len(snapshot.Genotype) {
		t.Fatalf("genotype length = %d, want %d", len(loaded.Genotype), len(snapshot.Genotype))
	}
	for i := range snapshot.Genotype {
		if loaded.Genotype[i] != snapshot.Genotype[i] {
			t.Errorf("genotype[%d] = %v, want %v", i, loaded.Genotype[i], snapshot.Genotype[i])
		}
	}
	if !loaded.SavedAt.Equal(snapshot.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", loaded.SavedAt, snapshot.SavedAt)
	}
}

func TestSnapshotOverwrite(t *testing.T) {
	tmpDir := t.TempDir()

	for i, f := range []float64{1, 2, 5} {
		if _, err := SaveSnapshot(&Snapshot{Iteration: i, Fitness: f, Genotype: []float64{f}}, tmpDir); err != nil {
			t.Fatal(err)
		}
	}

	loaded, err := LoadBest(tmpDir)
	if err != nil {
		t.Fatalf("LoadBest(dir) failed: %v", err)
	}
	if loaded.Fitness != 5 || loaded.Iteration != 2 {
		t.Errorf("loaded = %+v, want the last save", loaded)
	}
}

func TestLoadBestErrors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"missing", ""},
		{"invalid json", "{not json"},
		{"wrong version", `{"version": 99, "genotype": [1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name+".json")
			if tt.content != "" {
				if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := LoadBest(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
