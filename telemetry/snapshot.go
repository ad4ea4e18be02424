package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// BestFile is the checkpoint file name inside an output directory.
const BestFile = "best.json"

// Snapshot is a checkpoint of the best genotype found so far, with enough of the
// run's setup to rebuild the controller for replay.
type Snapshot struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id,omitempty"`

	Iteration   int     `json:"iteration"`
	Evaluations int     `json:"evaluations"`
	Fitness     float64 `json:"fitness"`

	Controller string `json:"controller"`
	Task       string `json:"task"`
	NMasses    int    `json:"n_masses"`
	Active     bool   `json:"active_pressure"`

	Genotype []float64 `json:"genotype"`
	SavedAt  time.Time `json:"saved_at"`
}

// SaveSnapshot writes a snapshot to dir/best.json.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	snapshot.Version = SnapshotVersion

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	// Write then rename so a crash never leaves a truncated checkpoint
	path := filepath.Join(dir, BestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}
	return &snapshot, nil
}

// LoadBest reads a best-genotype checkpoint. path may be the checkpoint file itself
// or the output directory containing best.json.
func LoadBest(path string) (*Snapshot, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, BestFile)
	}
	return LoadSnapshot(path)
}
