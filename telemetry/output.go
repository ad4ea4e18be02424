package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/squish/config"
)

// ConfigFile is the run configuration file name inside an output directory.
const ConfigFile = "config.yaml"

// OutputManager writes a run's output directory: progress, timing and bookmark
// CSVs, the best-genotype checkpoint and the hall of fame.
type OutputManager struct {
	dir          string
	progressFile *os.File
	perfFile     *os.File
	bookmarkFile *os.File

	// Track if headers have been written
	progressHeaderWritten bool
	perfHeaderWritten     bool
	bookmarkHeaderWritten bool

	bookmarks *BookmarkDetector
	hof       *HallOfFame
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled); a nil manager accepts every call.
func NewOutputManager(dir string, hallSize int) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{
		dir:       dir,
		bookmarks: NewBookmarkDetector(20),
		hof:       NewHallOfFame(hallSize),
	}

	f, err := os.Create(filepath.Join(dir, "progress.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating progress.csv: %w", err)
	}
	om.progressFile = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.progressFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	f, err = os.Create(filepath.Join(dir, "bookmarks.csv"))
	if err != nil {
		om.progressFile.Close()
		om.perfFile.Close()
		return nil, fmt.Errorf("creating bookmarks.csv: %w", err)
	}
	om.bookmarkFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, ConfigFile))
}

// appendCSV writes records to f, with a header row only on the first call.
func appendCSV(f *os.File, records any, headerWritten *bool) error {
	if !*headerWritten {
		if err := gocsv.Marshal(records, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}

// WriteProgress writes a progress record to progress.csv.
func (om *OutputManager) WriteProgress(p Progress) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.progressFile, []Progress{p}, &om.progressHeaderWritten); err != nil {
		return fmt.Errorf("writing progress: %w", err)
	}
	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, iteration int) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.perfFile, []PerfStatsCSV{stats.ToCSV(iteration)}, &om.perfHeaderWritten); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteBookmark writes a bookmark record to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.bookmarkFile, []Bookmark{b}, &om.bookmarkHeaderWritten); err != nil {
		return fmt.Errorf("writing bookmark: %w", err)
	}
	return nil
}

// WriteHallOfFame saves the hall of fame as JSON.
func (om *OutputManager) WriteHallOfFame() error {
	if om == nil || om.hof.Size() == 0 {
		return nil
	}

	data, err := om.hof.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling hall of fame: %w", err)
	}
	if err := os.WriteFile(filepath.Join(om.dir, HallOfFameFile), data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", HallOfFameFile, err)
	}
	return nil
}

// Listen writes the progress row and any bookmarks it triggers.
func (om *OutputManager) Listen(_ context.Context, p Progress) error {
	if om == nil {
		return nil
	}
	if err := om.WriteProgress(p); err != nil {
		return err
	}
	for _, b := range om.bookmarks.Check(p) {
		b.LogBookmark()
		if err := om.WriteBookmark(b); err != nil {
			return err
		}
	}
	return nil
}

// SaveBest writes the checkpoint to best.json.
func (om *OutputManager) SaveBest(_ context.Context, s *Snapshot) error {
	if om == nil {
		return nil
	}
	_, err := SaveSnapshot(s, om.dir)
	return err
}

// RecordPerf implements PerfRecorder.
func (om *OutputManager) RecordPerf(iteration int, s PerfStats) error {
	return om.WritePerf(s, iteration)
}

// RecordPopulation implements PopulationRecorder by feeding the hall of fame.
func (om *OutputManager) RecordPopulation(iteration int, population [][]float64, fitness []float64) error {
	if om == nil {
		return nil
	}
	if kept := om.hof.Consider(iteration, population, fitness); kept > 0 {
		slog.Debug("hall of fame updated", "iteration", iteration, "kept", kept, "top", om.hof.TopFitness())
	}
	return nil
}

// HallOfFame returns the manager's hall of fame.
func (om *OutputManager) HallOfFame() *HallOfFame {
	if om == nil {
		return nil
	}
	return om.hof
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close writes the hall of fame and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	firstErr := om.WriteHallOfFame()

	for _, f := range []*os.File{om.progressFile, om.perfFile, om.bookmarkFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
