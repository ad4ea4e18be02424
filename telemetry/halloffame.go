package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// HallEntry is one genotype kept by the hall of fame.
type HallEntry struct {
	Iteration int       `json:"iteration"`
	Index     int       `json:"index"` // position in its population
	Fitness   float64   `json:"fitness"`
	Genotype  []float64 `json:"genotype"`

	batch int // Consider call that admitted the entry; 0 when loaded from a file
}

// HallOfFame keeps the highest-fitness genotypes seen during a run, sorted
// descending by fitness.
type HallOfFame struct {
	entries []HallEntry
	maxSize int
	batches int
}

// NewHallOfFame creates an empty hall holding at most maxSize entries.
func NewHallOfFame(maxSize int) *HallOfFame {
	if maxSize < 1 {
		maxSize = 1
	}
	return &HallOfFame{
		entries: make([]HallEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Consider offers a whole population to the hall. Genotypes are copied on entry.
// Returns how many members of this population the hall holds afterwards; one
// admitted and then pushed out by a fitter sibling does not count.
func (hof *HallOfFame) Consider(iteration int, population [][]float64, fitness []float64) int {
	hof.batches++
	for i, f := range fitness {
		if len(hof.entries) >= hof.maxSize && f <= hof.entries[len(hof.entries)-1].Fitness {
			continue
		}
		g := make([]float64, len(population[i]))
		copy(g, population[i])
		hof.entries = hof.insertEntry(hof.entries, HallEntry{
			Iteration: iteration,
			Index:     i,
			Fitness:   f,
			Genotype:  g,
			batch:     hof.batches,
		})
	}

	kept := 0
	for _, e := range hof.entries {
		if e.batch == hof.batches {
			kept++
		}
	}
	return kept
}

// insertEntry adds an entry to the hall, maintaining sorted order by fitness.
// If the hall is full, the lowest-fitness entry is removed.
func (hof *HallOfFame) insertEntry(hall []HallEntry, entry HallEntry) []HallEntry {
	// Earlier entries win ties
	idx := sort.Search(len(hall), func(i int) bool {
		return hall[i].Fitness < entry.Fitness
	})

	if len(hall) >= hof.maxSize && idx >= hof.maxSize {
		return hall
	}

	hall = append(hall, HallEntry{})
	copy(hall[idx+1:], hall[idx:])
	hall[idx] = entry

	if len(hall) > hof.maxSize {
		hall = hall[:hof.maxSize]
	}
	return hall
}

// Entries returns the hall, best first. The slice must not be modified.
func (hof *HallOfFame) Entries() []HallEntry { return hof.entries }

// Size returns the number of entries.
func (hof *HallOfFame) Size() int { return len(hof.entries) }

// TopFitness returns the highest fitness in the hall, or 0 if it is empty.
func (hof *HallOfFame) TopFitness() float64 {
	if len(hof.entries) == 0 {
		return 0
	}
	return hof.entries[0].Fitness
}

// MarshalJSON serializes the hall of fame to JSON.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(hof.entries, "", "  ")
}

// HallOfFameFile is the hall of fame file name inside an output directory.
const HallOfFameFile = "hall_of_fame.json"

// LoadHallOfFameFromFile reads a hall of fame JSON file. The capacity is the
// larger of maxSize and the number of stored entries.
func LoadHallOfFameFromFile(path string, maxSize int) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var entries []HallEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	hof := NewHallOfFame(max(maxSize, len(entries)))
	for _, e := range entries {
		hof.entries = hof.insertEntry(hof.entries, e)
	}
	return hof, nil
}
