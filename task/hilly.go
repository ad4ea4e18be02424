package task

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/squish/body"
	"github.com/pthm-cable/squish/physics"
)

// Terrain generation bounds.
const (
	terrainStartX = -20.0
	terrainWidth  = 400.0
	terrainFloor  = -100.0
)

// Segment is one column of hilly terrain, stored one per line in the terrain file.
type Segment struct {
	Start      float64 `csv:"start"`
	End        float64 `csv:"end"`
	Height     float64 `csv:"height"`
	PrevHeight float64 `csv:"prev_height"`
}

// Hilly is a field of random slopes. Heights are |N(0, H)| and segment widths are
// max(N(1, 0.25)·W, 1). The terrain for a seed is generated once, written to disk
// and reused by every later episode.
type Hilly struct {
	H, W float64
	path string
	seed int64
}

// NewHilly creates a hilly task whose terrain file lives under opts.TerrainDir.
func NewHilly(h, w float64, opts Options) *Hilly {
	dir := opts.TerrainDir
	if dir == "" {
		dir = "terrains"
	}
	name := fmt.Sprintf("hilly-%g-%g.%d.txt", h, w, opts.Seed)
	return &Hilly{H: h, W: w, seed: opts.Seed, path: filepath.Join(dir, name)}
}

func (t *Hilly) Name() string  { return fmt.Sprintf("hilly-%g-%g", t.H, t.W) }
func (t *Hilly) Start() r2.Vec { return r2.Vec{X: 0, Y: 10} }

func (t *Hilly) Build(w *physics.World) error {
	segs, err := t.Terrain()
	if err != nil {
		return err
	}

	w.AddEdge(r2.Vec{X: terrainStartX, Y: 100}, r2.Vec{X: terrainStartX, Y: -100}, defaultFriction)
	for _, s := range segs {
		half := (s.End - s.Start) / 2
		w.AddPolygon(r2.Vec{X: s.Start + half}, []r2.Vec{
			{X: half, Y: s.Height},
			{X: -half, Y: s.PrevHeight},
			{X: -half, Y: terrainFloor},
			{X: half, Y: terrainFloor},
		}, 0.8)
	}
	if n := len(segs); n > 0 {
		end := segs[n-1].Start
		w.AddEdge(r2.Vec{X: end, Y: 100}, r2.Vec{X: end, Y: -100}, defaultFriction)
	}
	return nil
}

func (*Hilly) Continue(*body.Pressure) bool { return true }

func (t *Hilly) Fitness(m *body.Pressure, tick int) float64 {
	return speed(m, t.Start(), tick)
}

// terrainCache maps terrain file paths to their loaded segments.
var terrainCache = struct {
	sync.Mutex
	segs map[string][]Segment
}{segs: make(map[string][]Segment)}

// Terrain returns the segments for this task's seed, reading the terrain file or
// generating and writing it if missing. Safe for concurrent use.
func (t *Hilly) Terrain() ([]Segment, error) {
	terrainCache.Lock()
	defer terrainCache.Unlock()

	if segs, ok := terrainCache.segs[t.path]; ok {
		return segs, nil
	}

	segs, err := readTerrain(t.path)
	if errors.Is(err, os.ErrNotExist) {
		segs = GenerateTerrain(rand.New(rand.NewSource(t.seed)), t.H, t.W)
		err = writeTerrain(t.path, segs)
	}
	if err != nil {
		return nil, err
	}
	terrainCache.segs[t.path] = segs
	return segs, nil
}

// GenerateTerrain draws segments from x = -20 until the next segment would end
// past x = 400.
func GenerateTerrain(rng *rand.Rand, h, w float64) []Segment {
	width := func() float64 { return math.Max((rng.NormFloat64()*0.25+1)*w, 1) }
	height := func() float64 { return math.Abs(rng.NormFloat64() * h) }

	var segs []Segment
	start := terrainStartX
	end := start + width()
	prev := height()
	cur := height()
	for end < terrainWidth {
		segs = append(segs, Segment{Start: start, End: end, Height: cur, PrevHeight: prev})
		start = end
		prev = cur
		end += width()
		cur = height()
	}
	return segs
}

func readTerrain(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	var segs []Segment
	if err := gocsv.UnmarshalCSV(r, &segs); err != nil {
		return nil, fmt.Errorf("reading terrain %s: %w", path, err)
	}
	return segs, nil
}

func writeTerrain(path string, segs []Segment) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating terrain dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating terrain file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := gocsv.MarshalCSV(segs, w); err != nil {
		return fmt.Errorf("writing terrain %s: %w", path, err)
	}
	return nil
}
