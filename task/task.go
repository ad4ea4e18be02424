// Package task defines the arenas a soft body is evaluated in: static geometry, a
// start position, an optional early-stop predicate and a fitness function.
package task

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/squish/body"
	"github.com/pthm-cable/squish/physics"
)

// ErrUnknownTask is returned for a task name New does not recognize.
var ErrUnknownTask = errors.New("unknown task")

// Friction of plain Box2D fixtures when none is given.
const defaultFriction = 0.2

// Task is one evaluation arena. Implementations hold no per-episode state, so a
// Task value can be shared by concurrent episodes.
type Task interface {
	Name() string
	// Start is where the body's center is placed.
	Start() r2.Vec
	// Build adds the static geometry to w.
	Build(w *physics.World) error
	// Continue reports whether the episode should keep stepping.
	Continue(m *body.Pressure) bool
	// Fitness scores the body after tick ticks. Higher is better.
	Fitness(m *body.Pressure, tick int) float64
}

// Options holds settings some tasks need.
type Options struct {
	Seed       int64  // terrain generation
	TerrainDir string // where generated terrains are stored
}

// New returns the task registered under name. Hilly tasks are named hilly-H-W with
// integer height scale H and segment width W.
func New(name string, opts Options) (Task, error) {
	switch {
	case name == "flat":
		return Flat{}, nil
	case name == "escape":
		return Escape{}, nil
	case name == "climber":
		return Climber{}, nil
	case name == "obstacles":
		return Obstacles{}, nil
	case strings.HasPrefix(name, "hilly"):
		return parseHilly(name, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
}

func parseHilly(name string, opts Options) (*Hilly, error) {
	parts := strings.Split(name, "-")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %q, want hilly-H-W", ErrUnknownTask, name)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: height: %v", ErrUnknownTask, name, err)
	}
	w, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: width: %v", ErrUnknownTask, name, err)
	}
	if h < 0 || w <= 0 {
		return nil, fmt.Errorf("%w: %q: height must be >= 0 and width > 0", ErrUnknownTask, name)
	}
	return NewHilly(float64(h), float64(w), opts), nil
}

// speed is the horizontal distance covered per simulated second at 60 ticks/s.
func speed(m *body.Pressure, start r2.Vec, tick int) float64 {
	if tick <= 0 {
		return 0
	}
	return (m.CenterOfMass().X - start.X) / (float64(tick) / 60.0)
}

// Flat is a long, slightly inclined floor with a wall behind the start.
type Flat struct{}

func (Flat) Name() string  { return "flat" }
func (Flat) Start() r2.Vec { return r2.Vec{X: 0, Y: 6} }

func (Flat) Build(w *physics.World) error {
	w.AddBox(r2.Vec{X: 492.5, Y: 0}, 500, 10, math.Pi/180, 10)
	w.AddEdge(r2.Vec{X: -7.5, Y: 100}, r2.Vec{X: -7.5, Y: -100}, defaultFriction)
	return nil
}

func (Flat) Continue(*body.Pressure) bool { return true }

func (f Flat) Fitness(m *body.Pressure, tick int) float64 {
	return speed(m, f.Start(), tick)
}

// Escape encloses the body in a low box open at the bottom corners. Fitness is the
// horizontal distance from the start; the episode ends once the body is out.
type Escape struct{}

const escapeRoof = 12.0

func (Escape) Name() string  { return "escape" }
func (Escape) Start() r2.Vec { return r2.Vec{X: 0, Y: 5} }

func (Escape) Build(w *physics.World) error {
	w.AddEdge(r2.Vec{X: -100, Y: 0}, r2.Vec{X: 100, Y: 0}, defaultFriction)
	w.AddBox(r2.Vec{X: 0, Y: escapeRoof}, escapeRoof*0.75, 1, 0, 0.8)
	w.AddBox(r2.Vec{X: escapeRoof / 1.5, Y: escapeRoof / 1.5}, 1, escapeRoof/3, 0, 0.8)
	w.AddBox(r2.Vec{X: -escapeRoof / 1.5, Y: escapeRoof / 1.5}, 1, escapeRoof/3, 0, 0.8)
	return nil
}

// Continue stops the episode when the center of mass has passed a side wall's outer face.
func (Escape) Continue(m *body.Pressure) bool {
	return math.Abs(m.CenterOfMass().X) <= escapeRoof/1.5+1
}

func (e Escape) Fitness(m *body.Pressure, _ int) float64 {
	return math.Abs(m.CenterOfMass().X) - e.Start().X
}

// Climber is a narrow vertical shaft. Fitness is the height gained.
type Climber struct{}

func (Climber) Name() string  { return "climber" }
func (Climber) Start() r2.Vec { return r2.Vec{X: 0, Y: 5} }

func (Climber) Build(w *physics.World) error {
	const side, height = 6.0, 100.0
	w.AddEdge(r2.Vec{X: -100, Y: 0}, r2.Vec{X: 100, Y: 0}, defaultFriction)
	w.AddBox(r2.Vec{X: side, Y: height / 2}, 1, height/2, 0, 0.8)
	w.AddBox(r2.Vec{X: -side, Y: height / 2}, 1, height/2, 0, 0.8)
	return nil
}

func (Climber) Continue(*body.Pressure) bool { return true }

func (c Climber) Fitness(m *body.Pressure, _ int) float64 {
	return math.Abs(m.CenterOfMass().Y) - c.Start().Y
}

// Obstacles drops the body onto a chain of ramps. Fitness is horizontal speed.
type Obstacles struct{}

func (Obstacles) Name() string  { return "obstacles" }
func (Obstacles) Start() r2.Vec { return r2.Vec{X: 0, Y: 100} }

func (Obstacles) Build(w *physics.World) error {
	w.AddEdge(r2.Vec{X: -100, Y: 0}, r2.Vec{X: 100, Y: 0}, defaultFriction)
	w.AddBox(r2.Vec{X: 0, Y: 75}, 25, 2.5, -25*math.Pi/180, 0.8)
	w.AddBox(r2.Vec{X: 55, Y: 55}, 20, 2.5, 45*math.Pi/180, 0.8)
	w.AddPolygon(r2.Vec{}, []r2.Vec{{X: -50, Y: 0}, {X: 0, Y: 0}, {X: -45, Y: 20}}, 0.8)
	return nil
}

func (Obstacles) Continue(*body.Pressure) bool { return true }

func (o Obstacles) Fitness(m *body.Pressure, tick int) float64 {
	return speed(m, o.Start(), tick)
}
