// Package body implements the pressure-driven soft body: a ring of point masses
// joined by distance joints, inflated by an enclosed ideal gas.
package body

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/squish/config"
	"github.com/pthm-cable/squish/physics"
)

// ErrControlLength is returned when a control vector does not match OutputDim.
var ErrControlLength = errors.New("control vector length mismatch")

// Mode selects how the internal pressure is obtained each tick.
type Mode int

const (
	// Passive recomputes pressure from the ideal-gas law every tick.
	Passive Mode = iota
	// Active lets the controller set pressure through the trailing control entry.
	Active
)

func (m Mode) String() string {
	if m == Active {
		return "active"
	}
	return "passive"
}

// PressureState is the body's current pressure and its bounds.
// Min <= Current <= Max holds after every ApplyControl in active mode.
type PressureState struct {
	Current float64
	Min     float64
	Mid     float64
	Max     float64
}

// Spring holds the length bounds of one joint.
type Spring struct {
	Rest float64
	Min  float64
	Max  float64
}

// Pressure is a ring of N masses and N joints; joint i connects mass i and mass i+1 mod N.
type Pressure struct {
	world   *physics.World
	masses  []physics.MassID
	joints  []physics.JointID
	springs []Spring
	ring    map[physics.MassID]int // mass handle -> ring index

	mode  Mode
	nRT   float64
	State PressureState

	sensor *Sensor

	// Per-tick scratch, reused across ticks
	positions []r2.Vec
	poly      Polygon
}

// NewPressure builds the ring in w, centered at center, from the body, pressure and
// sensor sections of cfg.
func NewPressure(w *physics.World, cfg *config.Config, center r2.Vec) *Pressure {
	n := cfg.Body.NMasses
	m := &Pressure{
		world:     w,
		masses:    make([]physics.MassID, 0, n),
		joints:    make([]physics.JointID, 0, n),
		springs:   make([]Spring, 0, n),
		ring:      make(map[physics.MassID]int, n),
		nRT:       cfg.Derived.NRT,
		positions: make([]r2.Vec, n),
	}
	if cfg.Pressure.Control {
		m.mode = Active
	}

	massDef := physics.MassDef{
		Radius:   cfg.Body.MassRadius,
		Density:  cfg.Body.Density,
		Friction: cfg.Body.Friction,
	}
	dTheta := 2 * math.Pi / float64(n)
	for i := 0; i < n; i++ {
		theta := float64(i) * dTheta
		massDef.Angle = theta
		pos := r2.Vec{
			X: center.X + cfg.Body.Radius*math.Cos(theta),
			Y: center.Y + cfg.Body.Radius*math.Sin(theta),
		}
		id := w.AddMass(pos, massDef)
		m.ring[id] = i
		m.masses = append(m.masses, id)
	}

	springDef := physics.SpringDef{
		FrequencyHz:  cfg.Body.FrequencyHz,
		DampingRatio: cfg.Body.DampingRatio,
	}
	for i := 0; i < n; i++ {
		j := w.AddSpring(m.masses[i], m.masses[(i+1)%n], springDef)
		rest := w.JointLength(j)
		m.joints = append(m.joints, j)
		m.springs = append(m.springs, Spring{
			Rest: rest,
			Min:  rest * (1 - cfg.Body.Stretch),
			Max:  rest * (1 + cfg.Body.Stretch),
		})
	}

	m.refreshPositions()
	p0 := m.nRT / EnclosedArea(m.positions)
	m.State = PressureState{
		Current: p0,
		Min:     cfg.Pressure.MinFactor * p0,
		Mid:     p0,
		Max:     cfg.Pressure.MaxFactor * p0,
	}

	m.sensor = NewSensor(cfg.Derived.InputDim, cfg.Sensor, CenterOfMass(m.positions))
	return m
}

// Mode returns the pressure mode.
func (m *Pressure) Mode() Mode { return m.mode }

// NumMasses returns N.
func (m *Pressure) NumMasses() int { return len(m.masses) }

// InputDim returns the sensor dimensionality.
func (m *Pressure) InputDim() int { return m.sensor.Dim() }

// OutputDim returns the control vector length: one entry per joint, plus the
// trailing pressure entry in active mode.
func (m *Pressure) OutputDim() int {
	if m.mode == Active {
		return len(m.joints) + 1
	}
	return len(m.joints)
}

// Positions reads the current mass positions in ring order.
// The slice is owned by the body and overwritten on the next call.
func (m *Pressure) Positions() []r2.Vec {
	m.refreshPositions()
	return m.positions
}

// Velocity returns the mean linear velocity of the masses.
func (m *Pressure) Velocity() r2.Vec {
	var v r2.Vec
	for _, id := range m.masses {
		v = r2.Add(v, m.world.Velocity(id))
	}
	return r2.Scale(1/float64(len(m.masses)), v)
}

// CenterOfMass returns the mean mass position.
func (m *Pressure) CenterOfMass() r2.Vec {
	return CenterOfMass(m.Positions())
}

// Area returns the current enclosed area.
func (m *Pressure) Area() float64 {
	return EnclosedArea(m.Positions())
}

// Contacts returns the touching contact count of the i-th mass in ring order.
func (m *Pressure) Contacts(i int) int {
	return m.world.Contacts(m.masses[i])
}

// ComputePressure sets the current pressure from the ideal-gas law nRT / area.
// A collapsed ring (area 0) yields +Inf.
func (m *Pressure) ComputePressure() float64 {
	m.refreshPositions()
	return m.computePressure()
}

func (m *Pressure) computePressure() float64 {
	m.State.Current = m.nRT / EnclosedArea(m.positions)
	return m.State.Current
}

// PhysicsStep applies the pressure forces for this tick. Call once per tick after
// the world has stepped. Each joint pushes both of its masses along the edge's
// outward normal with magnitude pressure * length / 2.
func (m *Pressure) PhysicsStep() {
	m.refreshPositions()
	m.poly.Reset(m.positions)

	if m.mode == Passive {
		m.computePressure()
	}

	for _, j := range m.joints {
		a, b := m.world.JointMasses(j)
		normal := OutwardNormal(m.positions[m.ring[a]], m.positions[m.ring[b]], &m.poly)
		magnitude := m.State.Current * m.world.JointLength(j) / 2
		force := r2.Scale(magnitude, normal)
		m.world.ApplyForce(a, force)
		m.world.ApplyForce(b, force)
	}
}

// ApplyControl sets joint target lengths and, in active mode, the pressure.
//
// Joint entries are clamped to [-1, 1]: u >= 0 moves the length from rest towards
// Min, u < 0 from rest towards Max. The trailing pressure entry is clamped to
// [State.Min, State.Max]. NaN entries leave the joint at rest and the pressure
// unchanged. A vector whose length differs from OutputDim is rejected untouched.
func (m *Pressure) ApplyControl(control []float64) error {
	if len(control) != m.OutputDim() {
		return fmt.Errorf("%w: got %d, want %d", ErrControlLength, len(control), m.OutputDim())
	}

	for i, j := range m.joints {
		u := control[i]
		if math.IsNaN(u) {
			u = 0
		}
		u = clamp(u, -1, 1)
		s := m.springs[i]
		var length float64
		if u >= 0 {
			length = s.Rest - (s.Rest-s.Min)*u
		} else {
			length = s.Rest + (s.Max-s.Rest)*(-u)
		}
		m.world.SetJointLength(j, length)
	}

	if m.mode == Active {
		if p := control[len(m.joints)]; !math.IsNaN(p) {
			m.State.Current = clamp(p, m.State.Min, m.State.Max)
		}
	}
	return nil
}

// Observe runs the sensor and returns the windowed observation.
func (m *Pressure) Observe() []float64 {
	return m.sensor.Sense(m)
}

// PrepareInflation empties the body for the inflation experiment: the lower bound
// and the current pressure are both set to zero and the sensor starts over.
func (m *Pressure) PrepareInflation() {
	m.State.Min = 0
	m.State.Current = 0
	m.sensor.Reset(m.CenterOfMass())
}

func (m *Pressure) refreshPositions() {
	for i, id := range m.masses {
		m.positions[i] = m.world.Position(id)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
