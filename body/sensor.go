package body

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/squish/config"
)

// Sensor turns the body's physical state into a bounded observation and smooths it
// with a moving average over the last WindowSize readings.
type Sensor struct {
	dim        int
	windowSize int
	posScale   float64
	dispScale  float64

	window  [][]float64 // ring buffer of normalized readings
	head    int         // next slot to overwrite once full
	prevCOM r2.Vec
}

// NewSensor creates a sensor producing dim-sized observations. start is the body's
// initial center of mass, the reference for the first displacement reading.
func NewSensor(dim int, cfg config.SensorConfig, start r2.Vec) *Sensor {
	return &Sensor{
		dim:        dim,
		windowSize: cfg.WindowSize,
		posScale:   cfg.PositionScale,
		dispScale:  cfg.DisplacementScale,
		window:     make([][]float64, 0, cfg.WindowSize),
		prevCOM:    start,
	}
}

// Dim returns the observation length. It never changes.
func (s *Sensor) Dim() int { return s.dim }

// Sense reads the body, pushes the normalized reading and returns the window mean.
//
// Layout: N contact flags, 2N positions relative to the center of mass, the 2D
// displacement of the center of mass since the previous call, and pressure / max.
func (s *Sensor) Sense(m *Pressure) []float64 {
	positions := m.Positions()
	n := len(positions)
	com := CenterOfMass(positions)

	raw := make([]float64, 0, s.dim)
	for i := 0; i < n; i++ {
		if m.Contacts(i) > 0 {
			raw = append(raw, 1)
		} else {
			raw = append(raw, 0)
		}
	}
	for _, p := range positions {
		rel := r2.Sub(p, com)
		raw = append(raw, rel.X/s.posScale, rel.Y/s.posScale)
	}
	disp := r2.Sub(com, s.prevCOM)
	raw = append(raw, disp.X/s.dispScale, disp.Y/s.dispScale)
	if m.State.Max != 0 {
		raw = append(raw, m.State.Current/m.State.Max)
	} else {
		raw = append(raw, 0)
	}
	s.prevCOM = com

	return s.Push(raw)
}

// Push adds an already-normalized reading to the window and returns the mean of
// the readings held. Readings shorter or longer than Dim are padded or truncated.
func (s *Sensor) Push(reading []float64) []float64 {
	v := make([]float64, s.dim)
	copy(v, reading)

	if len(s.window) < s.windowSize {
		s.window = append(s.window, v)
	} else {
		s.window[s.head] = v
		s.head = (s.head + 1) % s.windowSize
	}

	mean := make([]float64, s.dim)
	for _, r := range s.window {
		floats.Add(mean, r)
	}
	floats.Scale(1/float64(len(s.window)), mean)
	return mean
}

// Reset empties the window and sets a new displacement reference.
func (s *Sensor) Reset(start r2.Vec) {
	s.window = s.window[:0]
	s.head = 0
	s.prevCOM = start
}
