package sim

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/squish/body"
	"github.com/pthm-cable/squish/config"
	"github.com/pthm-cable/squish/task"
)

// TraceSample is one row of an episode trace.
type TraceSample struct {
	Tick     int     `csv:"t"`
	X        float64 `csv:"com_x"`
	Y        float64 `csv:"com_y"`
	VX       float64 `csv:"vel_x"`
	VY       float64 `csv:"vel_y"`
	Pressure float64 `csv:"pressure"`
	Area     float64 `csv:"area"`
	Contacts int     `csv:"contacts"` // masses touching anything
}

// Trace replays genotype for one episode, sampling the body every stride ticks.
// When out is not nil the samples are written to it as CSV.
func Trace(ctx context.Context, cfg *config.Config, genotype []float64, seed int64, stride int, out io.Writer) (Result, []TraceSample, error) {
	if stride < 1 {
		stride = 1
	}
	t, err := task.New(cfg.Task.Name, task.Options{Seed: cfg.Run.Seed, TerrainDir: cfg.Task.TerrainDir})
	if err != nil {
		return Result{}, nil, err
	}
	ep, err := NewEpisode(cfg, t, genotype, rand.New(rand.NewSource(seed)))
	if err != nil {
		return Result{}, nil, err
	}
	defer ep.Close()

	var samples []TraceSample
	ep.OnTick(func(tick int, m *body.Pressure) {
		if tick%stride != 0 {
			return
		}
		com := m.CenterOfMass()
		vel := m.Velocity()
		touching := 0
		for i := 0; i < m.NumMasses(); i++ {
			if m.Contacts(i) > 0 {
				touching++
			}
		}
		samples = append(samples, TraceSample{
			Tick:     tick,
			X:        com.X,
			Y:        com.Y,
			VX:       vel.X,
			VY:       vel.Y,
			Pressure: m.State.Current,
			Area:     m.Area(),
			Contacts: touching,
		})
	})

	res, err := ep.Run(ctx)
	if err != nil {
		return res, samples, err
	}
	if out != nil {
		if err := gocsv.Marshal(samples, out); err != nil {
			return res, samples, fmt.Errorf("writing trace: %w", err)
		}
	}
	return res, samples, nil
}
