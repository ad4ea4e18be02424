package sim

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/squish/body"
	"github.com/pthm-cable/squish/config"
	"github.com/pthm-cable/squish/task"
)

// InflationSample is one row of the inflation trace.
type InflationSample struct {
	Tick      int     `csv:"t"`
	Pressure  float64 `csv:"pressure"`
	Area      float64 `csv:"area"`
	AreaRatio float64 `csv:"area_ratio"` // area / (π r²)
}

// Inflate runs the inflation experiment: an emptied body in active pressure mode is
// held at rest until cfg.Inflate.StartTick, then the pressure is stepped to
// cfg.Inflate.Delta. Every tick from the step onwards is recorded. When out is not
// nil the trace is also written to it as CSV.
func Inflate(ctx context.Context, cfg *config.Config, out io.Writer) ([]InflationSample, error) {
	cfg = cfg.Clone()
	cfg.Pressure.Control = true
	cfg.Controller.Kind = "inflate"
	if err := cfg.Refresh(); err != nil {
		return nil, err
	}

	t, err := task.New(cfg.Task.Name, task.Options{Seed: cfg.Run.Seed, TerrainDir: cfg.Task.TerrainDir})
	if err != nil {
		return nil, err
	}
	ep, err := NewEpisode(cfg, t, []float64{cfg.Inflate.Delta}, rand.New(rand.NewSource(cfg.Run.Seed)))
	if err != nil {
		return nil, err
	}
	defer ep.Close()
	ep.Body().PrepareInflation()

	circle := math.Pi * cfg.Body.Radius * cfg.Body.Radius
	var samples []InflationSample
	ep.OnTick(func(tick int, m *body.Pressure) {
		if tick < cfg.Inflate.StartTick {
			return
		}
		area := m.Area()
		samples = append(samples, InflationSample{
			Tick:      tick,
			Pressure:  m.State.Current,
			Area:      area,
			AreaRatio: area / circle,
		})
	})

	if _, err := ep.Run(ctx); err != nil {
		return samples, err
	}
	if out != nil {
		if err := gocsv.Marshal(samples, out); err != nil {
			return samples, fmt.Errorf("writing inflation trace: %w", err)
		}
	}
	return samples, nil
}
