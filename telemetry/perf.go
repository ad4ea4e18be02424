package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one optimizer iteration.
const (
	PhaseAsk        = "ask"
	PhaseEvaluate   = "evaluate"
	PhaseTell       = "tell"
	PhaseCheckpoint = "checkpoint"
)

var phases = []string{PhaseAsk, PhaseEvaluate, PhaseTell, PhaseCheckpoint}

// PerfSample holds timing data for a single iteration.
type PerfSample struct {
	Duration    time.Duration
	Evaluations int
	Phases      map[string]time.Duration
}

// PerfCollector tracks iteration timing over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	iterStart     time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a collector averaging over the last windowSize iterations.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 10
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartIteration begins timing a new iteration.
func (p *PerfCollector) StartIteration() {
	p.iterStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a phase, ending the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndIteration finishes timing the current iteration, which ran evaluations
// episodes, and records the sample.
func (p *PerfCollector) EndIteration(evaluations int) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		Duration:    now.Sub(p.iterStart),
		Evaluations: evaluations,
		Phases:      p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgIteration time.Duration
	MinIteration time.Duration
	MaxIteration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total iteration time
	PhasePct map[string]float64

	// Throughput
	EvalsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var total time.Duration
	var minDur, maxDur time.Duration
	var evals int
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.Duration
		evals += s.Evaluations

		if i == 0 || s.Duration < minDur {
			minDur = s.Duration
		}
		if s.Duration > maxDur {
			maxDur = s.Duration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var evalsPerSec float64
	if total > 0 {
		evalsPerSec = float64(evals) / total.Seconds()
	}

	return PerfStats{
		AvgIteration:   avg,
		MinIteration:   minDur,
		MaxIteration:   maxDur,
		PhaseAvg:       phaseAvg,
		PhasePct:       phasePct,
		EvalsPerSecond: evalsPerSec,
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_iter_ms", s.AvgIteration.Milliseconds()),
		slog.Int64("min_iter_ms", s.MinIteration.Milliseconds()),
		slog.Int64("max_iter_ms", s.MaxIteration.Milliseconds()),
		slog.Float64("evals_per_sec", s.EvalsPerSecond),
	}

	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Iteration     int     `csv:"iteration"`
	AvgIterMS     int64   `csv:"avg_iter_ms"`
	MinIterMS     int64   `csv:"min_iter_ms"`
	MaxIterMS     int64   `csv:"max_iter_ms"`
	EvalsPerSec   float64 `csv:"evals_per_sec"`
	AskPct        float64 `csv:"ask_pct"`
	EvaluatePct   float64 `csv:"evaluate_pct"`
	TellPct       float64 `csv:"tell_pct"`
	CheckpointPct float64 `csv:"checkpoint_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(iteration int) PerfStatsCSV {
	return PerfStatsCSV{
		Iteration:     iteration,
		AvgIterMS:     s.AvgIteration.Milliseconds(),
		MinIterMS:     s.MinIteration.Milliseconds(),
		MaxIterMS:     s.MaxIteration.Milliseconds(),
		EvalsPerSec:   s.EvalsPerSecond,
		AskPct:        s.PhasePct[PhaseAsk],
		EvaluatePct:   s.PhasePct[PhaseEvaluate],
		TellPct:       s.PhasePct[PhaseTell],
		CheckpointPct: s.PhasePct[PhaseCheckpoint],
	}
}
