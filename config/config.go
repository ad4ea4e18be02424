// Package config provides configuration loading and access for soft-body runs.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all run configuration parameters.
type Config struct {
	Physics    PhysicsConfig    `yaml:"physics"`
	Body       BodyConfig       `yaml:"body"`
	Pressure   PressureConfig   `yaml:"pressure"`
	Sensor     SensorConfig     `yaml:"sensor"`
	Controller ControllerConfig `yaml:"controller"`
	Task       TaskConfig       `yaml:"task"`
	Solver     SolverConfig     `yaml:"solver"`
	Run        RunConfig        `yaml:"run"`
	Inflate    InflateConfig    `yaml:"inflate"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// PhysicsConfig holds rigid-body world parameters.
type PhysicsConfig struct {
	GravityY           float64 `yaml:"gravity_y"`
	TicksPerSecond     float64 `yaml:"ticks_per_second"`
	VelocityIterations int     `yaml:"velocity_iterations"`
	PositionIterations int     `yaml:"position_iterations"`
}

// BodyConfig holds the mass ring geometry and the ideal-gas constants.
type BodyConfig struct {
	NMasses      int     `yaml:"n_masses"`
	Radius       float64 `yaml:"radius"`
	MassRadius   float64 `yaml:"mass_radius"`
	Density      float64 `yaml:"density"`
	Friction     float64 `yaml:"friction"`
	DampingRatio float64 `yaml:"damping_ratio"`
	FrequencyHz  float64 `yaml:"frequency_hz"`
	Stretch      float64 `yaml:"stretch"` // joint length bounds = rest * (1 ± stretch)
	Moles        float64 `yaml:"moles"`
	GasConstant  float64 `yaml:"gas_constant"`
	Temperature  float64 `yaml:"temperature"`
}

// PressureConfig selects passive (ideal gas) or active (controlled) pressure.
// Bounds are expressed as multiples of the rest pressure of the undeformed ring.
type PressureConfig struct {
	Control   bool    `yaml:"control"`
	MinFactor float64 `yaml:"min_factor"`
	MaxFactor float64 `yaml:"max_factor"`
}

// SensorConfig holds observation windowing parameters.
type SensorConfig struct {
	WindowSize        int     `yaml:"window_size"`
	PositionScale     float64 `yaml:"position_scale"`
	DisplacementScale float64 `yaml:"displacement_scale"`
}

// ControllerConfig selects the controller variant.
type ControllerConfig struct {
	Kind       string `yaml:"kind"`       // random, phase, inflate, ffnn
	Activation string `yaml:"activation"` // joint network activation: tanh, identity
}

// TaskConfig selects the task geometry and episode length.
type TaskConfig struct {
	Name       string `yaml:"name"` // flat, hilly-H-W, escape, climber, obstacles
	Timesteps  int    `yaml:"timesteps"`
	TerrainDir string `yaml:"terrain_dir"`
}

// SolverConfig holds population optimizer parameters.
type SolverConfig struct {
	Name              string  `yaml:"name"` // es, ga, cmaes
	PopSize           int     `yaml:"popsize"`
	SigmaInit         float64 `yaml:"sigma_init"`
	SigmaDecay        float64 `yaml:"sigma_decay"`
	SigmaLimit        float64 `yaml:"sigma_limit"`
	LearningRate      float64 `yaml:"learning_rate"`
	LearningRateDecay float64 `yaml:"learning_rate_decay"`
	LearningRateLimit float64 `yaml:"learning_rate_limit"`
	WeightDecay       float64 `yaml:"weight_decay"`
	RankFitness       bool    `yaml:"rank_fitness"`
	ForgetBest        bool    `yaml:"forget_best"`
	EliteRatio        float64 `yaml:"elite_ratio"`
}

// RunConfig holds run-level settings.
type RunConfig struct {
	Seed              int64   `yaml:"seed"`
	Iterations        int     `yaml:"iterations"`
	Workers           int     `yaml:"workers"`
	EpisodeTimeoutSec float64 `yaml:"episode_timeout_sec"` // 0 = no wall-clock watchdog
	Store             string  `yaml:"store"`               // file, sqlite
}

// InflateConfig holds the scripted inflation experiment parameters.
type InflateConfig struct {
	Delta     float64 `yaml:"delta"`
	StartTick int     `yaml:"start_tick"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT        float64 // 1 / Physics.TicksPerSecond
	NRT       float64 // Body.Moles * Body.GasConstant * Body.Temperature
	InputDim  int     // 3*NMasses + 3
	OutputDim int     // NMasses (+1 with pressure control)
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults. Panics if they fail to parse.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate checks numeric ranges. Name lookups (controller, task, solver) are
// validated by the packages that own them.
func (c *Config) Validate() error {
	switch {
	case c.Body.NMasses < 3:
		return fmt.Errorf("%w: body.n_masses must be >= 3, got %d", ErrInvalid, c.Body.NMasses)
	case c.Body.Radius <= 0:
		return fmt.Errorf("%w: body.radius must be positive", ErrInvalid)
	case c.Body.Stretch < 0 || c.Body.Stretch >= 1:
		return fmt.Errorf("%w: body.stretch must be in [0, 1)", ErrInvalid)
	case c.Physics.TicksPerSecond <= 0:
		return fmt.Errorf("%w: physics.ticks_per_second must be positive", ErrInvalid)
	case c.Pressure.MaxFactor < c.Pressure.MinFactor:
		return fmt.Errorf("%w: pressure.max_factor < pressure.min_factor", ErrInvalid)
	case c.Sensor.WindowSize < 1:
		return fmt.Errorf("%w: sensor.window_size must be >= 1", ErrInvalid)
	case c.Sensor.PositionScale <= 0 || c.Sensor.DisplacementScale <= 0:
		return fmt.Errorf("%w: sensor scales must be positive", ErrInvalid)
	case c.Task.Timesteps < 1:
		return fmt.Errorf("%w: task.timesteps must be >= 1", ErrInvalid)
	case c.Solver.PopSize < 1:
		return fmt.Errorf("%w: solver.popsize must be >= 1", ErrInvalid)
	case c.Run.Workers < 1:
		return fmt.Errorf("%w: run.workers must be >= 1", ErrInvalid)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT = 1.0 / c.Physics.TicksPerSecond
	c.Derived.NRT = c.Body.Moles * c.Body.GasConstant * c.Body.Temperature
	c.Derived.InputDim = c.Body.NMasses*3 + 3 // contacts, relative positions, displacement, pressure
	c.Derived.OutputDim = c.Body.NMasses
	if c.Pressure.Control {
		c.Derived.OutputDim++
	}
}

// Refresh recomputes derived values after fields were changed in code.
func (c *Config) Refresh() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// Clone returns a deep copy. Config holds no reference types, so a value copy suffices.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// RestPressure returns the ideal-gas pressure of an undeformed ring of the configured size.
func (c *Config) RestPressure() float64 {
	n := float64(c.Body.NMasses)
	area := 0.5 * n * c.Body.Radius * c.Body.Radius * math.Sin(2*math.Pi/n)
	return c.Derived.NRT / area
}

// YAML returns the configuration encoded as YAML.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
