package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config mirrors the sections of a parameter file
type Config struct {
	Parameter Parameter `json:"parameter"`
	Physics   Physics   `json:"physics"`
	Mesh      Mesh      `json:"mesh"`
	Algorithm Algorithm `json:"algorithm"`
	Screening Screening `json:"screening"`
}

type Parameter struct {
	Filename string `json:"filename"`
	GuessFct string `json:"guess_fct"`
}

type Physics struct {
	Omega []float64 `json:"omega"`
	Gs    []float64 `json:"gs_1"`
	QN1   []int     `json:"QN1"`
	Mu    float64   `json:"mu"`
}

type Mesh struct {
	XRange            []float64 `json:"xrange"`
	GlobalRefinements []int     `json:"global_refinements"`
}

type Algorithm struct {
	Ti      []float64 `json:"ti"`
	Epsilon []float64 `json:"epsilon"`
	NA      []int     `json:"NA"`
	Ndmu    []int     `json:"Ndmu"`
	Dmu     []float64 `json:"dmu"`
	Df      []float64 `json:"df"`
}

// Screening holds the multi-start settings. Zero values are replaced by the
// defaults in Load.
type Screening struct {
	Dim          int     `json:"dim"`
	SeedCount    int     `json:"seed_count"`
	Spread       float64 `json:"spread"`
	Seeder       string  `json:"seeder"` // grid, random, mayfly
	Seed         int64   `json:"seed"`
	Workers      int     `json:"workers"`
	Strict       *bool   `json:"strict,omitempty"`
	TrackGuess   bool    `json:"track_guess"`
	Minimizer    string  `json:"minimizer"` // nelder-mead, gonum
	ZeroTol      float64 `json:"zero_tol"`
	DuplicateTol float64 `json:"duplicate_tol"`
	MayflyIters  int     `json:"mayfly_iters"`
	MayflyPop    int     `json:"mayfly_pop"`
}

// Defaults
const (
	DefaultDim          = 1
	DefaultSeedCount    = 5
	DefaultSpread       = 20.0
	DefaultSeeder       = "grid"
	DefaultMinimizer    = "nelder-mead"
	DefaultZeroTol      = 1e-10
	DefaultDuplicateTol = 1e-6
	DefaultMayflyIters  = 50
	DefaultMayflyPop    = 20
)

// ConfigurationError reports a missing or malformed parameter.
// Use errors.As to inspect the offending field.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error: " + e.Field + " " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Load reads, defaults and validates a parameter file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Field: "file", Reason: "cannot be read", Err: err}
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a parameter document
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigurationError{Field: "file", Reason: "is not valid JSON", Err: err}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in unset screening values
func (c *Config) ApplyDefaults() {
	s := &c.Screening
	if s.Dim == 0 {
		s.Dim = DefaultDim
	}
	if s.SeedCount == 0 {
		s.SeedCount = DefaultSeedCount
	}
	if s.Spread == 0 {
		s.Spread = DefaultSpread
	}
	if s.Seeder == "" {
		s.Seeder = DefaultSeeder
	}
	if s.Minimizer == "" {
		s.Minimizer = DefaultMinimizer
	}
	if s.Strict == nil {
		strict := true
		s.Strict = &strict
	}
	if s.ZeroTol == 0 {
		s.ZeroTol = DefaultZeroTol
		if len(c.Algorithm.Epsilon) > 0 {
			s.ZeroTol = c.Algorithm.Epsilon[0]
		}
	}
	if s.DuplicateTol == 0 {
		s.DuplicateTol = DefaultDuplicateTol
		if len(c.Algorithm.Epsilon) > 1 {
			s.DuplicateTol = c.Algorithm.Epsilon[1]
		}
	}
	if s.MayflyIters == 0 {
		s.MayflyIters = DefaultMayflyIters
	}
	if s.MayflyPop == 0 {
		s.MayflyPop = DefaultMayflyPop
	}
}

// Validate checks every required parameter
func (c *Config) Validate() error {
	invalid := func(field, reason string) error {
		return &ConfigurationError{Field: field, Reason: reason}
	}

	switch {
	case len(c.Physics.Omega) == 0:
		return invalid("physics.omega", "is required")
	case c.Physics.Omega[0] <= 0:
		return invalid("physics.omega", "must be positive")
	case len(c.Physics.Gs) == 0:
		return invalid("physics.gs_1", "is required")
	case len(c.Mesh.XRange) != 2:
		return invalid("mesh.xrange", "must have exactly two entries")
	case c.Mesh.XRange[1] <= c.Mesh.XRange[0]:
		return invalid("mesh.xrange", "must be increasing")
	case len(c.Mesh.GlobalRefinements) == 0:
		return invalid("mesh.global_refinements", "is required")
	case c.Mesh.GlobalRefinements[0] < 1 || c.Mesh.GlobalRefinements[0] > 20:
		return invalid("mesh.global_refinements", "must be in [1, 20]")
	case len(c.Algorithm.Ti) == 0:
		return invalid("algorithm.ti", "is required")
	case len(c.Algorithm.Ndmu) == 0:
		return invalid("algorithm.Ndmu", "is required")
	case c.Algorithm.Ndmu[0] < 0:
		return invalid("algorithm.Ndmu", "cannot be negative")
	case len(c.Algorithm.Dmu) == 0:
		return invalid("algorithm.dmu", "is required")
	}

	if len(c.Physics.QN1) > 0 && c.Physics.QN1[0] < 0 {
		return invalid("physics.QN1", "cannot be negative")
	}

	s := c.Screening
	switch {
	case s.Dim < 1 || s.Dim > 3:
		return invalid("screening.dim", "must be in [1, 3]")
	case s.SeedCount < 1:
		return invalid("screening.seed_count", "must be positive")
	case s.Spread < 0:
		return invalid("screening.spread", "cannot be negative")
	case s.Workers < 0:
		return invalid("screening.workers", "cannot be negative")
	case s.ZeroTol < 0 || s.DuplicateTol < 0:
		return invalid("screening", "tolerances cannot be negative")
	}

	switch s.Seeder {
	case "grid", "random", "mayfly":
	default:
		return invalid("screening.seeder", fmt.Sprintf("unknown seeder %q", s.Seeder))
	}
	switch s.Minimizer {
	case "nelder-mead", "gonum":
	default:
		return invalid("screening.minimizer", fmt.Sprintf("unknown minimizer %q", s.Minimizer))
	}
	return nil
}

// Ti returns the initial value of every parameter component
func (c *Config) Ti() float64 { return c.Algorithm.Ti[0] }

// Omega returns the trap frequency
func (c *Config) Omega() float64 { return c.Physics.Omega[0] }

// G returns the interaction strength
func (c *Config) G() float64 { return c.Physics.Gs[0] }

// FirstMode returns the lowest quantum number of the basis
func (c *Config) FirstMode() int {
	if len(c.Physics.QN1) == 0 {
		return 0
	}
	return c.Physics.QN1[0]
}

// GlobalRefinement returns the mesh refinement level
func (c *Config) GlobalRefinement() int { return c.Mesh.GlobalRefinements[0] }

// Steps returns the number of continuation steps
func (c *Config) Steps() int { return c.Algorithm.Ndmu[0] }

// Dmu returns the continuation increment
func (c *Config) Dmu() float64 { return c.Algorithm.Dmu[0] }

// Df returns the reported df scalar, zero when unset
func (c *Config) Df() float64 {
	if len(c.Algorithm.Df) == 0 {
		return 0
	}
	return c.Algorithm.Df[0]
}
