package store

import (
	"fmt"
	"math"
	"time"
)

// RunConfig is the subset of a run's parameters stored with each checkpoint.
// It is a copy so the store does not depend on the config package.
type RunConfig struct {
	ConfigPath string  `json:"configPath"`
	Dim        int     `json:"dim"`
	Steps      int     `json:"steps"`
	Dmu        float64 `json:"dmu"`
	Omega      float64 `json:"omega"`
	G          float64 `json:"g"`
	Seeder     string  `json:"seeder"`
	Minimizer  string  `json:"minimizer"`
	SeedCount  int     `json:"seedCount"`
	Spread     float64 `json:"spread"`
	Seed       int64   `json:"seed"`
}

// Checkpoint is the state of a continuation run after a completed step.
//
// Only the accepted coefficients and the continuation position are saved.
// The candidate list is rebuilt by screening on resume, so a resumed run
// repeats no step and skips none.
type Checkpoint struct {
	// RunID identifies the continuation run
	RunID string `json:"runId"`

	// Step is the index of the last completed step
	Step int `json:"step"`

	// Mu is the continuation parameter at Step
	Mu float64 `json:"mu"`

	// T holds the coefficients accepted at Step
	T []float64 `json:"t"`

	// Guess is the screening center for the next step
	Guess []float64 `json:"guess"`

	// Counter is the number of successful steps so far
	Counter int `json:"counter"`

	// Objective is the energy at T, NaN is stored as null
	Objective *float64 `json:"objective,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	Config    RunConfig `json:"config"`
}

// CheckpointInfo is the listing view of a checkpoint
type CheckpointInfo struct {
	RunID     string    `json:"runId"`
	Step      int       `json:"step"`
	Steps     int       `json:"steps"`
	Mu        float64   `json:"mu"`
	Counter   int       `json:"counter"`
	Dim       int       `json:"dim"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCheckpoint captures the state after a step. t and guess are copied.
func NewCheckpoint(runID string, step int, mu float64, t, guess []float64, counter int, objective float64, config RunConfig) *Checkpoint {
	c := &Checkpoint{
		RunID:     runID,
		Step:      step,
		Mu:        mu,
		T:         append([]float64(nil), t...),
		Guess:     append([]float64(nil), guess...),
		Counter:   counter,
		Timestamp: time.Now(),
		Config:    config,
	}
	if !math.IsNaN(objective) && !math.IsInf(objective, 0) {
		c.Objective = &objective
	}
	return c
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		RunID:     c.RunID,
		Step:      c.Step,
		Steps:     c.Config.Steps,
		Mu:        c.Mu,
		Counter:   c.Counter,
		Dim:       c.Config.Dim,
		Timestamp: c.Timestamp,
	}
}

// Done reports whether every configured step has completed
func (c *Checkpoint) Done() bool {
	return c.Step+1 >= c.Config.Steps
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if c.Step < 0 {
		return &ValidationError{Field: "Step", Reason: "cannot be negative"}
	}
	if c.Counter < 0 || c.Counter > c.Step+1 {
		return &ValidationError{Field: "Counter", Reason: fmt.Sprintf("must be in [0, %d]", c.Step+1)}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Dim <= 0 {
		return &ValidationError{Field: "Config.Dim", Reason: "must be positive"}
	}
	if c.Config.Steps <= 0 {
		return &ValidationError{Field: "Config.Steps", Reason: "must be positive"}
	}
	if c.Step >= c.Config.Steps {
		return &ValidationError{Field: "Step", Reason: fmt.Sprintf("exceeds configured steps %d", c.Config.Steps)}
	}
	if len(c.T) != c.Config.Dim {
		return &ValidationError{
			Field:  "T",
			Reason: fmt.Sprintf("length mismatch: expected %d coefficients", c.Config.Dim),
		}
	}
	if len(c.Guess) != c.Config.Dim {
		return &ValidationError{
			Field:  "Guess",
			Reason: fmt.Sprintf("length mismatch: expected %d coefficients", c.Config.Dim),
		}
	}
	for i, v := range c.T {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: "T", Reason: fmt.Sprintf("component %d is not finite", i)}
		}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
func (c *Checkpoint) IsCompatible(config RunConfig) error {
	if c.Config.Dim != config.Dim {
		return &CompatibilityError{
			Field:    "Dim",
			Expected: fmt.Sprintf("%d", c.Config.Dim),
			Actual:   fmt.Sprintf("%d", config.Dim),
		}
	}
	if c.Config.Dmu != config.Dmu {
		return &CompatibilityError{
			Field:    "Dmu",
			Expected: fmt.Sprintf("%g", c.Config.Dmu),
			Actual:   fmt.Sprintf("%g", config.Dmu),
		}
	}
	if c.Config.Omega != config.Omega || c.Config.G != config.G {
		return &CompatibilityError{
			Field:    "Physics",
			Expected: fmt.Sprintf("omega=%g g=%g", c.Config.Omega, c.Config.G),
			Actual:   fmt.Sprintf("omega=%g g=%g", config.Omega, config.G),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
