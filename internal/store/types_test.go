package store

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestNewCheckpoint(t *testing.T) {
	tv := []float64{1, 2}
	guess := []float64{0.5, 0.5}
	cfg := RunConfig{Dim: 2, Steps: 4}

	c := NewCheckpoint("run", 1, 0.75, tv, guess, 2, -3.5, cfg)
	tv[0] = 99
	guess[0] = 99

	if c.T[0] != 1 || c.Guess[0] != 0.5 {
		t.Error("NewCheckpoint should copy its slices")
	}
	if c.Objective == nil || *c.Objective != -3.5 {
		t.Errorf("Expected objective -3.5, got %v", c.Objective)
	}
	if c.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Fresh checkpoint should validate: %v", err)
	}
}

func TestNewCheckpoint_NaNObjective(t *testing.T) {
	c := NewCheckpoint("run", 0, 1, []float64{0}, []float64{0}, 0, math.NaN(), RunConfig{Dim: 1, Steps: 1})
	if c.Objective != nil {
		t.Errorf("NaN objective should be omitted, got %v", *c.Objective)
	}
}

func TestCheckpointDone(t *testing.T) {
	c := createTestCheckpoint("run")
	if c.Done() {
		t.Error("Step 2 of 8 should not be done")
	}
	c.Step = 7
	if !c.Done() {
		t.Error("Step 7 of 8 should be done")
	}
}

func TestCheckpointValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Checkpoint)
		field  string
	}{
		{"empty run id", func(c *Checkpoint) { c.RunID = "" }, "RunID"},
		{"negative step", func(c *Checkpoint) { c.Step = -1 }, "Step"},
		{"step past end", func(c *Checkpoint) { c.Step = 8; c.Counter = 0 }, "Step"},
		{"counter too large", func(c *Checkpoint) { c.Counter = 4 }, "Counter"},
		{"zero timestamp", func(c *Checkpoint) { c.Timestamp = time.Time{} }, "Timestamp"},
		{"no dim", func(c *Checkpoint) { c.Config.Dim = 0 }, "Config.Dim"},
		{"no steps", func(c *Checkpoint) { c.Config.Steps = 0 }, "Config.Steps"},
		{"t length", func(c *Checkpoint) { c.T = []float64{1, 2} }, "T"},
		{"guess length", func(c *Checkpoint) { c.Guess = nil }, "Guess"},
		{"t not finite", func(c *Checkpoint) { c.T = []float64{math.Inf(1)} }, "T"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := createTestCheckpoint("run")
			tt.mutate(c)

			err := c.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Expected field %s, got %s (%v)", tt.field, ve.Field, err)
			}
			if !strings.HasPrefix(err.Error(), "validation error: ") {
				t.Errorf("Unexpected message: %s", err.Error())
			}
		})
	}
}

func TestCheckpointIsCompatible(t *testing.T) {
	c := createTestCheckpoint("run")

	if err := c.IsCompatible(c.Config); err != nil {
		t.Fatalf("Checkpoint should be compatible with its own config: %v", err)
	}

	// Seeder and minimizer may change between sessions
	changed := c.Config
	changed.Seeder = "random"
	changed.Minimizer = "gonum"
	if err := c.IsCompatible(changed); err != nil {
		t.Errorf("Strategy changes should be allowed: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*RunConfig)
		field  string
	}{
		{"dim", func(r *RunConfig) { r.Dim = 2 }, "Dim"},
		{"dmu", func(r *RunConfig) { r.Dmu = 0.5 }, "Dmu"},
		{"omega", func(r *RunConfig) { r.Omega = 2 }, "Physics"},
		{"g", func(r *RunConfig) { r.G = -1 }, "Physics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := c.Config
			tt.mutate(&cfg)

			var ce *CompatibilityError
			if err := c.IsCompatible(cfg); !errors.As(err, &ce) {
				t.Fatalf("Expected CompatibilityError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, ce.Field)
			}
		})
	}
}

func TestToInfo(t *testing.T) {
	c := createTestCheckpoint("run-info")
	info := c.ToInfo()

	if info.RunID != "run-info" || info.Step != 2 || info.Steps != 8 {
		t.Errorf("Unexpected info: %+v", info)
	}
	if info.Mu != 1.5 || info.Counter != 3 || info.Dim != 1 {
		t.Errorf("Unexpected info: %+v", info)
	}
	if !info.Timestamp.Equal(c.Timestamp) {
		t.Error("Timestamp mismatch")
	}
}
