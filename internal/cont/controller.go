package cont

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/gpcont/internal/opt"
	"gonum.org/v1/gonum/floats"
)

// ErrNoCandidateFound is returned by Step when filtering leaves nothing to select.
var ErrNoCandidateFound = errors.New("no candidate found")

// Contributor primes the state the objective oracle depends on. It must be
// called once per step before the oracle is queried.
type Contributor interface {
	ComputeContributions(ctx context.Context) error
}

// Phase is a state of the per-step state machine
type Phase int

const (
	PhaseComputingContributions Phase = iota
	PhaseScreening
	PhaseFiltering
	PhaseSelecting
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseComputingContributions:
		return "computing_contributions"
	case PhaseScreening:
		return "screening"
	case PhaseFiltering:
		return "filtering"
	case PhaseSelecting:
		return "selecting"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Scalars bundles the per-step diagnostics owned by the controller
type Scalars struct {
	Res         float64 `json:"res"`
	ResInf      float64 `json:"resInf"`
	ResOld      float64 `json:"resOld"`
	Resp        float64 `json:"resp"`
	ResOverResp float64 `json:"resOverResp"`
	Df          float64 `json:"df"`
	FinalError  float64 `json:"finalError"`

	Counter            int `json:"counter"`
	GlobalRefinement   int `json:"globalRefinement"`
	TotalNoCells       int `json:"totalNoCells"`
	TotalNoActiveCells int `json:"totalNoActiveCells"`
}

// Options configures a Controller. Zero values fall back to the defaults.
type Options struct {
	// Ti initializes every component of the current and guess vectors
	Ti float64

	SeedCount int
	Spread    float64

	ZeroTolerance      float64
	DuplicateTolerance float64

	Workers   int
	Minimizer opt.LocalMinimizer
	Seeder    Seeder

	// Df is carried into Scalars for reporting
	Df float64

	Logger *slog.Logger
	Timer  *Timer
}

// StepResult describes one completed continuation step
type StepResult struct {
	Phase      Phase       `json:"phase"`
	Screen     ScreenStats `json:"screen"`
	Candidates []Candidate `json:"candidates"`
	Selected   int         `json:"selected"` // index into Candidates, -1 if none
	NormBefore float64     `json:"normBefore"`
	NormAfter  float64     `json:"normAfter"`
	Distance   float64     `json:"distance"`
}

// Found reports whether a candidate was adopted
func (r StepResult) Found() bool {
	return r.Selected >= 0
}

// Controller tracks the parameter vector across continuation steps.
type Controller struct {
	contributor Contributor
	oracle      opt.Objective
	screener    *Screener
	dupTol      float64

	t       []float64
	tGuess  []float64
	scalars Scalars

	logger *slog.Logger
	timer  *Timer
}

// NewController creates a controller over a dim-dimensional parameter vector
func NewController(dim int, contributor Contributor, oracle opt.Objective, opts Options) (*Controller, error) {
	if dim < 1 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	if contributor == nil || oracle == nil {
		return nil, fmt.Errorf("contributor and oracle are required")
	}

	if opts.SeedCount <= 0 {
		opts.SeedCount = DefaultSeedCount
	}
	if opts.Spread <= 0 {
		opts.Spread = DefaultSpread
	}
	if opts.ZeroTolerance <= 0 {
		opts.ZeroTolerance = 1e-10
	}
	if opts.DuplicateTolerance <= 0 {
		opts.DuplicateTolerance = 1e-6
	}
	if opts.Minimizer == nil {
		opts.Minimizer = opt.NewNelderMead()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timer == nil {
		opts.Timer = NewTimer()
	}

	c := &Controller{
		contributor: contributor,
		oracle:      oracle,
		dupTol:      opts.DuplicateTolerance,
		t:           make([]float64, dim),
		tGuess:      make([]float64, dim),
		scalars:     Scalars{Df: opts.Df},
		logger:      opts.Logger,
		timer:       opts.Timer,
	}
	for i := range c.t {
		c.t[i] = opts.Ti
		c.tGuess[i] = opts.Ti
	}
	c.screener = &Screener{
		List:          NewCandidateList(opts.Seeder),
		Minimizer:     opts.Minimizer,
		SeedCount:     opts.SeedCount,
		Spread:        opts.Spread,
		ZeroTolerance: opts.ZeroTolerance,
		Workers:       opts.Workers,
		Logger:        opts.Logger,
	}
	return c, nil
}

// Step runs one continuation step. With strict set, candidates flagged as
// trivial are removed before selection. When nothing survives filtering the
// current vector is left unchanged and ErrNoCandidateFound is returned
// together with the partial result.
func (c *Controller) Step(ctx context.Context, strict bool) (StepResult, error) {
	c.timer.Enter("find_ortho_min")
	defer c.timer.Exit()

	res := StepResult{Phase: PhaseComputingContributions, Selected: -1}

	c.timer.Enter("compute_contributions")
	err := c.contributor.ComputeContributions(ctx)
	c.timer.Exit()
	if err != nil {
		return res, fmt.Errorf("compute contributions: %w", err)
	}

	res.Phase = PhaseScreening
	res.NormBefore = c.L2NormT()

	c.timer.Enter("screening")
	res.Screen, err = c.screener.Screen(ctx, c.oracle, c.tGuess)
	c.timer.Exit()
	if err != nil {
		return res, fmt.Errorf("screening: %w", err)
	}

	res.Phase = PhaseFiltering
	list := c.screener.List
	list.RemoveZero(c.screener.ZeroTolerance)
	list.RemoveDuplicates(c.dupTol)
	if strict {
		list.RemoveFlagged()
	}
	res.Candidates = list.Items()

	res.Phase = PhaseSelecting
	idx, dist := SelectNearest(res.Candidates, res.NormBefore)
	if idx < 0 {
		c.logger.Warn("No candidate survived filtering", "t", c.t, "seeds", res.Screen.Seeds)
		return res, ErrNoCandidateFound
	}

	sel := res.Candidates[idx]
	copy(c.t, sel.T)
	res.Selected = idx
	res.Distance = dist
	res.NormAfter = c.L2NormT()
	res.Phase = PhaseDone

	c.updateScalars(res)

	c.logger.Info("Continuation step complete",
		"counter", c.scalars.Counter,
		"t", c.t,
		"f", sel.F,
		"candidates", len(res.Candidates),
		"norm_before", res.NormBefore,
		"norm_after", res.NormAfter,
	)
	return res, nil
}

func (c *Controller) updateScalars(res StepResult) {
	s := &c.scalars
	s.Counter++
	s.ResOld = s.Res
	s.Res = res.Candidates[res.Selected].F
	s.ResInf = 0
	for _, cand := range res.Candidates {
		s.ResInf = math.Max(s.ResInf, math.Abs(cand.F))
	}
	s.Resp = math.Abs(res.NormAfter - res.NormBefore)
	if s.Resp > 0 {
		s.ResOverResp = s.Res / s.Resp
	} else {
		s.ResOverResp = 0
	}
	s.FinalError = res.Distance
}

// SelectNearest returns the index of the candidate whose coordinate norm is
// closest to norm, and that distance. The first minimum wins; -1 means empty.
func SelectNearest(candidates []Candidate, norm float64) (int, float64) {
	best, minDist := -1, math.MaxFloat64
	for i, c := range candidates {
		if d := math.Abs(c.L2NormT() - norm); d < minDist {
			best, minDist = i, d
		}
	}
	return best, minDist
}

// L2NormT returns the Euclidean norm of the current parameter vector
func (c *Controller) L2NormT() float64 {
	return floats.Norm(c.t, 2)
}

// T returns a copy of the current parameter vector
func (c *Controller) T() []float64 {
	return append([]float64(nil), c.t...)
}

// SetT overwrites the current parameter vector
func (c *Controller) SetT(t []float64) error {
	if len(t) != len(c.t) {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", len(c.t), len(t))
	}
	copy(c.t, t)
	return nil
}

// Guess returns a copy of the vector screening is seeded around
func (c *Controller) Guess() []float64 {
	return append([]float64(nil), c.tGuess...)
}

// SetGuess overwrites the screening base guess
func (c *Controller) SetGuess(t []float64) error {
	if len(t) != len(c.tGuess) {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", len(c.tGuess), len(t))
	}
	copy(c.tGuess, t)
	return nil
}

// Scalars returns a copy of the diagnostics bundle
func (c *Controller) Scalars() Scalars {
	return c.scalars
}

// SetMeshInfo records the mesh counters reported with the diagnostics
func (c *Controller) SetMeshInfo(globalRefinement, cells, activeCells int) {
	c.scalars.GlobalRefinement = globalRefinement
	c.scalars.TotalNoCells = cells
	c.scalars.TotalNoActiveCells = activeCells
}

// SetCounter restores the step counter, used when resuming
func (c *Controller) SetCounter(n int) {
	c.scalars.Counter = n
}

// Timer returns the timer bracketing each step
func (c *Controller) Timer() *Timer {
	return c.timer
}
