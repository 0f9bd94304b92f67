package cont

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/cwbudde/gpcont/internal/opt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeContributor counts calls and can be told to fail
type fakeContributor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeContributor) ComputeContributions(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

// scriptedMinimizer returns canned results in call order
type scriptedMinimizer struct {
	mu      sync.Mutex
	results []opt.Result
	errs    []error
	calls   int
}

func (s *scriptedMinimizer) Minimize(ctx context.Context, f opt.Objective, x0 []float64) (opt.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.results[i], err
}

func constant(v float64) opt.Objective {
	return func([]float64) (float64, error) { return v, nil }
}

func parabola(a, fmin float64) opt.Objective {
	return func(x []float64) (float64, error) {
		return (x[0]-a)*(x[0]-a) + fmin, nil
	}
}

func newTestController(t *testing.T, dim int, oracle opt.Objective, opts Options) (*Controller, *fakeContributor) {
	t.Helper()
	contrib := &fakeContributor{}
	opts.Logger = quietLogger
	c, err := NewController(dim, contrib, oracle, opts)
	require.NoError(t, err)
	return c, contrib
}

func TestScreeningFindsMinimum(t *testing.T) {
	const a, fmin = 0.1234, 1e-6
	s := &Screener{
		List:          NewCandidateList(nil),
		Minimizer:     opt.NewNelderMead(),
		SeedCount:     DefaultSeedCount,
		Spread:        DefaultSpread,
		ZeroTolerance: 1e-10,
		Logger:        quietLogger,
	}

	stats, err := s.Screen(context.Background(), parabola(a, fmin), []float64{0.1})
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Seeds)
	assert.LessOrEqual(t, s.List.Len(), DefaultSeedCount)

	found := false
	for _, c := range s.List.Items() {
		if math.Abs(c.T[0]-a) < 1e-9 {
			found = true
			assert.InDelta(t, fmin, c.F, 1e-12)
		}
	}
	assert.True(t, found, "expected a candidate within 1e-9 of %v, got %+v", a, s.List.Items())
}

func TestScreeningAbsorbsSeedFailures(t *testing.T) {
	boom := fmt.Errorf("%w: oracle blew up", opt.ErrMinimizerFailure)
	m := &scriptedMinimizer{
		results: []opt.Result{
			{X: []float64{1}, F: 2, Status: opt.StatusSuccess},
			{Status: opt.StatusFailed},
			{X: []float64{3}, F: 4, Status: opt.StatusContinue},
			{X: []float64{5}, F: 0, Status: opt.StatusSuccess},
			{X: []float64{0}, F: 7, Status: opt.StatusSuccess},
		},
		errs: []error{nil, boom},
	}
	s := &Screener{
		List:          NewCandidateList(nil),
		Minimizer:     m,
		SeedCount:     5,
		Spread:        20,
		ZeroTolerance: 1e-10,
		Logger:        quietLogger,
	}

	stats, err := s.Screen(context.Background(), constant(1), []float64{0})
	require.NoError(t, err)

	assert.Equal(t, ScreenStats{Seeds: 5, Failed: 1, Exhausted: 1, Zero: 1, Kept: 3}, stats)
	items := s.List.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []float64{1}, items[0].T)
	assert.Equal(t, opt.StatusContinue, items[1].Status)
	assert.True(t, items[2].Flag, "zero coordinate should be flagged")
	assert.Equal(t, opt.StatusZeroSolution, items[2].Status)
}

func TestScreeningParallelMatchesSequential(t *testing.T) {
	run := func(workers int) []Candidate {
		s := &Screener{
			List:          NewCandidateList(nil),
			Minimizer:     opt.NewNelderMead(),
			SeedCount:     5,
			Spread:        3,
			ZeroTolerance: 1e-10,
			Workers:       workers,
			Logger:        quietLogger,
		}
		doubleWell := func(x []float64) (float64, error) {
			return (x[0]*x[0]-1)*(x[0]*x[0]-1) + 0.1*x[0] + 1, nil
		}
		_, err := s.Screen(context.Background(), doubleWell, []float64{0})
		require.NoError(t, err)
		return s.List.Items()
	}

	assert.Equal(t, run(1), run(4))
}

func TestScreeningCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Screener{
		List:      NewCandidateList(nil),
		Minimizer: opt.NewNelderMead(),
		SeedCount: 5,
		Spread:    20,
		Logger:    quietLogger,
	}
	_, err := s.Screen(ctx, constant(1), []float64{0})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectNearest(t *testing.T) {
	candidates := []Candidate{
		cand(1, 1.0),
		cand(1, 2.5),
		cand(1, 0, -1.9),
		cand(1, 3.0),
	}

	idx, dist := SelectNearest(candidates, 2.0)
	assert.Equal(t, 2, idx)
	assert.InDelta(t, 0.1, dist, 1e-12)

	// deterministic
	for i := 0; i < 3; i++ {
		again, _ := SelectNearest(candidates, 2.0)
		assert.Equal(t, idx, again)
	}
}

func TestSelectNearestTieKeepsFirst(t *testing.T) {
	candidates := []Candidate{cand(1, 1.5), cand(1, 2.5), cand(1, -1.5)}
	idx, _ := SelectNearest(candidates, 2.0)
	assert.Equal(t, 0, idx)
}

func TestSelectNearestEmpty(t *testing.T) {
	idx, _ := SelectNearest(nil, 1)
	assert.Equal(t, -1, idx)
}

func TestStepSelectsNearestNorm(t *testing.T) {
	m := &scriptedMinimizer{results: []opt.Result{
		{X: []float64{1.0}, F: 1, Status: opt.StatusSuccess},
		{X: []float64{2.5}, F: 1, Status: opt.StatusSuccess},
		{X: []float64{-1.9}, F: 1, Status: opt.StatusSuccess},
		{X: []float64{3.0}, F: 1, Status: opt.StatusSuccess},
		{X: []float64{2.5}, F: 1, Status: opt.StatusSuccess},
	}}
	c, contrib := newTestController(t, 1, constant(1), Options{Ti: 2.0, Minimizer: m})

	res, err := c.Step(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, contrib.calls)
	assert.Equal(t, PhaseDone, res.Phase)
	assert.Len(t, res.Candidates, 4, "duplicate 2.5 should be removed")
	assert.True(t, res.Found())
	assert.Equal(t, []float64{-1.9}, c.T())
	assert.InDelta(t, 2.0, res.NormBefore, 1e-15)
	assert.InDelta(t, 1.9, res.NormAfter, 1e-15)
	assert.InDelta(t, 0.1, res.Distance, 1e-12)

	s := c.Scalars()
	assert.Equal(t, 1, s.Counter)
	assert.Equal(t, 1.0, s.Res)
	assert.InDelta(t, 0.1, s.FinalError, 1e-12)
}

func TestStepNoCandidateLeavesVectorUnchanged(t *testing.T) {
	c, _ := newTestController(t, 2, constant(0), Options{Ti: 0.5})
	before := c.T()

	res, err := c.Step(context.Background(), true)

	assert.ErrorIs(t, err, ErrNoCandidateFound)
	assert.False(t, res.Found())
	assert.Equal(t, PhaseSelecting, res.Phase)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, before, c.T())
	assert.Equal(t, 0, c.Scalars().Counter)
}

func TestStepStrictRemovesFlagged(t *testing.T) {
	results := func() []opt.Result {
		out := make([]opt.Result, 5)
		for i := range out {
			out[i] = opt.Result{X: []float64{0, 0}, F: 3, Status: opt.StatusSuccess}
		}
		return out
	}

	strict, _ := newTestController(t, 2, constant(3), Options{Ti: 1, Minimizer: &scriptedMinimizer{results: results()}})
	_, err := strict.Step(context.Background(), true)
	assert.ErrorIs(t, err, ErrNoCandidateFound)
	assert.Equal(t, []float64{1, 1}, strict.T())

	lenient, _ := newTestController(t, 2, constant(3), Options{Ti: 1, Minimizer: &scriptedMinimizer{results: results()}})
	res, err := lenient.Step(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 1)
	assert.Equal(t, []float64{0, 0}, lenient.T())
}

func TestStepContributionFailure(t *testing.T) {
	c, contrib := newTestController(t, 1, constant(1), Options{})
	contrib.err = errors.New("mesh not assembled")

	res, err := c.Step(context.Background(), true)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCandidateFound)
	assert.Equal(t, PhaseComputingContributions, res.Phase)
}

func TestStepTimesSections(t *testing.T) {
	c, _ := newTestController(t, 1, parabola(3, 1), Options{Ti: 1})
	_, err := c.Step(context.Background(), true)
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range c.Timer().Sections() {
		names[s.Name] = s.Calls
	}
	assert.Equal(t, map[string]int{"find_ortho_min": 1, "compute_contributions": 1, "screening": 1}, names)
}

func TestNewControllerValidation(t *testing.T) {
	_, err := NewController(0, &fakeContributor{}, constant(1), Options{})
	assert.Error(t, err)

	_, err = NewController(1, nil, constant(1), Options{})
	assert.Error(t, err)

	c, err := NewController(3, &fakeContributor{}, constant(1), Options{Ti: 0.25})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.25, 0.25}, c.T())
	assert.Equal(t, []float64{0.25, 0.25, 0.25}, c.Guess())
	assert.InDelta(t, 0.25*math.Sqrt(3), c.L2NormT(), 1e-15)
}

func TestSetTDimensionMismatch(t *testing.T) {
	c, _ := newTestController(t, 2, constant(1), Options{})
	assert.Error(t, c.SetT([]float64{1}))
	assert.Error(t, c.SetGuess([]float64{1, 2, 3}))
	require.NoError(t, c.SetT([]float64{3, 4}))
	assert.InDelta(t, 5.0, c.L2NormT(), 1e-15)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "screening", PhaseScreening.String())
	assert.Equal(t, "done", PhaseDone.String())
	assert.Equal(t, "unknown", Phase(99).String())
}
