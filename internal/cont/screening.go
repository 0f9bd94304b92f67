package cont

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cwbudde/gpcont/internal/opt"
)

const (
	// DefaultSeedCount is the number of seeds per screening round
	DefaultSeedCount = 5
	// DefaultSpread is the half-width of the seeding box
	DefaultSpread = 20.0
)

// ScreenStats summarizes one screening round
type ScreenStats struct {
	Seeds     int `json:"seeds"`
	Failed    int `json:"failed"`
	Exhausted int `json:"exhausted"`
	Zero      int `json:"zero"`
	Kept      int `json:"kept"`
}

// Screener runs the local minimizer from several seeds and collects the
// non-trivial results in its candidate list.
type Screener struct {
	List      *CandidateList
	Minimizer opt.LocalMinimizer
	SeedCount int
	Spread    float64

	// ZeroTolerance bounds both trivial objective values and trivial coordinates
	ZeroTolerance float64

	// Workers is the number of concurrent minimizer runs (<= 1 runs sequentially)
	Workers int

	Logger *slog.Logger
}

type seedResult struct {
	res opt.Result
	err error
}

// Screen reseeds the list around base, minimizes f from every seed and drops
// failed and trivial results. Per-seed failures are absorbed; only context
// cancellation is returned.
func (s *Screener) Screen(ctx context.Context, f opt.Objective, base []float64) (ScreenStats, error) {
	logger := s.logger()

	s.List.Reset(base, s.SeedCount, s.Spread)
	n := s.List.Len()
	stats := ScreenStats{Seeds: n}

	seeds := make([][]float64, n)
	for i := range seeds {
		seeds[i] = s.List.At(i).Seed
	}

	results := s.run(ctx, f, seeds)
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	failed := make([]bool, n)
	for i, r := range results {
		c := s.List.At(i)
		c.T = r.res.X
		c.F = r.res.F
		c.Status = r.res.Status
		c.Iterations = r.res.Iterations

		switch {
		case r.err != nil:
			failed[i] = true
			stats.Failed++
			logger.Warn("Seed minimization failed", "seed", c.Seed, "error", r.err)
		case r.res.Status == opt.StatusContinue:
			stats.Exhausted++
			logger.Debug("Seed minimization hit iteration budget", "seed", c.Seed, "t", c.T, "f", c.F)
		}

		if !failed[i] && c.L2NormT() < s.ZeroTolerance {
			c.Flag = true
			c.Status = opt.StatusZeroSolution
		}
		s.List.Set(i, c)
	}

	s.List.Filter(func(c Candidate) bool {
		return c.Status != opt.StatusFailed
	})
	stats.Zero = s.List.RemoveZero(s.ZeroTolerance)
	stats.Kept = s.List.Len()

	logger.Debug("Screening complete",
		"seeds", stats.Seeds,
		"failed", stats.Failed,
		"exhausted", stats.Exhausted,
		"zero", stats.Zero,
		"kept", stats.Kept,
	)
	return stats, nil
}

// run minimizes from every seed. Each run only touches its own result slot.
func (s *Screener) run(ctx context.Context, f opt.Objective, seeds [][]float64) []seedResult {
	results := make([]seedResult, len(seeds))

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(seeds) {
		workers = len(seeds)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := s.Minimizer.Minimize(ctx, f, seeds[i])
				if err == nil && res.Status == opt.StatusFailed {
					err = opt.ErrMinimizerFailure
				}
				results[i] = seedResult{res: res, err: err}
			}
		}()
	}

	for i := range seeds {
		if ctx.Err() != nil {
			results[i] = seedResult{res: opt.Result{Status: opt.StatusFailed}, err: ctx.Err()}
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (s *Screener) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

