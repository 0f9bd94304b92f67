package cont

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// MuSetter is implemented by collaborators whose contributions depend on the
// continuation parameter mu.
type MuSetter interface {
	SetMu(mu float64)
}

// StepReport is emitted after every step of a Runner
type StepReport struct {
	Step      int        `json:"step"`
	Mu        float64    `json:"mu"`
	T         []float64  `json:"t"`
	Guess     []float64  `json:"guess"`
	Result    StepResult `json:"result"`
	Scalars   Scalars    `json:"scalars"`
	Found     bool       `json:"found"`
	Elapsed   float64    `json:"elapsed"` // seconds
	Timestamp time.Time  `json:"timestamp"`
}

// Runner is the enclosing continuation loop: it advances mu by DMu for Steps
// steps and runs one controller step for each value.
type Runner struct {
	Controller *Controller
	Model      MuSetter

	// Start is the index of the first step, non-zero when resuming
	Start int
	Steps int
	Mu    float64
	DMu   float64

	Strict bool

	// TrackGuess moves the screening guess to every newly accepted vector
	TrackGuess bool

	// OnStep is called after each step; a returned error stops the run
	OnStep func(StepReport) error

	Logger *slog.Logger
}

// RunSummary is returned by Run
type RunSummary struct {
	Steps      int       `json:"steps"`
	Found      int       `json:"found"`
	NotFound   int       `json:"notFound"`
	FinalMu    float64   `json:"finalMu"`
	FinalT     []float64 `json:"finalT"`
	FinalCount int       `json:"finalCounter"`
}

// Run executes the continuation loop. Steps without a candidate are recorded
// and the loop continues with the unchanged vector; any other step error
// aborts the run.
func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	summary := RunSummary{}
	mu := r.Mu
	for n := r.Start; n < r.Steps; n++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if r.Model != nil {
			r.Model.SetMu(mu)
		}

		start := time.Now()
		res, err := r.Controller.Step(ctx, r.Strict)
		found := err == nil
		if err != nil && !errors.Is(err, ErrNoCandidateFound) {
			return summary, fmt.Errorf("step %d (mu=%g): %w", n, mu, err)
		}

		summary.Steps++
		if found {
			summary.Found++
			if r.TrackGuess {
				if err := r.Controller.SetGuess(r.Controller.T()); err != nil {
					return summary, err
				}
			}
		} else {
			summary.NotFound++
			logger.Warn("Step produced no candidate", "step", n, "mu", mu)
		}

		report := StepReport{
			Step:      n,
			Mu:        mu,
			T:         r.Controller.T(),
			Guess:     r.Controller.Guess(),
			Result:    res,
			Scalars:   r.Controller.Scalars(),
			Found:     found,
			Elapsed:   time.Since(start).Seconds(),
			Timestamp: time.Now(),
		}
		if r.OnStep != nil {
			if err := r.OnStep(report); err != nil {
				return summary, fmt.Errorf("step %d callback: %w", n, err)
			}
		}

		mu += r.DMu
	}

	summary.FinalMu = mu
	summary.FinalT = r.Controller.T()
	summary.FinalCount = r.Controller.Scalars().Counter

	logger.Info("Continuation run complete",
		"steps", summary.Steps,
		"found", summary.Found,
		"not_found", summary.NotFound,
		"final_mu", summary.FinalMu,
		"final_t", summary.FinalT,
	)
	return summary, nil
}
