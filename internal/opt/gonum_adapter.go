package opt

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// GonumNelderMead wraps gonum's Nelder–Mead to conform to our LocalMinimizer
// interface. Convergence is judged on function values rather than simplex size.
type GonumNelderMead struct {
	stepSize      float64
	tolerance     float64
	maxIterations int
}

// NewGonumNelderMead creates a gonum-backed local minimizer
func NewGonumNelderMead(stepSize, tolerance float64, maxIterations int) LocalMinimizer {
	return &GonumNelderMead{
		stepSize:      stepSize,
		tolerance:     tolerance,
		maxIterations: maxIterations,
	}
}

// Minimize runs gonum's optimize.Minimize from x0
func (g *GonumNelderMead) Minimize(ctx context.Context, f Objective, x0 []float64) (Result, error) {
	var evalErr error

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if evalErr != nil {
				return math.Inf(1)
			}
			v, err := f(x)
			if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
				err = ErrNonFinite
			}
			if err != nil {
				evalErr = err
				return math.Inf(1)
			}
			return v
		},
		Status: func() (optimize.Status, error) {
			if evalErr != nil {
				return optimize.Failure, evalErr
			}
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	settings := &optimize.Settings{
		MajorIterations: g.maxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   g.tolerance,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: g.stepSize})
	if result == nil {
		return Result{Status: StatusFailed}, fmt.Errorf("%w: %w", ErrMinimizerFailure, err)
	}

	res := Result{
		X:          append([]float64(nil), result.X...),
		F:          result.F,
		Iterations: result.MajorIterations,
	}

	switch {
	case evalErr != nil:
		res.Status = StatusFailed
		return res, fmt.Errorf("%w: %w", ErrMinimizerFailure, evalErr)
	case err != nil:
		res.Status = StatusFailed
		return res, fmt.Errorf("%w: %w", ErrMinimizerFailure, err)
	case result.Status == optimize.IterationLimit:
		res.Status = StatusContinue
		return res, nil
	}

	res.Status = StatusSuccess
	return res, nil
}
