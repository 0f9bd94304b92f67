package opt

import (
	"context"
	"errors"
)

// Objective maps a parameter vector to a scalar value. It must not modify x.
type Objective func(x []float64) (float64, error)

// Optimizer defines a bounded global optimization algorithm interface
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: parameter bounds
	// dim: dimensionality of parameter space
	// Returns: best parameters and best cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// LocalMinimizer refines a single starting point without gradient information.
type LocalMinimizer interface {
	// Minimize runs from x0 until convergence, failure or the iteration budget.
	// A FAILED run returns a non-nil error wrapping ErrMinimizerFailure.
	Minimize(ctx context.Context, f Objective, x0 []float64) (Result, error)
}

// Status is the terminal state of a minimizer run.
type Status int

const (
	// StatusSuccess means the simplex size fell below the tolerance.
	StatusSuccess Status = iota
	// StatusFailed means an iteration step could not be completed.
	StatusFailed
	// StatusZeroSolution marks a run that collapsed onto the trivial solution.
	StatusZeroSolution
	// StatusContinue means the iteration budget ran out first. The point is
	// still usable.
	StatusContinue
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusZeroSolution:
		return "zero_solution"
	case StatusContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// Result holds the output of a local minimization run
type Result struct {
	X      []float64
	F      float64
	Status Status

	// Iterations is the number of completed iteration steps
	Iterations int

	// BestIteration is the iteration at which F was last improved (0 = start point)
	BestIteration int

	// Size is the simplex size metric at termination
	Size float64
}

var (
	// ErrMinimizerFailure is wrapped by every FAILED minimizer run.
	ErrMinimizerFailure = errors.New("minimizer iteration failed")

	// ErrNonFinite is returned when the objective yields NaN or Inf.
	ErrNonFinite = errors.New("objective returned a non-finite value")
)
