package opt

import (
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface.
// The library only supports one scalar bound pair, so the search runs in the
// unit cube and is mapped onto the per-axis bounds on every evaluation.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	scaled := make([]float64, dim)
	toBox := func(u []float64) []float64 {
		for i := 0; i < dim; i++ {
			scaled[i] = lower[i] + u[i]*(upper[i]-lower[i])
		}
		return scaled
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 {
		return eval(toBox(u))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the box center
		center := make([]float64, dim)
		for i := range center {
			center[i] = 0.5
		}
		best := append([]float64(nil), toBox(center)...)
		return best, eval(best)
	}

	best := append([]float64(nil), toBox(result.GlobalBest.Position)...)
	return best, result.GlobalBest.Cost
}
