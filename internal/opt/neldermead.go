package opt

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultStepSize is the per-axis offset of the initial simplex vertices
	DefaultStepSize = 1.0
	// DefaultSizeTolerance is the simplex size below which a run has converged
	DefaultSizeTolerance = 1e-10
	// DefaultMaxIterations caps a single run
	DefaultMaxIterations = 1000
)

// NelderMead is a derivative-free simplex minimizer. Each call to Minimize
// owns its own simplex, so one NelderMead can serve concurrent runs.
type NelderMead struct {
	StepSize      float64
	SizeTolerance float64
	MaxIterations int
}

// NewNelderMead creates a minimizer with the default step, tolerance and budget
func NewNelderMead() *NelderMead {
	return &NelderMead{
		StepSize:      DefaultStepSize,
		SizeTolerance: DefaultSizeTolerance,
		MaxIterations: DefaultMaxIterations,
	}
}

// simplex is the working state of one run.
type simplex struct {
	f      Objective
	x      [][]float64 // n+1 vertices
	fx     []float64
	center []float64 // scratch
	trial  []float64 // scratch
}

// Minimize runs the simplex iteration from x0.
func (nm *NelderMead) Minimize(ctx context.Context, f Objective, x0 []float64) (Result, error) {
	n := len(x0)
	if n == 0 {
		return Result{Status: StatusFailed}, fmt.Errorf("%w: empty starting point", ErrMinimizerFailure)
	}

	s, err := newSimplex(f, x0, nm.StepSize)
	if err != nil {
		return Result{X: append([]float64(nil), x0...), F: math.NaN(), Status: StatusFailed},
			fmt.Errorf("%w: initial simplex: %w", ErrMinimizerFailure, err)
	}

	lo := s.lowest()
	res := Result{Status: StatusContinue}
	bestF := s.fx[lo]

	for res.Iterations < nm.MaxIterations {
		if err := ctx.Err(); err != nil {
			return s.result(res, StatusFailed), fmt.Errorf("%w: %w", ErrMinimizerFailure, err)
		}

		res.Iterations++
		if err := s.iterate(); err != nil {
			slog.Debug("Simplex iteration failed", "iteration", res.Iterations, "error", err)
			return s.result(res, StatusFailed), fmt.Errorf("%w: %w", ErrMinimizerFailure, err)
		}

		if lo = s.lowest(); s.fx[lo] < bestF {
			bestF = s.fx[lo]
			res.BestIteration = res.Iterations
		}

		res.Size = s.size()
		if res.Size < nm.SizeTolerance {
			return s.result(res, StatusSuccess), nil
		}
	}

	return s.result(res, StatusContinue), nil
}

func newSimplex(f Objective, x0 []float64, step float64) (*simplex, error) {
	n := len(x0)
	s := &simplex{
		f:      f,
		x:      make([][]float64, n+1),
		fx:     make([]float64, n+1),
		center: make([]float64, n),
		trial:  make([]float64, n),
	}
	for i := range s.x {
		s.x[i] = append([]float64(nil), x0...)
		if i > 0 {
			s.x[i][i-1] += step
		}
		v, err := s.eval(s.x[i])
		if err != nil {
			return nil, err
		}
		s.fx[i] = v
	}
	return s, nil
}

func (s *simplex) eval(x []float64) (float64, error) {
	v, err := s.f(x)
	if err != nil {
		return math.NaN(), err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), ErrNonFinite
	}
	return v, nil
}

func (s *simplex) lowest() int {
	lo := 0
	for i, v := range s.fx {
		if v < s.fx[lo] {
			lo = i
		}
	}
	return lo
}

// rank returns the indices of the highest, second highest and lowest vertex.
func (s *simplex) rank() (hi, sHi, lo int) {
	if s.fx[0] > s.fx[1] {
		hi, sHi, lo = 0, 1, 1
	} else {
		hi, sHi, lo = 1, 0, 0
	}
	for i := 2; i < len(s.fx); i++ {
		v := s.fx[i]
		switch {
		case v <= s.fx[lo]:
			lo = i
		case v > s.fx[hi]:
			sHi, hi = hi, i
		case v > s.fx[sHi]:
			sHi = i
		}
	}
	return hi, sHi, lo
}

// moveCorner evaluates c + coeff*(x[corner]-c) where c is the centroid of the
// other vertices. coeff -1 reflects, -2 expands, 0.5 contracts.
func (s *simplex) moveCorner(coeff float64, corner int) ([]float64, float64, error) {
	n := len(s.center)
	for j := range s.center {
		s.center[j] = 0
	}
	for i, v := range s.x {
		if i != corner {
			floats.Add(s.center, v)
		}
	}
	floats.Scale(1/float64(n), s.center)

	floats.SubTo(s.trial, s.x[corner], s.center)
	floats.Scale(coeff, s.trial)
	floats.Add(s.trial, s.center)

	v, err := s.eval(s.trial)
	return s.trial, v, err
}

func (s *simplex) replace(i int, x []float64, v float64) {
	copy(s.x[i], x)
	s.fx[i] = v
}

func (s *simplex) iterate() error {
	hi, sHi, lo := s.rank()

	xr, fr, err := s.moveCorner(-1, hi)
	if err != nil {
		return err
	}

	switch {
	case fr < s.fx[lo]:
		xr = append([]float64(nil), xr...)
		xe, fe, err := s.moveCorner(-2, hi)
		if err != nil {
			return err
		}
		if fe < s.fx[lo] {
			s.replace(hi, xe, fe)
		} else {
			s.replace(hi, xr, fr)
		}

	case fr > s.fx[sHi]:
		if fr <= s.fx[hi] {
			s.replace(hi, xr, fr)
		}
		xc, fc, err := s.moveCorner(0.5, hi)
		if err != nil {
			return err
		}
		if fc <= s.fx[hi] {
			s.replace(hi, xc, fc)
		} else {
			return s.shrink(lo)
		}

	default:
		s.replace(hi, xr, fr)
	}
	return nil
}

// shrink contracts every vertex halfway toward the best one.
func (s *simplex) shrink(best int) error {
	for i := range s.x {
		if i == best {
			continue
		}
		floats.Add(s.x[i], s.x[best])
		floats.Scale(0.5, s.x[i])
		v, err := s.eval(s.x[i])
		if err != nil {
			return err
		}
		s.fx[i] = v
	}
	return nil
}

// size is the RMS distance of the vertices to their centroid.
func (s *simplex) size() float64 {
	for j := range s.center {
		s.center[j] = 0
	}
	for _, v := range s.x {
		floats.Add(s.center, v)
	}
	floats.Scale(1/float64(len(s.x)), s.center)

	var s2 float64
	for _, v := range s.x {
		d := floats.Distance(v, s.center, 2)
		s2 += d * d
	}
	return math.Sqrt(s2 / float64(len(s.x)))
}

func (s *simplex) result(res Result, status Status) Result {
	lo := s.lowest()
	res.X = append([]float64(nil), s.x[lo]...)
	res.F = s.fx[lo]
	res.Status = status
	return res
}
