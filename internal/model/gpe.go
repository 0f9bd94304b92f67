// Package model provides a reference collaborator for the continuation
// controller: the grand-canonical Gross–Pitaevskii energy of a 1D condensate
// in a harmonic trap, restricted to a few Hermite-function modes.
//
// With ψ(x) = Σ_k t_k φ_{n_k}(x) the objective is
//
//	E(t) = ∫ ½|ψ'|² + (V − μ)|ψ|² + (g/2)|ψ|⁴ dx,  V = ½ω²x²
//
// whose stationary points are stationary states of the projected equation.
// The trivial state t = 0 always has E = 0.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// ErrNotAssembled is returned by Evaluate before the first ComputeContributions
var ErrNotAssembled = errors.New("contributions not computed")

// Params describes the discretization and physics of a GPE model
type Params struct {
	Omega            float64
	G                float64
	Mu               float64
	XMin, XMax       float64
	GlobalRefinement int

	// FirstMode is the quantum number of the lowest basis function
	FirstMode int

	// Modes is the number of basis functions, i.e. the parameter dimension
	Modes int
}

// Validate checks the parameters for obvious mistakes
func (p Params) Validate() error {
	switch {
	case p.Omega <= 0:
		return fmt.Errorf("omega must be positive, got %g", p.Omega)
	case p.XMax <= p.XMin:
		return fmt.Errorf("empty x range [%g, %g]", p.XMin, p.XMax)
	case p.GlobalRefinement < 1 || p.GlobalRefinement > 20:
		return fmt.Errorf("global refinement must be in [1, 20], got %d", p.GlobalRefinement)
	case p.FirstMode < 0:
		return fmt.Errorf("first mode must be non-negative, got %d", p.FirstMode)
	case p.Modes < 1:
		return fmt.Errorf("at least one mode required, got %d", p.Modes)
	}
	return nil
}

// GPE assembles and evaluates the projected energy functional. Evaluate may be
// called concurrently; ComputeContributions excludes all evaluations while it
// rebuilds the operator.
type GPE struct {
	mu     sync.RWMutex
	params Params

	x          []float64  // grid nodes
	w          []float64  // trapezoid weights
	basis      *mat.Dense // nodes × modes
	linear     *mat.SymDense
	ready      bool
	assemblies int
}

// NewGPE creates a model; the grid is built by the first ComputeContributions
func NewGPE(p Params) (*GPE, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &GPE{params: p}, nil
}

// SetMu changes the chemical potential. It takes effect at the next
// ComputeContributions.
func (m *GPE) SetMu(mu float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params.Mu = mu
}

// Params returns the current parameters
func (m *GPE) Params() Params {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

// Cells returns the number of grid cells
func (m *GPE) Cells() int {
	return 1 << m.params.GlobalRefinement
}

// ComputeContributions builds the grid, basis and linear operator
// L_kl = ∫ ½φ_k'φ_l' + (V − μ)φ_kφ_l for the current parameters.
func (m *GPE) ComputeContributions(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.params
	cells := 1 << p.GlobalRefinement
	nodes := cells + 1
	h := (p.XMax - p.XMin) / float64(cells)

	if len(m.x) != nodes {
		m.x = make([]float64, nodes)
		m.w = make([]float64, nodes)
	}
	for i := range m.x {
		m.x[i] = p.XMin + float64(i)*h
		m.w[i] = h
	}
	m.w[0], m.w[nodes-1] = h/2, h/2

	phi, dphi := hermiteBasis(m.x, p.Omega, p.FirstMode, p.Modes)
	m.basis = phi

	m.linear = mat.NewSymDense(p.Modes, nil)
	for k := 0; k < p.Modes; k++ {
		for l := k; l < p.Modes; l++ {
			var sum float64
			for i, xi := range m.x {
				v := 0.5*p.Omega*p.Omega*xi*xi - p.Mu
				sum += m.w[i] * (0.5*dphi.At(i, k)*dphi.At(i, l) + v*phi.At(i, k)*phi.At(i, l))
			}
			m.linear.SetSym(k, l, sum)
		}
	}

	m.ready = true
	m.assemblies++
	slog.Debug("GPE contributions assembled", "mu", p.Mu, "nodes", nodes, "modes", p.Modes, "assembly", m.assemblies)
	return nil
}

// Evaluate returns E(t)
func (m *GPE) Evaluate(t []float64) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return math.NaN(), ErrNotAssembled
	}
	if len(t) != m.params.Modes {
		return math.NaN(), fmt.Errorf("expected %d coefficients, got %d", m.params.Modes, len(t))
	}

	tv := mat.NewVecDense(len(t), append([]float64(nil), t...))
	quadratic := mat.Inner(tv, m.linear, tv)

	var psi mat.VecDense
	psi.MulVec(m.basis, tv)

	var quartic float64
	for i, wi := range m.w {
		v := psi.AtVec(i)
		quartic += wi * v * v * v * v
	}
	return quadratic + 0.5*m.params.G*quartic, nil
}

// Norm returns ∫|ψ|² for the coefficients t, the particle number
func (m *GPE) Norm(t []float64) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return math.NaN(), ErrNotAssembled
	}
	tv := mat.NewVecDense(len(t), append([]float64(nil), t...))
	var psi mat.VecDense
	psi.MulVec(m.basis, tv)

	var n float64
	for i, wi := range m.w {
		v := psi.AtVec(i)
		n += wi * v * v
	}
	return n, nil
}

// hermiteBasis evaluates the harmonic-oscillator eigenfunctions φ_first..φ_first+modes-1
// and their derivatives at x.
func hermiteBasis(x []float64, omega float64, first, modes int) (*mat.Dense, *mat.Dense) {
	top := first + modes
	phi := mat.NewDense(len(x), modes, nil)
	dphi := mat.NewDense(len(x), modes, nil)

	norm := math.Pow(omega/math.Pi, 0.25)
	vals := make([]float64, top+1)
	for i, xi := range x {
		vals[0] = norm * math.Exp(-0.5*omega*xi*xi)
		if top >= 1 {
			vals[1] = math.Sqrt(2*omega) * xi * vals[0]
		}
		for n := 1; n < top; n++ {
			vals[n+1] = math.Sqrt(2*omega/float64(n+1))*xi*vals[n] - math.Sqrt(float64(n)/float64(n+1))*vals[n-1]
		}

		for k := 0; k < modes; k++ {
			n := first + k
			phi.Set(i, k, vals[n])

			d := -math.Sqrt(omega*float64(n+1)/2) * vals[n+1]
			if n > 0 {
				d += math.Sqrt(omega*float64(n)/2) * vals[n-1]
			}
			dphi.Set(i, k, d)
		}
	}
	return phi, dphi
}
