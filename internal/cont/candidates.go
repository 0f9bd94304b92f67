package cont

import (
	"math"

	"github.com/cwbudde/gpcont/internal/opt"
	"gonum.org/v1/gonum/floats"
)

// Candidate is a trial point in parameter space. It is owned by the
// CandidateList until the controller selects it.
type Candidate struct {
	// Seed is the starting coordinate handed to the minimizer
	Seed []float64 `json:"seed"`

	// T is the refined coordinate
	T []float64 `json:"t"`

	// F is the objective value at T, NaN until evaluated
	F float64 `json:"f"`

	// Flag marks a trivial (zero-amplitude) coordinate
	Flag bool `json:"flag,omitempty"`

	Status     opt.Status `json:"status"`
	Iterations int        `json:"iterations"`
}

// Evaluated reports whether F has been set by a minimizer run.
func (c Candidate) Evaluated() bool {
	return !math.IsNaN(c.F)
}

// L2NormT returns the Euclidean norm of the refined coordinate.
func (c Candidate) L2NormT() float64 {
	return floats.Norm(c.T, 2)
}

// CandidateList is an ordered, mutable collection of candidates.
// It is not safe for concurrent mutation; Screener writes results back
// from a single goroutine.
type CandidateList struct {
	items  []Candidate
	seeder Seeder
}

// NewCandidateList creates an empty list that reseeds with seeder.
// A nil seeder falls back to the deterministic grid.
func NewCandidateList(seeder Seeder) *CandidateList {
	if seeder == nil {
		seeder = GridSeeder{}
	}
	return &CandidateList{seeder: seeder}
}

// Reset clears the list and populates seedCount unevaluated candidates
// scattered within spread of base.
func (l *CandidateList) Reset(base []float64, seedCount int, spread float64) {
	l.items = l.items[:0]
	for _, seed := range l.seeder.Seeds(base, seedCount, spread) {
		l.items = append(l.items, Candidate{
			Seed: seed,
			T:    append([]float64(nil), seed...),
			F:    math.NaN(),
		})
	}
}

// Len returns the number of candidates
func (l *CandidateList) Len() int {
	return len(l.items)
}

// At returns a copy of the i-th candidate
func (l *CandidateList) At(i int) Candidate {
	return l.items[i]
}

// Set replaces the i-th candidate
func (l *CandidateList) Set(i int, c Candidate) {
	l.items[i] = c
}

// Items returns a copy of the candidates in list order.
func (l *CandidateList) Items() []Candidate {
	return append([]Candidate(nil), l.items...)
}

// Append adds a candidate at the end of the list.
func (l *CandidateList) Append(c Candidate) {
	l.items = append(l.items, c)
}

// Filter keeps the candidates for which keep returns true, preserving order,
// and returns the number removed.
func (l *CandidateList) Filter(keep func(Candidate) bool) int {
	n := 0
	for _, c := range l.items {
		if keep(c) {
			l.items[n] = c
			n++
		}
	}
	removed := len(l.items) - n
	clear(l.items[n:])
	l.items = l.items[:n]
	return removed
}

// RemoveZero drops every candidate whose |F| is below tol. Unevaluated
// candidates are dropped as well.
func (l *CandidateList) RemoveZero(tol float64) int {
	return l.Filter(func(c Candidate) bool {
		return c.Evaluated() && math.Abs(c.F) >= tol
	})
}

// RemoveDuplicates drops candidates lying within tol of an earlier survivor.
func (l *CandidateList) RemoveDuplicates(tol float64) int {
	var kept [][]float64
	return l.Filter(func(c Candidate) bool {
		for _, t := range kept {
			if floats.Distance(c.T, t, 2) < tol {
				return false
			}
		}
		kept = append(kept, c.T)
		return true
	})
}

// RemoveFlagged drops candidates carrying the exclusion flag.
func (l *CandidateList) RemoveFlagged() int {
	return l.Filter(func(c Candidate) bool {
		return !c.Flag
	})
}
