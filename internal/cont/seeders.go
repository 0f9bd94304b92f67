package cont

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/cwbudde/gpcont/internal/opt"
)

// Seeder generates starting coordinates around a base guess.
type Seeder interface {
	Seeds(base []float64, count int, spread float64) [][]float64
}

// GridSeeder places seeds on an evenly spaced grid over [-spread, spread].
// Axis j uses the grid shifted cyclically by j so that seeds in more than
// one dimension do not all lie on the diagonal.
type GridSeeder struct{}

// Seeds implements Seeder
func (GridSeeder) Seeds(base []float64, count int, spread float64) [][]float64 {
	offsets := make([]float64, count)
	for i := range offsets {
		if count > 1 {
			offsets[i] = -1 + 2*float64(i)/float64(count-1)
		}
	}

	seeds := make([][]float64, count)
	for i := range seeds {
		seeds[i] = make([]float64, len(base))
		for j, b := range base {
			seeds[i][j] = b + spread*offsets[(i+j)%count]
		}
	}
	return seeds
}

// RandomSeeder draws seeds uniformly from the box base ± spread.
type RandomSeeder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSeeder creates a reproducible random seeder
func NewRandomSeeder(seed int64) *RandomSeeder {
	return &RandomSeeder{rng: rand.New(rand.NewSource(seed))}
}

// Seeds implements Seeder
func (r *RandomSeeder) Seeds(base []float64, count int, spread float64) [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	seeds := make([][]float64, count)
	for i := range seeds {
		seeds[i] = make([]float64, len(base))
		for j, b := range base {
			seeds[i][j] = b + spread*(2*r.rng.Float64()-1)
		}
	}
	return seeds
}

// MayflySeeder runs a bounded global search over base ± spread and uses the
// best point found as the first seed. The remaining seeds come from fallback.
type MayflySeeder struct {
	optimizer opt.Optimizer
	objective opt.Objective
	fallback  Seeder
}

// NewMayflySeeder creates a seeder backed by a global optimizer
func NewMayflySeeder(optimizer opt.Optimizer, objective opt.Objective, fallback Seeder) *MayflySeeder {
	if fallback == nil {
		fallback = GridSeeder{}
	}
	return &MayflySeeder{
		optimizer: optimizer,
		objective: objective,
		fallback:  fallback,
	}
}

// Seeds implements Seeder
func (m *MayflySeeder) Seeds(base []float64, count int, spread float64) [][]float64 {
	if count <= 0 {
		return nil
	}

	dim := len(base)
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for j, b := range base {
		lower[j] = b - spread
		upper[j] = b + spread
	}

	// The global search cannot abort, so failed evaluations are steered away from
	eval := func(x []float64) float64 {
		v, err := m.objective(x)
		if err != nil || math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}

	best, cost := m.optimizer.Run(eval, lower, upper, dim)
	slog.Debug("Global seed search complete", "seed", best, "cost", cost)

	seeds := [][]float64{best}
	if count > 1 {
		seeds = append(seeds, m.fallback.Seeds(base, count-1, spread)...)
	}
	return seeds
}
