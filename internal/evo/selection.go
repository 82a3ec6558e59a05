package evo

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"weasel/internal/model"
)

// ScoredGenome pairs a genome with its fitness at the time of evaluation.
type ScoredGenome struct {
	Genome  model.Genome
	Fitness int
}

// Rank orders a scored population by fitness descending. The sort is stable
// so ties keep their original order and runs stay deterministic under a
// fixed seed. The input is not modified.
func Rank(scored []ScoredGenome) []ScoredGenome {
	ranked := make([]ScoredGenome, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}

// Rounding selects how a selection fraction maps onto a breeding-stock
// count.
type Rounding int

const (
	// RoundDown truncates fraction*size. With the default 0.5 fraction an
	// odd population loses the exact-middle individual.
	RoundDown Rounding = iota
	// RoundUp keeps ceil(fraction*size) individuals.
	RoundUp
)

// Selector filters a fitness-descending ranking down to breeding stock.
// Implementations must not mutate the input.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, ranked []ScoredGenome) ([]ScoredGenome, error)
}

// TruncationSelector keeps the top share of the ranking.
type TruncationSelector struct {
	Fraction float64
	Rounding Rounding
}

func (TruncationSelector) Name() string {
	return "truncation"
}

func (s TruncationSelector) Select(_ *rand.Rand, ranked []ScoredGenome) ([]ScoredGenome, error) {
	if len(ranked) == 0 {
		return nil, fmt.Errorf("select: %w", ErrEmptyPopulation)
	}
	if s.Fraction <= 0 || s.Fraction > 1 {
		return nil, fmt.Errorf("%w: selection fraction must be in (0, 1], got %v", ErrInvalidParameter, s.Fraction)
	}

	keep := int(s.Fraction * float64(len(ranked)))
	if s.Rounding == RoundUp {
		keep = int(math.Ceil(s.Fraction * float64(len(ranked))))
	}
	if keep > len(ranked) {
		keep = len(ranked)
	}

	stock := make([]ScoredGenome, keep)
	copy(stock, ranked[:keep])
	return stock, nil
}

// TournamentSelector fills the breeding stock by repeated tournaments: each
// slot samples Size candidates uniformly from the ranking and keeps the
// fittest. The stock may contain duplicates, which raises selection
// pressure without discarding the tail outright.
type TournamentSelector struct {
	Fraction float64
	Size     int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) Select(rng *rand.Rand, ranked []ScoredGenome) ([]ScoredGenome, error) {
	if len(ranked) == 0 {
		return nil, fmt.Errorf("select: %w", ErrEmptyPopulation)
	}
	if s.Fraction <= 0 || s.Fraction > 1 {
		return nil, fmt.Errorf("%w: selection fraction must be in (0, 1], got %v", ErrInvalidParameter, s.Fraction)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidParameter)
	}

	size := s.Size
	if size <= 0 {
		size = 3
	}
	if size > len(ranked) {
		size = len(ranked)
	}

	keep := int(s.Fraction * float64(len(ranked)))
	stock := make([]ScoredGenome, 0, keep)
	for len(stock) < keep {
		best := ranked[rng.Intn(len(ranked))]
		for i := 1; i < size; i++ {
			candidate := ranked[rng.Intn(len(ranked))]
			if candidate.Fitness > best.Fitness {
				best = candidate
			}
		}
		stock = append(stock, best)
	}
	return stock, nil
}
