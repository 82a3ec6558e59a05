package evo

import (
	"fmt"
	"math/rand"

	"weasel/internal/model"
)

// Crossover combines two parent genomes into one child genome. The child
// carries no ID; the engine assigns one when it places the child in the
// next generation.
type Crossover interface {
	Name() string
	Cross(rng *rand.Rand, parent1, parent2 model.Genome) (model.Genome, error)
}

// SinglePoint draws a split index k uniformly from [0, length) and builds
// the child from parent1's [0, k) and parent2's [k, length). k=0 yields an
// all-parent2 child; k can never reach length, so at least the final symbol
// always comes from parent2.
type SinglePoint struct{}

func (SinglePoint) Name() string {
	return "single_point"
}

func (SinglePoint) Cross(rng *rand.Rand, parent1, parent2 model.Genome) (model.Genome, error) {
	if parent1.Length() != parent2.Length() {
		return model.Genome{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, parent1.Length(), parent2.Length())
	}
	length := parent1.Length()
	if length == 0 {
		return model.Genome{}, nil
	}
	k := rng.Intn(length)
	return model.Genome{Letters: parent1.Letters[:k] + parent2.Letters[k:]}, nil
}

// BredChild is one crossover result together with the stock indices of its
// parents, so callers can record lineage.
type BredChild struct {
	Genome  model.Genome
	Parent1 int
	Parent2 int
}

// Breed fills a new generation of exactly targetSize children. Each child's
// two parents are sampled independently and uniformly with replacement from
// the breeding stock; a single individual may serve as both parents, so a
// stock of one degenerates to self-crossover.
func Breed(rng *rand.Rand, crossover Crossover, stock []ScoredGenome, targetSize int) ([]BredChild, error) {
	if len(stock) == 0 {
		return nil, fmt.Errorf("breed: %w", ErrEmptyPopulation)
	}
	if targetSize < 0 {
		return nil, fmt.Errorf("%w: breed target size must be >= 0, got %d", ErrInvalidParameter, targetSize)
	}

	children := make([]BredChild, 0, targetSize)
	for i := 0; i < targetSize; i++ {
		p1 := rng.Intn(len(stock))
		p2 := rng.Intn(len(stock))
		child, err := crossover.Cross(rng, stock[p1].Genome, stock[p2].Genome)
		if err != nil {
			return nil, err
		}
		children = append(children, BredChild{Genome: child, Parent1: p1, Parent2: p2})
	}
	return children, nil
}
