package evo

import (
	"fmt"
	"math/rand"

	"weasel/internal/model"
)

// Mutator perturbs a single genome, returning a new value. The input is
// never modified.
type Mutator interface {
	Name() string
	Mutate(rng *rand.Rand, genome model.Genome) (model.Genome, error)
}

// ResampleMutator replaces each symbol position independently with
// probability Rate by a fresh uniform draw from the alphabet. The
// replacement may coincidentally equal the original symbol; that is the
// intended per-symbol resampling model, so even Rate 1 can leave positions
// visibly unchanged with probability 1/|alphabet| each.
type ResampleMutator struct {
	Rate     float64
	Alphabet Alphabet
}

func (ResampleMutator) Name() string {
	return "resample"
}

func (m ResampleMutator) Mutate(rng *rand.Rand, genome model.Genome) (model.Genome, error) {
	if m.Rate < 0 || m.Rate > 1 {
		return model.Genome{}, fmt.Errorf("%w: mutation rate must be in [0, 1], got %v", ErrInvalidParameter, m.Rate)
	}
	if m.Alphabet.Len() == 0 {
		return model.Genome{}, fmt.Errorf("%w: mutator alphabet must not be empty", ErrInvalidParameter)
	}
	if m.Rate == 0 {
		return genome, nil
	}

	letters := []byte(genome.Letters)
	for i := range letters {
		if rng.Float64() < m.Rate {
			letters[i] = m.Alphabet.Pick(rng)
		}
	}
	return model.Genome{ID: genome.ID, Letters: string(letters)}, nil
}

// MutatePopulation applies the mutator independently to every genome.
// Cached fitness for the inputs is void afterwards; callers must re-evaluate
// before the next selection.
func MutatePopulation(rng *rand.Rand, mutator Mutator, population []model.Genome) ([]model.Genome, error) {
	mutated := make([]model.Genome, len(population))
	for i, genome := range population {
		next, err := mutator.Mutate(rng, genome)
		if err != nil {
			return nil, err
		}
		mutated[i] = next
	}
	return mutated, nil
}

// WeightedMutation pairs a mutator with a sampling weight for runs that mix
// several mutation operators.
type WeightedMutation struct {
	Operator Mutator
	Weight   float64
}
