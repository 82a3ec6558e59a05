package evo

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"weasel/internal/model"
)

func TestResampleRateZeroIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	mutator := ResampleMutator{Rate: 0, Alphabet: Printable()}

	for i := 0; i < 10; i++ {
		genome := RandomGenome(rng, 32, Printable())
		mutated, err := mutator.Mutate(rng, genome)
		if err != nil {
			t.Fatalf("mutate: %v", err)
		}
		if mutated.Letters != genome.Letters {
			t.Fatalf("rate 0 changed %q to %q", genome.Letters, mutated.Letters)
		}
	}
}

func TestResampleRateOneResamplesEveryPosition(t *testing.T) {
	alphabet, err := NewAlphabet("AB")
	if err != nil {
		t.Fatalf("new alphabet: %v", err)
	}
	rng := rand.New(rand.NewSource(22))
	genome := model.Genome{Letters: strings.Repeat("A", 4000)}

	mutated, err := ResampleMutator{Rate: 1, Alphabet: alphabet}.Mutate(rng, genome)
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	// Every position was resampled, so the unchanged fraction should sit
	// near 1/|alphabet| = 0.5, not near 1.
	unchanged := 0
	for i := 0; i < len(genome.Letters); i++ {
		if mutated.Letters[i] == genome.Letters[i] {
			unchanged++
		}
	}
	fraction := float64(unchanged) / float64(len(genome.Letters))
	if fraction < 0.4 || fraction > 0.6 {
		t.Fatalf("unchanged fraction %v, want near 0.5", fraction)
	}
}

func TestResampleDoesNotMutateInput(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	genome := model.Genome{ID: "g", Letters: "AAAAAAAA"}
	if _, err := (ResampleMutator{Rate: 1, Alphabet: Printable()}).Mutate(rng, genome); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if genome.Letters != "AAAAAAAA" {
		t.Fatal("mutator modified its input genome")
	}
}

func TestResampleRateDomain(t *testing.T) {
	rng := rand.New(rand.NewSource(24))
	for _, rate := range []float64{-0.01, 1.01} {
		mutator := ResampleMutator{Rate: rate, Alphabet: Printable()}
		if _, err := mutator.Mutate(rng, model.Genome{Letters: "A"}); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("rate %v: expected ErrInvalidParameter, got %v", rate, err)
		}
	}
	mutator := ResampleMutator{Rate: 0.5}
	if _, err := mutator.Mutate(rng, model.Genome{Letters: "A"}); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("empty alphabet: expected ErrInvalidParameter, got %v", err)
	}
}

func TestMutatePopulationAppliesToEveryGenome(t *testing.T) {
	alphabet, err := NewAlphabet("AB")
	if err != nil {
		t.Fatalf("new alphabet: %v", err)
	}
	rng := rand.New(rand.NewSource(25))
	population := []model.Genome{
		{ID: "a", Letters: strings.Repeat("A", 200)},
		{ID: "b", Letters: strings.Repeat("A", 200)},
		{ID: "c", Letters: strings.Repeat("A", 200)},
	}

	mutated, err := MutatePopulation(rng, ResampleMutator{Rate: 1, Alphabet: alphabet}, population)
	if err != nil {
		t.Fatalf("mutate population: %v", err)
	}
	if len(mutated) != len(population) {
		t.Fatalf("expected %d genomes, got %d", len(population), len(mutated))
	}
	for i, genome := range mutated {
		if genome.ID != population[i].ID {
			t.Fatalf("genome %d lost its id", i)
		}
		if genome.Letters == population[i].Letters {
			t.Fatalf("genome %d survived rate-1 resampling over 200 positions untouched", i)
		}
	}
}
