package evo

import (
	"fmt"
	"math/rand"

	"weasel/internal/model"
)

// Alphabet is the finite symbol set genomes draw their letters from.
// The zero value is empty and unusable; construct one with NewAlphabet,
// ByteRange, or Printable.
type Alphabet struct {
	symbols []byte
}

// NewAlphabet builds an alphabet from an explicit symbol set. Symbols must
// be non-empty and free of duplicates.
func NewAlphabet(symbols string) (Alphabet, error) {
	if len(symbols) == 0 {
		return Alphabet{}, fmt.Errorf("%w: alphabet must not be empty", ErrInvalidParameter)
	}
	var seen [256]bool
	for i := 0; i < len(symbols); i++ {
		if seen[symbols[i]] {
			return Alphabet{}, fmt.Errorf("%w: duplicate alphabet symbol %q", ErrInvalidParameter, symbols[i])
		}
		seen[symbols[i]] = true
	}
	return Alphabet{symbols: []byte(symbols)}, nil
}

// ByteRange builds an alphabet covering the inclusive code-point range
// [lo, hi].
func ByteRange(lo, hi byte) (Alphabet, error) {
	if lo > hi {
		return Alphabet{}, fmt.Errorf("%w: alphabet range bounds out of order: [%d, %d]", ErrInvalidParameter, lo, hi)
	}
	symbols := make([]byte, 0, int(hi)-int(lo)+1)
	for c := int(lo); c <= int(hi); c++ {
		symbols = append(symbols, byte(c))
	}
	return Alphabet{symbols: symbols}, nil
}

// Printable is the default alphabet: printable ASCII, code points 32-126.
func Printable() Alphabet {
	a, _ := ByteRange(32, 126)
	return a
}

func (a Alphabet) Len() int {
	return len(a.symbols)
}

func (a Alphabet) String() string {
	return string(a.symbols)
}

// Pick draws one symbol uniformly at random.
func (a Alphabet) Pick(rng *rand.Rand) byte {
	return a.symbols[rng.Intn(len(a.symbols))]
}

// Contains reports whether c belongs to the alphabet.
func (a Alphabet) Contains(c byte) bool {
	for _, s := range a.symbols {
		if s == c {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every letter of s belongs to the alphabet.
func (a Alphabet) ContainsAll(s string) bool {
	for i := 0; i < len(s); i++ {
		if !a.Contains(s[i]) {
			return false
		}
	}
	return true
}

// RandomGenome produces a genome of the given length whose every symbol is
// drawn independently and uniformly from the alphabet. The caller assigns
// the ID.
func RandomGenome(rng *rand.Rand, length int, alphabet Alphabet) model.Genome {
	letters := make([]byte, length)
	for i := range letters {
		letters[i] = alphabet.Pick(rng)
	}
	return model.Genome{Letters: string(letters)}
}

// SeedPopulation produces size random genomes with deterministic IDs derived
// from the run prefix.
func SeedPopulation(rng *rand.Rand, runID string, size, length int, alphabet Alphabet) []model.Genome {
	population := make([]model.Genome, size)
	for i := range population {
		genome := RandomGenome(rng, length, alphabet)
		genome.ID = fmt.Sprintf("%s-g0-i%d", runID, i)
		population[i] = genome
	}
	return population
}

// EqualLetters compares two genomes symbol by symbol. Comparing genomes of
// unequal length is a construction bug and fails with ErrLengthMismatch.
func EqualLetters(a, b model.Genome) (bool, error) {
	if a.Length() != b.Length() {
		return false, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, a.Length(), b.Length())
	}
	return a.Letters == b.Letters, nil
}
