package evo

import (
	"errors"
	"math/rand"
	"testing"

	"weasel/internal/model"
)

func scoredFixture(fitness ...int) []ScoredGenome {
	out := make([]ScoredGenome, len(fitness))
	for i, f := range fitness {
		out[i] = ScoredGenome{
			Genome:  model.Genome{ID: string(rune('a' + i)), Letters: "x"},
			Fitness: f,
		}
	}
	return out
}

func TestRankIsStableOnTies(t *testing.T) {
	scored := scoredFixture(3, 5, 3, 5, 1)
	ranked := Rank(scored)

	wantIDs := []string{"b", "d", "a", "c", "e"}
	for i, want := range wantIDs {
		if ranked[i].Genome.ID != want {
			t.Fatalf("rank position %d: got %q, want %q", i, ranked[i].Genome.ID, want)
		}
	}
	// Input order untouched.
	if scored[0].Genome.ID != "a" {
		t.Fatal("Rank must not reorder its input")
	}
}

func TestTruncationRounding(t *testing.T) {
	cases := []struct {
		size     int
		fraction float64
		rounding Rounding
		want     int
	}{
		{size: 10, fraction: 0.5, rounding: RoundDown, want: 5},
		{size: 9, fraction: 0.5, rounding: RoundDown, want: 4},
		{size: 9, fraction: 0.5, rounding: RoundUp, want: 5},
		{size: 1, fraction: 0.5, rounding: RoundDown, want: 0},
		{size: 1, fraction: 0.5, rounding: RoundUp, want: 1},
		{size: 6, fraction: 1, rounding: RoundDown, want: 6},
	}
	for _, tc := range cases {
		fitness := make([]int, tc.size)
		for i := range fitness {
			fitness[i] = tc.size - i
		}
		selector := TruncationSelector{Fraction: tc.fraction, Rounding: tc.rounding}
		stock, err := selector.Select(nil, scoredFixture(fitness...))
		if err != nil {
			t.Fatalf("select size=%d fraction=%v: %v", tc.size, tc.fraction, err)
		}
		if len(stock) != tc.want {
			t.Fatalf("size=%d fraction=%v rounding=%v: kept %d, want %d", tc.size, tc.fraction, tc.rounding, len(stock), tc.want)
		}
	}
}

func TestTruncationKeepsTopAndNeverInvents(t *testing.T) {
	scored := scoredFixture(1, 9, 4, 7, 2, 8)
	ranked := Rank(scored)
	stock, err := TruncationSelector{Fraction: 0.5}.Select(nil, ranked)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(stock) != 3 {
		t.Fatalf("expected 3 survivors, got %d", len(stock))
	}
	wantIDs := map[string]bool{"b": true, "f": true, "d": true}
	for _, item := range stock {
		if !wantIDs[item.Genome.ID] {
			t.Fatalf("unexpected survivor %q", item.Genome.ID)
		}
	}
}

func TestTruncationParameterDomain(t *testing.T) {
	ranked := scoredFixture(1, 2)
	for _, fraction := range []float64{0, -0.1, 1.01} {
		if _, err := (TruncationSelector{Fraction: fraction}).Select(nil, ranked); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("fraction %v: expected ErrInvalidParameter, got %v", fraction, err)
		}
	}
	if _, err := (TruncationSelector{Fraction: 0.5}).Select(nil, nil); !errors.Is(err, ErrEmptyPopulation) {
		t.Fatalf("expected ErrEmptyPopulation, got %v", err)
	}
}

func TestTournamentStockMembershipAndSize(t *testing.T) {
	ranked := Rank(scoredFixture(5, 3, 9, 1, 7, 2, 8, 4))
	rng := rand.New(rand.NewSource(9))
	selector := TournamentSelector{Fraction: 0.5, Size: 3}

	stock, err := selector.Select(rng, ranked)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(stock) != 4 {
		t.Fatalf("expected stock of 4, got %d", len(stock))
	}
	members := map[string]bool{}
	for _, item := range ranked {
		members[item.Genome.ID] = true
	}
	for _, item := range stock {
		if !members[item.Genome.ID] {
			t.Fatalf("tournament invented individual %q", item.Genome.ID)
		}
	}
	if len(stock) > len(ranked) {
		t.Fatal("selection must never increase population size")
	}
}

func TestTournamentRequiresRNG(t *testing.T) {
	if _, err := (TournamentSelector{Fraction: 0.5}).Select(nil, scoredFixture(1, 2)); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}
