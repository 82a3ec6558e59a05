package evo

import (
	"fmt"

	"weasel/internal/model"
)

// Evaluator scores a candidate genome. Higher is better; MaxScore is the
// score of a perfect candidate. Implementations must be pure so the engine
// can evaluate individuals concurrently.
type Evaluator interface {
	Name() string
	MaxScore() int
	Score(candidate model.Genome) (int, error)
}

// HammingEvaluator scores a candidate by the number of positions at which
// it matches the target. Range [0, target length]; the maximum signals an
// exact match.
type HammingEvaluator struct {
	Target model.Genome
}

func (HammingEvaluator) Name() string {
	return "hamming"
}

func (e HammingEvaluator) MaxScore() int {
	return e.Target.Length()
}

func (e HammingEvaluator) Score(candidate model.Genome) (int, error) {
	if candidate.Length() != e.Target.Length() {
		return 0, fmt.Errorf("%w: candidate %d vs target %d", ErrLengthMismatch, candidate.Length(), e.Target.Length())
	}
	score := 0
	for i := 0; i < len(candidate.Letters); i++ {
		if candidate.Letters[i] == e.Target.Letters[i] {
			score++
		}
	}
	return score, nil
}
