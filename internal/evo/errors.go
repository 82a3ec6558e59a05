package evo

import "errors"

var (
	// ErrLengthMismatch reports two genomes of unequal length reaching an
	// operation that requires equal lengths. It indicates a construction
	// bug, never an expected runtime condition.
	ErrLengthMismatch = errors.New("genome length mismatch")

	// ErrEmptyPopulation reports an operation that required at least one
	// individual and received none.
	ErrEmptyPopulation = errors.New("population is empty")

	// ErrInvalidParameter reports a configuration value outside its
	// documented domain. Detected during construction, before a run starts.
	ErrInvalidParameter = errors.New("invalid parameter")
)
