package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"weasel/internal/model"
)

// Command steers a running engine from outside. Commands are polled at
// generation boundaries.
type Command int

const (
	CommandPause Command = iota
	CommandContinue
	CommandStop
)

// Reason records how a run reached its terminal state.
type Reason string

const (
	ReasonSuccess         Reason = "success"
	ReasonGenerationLimit Reason = "generation_limit"
	ReasonTimeLimit       Reason = "time_limit"
	ReasonCancelled       Reason = "cancelled"
	ReasonStopped         Reason = "stopped"
)

const (
	DefaultMutationRate      = 0.01
	DefaultSelectionFraction = 0.5
)

// GenerationRecord is the per-generation observation emitted while a run is
// in flight: the generation index (0 for the initial population), the
// current fittest individual, and running totals.
type GenerationRecord struct {
	Generation  int
	Best        ScoredGenome
	MeanFitness float64
	Evaluations int
}

type ProgressFunc func(GenerationRecord)

type EngineConfig struct {
	RunID        string
	Evaluator    Evaluator
	Alphabet     Alphabet
	TargetLength int

	PopulationSize int

	// MutationRate configures the default ResampleMutator; zero selects
	// DefaultMutationRate. Pass an explicit Mutator for a true zero-rate
	// run.
	MutationRate float64
	Mutator      Mutator
	// MutationPolicy mixes several mutators by weight. When set it takes
	// precedence over Mutator for breeding, with Mutator as fallback.
	MutationPolicy []WeightedMutation

	// SelectionFraction configures the default TruncationSelector; zero
	// selects DefaultSelectionFraction.
	SelectionFraction float64
	SelectionRounding Rounding
	Selector          Selector

	Crossover Crossover

	// EliteCount individuals are carried unchanged into the next
	// generation. Zero disables elitism.
	EliteCount int

	// Generations bounds the number of breeding cycles; zero means
	// unbounded. MaxDuration bounds wall-clock time; zero means unbounded.
	Generations int
	MaxDuration time.Duration

	Seed    int64
	Workers int

	Progress ProgressFunc
	Control  chan Command
}

// RunResult is the termination report of a completed run.
type RunResult struct {
	BestByGeneration []int
	Diagnostics      []model.GenerationDiagnostics
	Lineage          []model.LineageRecord
	FinalPopulation  []ScoredGenome
	Best             ScoredGenome
	Generations      int
	Evaluations      int
	Reason           Reason
}

// Engine runs the generational loop: evaluate, rank, select, breed, mutate.
// All stochastic decisions outside fitness evaluation flow through a single
// seeded generator, so runs are reproducible; fitness evaluation is pure and
// fans out across workers without touching the generator.
type Engine struct {
	cfg EngineConfig
	rng *rand.Rand
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("%w: evaluator is required", ErrInvalidParameter)
	}
	if cfg.TargetLength < 0 {
		return nil, fmt.Errorf("%w: target length must be >= 0, got %d", ErrInvalidParameter, cfg.TargetLength)
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("%w: population size must be >= 1, got %d", ErrInvalidParameter, cfg.PopulationSize)
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("%w: mutation rate must be in [0, 1], got %v", ErrInvalidParameter, cfg.MutationRate)
	}
	if cfg.SelectionFraction < 0 || cfg.SelectionFraction > 1 {
		return nil, fmt.Errorf("%w: selection fraction must be in (0, 1], got %v", ErrInvalidParameter, cfg.SelectionFraction)
	}
	if cfg.EliteCount < 0 || cfg.EliteCount > cfg.PopulationSize {
		return nil, fmt.Errorf("%w: elite count must be in [0, population size], got %d", ErrInvalidParameter, cfg.EliteCount)
	}
	if cfg.Generations < 0 {
		return nil, fmt.Errorf("%w: generations must be >= 0, got %d", ErrInvalidParameter, cfg.Generations)
	}
	if cfg.MaxDuration < 0 {
		return nil, fmt.Errorf("%w: max duration must be >= 0, got %s", ErrInvalidParameter, cfg.MaxDuration)
	}

	positivePolicyWeight := false
	for i, item := range cfg.MutationPolicy {
		if item.Operator == nil {
			return nil, fmt.Errorf("%w: mutation policy operator is required at index %d", ErrInvalidParameter, i)
		}
		if item.Weight < 0 {
			return nil, fmt.Errorf("%w: mutation policy weight must be >= 0 at index %d", ErrInvalidParameter, i)
		}
		if item.Weight > 0 {
			positivePolicyWeight = true
		}
	}
	if len(cfg.MutationPolicy) > 0 && !positivePolicyWeight {
		return nil, fmt.Errorf("%w: mutation policy requires at least one positive weight", ErrInvalidParameter)
	}

	if cfg.RunID == "" {
		cfg.RunID = "run"
	}
	if cfg.SelectionFraction == 0 {
		cfg.SelectionFraction = DefaultSelectionFraction
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Mutator == nil && len(cfg.MutationPolicy) == 0 {
		if cfg.Alphabet.Len() == 0 {
			return nil, fmt.Errorf("%w: alphabet is required for the default mutator", ErrInvalidParameter)
		}
		rate := cfg.MutationRate
		if rate == 0 {
			rate = DefaultMutationRate
		}
		cfg.Mutator = ResampleMutator{Rate: rate, Alphabet: cfg.Alphabet}
	}
	if cfg.Selector == nil {
		cfg.Selector = TruncationSelector{Fraction: cfg.SelectionFraction, Rounding: cfg.SelectionRounding}
	}
	if cfg.Crossover == nil {
		cfg.Crossover = SinglePoint{}
	}

	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run executes generations until the fittest individual matches the target,
// a configured limit fires, the context is cancelled, or a stop command
// arrives. Cancellation and stop are clean terminal states, not errors.
// ErrLengthMismatch and ErrEmptyPopulation abort the run.
func (e *Engine) Run(ctx context.Context, initial []model.Genome) (RunResult, error) {
	if len(initial) != e.cfg.PopulationSize {
		return RunResult{}, fmt.Errorf("%w: initial population mismatch: got=%d want=%d", ErrInvalidParameter, len(initial), e.cfg.PopulationSize)
	}
	for _, genome := range initial {
		if genome.Length() != e.cfg.TargetLength {
			return RunResult{}, fmt.Errorf("%w: initial genome %q has length %d, want %d", ErrLengthMismatch, genome.ID, genome.Length(), e.cfg.TargetLength)
		}
	}

	population := make([]model.Genome, len(initial))
	copy(population, initial)

	var (
		bestHistory []int
		diagnostics []model.GenerationDiagnostics
		lineage     []model.LineageRecord
		ranked      []ScoredGenome
	)
	for _, genome := range population {
		lineage = append(lineage, model.LineageRecord{
			GenomeID:   genome.ID,
			Generation: 0,
			Operation:  "seed",
		})
	}

	start := time.Now()
	evaluations := 0

	for gen := 0; ; gen++ {
		if reason := e.checkControl(ctx); reason != "" {
			return e.finish(ranked, bestHistory, diagnostics, lineage, gen, evaluations, reason), nil
		}

		scored, err := e.evaluatePopulation(ctx, population)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return e.finish(ranked, bestHistory, diagnostics, lineage, gen, evaluations, ReasonCancelled), nil
			}
			return RunResult{}, fmt.Errorf("evaluate generation %d: %w", gen, err)
		}
		evaluations += len(scored)
		ranked = Rank(scored)

		summary := summarizeGeneration(ranked, gen)
		diagnostics = append(diagnostics, summary)
		bestHistory = append(bestHistory, ranked[0].Fitness)
		if e.cfg.Progress != nil {
			e.cfg.Progress(GenerationRecord{
				Generation:  gen,
				Best:        ranked[0],
				MeanFitness: summary.MeanFitness,
				Evaluations: evaluations,
			})
		}

		if ranked[0].Fitness >= e.cfg.Evaluator.MaxScore() {
			return e.finish(ranked, bestHistory, diagnostics, lineage, gen, evaluations, ReasonSuccess), nil
		}
		if e.cfg.Generations > 0 && gen >= e.cfg.Generations {
			return e.finish(ranked, bestHistory, diagnostics, lineage, gen, evaluations, ReasonGenerationLimit), nil
		}
		if e.cfg.MaxDuration > 0 && time.Since(start) >= e.cfg.MaxDuration {
			return e.finish(ranked, bestHistory, diagnostics, lineage, gen, evaluations, ReasonTimeLimit), nil
		}

		stock, err := e.cfg.Selector.Select(e.rng, ranked)
		if err != nil {
			return RunResult{}, fmt.Errorf("select generation %d: %w", gen, err)
		}
		if len(stock) == 0 {
			return RunResult{}, fmt.Errorf("selector %s kept nothing of %d individuals: %w", e.cfg.Selector.Name(), len(ranked), ErrEmptyPopulation)
		}

		next, records, err := e.nextGeneration(ranked, stock, gen)
		if err != nil {
			return RunResult{}, fmt.Errorf("breed generation %d: %w", gen+1, err)
		}
		population = next
		lineage = append(lineage, records...)
	}
}

func (e *Engine) finish(ranked []ScoredGenome, bestHistory []int, diagnostics []model.GenerationDiagnostics, lineage []model.LineageRecord, generation, evaluations int, reason Reason) RunResult {
	result := RunResult{
		BestByGeneration: bestHistory,
		Diagnostics:      diagnostics,
		Lineage:          lineage,
		FinalPopulation:  ranked,
		Generations:      generation,
		Evaluations:      evaluations,
		Reason:           reason,
	}
	if len(ranked) > 0 {
		result.Best = ranked[0]
	}
	return result
}

// checkControl drains pending commands and reports a terminal reason, or ""
// to keep running. A pause blocks here until a continue, stop, or
// cancellation arrives.
func (e *Engine) checkControl(ctx context.Context) Reason {
	if ctx.Err() != nil {
		return ReasonCancelled
	}
	if e.cfg.Control == nil {
		return ""
	}
	for {
		select {
		case cmd := <-e.cfg.Control:
			switch cmd {
			case CommandStop:
				return ReasonStopped
			case CommandPause:
				if reason := e.waitForContinue(ctx); reason != "" {
					return reason
				}
			}
			// A continue outside a pause is a no-op.
		case <-ctx.Done():
			return ReasonCancelled
		default:
			return ""
		}
	}
}

func (e *Engine) waitForContinue(ctx context.Context) Reason {
	for {
		select {
		case cmd := <-e.cfg.Control:
			switch cmd {
			case CommandStop:
				return ReasonStopped
			case CommandContinue:
				return ""
			}
		case <-ctx.Done():
			return ReasonCancelled
		}
	}
}

// evaluatePopulation scores every genome against the evaluator, fanning the
// per-individual work across the configured workers. Order is preserved.
func (e *Engine) evaluatePopulation(ctx context.Context, population []model.Genome) ([]ScoredGenome, error) {
	type job struct {
		idx    int
		genome model.Genome
	}
	type result struct {
		idx    int
		scored ScoredGenome
		err    error
	}

	jobs := make(chan job)
	results := make(chan result, len(population))

	workerCount := e.cfg.Workers
	if workerCount > len(population) {
		workerCount = len(population)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				fitness, err := e.cfg.Evaluator.Score(j.genome)
				if err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				results <- result{idx: j.idx, scored: ScoredGenome{Genome: j.genome, Fitness: fitness}}
			}
		}()
	}

	for i := range population {
		jobs <- job{idx: i, genome: population[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	scored := make([]ScoredGenome, len(population))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		scored[res.idx] = res.scored
	}
	return scored, nil
}

// nextGeneration builds the replacement population: elites carried over
// unchanged, then children bred from the stock and mutated.
func (e *Engine) nextGeneration(ranked, stock []ScoredGenome, generation int) ([]model.Genome, []model.LineageRecord, error) {
	next := make([]model.Genome, 0, e.cfg.PopulationSize)
	records := make([]model.LineageRecord, 0, e.cfg.PopulationSize)
	childGeneration := generation + 1

	eliteCount := e.cfg.EliteCount
	if eliteCount > len(ranked) {
		eliteCount = len(ranked)
	}
	for i := 0; i < eliteCount; i++ {
		elite := ranked[i].Genome
		next = append(next, elite)
		records = append(records, model.LineageRecord{
			GenomeID:   elite.ID,
			ParentIDs:  []string{elite.ID},
			Generation: childGeneration,
			Operation:  "elite",
		})
	}

	children, err := Breed(e.rng, e.cfg.Crossover, stock, e.cfg.PopulationSize-len(next))
	if err != nil {
		return nil, nil, err
	}

	for _, child := range children {
		mutator := e.chooseMutation()
		mutated, err := mutator.Mutate(e.rng, child.Genome)
		if err != nil {
			return nil, nil, err
		}
		mutated.ID = fmt.Sprintf("%s-g%d-i%d", e.cfg.RunID, childGeneration, len(next))
		next = append(next, mutated)
		records = append(records, model.LineageRecord{
			GenomeID:   mutated.ID,
			ParentIDs:  []string{stock[child.Parent1].Genome.ID, stock[child.Parent2].Genome.ID},
			Generation: childGeneration,
			Operation:  e.cfg.Crossover.Name() + "+" + mutator.Name(),
		})
	}
	return next, records, nil
}

func (e *Engine) chooseMutation() Mutator {
	if len(e.cfg.MutationPolicy) == 0 {
		return e.cfg.Mutator
	}

	total := 0.0
	for _, item := range e.cfg.MutationPolicy {
		total += item.Weight
	}
	pick := e.rng.Float64() * total
	acc := 0.0
	for _, item := range e.cfg.MutationPolicy {
		acc += item.Weight
		if pick <= acc {
			return item.Operator
		}
	}
	return e.cfg.MutationPolicy[len(e.cfg.MutationPolicy)-1].Operator
}

func summarizeGeneration(ranked []ScoredGenome, generation int) model.GenerationDiagnostics {
	if len(ranked) == 0 {
		return model.GenerationDiagnostics{Generation: generation}
	}

	total := 0
	unique := make(map[string]struct{}, len(ranked))
	for _, item := range ranked {
		total += item.Fitness
		unique[item.Genome.Letters] = struct{}{}
	}
	return model.GenerationDiagnostics{
		Generation:    generation,
		BestFitness:   ranked[0].Fitness,
		MeanFitness:   float64(total) / float64(len(ranked)),
		MinFitness:    ranked[len(ranked)-1].Fitness,
		UniqueGenomes: len(unique),
	}
}
