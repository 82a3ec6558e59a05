package evo

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"weasel/internal/model"
)

func mustAlphabet(t *testing.T, symbols string) Alphabet {
	t.Helper()
	a, err := NewAlphabet(symbols)
	if err != nil {
		t.Fatalf("new alphabet %q: %v", symbols, err)
	}
	return a
}

func engineConfigForTarget(t *testing.T, symbols, target string) EngineConfig {
	t.Helper()
	alphabet := mustAlphabet(t, symbols)
	return EngineConfig{
		Evaluator:    HammingEvaluator{Target: model.Genome{Letters: target}},
		Alphabet:     alphabet,
		TargetLength: len(target),
	}
}

func seededInitial(cfg EngineConfig, seed int64) []model.Genome {
	rng := rand.New(rand.NewSource(seed))
	return SeedPopulation(rng, cfg.RunID, cfg.PopulationSize, cfg.TargetLength, cfg.Alphabet)
}

func TestNewEngineValidation(t *testing.T) {
	valid := engineConfigForTarget(t, "AB", "AAAA")
	valid.PopulationSize = 4

	cases := []struct {
		name   string
		mutate func(cfg *EngineConfig)
	}{
		{"missing evaluator", func(cfg *EngineConfig) { cfg.Evaluator = nil }},
		{"zero population", func(cfg *EngineConfig) { cfg.PopulationSize = 0 }},
		{"negative target length", func(cfg *EngineConfig) { cfg.TargetLength = -1 }},
		{"mutation rate above one", func(cfg *EngineConfig) { cfg.MutationRate = 1.5 }},
		{"negative mutation rate", func(cfg *EngineConfig) { cfg.MutationRate = -0.1 }},
		{"selection fraction above one", func(cfg *EngineConfig) { cfg.SelectionFraction = 1.5 }},
		{"negative selection fraction", func(cfg *EngineConfig) { cfg.SelectionFraction = -0.5 }},
		{"negative elite count", func(cfg *EngineConfig) { cfg.EliteCount = -1 }},
		{"elite count above population", func(cfg *EngineConfig) { cfg.EliteCount = 5 }},
		{"negative generations", func(cfg *EngineConfig) { cfg.Generations = -1 }},
		{"negative duration", func(cfg *EngineConfig) { cfg.MaxDuration = -time.Second }},
		{"missing alphabet", func(cfg *EngineConfig) { cfg.Alphabet = Alphabet{} }},
		{"nil policy operator", func(cfg *EngineConfig) {
			cfg.MutationPolicy = []WeightedMutation{{Operator: nil, Weight: 1}}
		}},
		{"all-zero policy weights", func(cfg *EngineConfig) {
			cfg.MutationPolicy = []WeightedMutation{{Operator: ResampleMutator{Rate: 0.1, Alphabet: cfg.Alphabet}, Weight: 0}}
		}},
	}
	for _, tc := range cases {
		cfg := valid
		tc.mutate(&cfg)
		if _, err := NewEngine(cfg); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("%s: expected ErrInvalidParameter, got %v", tc.name, err)
		}
	}

	if _, err := NewEngine(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestRunConvergesOnSmallAlphabet(t *testing.T) {
	cfg := engineConfigForTarget(t, "AB", "AAAA")
	cfg.RunID = "converge"
	cfg.PopulationSize = 50
	cfg.MutationRate = 0.05
	cfg.SelectionFraction = 0.5
	cfg.Seed = 1

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	result, err := engine.Run(context.Background(), seededInitial(cfg, 1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonSuccess {
		t.Fatalf("expected success, got %s after %d generations", result.Reason, result.Generations)
	}
	if result.Generations >= 500 {
		t.Fatalf("expected convergence under 500 generations, took %d", result.Generations)
	}
	if result.Best.Genome.Letters != "AAAA" || result.Best.Fitness != 4 {
		t.Fatalf("unexpected winner: %q fitness %d", result.Best.Genome.Letters, result.Best.Fitness)
	}
	if len(result.BestByGeneration) != result.Generations+1 {
		t.Fatalf("history length %d, want %d", len(result.BestByGeneration), result.Generations+1)
	}
}

func TestRunIsDeterministicUnderFixedSeed(t *testing.T) {
	run := func() RunResult {
		cfg := engineConfigForTarget(t, "ABCD", "DCBA")
		cfg.PopulationSize = 30
		cfg.MutationRate = 0.05
		cfg.Seed = 99
		engine, err := NewEngine(cfg)
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}
		result, err := engine.Run(context.Background(), seededInitial(cfg, 99))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}

	first := run()
	second := run()
	if first.Generations != second.Generations {
		t.Fatalf("generation counts diverged: %d vs %d", first.Generations, second.Generations)
	}
	for i := range first.BestByGeneration {
		if first.BestByGeneration[i] != second.BestByGeneration[i] {
			t.Fatalf("histories diverged at generation %d", i)
		}
	}
	if first.Best.Genome.Letters != second.Best.Genome.Letters {
		t.Fatalf("winners diverged: %q vs %q", first.Best.Genome.Letters, second.Best.Genome.Letters)
	}
}

func TestRunEmptyTargetTerminatesImmediately(t *testing.T) {
	cfg := engineConfigForTarget(t, "AB", "")
	cfg.PopulationSize = 3

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	initial := []model.Genome{{ID: "i0"}, {ID: "i1"}, {ID: "i2"}}
	result, err := engine.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonSuccess || result.Generations != 0 {
		t.Fatalf("expected success at generation 0, got %s at %d", result.Reason, result.Generations)
	}
}

func TestRunSingletonAlphabetNeverSucceeds(t *testing.T) {
	cfg := engineConfigForTarget(t, "A", "BBBB")
	cfg.PopulationSize = 10
	cfg.Generations = 40

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	result, err := engine.Run(context.Background(), seededInitial(cfg, 5))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonGenerationLimit {
		t.Fatalf("expected generation limit, got %s", result.Reason)
	}
	if result.Generations != 40 || len(result.BestByGeneration) != 41 {
		t.Fatalf("expected 40 generations and 41 history entries, got %d and %d", result.Generations, len(result.BestByGeneration))
	}
	for gen, best := range result.BestByGeneration {
		if best != 0 {
			t.Fatalf("generation %d reached fitness %d with a disjoint singleton alphabet", gen, best)
		}
	}
}

func TestRunTimeLimit(t *testing.T) {
	cfg := engineConfigForTarget(t, "A", "BB")
	cfg.PopulationSize = 4
	cfg.MaxDuration = time.Nanosecond

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	result, err := engine.Run(context.Background(), seededInitial(cfg, 2))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonTimeLimit {
		t.Fatalf("expected time limit, got %s", result.Reason)
	}
}

func TestRunCancelledContext(t *testing.T) {
	cfg := engineConfigForTarget(t, "AB", "AAAA")
	cfg.PopulationSize = 4

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Run(ctx, seededInitial(cfg, 3))
	if err != nil {
		t.Fatalf("cancellation must be a clean terminal state, got error %v", err)
	}
	if result.Reason != ReasonCancelled || result.Generations != 0 {
		t.Fatalf("expected cancelled at generation 0, got %s at %d", result.Reason, result.Generations)
	}
}

func TestRunStopCommand(t *testing.T) {
	cfg := engineConfigForTarget(t, "AB", "AAAA")
	cfg.PopulationSize = 4
	cfg.Control = make(chan Command, 1)
	cfg.Control <- CommandStop

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	result, err := engine.Run(context.Background(), seededInitial(cfg, 4))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonStopped {
		t.Fatalf("expected stopped, got %s", result.Reason)
	}
}

func TestRunPauseThenContinue(t *testing.T) {
	cfg := engineConfigForTarget(t, "A", "A")
	cfg.PopulationSize = 2
	cfg.Control = make(chan Command, 2)
	cfg.Control <- CommandPause
	cfg.Control <- CommandContinue

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	result, err := engine.Run(context.Background(), seededInitial(cfg, 6))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonSuccess {
		t.Fatalf("expected success after resuming, got %s", result.Reason)
	}
}

func TestRunInitialPopulationPreconditions(t *testing.T) {
	cfg := engineConfigForTarget(t, "AB", "AAAA")
	cfg.PopulationSize = 4

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := engine.Run(context.Background(), seededInitial(cfg, 1)[:2]); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for short initial population, got %v", err)
	}

	wrong := seededInitial(cfg, 1)
	wrong[1].Letters = "AAA"
	if _, err := engine.Run(context.Background(), wrong); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch for wrong genome length, got %v", err)
	}
}

func TestRunEmptyBreedingStockIsFatal(t *testing.T) {
	cfg := engineConfigForTarget(t, "A", "B")
	cfg.PopulationSize = 1
	cfg.SelectionFraction = 0.5

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := engine.Run(context.Background(), seededInitial(cfg, 7)); !errors.Is(err, ErrEmptyPopulation) {
		t.Fatalf("expected ErrEmptyPopulation, got %v", err)
	}
}

func TestRunElitismKeepsBestMonotone(t *testing.T) {
	cfg := engineConfigForTarget(t, "AB", strings.Repeat("A", 16))
	cfg.PopulationSize = 20
	cfg.MutationRate = 0.2
	cfg.EliteCount = 1
	cfg.Generations = 60
	cfg.Seed = 13

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	result, err := engine.Run(context.Background(), seededInitial(cfg, 13))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 1; i < len(result.BestByGeneration); i++ {
		if result.BestByGeneration[i] < result.BestByGeneration[i-1] {
			t.Fatalf("best fitness regressed from %d to %d at generation %d despite elitism",
				result.BestByGeneration[i-1], result.BestByGeneration[i], i)
		}
	}
}

func TestRunLineageAndDiagnosticsShape(t *testing.T) {
	cfg := engineConfigForTarget(t, "AB", "AAAAAAAA")
	cfg.RunID = "shape"
	cfg.PopulationSize = 6
	cfg.Generations = 3
	cfg.Seed = 17

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	result, err := engine.Run(context.Background(), seededInitial(cfg, 17))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	seeds := 0
	sawCrossover := false
	for _, record := range result.Lineage {
		if record.Operation == "seed" {
			seeds++
			continue
		}
		if record.Operation == "single_point+resample" {
			sawCrossover = true
			if len(record.ParentIDs) != 2 {
				t.Fatalf("crossover record %q has %d parents", record.GenomeID, len(record.ParentIDs))
			}
		}
	}
	if seeds != cfg.PopulationSize {
		t.Fatalf("expected %d seed records, got %d", cfg.PopulationSize, seeds)
	}
	if result.Generations > 0 && !sawCrossover {
		t.Fatal("expected crossover lineage records")
	}

	if len(result.Diagnostics) != len(result.BestByGeneration) {
		t.Fatalf("diagnostics length %d, history length %d", len(result.Diagnostics), len(result.BestByGeneration))
	}
	for i, diag := range result.Diagnostics {
		if diag.Generation != i {
			t.Fatalf("diagnostics %d labelled generation %d", i, diag.Generation)
		}
		if diag.BestFitness != result.BestByGeneration[i] {
			t.Fatalf("diagnostics best %d disagrees with history %d at generation %d", diag.BestFitness, result.BestByGeneration[i], i)
		}
		if float64(diag.MinFitness) > diag.MeanFitness || diag.MeanFitness > float64(diag.BestFitness) {
			t.Fatalf("generation %d: min %d, mean %v, best %d out of order", i, diag.MinFitness, diag.MeanFitness, diag.BestFitness)
		}
	}
}

type labelledIdentity struct{ label string }

func (m labelledIdentity) Name() string { return m.label }

func (m labelledIdentity) Mutate(_ *rand.Rand, genome model.Genome) (model.Genome, error) {
	return genome, nil
}

func TestRunMutationPolicyDrivesLineageNames(t *testing.T) {
	cfg := engineConfigForTarget(t, "A", "BB")
	cfg.PopulationSize = 4
	cfg.Generations = 2
	cfg.MutationPolicy = []WeightedMutation{{Operator: labelledIdentity{label: "noop"}, Weight: 1}}

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	result, err := engine.Run(context.Background(), seededInitial(cfg, 19))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	sawPolicyOp := false
	for _, record := range result.Lineage {
		if record.Operation == "single_point+noop" {
			sawPolicyOp = true
		}
	}
	if !sawPolicyOp {
		t.Fatal("expected lineage operations from the weighted mutation policy")
	}
}

func TestRunParallelEvaluationMatchesSerial(t *testing.T) {
	run := func(workers int) RunResult {
		cfg := engineConfigForTarget(t, "AB", "ABABABAB")
		cfg.PopulationSize = 16
		cfg.MutationRate = 0.05
		cfg.Seed = 31
		cfg.Workers = workers
		engine, err := NewEngine(cfg)
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}
		result, err := engine.Run(context.Background(), seededInitial(cfg, 31))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}

	serial := run(1)
	parallel := run(8)
	if serial.Generations != parallel.Generations || serial.Best.Genome.Letters != parallel.Best.Genome.Letters {
		t.Fatalf("worker count changed observable results: %d/%q vs %d/%q",
			serial.Generations, serial.Best.Genome.Letters, parallel.Generations, parallel.Best.Genome.Letters)
	}
}
