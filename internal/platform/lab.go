package platform

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"weasel/internal/evo"
	"weasel/internal/model"
	"weasel/internal/stats"
	"weasel/internal/storage"
)

type Config struct {
	Store storage.Store
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

const topGenomeCount = 5

// EvolutionConfig describes one run: the target to approximate, the alphabet
// the population draws from, and the operator settings. Zero-valued operator
// fields fall back to the engine defaults.
type EvolutionConfig struct {
	RunID    string
	Target   string
	Alphabet evo.Alphabet

	PopulationSize int

	MutationRate   float64
	Mutator        evo.Mutator
	MutationPolicy []evo.WeightedMutation

	SelectionFraction float64
	SelectionRounding evo.Rounding
	Selector          evo.Selector

	Crossover evo.Crossover

	EliteCount  int
	Generations int
	MaxDuration time.Duration

	Seed    int64
	Workers int

	Progress evo.ProgressFunc
	Control  chan evo.Command

	// Initial overrides the seeded starting population. When nil the lab
	// seeds PopulationSize random genomes from the alphabet.
	Initial []model.Genome
}

type EvolutionResult struct {
	RunID            string
	Summary          model.RunSummary
	BestByGeneration []int
	Diagnostics      []model.GenerationDiagnostics
	Lineage          []model.LineageRecord
	Best             evo.ScoredGenome
	TopFinal         []evo.ScoredGenome
	Reason           evo.Reason
}

// BenchmarkConfig repeats one run setup across distinct seeds and aggregates
// the outcomes. Seeds are Base.Seed, Base.Seed+1, and so on.
type BenchmarkConfig struct {
	BenchmarkID string
	Base        EvolutionConfig
	Repeats     int
}

// Lab owns the store and the set of in-flight runs. It is the only component
// that persists run outcomes, so every entry point into evolution goes
// through it.
type Lab struct {
	store storage.Store

	mu             sync.RWMutex
	started        bool
	lastStopReason StopReason
	runs           map[string]chan evo.Command
}

var (
	defaultLabMu sync.Mutex
	defaultLab   *Lab
)

func NewLab(cfg Config) *Lab {
	return &Lab{
		store:          cfg.Store,
		runs:           make(map[string]chan evo.Command),
		lastStopReason: StopReasonNormal,
	}
}

func StartDefault(ctx context.Context, cfg Config) (*Lab, error) {
	defaultLabMu.Lock()
	defer defaultLabMu.Unlock()

	if defaultLab != nil && defaultLab.Started() {
		return defaultLab, nil
	}

	lab := NewLab(cfg)
	if err := lab.Init(ctx); err != nil {
		return nil, err
	}
	defaultLab = lab
	return defaultLab, nil
}

func Default() (*Lab, bool) {
	defaultLabMu.Lock()
	lab := defaultLab
	defaultLabMu.Unlock()

	if lab == nil || !lab.Started() {
		return nil, false
	}
	return lab, true
}

func StopDefault(reason StopReason) error {
	defaultLabMu.Lock()
	lab := defaultLab
	defaultLabMu.Unlock()
	if lab == nil {
		return nil
	}
	if err := lab.StopWithReason(reason); err != nil {
		return err
	}
	defaultLabMu.Lock()
	if defaultLab == lab {
		defaultLab = nil
	}
	defaultLabMu.Unlock()
	return nil
}

func (l *Lab) Init(ctx context.Context) error {
	if l.store == nil {
		return fmt.Errorf("store is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if err := l.store.Init(ctx); err != nil {
		return err
	}
	l.started = true
	return nil
}

func (l *Lab) Reset(ctx context.Context) error {
	_ = l.StopWithReason(StopReasonShutdown)
	if resetter, ok := l.store.(storage.Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return err
		}
	}
	return l.Init(ctx)
}

func (l *Lab) Stop() {
	_ = l.StopWithReason(StopReasonNormal)
}

func (l *Lab) Shutdown() {
	_ = l.StopWithReason(StopReasonShutdown)
}

func (l *Lab) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	if reason != StopReasonNormal && reason != StopReasonShutdown {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, control := range l.runs {
		select {
		case control <- evo.CommandStop:
		default:
		}
	}
	l.started = false
	l.lastStopReason = reason
	l.runs = make(map[string]chan evo.Command)
	return nil
}

// RunEvolution executes one run to completion, consuming the engine's record
// stream and persisting the outcome.
func (l *Lab) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	if !l.Started() {
		return EvolutionResult{}, fmt.Errorf("lab is not initialized")
	}
	if cfg.Alphabet.Len() == 0 {
		cfg.Alphabet = evo.Printable()
	}
	if !cfg.Alphabet.ContainsAll(cfg.Target) {
		return EvolutionResult{}, fmt.Errorf("%w: target contains symbols outside the alphabet", evo.ErrInvalidParameter)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	control := cfg.Control
	if control == nil {
		control = make(chan evo.Command, 16)
	}
	if err := l.registerRunControl(runID, control); err != nil {
		return EvolutionResult{}, err
	}
	defer l.unregisterRunControl(runID)

	target := model.Genome{ID: runID + "-target", Letters: cfg.Target}
	engineCfg := evo.EngineConfig{
		RunID:             runID,
		Evaluator:         evo.HammingEvaluator{Target: target},
		Alphabet:          cfg.Alphabet,
		TargetLength:      target.Length(),
		PopulationSize:    cfg.PopulationSize,
		MutationRate:      cfg.MutationRate,
		Mutator:           cfg.Mutator,
		MutationPolicy:    cfg.MutationPolicy,
		SelectionFraction: cfg.SelectionFraction,
		SelectionRounding: cfg.SelectionRounding,
		Selector:          cfg.Selector,
		Crossover:         cfg.Crossover,
		EliteCount:        cfg.EliteCount,
		Generations:       cfg.Generations,
		MaxDuration:       cfg.MaxDuration,
		Seed:              cfg.Seed,
		Workers:           cfg.Workers,
		Progress:          cfg.Progress,
		Control:           control,
	}

	initial := cfg.Initial
	if initial == nil {
		seedRNG := rand.New(rand.NewSource(cfg.Seed))
		initial = evo.SeedPopulation(seedRNG, runID, cfg.PopulationSize, target.Length(), cfg.Alphabet)
	}

	startedAt := time.Now().UTC()
	stream, err := evo.StreamRun(ctx, engineCfg, initial)
	if err != nil {
		return EvolutionResult{}, err
	}
	for range stream.Records() {
	}
	result, err := stream.Wait()
	if err != nil {
		return EvolutionResult{}, err
	}
	finishedAt := time.Now().UTC()

	summary := model.RunSummary{
		VersionedRecord:   versionedRecord(),
		ID:                runID,
		Target:            cfg.Target,
		Reason:            string(result.Reason),
		Generations:       result.Generations,
		Evaluations:       result.Evaluations,
		BestLetters:       result.Best.Genome.Letters,
		BestFitness:       result.Best.Fitness,
		PopulationSize:    cfg.PopulationSize,
		MutationRate:      cfg.MutationRate,
		SelectionFraction: cfg.SelectionFraction,
		EliteCount:        cfg.EliteCount,
		Seed:              cfg.Seed,
		StartedAt:         startedAt.Format(time.RFC3339Nano),
		FinishedAt:        finishedAt.Format(time.RFC3339Nano),
	}

	topFinal := topOf(result.FinalPopulation, topGenomeCount)

	if err := l.store.SaveRunSummary(ctx, summary); err != nil {
		return EvolutionResult{}, err
	}
	if err := l.store.SaveFitnessHistory(ctx, runID, result.BestByGeneration); err != nil {
		return EvolutionResult{}, err
	}
	if err := l.store.SaveDiagnostics(ctx, runID, result.Diagnostics); err != nil {
		return EvolutionResult{}, err
	}
	if err := l.store.SaveLineage(ctx, runID, result.Lineage); err != nil {
		return EvolutionResult{}, err
	}
	if err := l.store.SaveTopGenomes(ctx, runID, toTopRecords(topFinal)); err != nil {
		return EvolutionResult{}, err
	}
	if err := l.updateTargetSummary(ctx, cfg.Target, result); err != nil {
		return EvolutionResult{}, err
	}

	return EvolutionResult{
		RunID:            runID,
		Summary:          summary,
		BestByGeneration: result.BestByGeneration,
		Diagnostics:      result.Diagnostics,
		Lineage:          result.Lineage,
		Best:             result.Best,
		TopFinal:         topFinal,
		Reason:           result.Reason,
	}, nil
}

// RunBenchmark repeats one run setup across seeds and aggregates the
// outcomes. Repeats execute sequentially so each run stays reproducible.
func (l *Lab) RunBenchmark(ctx context.Context, cfg BenchmarkConfig) (stats.BenchmarkReport, error) {
	if cfg.Repeats <= 0 {
		return stats.BenchmarkReport{}, fmt.Errorf("%w: benchmark repeats must be >= 1, got %d", evo.ErrInvalidParameter, cfg.Repeats)
	}
	benchmarkID := cfg.BenchmarkID
	if benchmarkID == "" {
		benchmarkID = uuid.NewString()
	}

	runs := make([]stats.BenchmarkRun, 0, cfg.Repeats)
	for i := 0; i < cfg.Repeats; i++ {
		runCfg := cfg.Base
		runCfg.RunID = fmt.Sprintf("%s-r%d", benchmarkID, i)
		runCfg.Seed = cfg.Base.Seed + int64(i)
		runCfg.Initial = nil
		runCfg.Control = nil

		result, err := l.RunEvolution(ctx, runCfg)
		if err != nil {
			return stats.BenchmarkReport{}, fmt.Errorf("benchmark repeat %d: %w", i, err)
		}
		runs = append(runs, stats.BenchmarkRun{
			RunID:       result.RunID,
			Seed:        runCfg.Seed,
			Success:     result.Reason == evo.ReasonSuccess,
			Reason:      string(result.Reason),
			Generations: result.Summary.Generations,
			Evaluations: result.Summary.Evaluations,
			FinalBest:   result.Best.Fitness,
		})
	}

	return stats.BuildBenchmarkReport(benchmarkID, cfg.Base.Target, runs), nil
}

func (l *Lab) PauseRun(runID string) error {
	return l.sendRunCommand(runID, evo.CommandPause)
}

func (l *Lab) ContinueRun(runID string) error {
	return l.sendRunCommand(runID, evo.CommandContinue)
}

func (l *Lab) StopRun(runID string) error {
	return l.sendRunCommand(runID, evo.CommandStop)
}

func (l *Lab) ActiveRuns() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.runs))
	for name := range l.runs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Lab) Started() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started
}

func (l *Lab) LastStopReason() StopReason {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastStopReason
}

func (l *Lab) registerRunControl(runID string, control chan evo.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return fmt.Errorf("lab is not initialized")
	}
	if _, exists := l.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	l.runs[runID] = control
	return nil
}

func (l *Lab) unregisterRunControl(runID string) {
	l.mu.Lock()
	delete(l.runs, runID)
	l.mu.Unlock()
}

func (l *Lab) sendRunCommand(runID string, cmd evo.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	l.mu.RLock()
	control, ok := l.runs[runID]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}

func (l *Lab) updateTargetSummary(ctx context.Context, target string, result evo.RunResult) error {
	summary, ok, err := l.store.GetTargetSummary(ctx, target)
	if err != nil {
		return err
	}
	if !ok {
		summary = model.TargetSummary{
			VersionedRecord: versionedRecord(),
			Target:          target,
			Description:     fmt.Sprintf("best observed fitness for target %q", target),
		}
	}
	if result.Best.Fitness > summary.BestFitness {
		summary.BestFitness = result.Best.Fitness
	}
	summary.TotalRuns++
	if result.Reason == evo.ReasonSuccess {
		summary.SuccessRuns++
	}
	return l.store.SaveTargetSummary(ctx, summary)
}

func topOf(ranked []evo.ScoredGenome, count int) []evo.ScoredGenome {
	if len(ranked) < count {
		count = len(ranked)
	}
	return append([]evo.ScoredGenome(nil), ranked[:count]...)
}

func toTopRecords(top []evo.ScoredGenome) []model.TopGenomeRecord {
	out := make([]model.TopGenomeRecord, 0, len(top))
	for i, item := range top {
		out = append(out, model.TopGenomeRecord{
			Rank:    i + 1,
			Fitness: item.Fitness,
			Genome:  item.Genome,
		})
	}
	return out
}

func versionedRecord() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: storage.CurrentSchemaVersion,
		CodecVersion:  storage.CurrentCodecVersion,
	}
}
