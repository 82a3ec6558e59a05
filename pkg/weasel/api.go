package weasel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"weasel/internal/evo"
	"weasel/internal/model"
	"weasel/internal/platform"
	"weasel/internal/stats"
	"weasel/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
	defaultDBPath       = "weasel.db"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
}

// Client is the embedding surface: it owns a store-backed lab and mirrors
// every run into a per-run artifacts directory.
type Client struct {
	store storage.Store
	lab   *platform.Lab

	artifactsDir string
	exportsDir   string
}

// RunRequest configures a single run. Zero values select the documented
// defaults, so the empty request is invalid only for the missing target.
type RunRequest struct {
	Target            string
	Alphabet          string
	Population        int
	MutationRate      float64
	Selection         string
	SelectionFraction float64
	SelectionRounding string
	EliteCount        int
	Generations       int
	MaxDuration       time.Duration
	Seed              int64
	Workers           int

	// OnGeneration observes each evaluated generation while the run is in
	// flight.
	OnGeneration evo.ProgressFunc
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	Reason           string
	BestLetters      string
	BestFitness      int
	MaxFitness       int
	Generations      int
	Evaluations      int
	BestByGeneration []int
}

type BenchmarkRequest struct {
	Run     RunRequest
	Repeats int
}

type BenchmarkSummary struct {
	Report    stats.BenchmarkReport
	ReportDir string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Target       string
	Seed         int64
	Population   int
	Generations  int
	Reason       string
	BestFitness  int
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type LineageRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TopGenomesRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type TargetSummaryItem struct {
	Target      string
	Description string
	BestFitness int
	SuccessRuns int
	TotalRuns   int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureLab(ctx)
	return err
}

func (c *Client) Reset(ctx context.Context) error {
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return err
	}
	return lab.Reset(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg, err := c.evolutionConfig(req)
	if err != nil {
		return RunSummary{}, err
	}

	lab, err := c.ensureLab(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	now := time.Now().UTC()
	result, err := lab.RunEvolution(ctx, cfg)
	if err != nil {
		return RunSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Summary:        result.Summary,
		FitnessHistory: result.BestByGeneration,
		Diagnostics:    result.Diagnostics,
		Lineage:        result.Lineage,
		TopGenomes:     toTopRecords(result.TopFinal),
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:          result.RunID,
		Target:         result.Summary.Target,
		PopulationSize: result.Summary.PopulationSize,
		Generations:    result.Summary.Generations,
		Seed:           result.Summary.Seed,
		Reason:         result.Summary.Reason,
		BestFitness:    result.Summary.BestFitness,
		CreatedAtUTC:   now.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:            result.RunID,
		ArtifactsDir:     filepath.Clean(runDir),
		Reason:           result.Summary.Reason,
		BestLetters:      result.Best.Genome.Letters,
		BestFitness:      result.Best.Fitness,
		MaxFitness:       len(req.Target),
		Generations:      result.Summary.Generations,
		Evaluations:      result.Summary.Evaluations,
		BestByGeneration: append([]int(nil), result.BestByGeneration...),
	}, nil
}

func (c *Client) Benchmark(ctx context.Context, req BenchmarkRequest) (BenchmarkSummary, error) {
	if req.Repeats <= 0 {
		req.Repeats = 10
	}
	cfg, err := c.evolutionConfig(req.Run)
	if err != nil {
		return BenchmarkSummary{}, err
	}
	cfg.Progress = nil

	lab, err := c.ensureLab(ctx)
	if err != nil {
		return BenchmarkSummary{}, err
	}

	report, err := lab.RunBenchmark(ctx, platform.BenchmarkConfig{
		Base:    cfg,
		Repeats: req.Repeats,
	})
	if err != nil {
		return BenchmarkSummary{}, err
	}

	reportDir, err := stats.WriteBenchmarkReport(c.artifactsDir, report)
	if err != nil {
		return BenchmarkSummary{}, err
	}
	return BenchmarkSummary{Report: report, ReportDir: filepath.Clean(reportDir)}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Target:       e.Target,
			Seed:         e.Seed,
			Population:   e.PopulationSize,
			Generations:  e.Generations,
			Reason:       e.Reason,
			BestFitness:  e.BestFitness,
		})
	}
	return out, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]int, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]int(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return nil, err
	}

	diagnostics, ok, err := c.store.GetDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

func (c *Client) Lineage(ctx context.Context, req LineageRequest) ([]model.LineageRecord, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return nil, err
	}

	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(lineage) > req.Limit {
		lineage = lineage[:req.Limit]
	}
	out := make([]model.LineageRecord, len(lineage))
	copy(out, lineage)
	return out, nil
}

func (c *Client) TopGenomes(ctx context.Context, req TopGenomesRequest) ([]model.TopGenomeRecord, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return nil, err
	}

	top, ok, err := c.store.GetTopGenomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("top genomes not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(top) > req.Limit {
		top = top[:req.Limit]
	}
	out := make([]model.TopGenomeRecord, len(top))
	copy(out, top)
	return out, nil
}

func (c *Client) TargetSummary(ctx context.Context, target string) (TargetSummaryItem, error) {
	if target == "" {
		return TargetSummaryItem{}, errors.New("target is required")
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return TargetSummaryItem{}, err
	}

	summary, ok, err := c.store.GetTargetSummary(ctx, target)
	if err != nil {
		return TargetSummaryItem{}, err
	}
	if !ok {
		return TargetSummaryItem{}, fmt.Errorf("target summary not found: %q", target)
	}
	return TargetSummaryItem{
		Target:      summary.Target,
		Description: summary.Description,
		BestFitness: summary.BestFitness,
		SuccessRuns: summary.SuccessRuns,
		TotalRuns:   summary.TotalRuns,
	}, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) evolutionConfig(req RunRequest) (platform.EvolutionConfig, error) {
	if req.Population <= 0 {
		req.Population = 100
	}
	if req.Generations <= 0 {
		req.Generations = 1000
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}

	alphabet := evo.Printable()
	if req.Alphabet != "" {
		var err error
		alphabet, err = evo.NewAlphabet(req.Alphabet)
		if err != nil {
			return platform.EvolutionConfig{}, err
		}
	}

	rounding, err := roundingFromName(req.SelectionRounding)
	if err != nil {
		return platform.EvolutionConfig{}, err
	}
	selector, err := selectionFromName(req.Selection, req.SelectionFraction)
	if err != nil {
		return platform.EvolutionConfig{}, err
	}

	return platform.EvolutionConfig{
		Target:            req.Target,
		Alphabet:          alphabet,
		PopulationSize:    req.Population,
		MutationRate:      req.MutationRate,
		SelectionFraction: req.SelectionFraction,
		SelectionRounding: rounding,
		Selector:          selector,
		EliteCount:        req.EliteCount,
		Generations:       req.Generations,
		MaxDuration:       req.MaxDuration,
		Seed:              req.Seed,
		Workers:           req.Workers,
		Progress:          req.OnGeneration,
	}, nil
}

func (c *Client) resolveRunID(runID string, latest bool, limit int) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", errors.New("no runs available")
		}
		return entries[0].RunID, nil
	}
	if runID == "" {
		return "", errors.New("run id or latest is required")
	}
	return runID, nil
}

func (c *Client) ensureLab(ctx context.Context) (*platform.Lab, error) {
	if c.lab != nil {
		return c.lab, nil
	}
	lab := platform.NewLab(platform.Config{Store: c.store})
	if err := lab.Init(ctx); err != nil {
		return nil, err
	}
	c.lab = lab
	return c.lab, nil
}

func selectionFromName(name string, fraction float64) (evo.Selector, error) {
	switch name {
	case "", "truncation":
		// nil selects the engine default truncation selector.
		return nil, nil
	case "tournament":
		if fraction == 0 {
			fraction = evo.DefaultSelectionFraction
		}
		return evo.TournamentSelector{Fraction: fraction}, nil
	default:
		return nil, fmt.Errorf("unsupported selection strategy: %s", name)
	}
}

func roundingFromName(name string) (evo.Rounding, error) {
	switch name {
	case "", "down":
		return evo.RoundDown, nil
	case "up":
		return evo.RoundUp, nil
	default:
		return evo.RoundDown, fmt.Errorf("unsupported selection rounding: %s", name)
	}
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
