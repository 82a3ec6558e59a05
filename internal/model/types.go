package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Genome struct {
	VersionedRecord
	ID      string `json:"id"`
	Letters string `json:"letters"`
}

// Length is the number of symbols in the genome.
func (g Genome) Length() int {
	return len(g.Letters)
}

type RunSummary struct {
	VersionedRecord
	ID                string  `json:"id"`
	Target            string  `json:"target"`
	Reason            string  `json:"reason"`
	Generations       int     `json:"generations"`
	Evaluations       int     `json:"evaluations"`
	BestLetters       string  `json:"best_letters"`
	BestFitness       int     `json:"best_fitness"`
	PopulationSize    int     `json:"population_size"`
	MutationRate      float64 `json:"mutation_rate"`
	SelectionFraction float64 `json:"selection_fraction"`
	EliteCount        int     `json:"elite_count"`
	Seed              int64   `json:"seed"`
	StartedAt         string  `json:"started_at_utc"`
	FinishedAt        string  `json:"finished_at_utc"`
}

type GenerationDiagnostics struct {
	Generation    int     `json:"generation"`
	BestFitness   int     `json:"best_fitness"`
	MeanFitness   float64 `json:"mean_fitness"`
	MinFitness    int     `json:"min_fitness"`
	UniqueGenomes int     `json:"unique_genomes"`
}

type LineageRecord struct {
	GenomeID   string   `json:"genome_id"`
	ParentIDs  []string `json:"parent_ids,omitempty"`
	Generation int      `json:"generation"`
	Operation  string   `json:"operation"`
}

type TopGenomeRecord struct {
	Rank    int    `json:"rank"`
	Fitness int    `json:"fitness"`
	Genome  Genome `json:"genome"`
}

// TargetSummary tracks the best fitness ever observed for a target string
// across all recorded runs.
type TargetSummary struct {
	VersionedRecord
	Target      string `json:"target"`
	Description string `json:"description"`
	BestFitness int    `json:"best_fitness"`
	SuccessRuns int    `json:"success_runs"`
	TotalRuns   int    `json:"total_runs"`
}
