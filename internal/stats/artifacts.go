package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"

	"weasel/internal/model"
)

const runIndexFile = "run_index.json"

// RunArtifacts bundles everything a finished run leaves on disk.
type RunArtifacts struct {
	Summary        model.RunSummary              `json:"summary"`
	FitnessHistory []int                         `json:"fitness_history"`
	Diagnostics    []model.GenerationDiagnostics `json:"diagnostics,omitempty"`
	Lineage        []model.LineageRecord         `json:"lineage,omitempty"`
	TopGenomes     []model.TopGenomeRecord       `json:"top_genomes,omitempty"`
}

type RunIndexEntry struct {
	RunID          string `json:"run_id"`
	Target         string `json:"target"`
	PopulationSize int    `json:"population_size"`
	Generations    int    `json:"generations"`
	Seed           int64  `json:"seed"`
	Reason         string `json:"reason"`
	BestFitness    int    `json:"best_fitness"`
	CreatedAtUTC   string `json:"created_at_utc"`
}

type FitnessPoint struct {
	Generation  int `csv:"generation"`
	BestFitness int `csv:"best_fitness"`
}

type DiagnosticsRow struct {
	Generation    int     `csv:"generation"`
	BestFitness   int     `csv:"best_fitness"`
	MeanFitness   float64 `csv:"mean_fitness"`
	MinFitness    int     `csv:"min_fitness"`
	UniqueGenomes int     `csv:"unique_genomes"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Summary.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Summary.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeFitnessCSV(filepath.Join(runDir, "fitness_history.csv"), artifacts.FitnessHistory); err != nil {
		return "", err
	}
	if err := writeDiagnosticsCSV(filepath.Join(runDir, "diagnostics.csv"), artifacts.Diagnostics); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "lineage.json"), artifacts.Lineage); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "top_genomes.json"), artifacts.TopGenomes); err != nil {
		return "", err
	}

	return runDir, nil
}

func ReadRunSummary(baseDir, runID string) (model.RunSummary, bool, error) {
	path := filepath.Join(baseDir, runID, "summary.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunSummary{}, false, nil
		}
		return model.RunSummary{}, false, err
	}

	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.RunSummary{}, false, err
	}
	return summary, true, nil
}

func ReadFitnessHistory(baseDir, runID string) ([]int, bool, error) {
	path := filepath.Join(baseDir, runID, "fitness_history.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	var points []FitnessPoint
	if err := gocsv.UnmarshalFile(file, &points); err != nil {
		if err == gocsv.ErrEmptyCSVFile {
			return []int{}, true, nil
		}
		return nil, false, err
	}

	history := make([]int, len(points))
	for i, point := range points {
		if point.Generation != i {
			return nil, false, fmt.Errorf("fitness history row %d has generation %d", i, point.Generation)
		}
		history[i] = point.BestFitness
	}
	return history, true, nil
}

func ReadDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	path := filepath.Join(baseDir, runID, "diagnostics.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	var rows []DiagnosticsRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		if err == gocsv.ErrEmptyCSVFile {
			return []model.GenerationDiagnostics{}, true, nil
		}
		return nil, false, err
	}

	diagnostics := make([]model.GenerationDiagnostics, len(rows))
	for i, row := range rows {
		diagnostics[i] = model.GenerationDiagnostics{
			Generation:    row.Generation,
			BestFitness:   row.BestFitness,
			MeanFitness:   row.MeanFitness,
			MinFitness:    row.MinFitness,
			UniqueGenomes: row.UniqueGenomes,
		}
	}
	return diagnostics, true, nil
}

func ReadLineage(baseDir, runID string) ([]model.LineageRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "lineage.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var lineage []model.LineageRecord
	if err := json.Unmarshal(data, &lineage); err != nil {
		return nil, false, err
	}
	return lineage, true, nil
}

func ReadTopGenomes(baseDir, runID string) ([]model.TopGenomeRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "top_genomes.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var top []model.TopGenomeRecord
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, false, err
	}
	return top, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"summary.json", "fitness_history.csv", "diagnostics.csv", "lineage.json", "top_genomes.json"}
	for _, file := range files {
		srcPath := filepath.Join(src, file)
		if _, err := os.Stat(srcPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(srcPath, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}

	return dst, nil
}

func writeFitnessCSV(path string, history []int) error {
	points := make([]FitnessPoint, len(history))
	for i, best := range history {
		points[i] = FitnessPoint{Generation: i, BestFitness: best}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := gocsv.Marshal(&points, file); err != nil {
		return fmt.Errorf("writing fitness history: %w", err)
	}
	return nil
}

func writeDiagnosticsCSV(path string, diagnostics []model.GenerationDiagnostics) error {
	rows := make([]DiagnosticsRow, len(diagnostics))
	for i, d := range diagnostics {
		rows[i] = DiagnosticsRow{
			Generation:    d.Generation,
			BestFitness:   d.BestFitness,
			MeanFitness:   d.MeanFitness,
			MinFitness:    d.MinFitness,
			UniqueGenomes: d.UniqueGenomes,
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := gocsv.Marshal(&rows, file); err != nil {
		return fmt.Errorf("writing diagnostics: %w", err)
	}
	return nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
