package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

const benchmarkReportsDir = "benchmarks"

// BenchmarkRun records the outcome of one repeat within a benchmark.
type BenchmarkRun struct {
	RunID       string `json:"run_id"`
	Seed        int64  `json:"seed"`
	Success     bool   `json:"success"`
	Reason      string `json:"reason"`
	Generations int    `json:"generations"`
	Evaluations int    `json:"evaluations"`
	FinalBest   int    `json:"final_best"`
}

// SampleStats summarizes one metric across the successful repeats.
type SampleStats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type BenchmarkReport struct {
	BenchmarkID string         `json:"benchmark_id"`
	Target      string         `json:"target"`
	Repeats     int            `json:"repeats"`
	SuccessRuns int            `json:"success_runs"`
	SuccessRate float64        `json:"success_rate"`
	Generations SampleStats    `json:"generations"`
	Evaluations SampleStats    `json:"evaluations"`
	FinalBest   SampleStats    `json:"final_best"`
	Runs        []BenchmarkRun `json:"runs"`
	GeneratedAt string         `json:"generated_at_utc"`
}

// Summarize computes descriptive statistics for one metric. A zero-value
// SampleStats is returned for an empty sample.
func Summarize(values []float64) SampleStats {
	if len(values) == 0 {
		return SampleStats{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	result := SampleStats{
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
	if len(sorted) > 1 {
		result.Std = stat.StdDev(sorted, nil)
	}
	return result
}

// BuildBenchmarkReport aggregates the repeats for one target.
// Generation and evaluation statistics cover successful repeats only;
// final best fitness covers all repeats.
func BuildBenchmarkReport(benchmarkID, target string, runs []BenchmarkRun) BenchmarkReport {
	report := BenchmarkReport{
		BenchmarkID: benchmarkID,
		Target:      target,
		Repeats:     len(runs),
		Runs:        runs,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}

	generations := make([]float64, 0, len(runs))
	evaluations := make([]float64, 0, len(runs))
	finalBest := make([]float64, 0, len(runs))
	for _, run := range runs {
		finalBest = append(finalBest, float64(run.FinalBest))
		if run.Success {
			report.SuccessRuns++
			generations = append(generations, float64(run.Generations))
			evaluations = append(evaluations, float64(run.Evaluations))
		}
	}
	if report.Repeats > 0 {
		report.SuccessRate = float64(report.SuccessRuns) / float64(report.Repeats)
	}
	report.Generations = Summarize(generations)
	report.Evaluations = Summarize(evaluations)
	report.FinalBest = Summarize(finalBest)
	return report
}

func WriteBenchmarkReport(baseDir string, report BenchmarkReport) (string, error) {
	if report.BenchmarkID == "" {
		return "", fmt.Errorf("benchmark id is required")
	}

	reportDir := filepath.Join(baseDir, benchmarkReportsDir, report.BenchmarkID)
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(reportDir, "report.json"), report); err != nil {
		return "", err
	}
	return reportDir, nil
}

func ReadBenchmarkReport(baseDir, benchmarkID string) (BenchmarkReport, bool, error) {
	path := filepath.Join(baseDir, benchmarkReportsDir, benchmarkID, "report.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return BenchmarkReport{}, false, nil
		}
		return BenchmarkReport{}, false, err
	}

	var report BenchmarkReport
	if err := json.Unmarshal(data, &report); err != nil {
		return BenchmarkReport{}, false, err
	}
	return report, true, nil
}
