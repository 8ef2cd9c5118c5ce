// internal/metrics/report.go
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/mwiater/ragbench/internal/logging"
	"github.com/mwiater/ragbench/internal/results"
	"github.com/mwiater/ragbench/internal/util"
)

var successLabel = color.New(color.FgGreen).SprintFunc()
var failureLabel = color.New(color.FgRed).SprintFunc()
var headerLabel = color.New(color.Bold).SprintFunc()

// pairRecord is one line of a per-strategy JSONL file: the retrieval record
// joined with its metrics when the pair was scored.
type pairRecord struct {
	TestCaseID string             `json:"testCaseId"`
	Status     results.Status     `json:"status"`
	Contexts   []string           `json:"contexts,omitempty"`
	Answer     string             `json:"answer,omitempty"`
	LatencyMs  int64              `json:"latencyMs"`
	ErrorKind  string             `json:"errorKind,omitempty"`
	Cause      string             `json:"cause,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// WriteArtifacts persists the run output under dir:
// raw_test_results.json, evaluation_results.json, comparison.json, and one
// JSONL file per strategy under strategies/.
func WriteArtifacts(dir string, retrievals []results.RetrievalResult, scores []results.EvaluationScore, rows []ComparisonRow) error {
	if err := os.MkdirAll(filepath.Join(dir, "strategies"), 0o755); err != nil {
		return fmt.Errorf("could not create output directory %q: %w", dir, err)
	}

	if err := writeJSON(filepath.Join(dir, "raw_test_results.json"), retrievals); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "evaluation_results.json"), scores); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "comparison.json"), rows); err != nil {
		return err
	}
	if err := writeStrategyLines(filepath.Join(dir, "strategies"), retrievals, scores); err != nil {
		return err
	}

	logging.LogEvent("Artifacts written to %s", dir)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal %q: %w", path, err)
	}
	if err := util.WriteFile(path, append(data, '\n')); err != nil {
		return fmt.Errorf("could not write %q: %w", path, err)
	}
	return nil
}

// writeStrategyLines emits one JSONL file per strategy, one pair per line in
// test-case order.
func writeStrategyLines(dir string, retrievals []results.RetrievalResult, scores []results.EvaluationScore) error {
	metricsByKey := make(map[results.Key]map[string]float64, len(scores))
	for _, score := range scores {
		metricsByKey[results.Key{TestCaseID: score.TestCaseID, StrategyName: score.StrategyName}] = score.Metrics
	}

	byStrategy := make(map[string][]pairRecord)
	for _, r := range retrievals {
		key := results.Key{TestCaseID: r.TestCaseID, StrategyName: r.StrategyName}
		byStrategy[r.StrategyName] = append(byStrategy[r.StrategyName], pairRecord{
			TestCaseID: r.TestCaseID,
			Status:     r.Status,
			Contexts:   r.Contexts,
			Answer:     r.Answer,
			LatencyMs:  r.LatencyMs,
			ErrorKind:  string(r.ErrorKind),
			Cause:      r.Cause,
			Metrics:    metricsByKey[key],
		})
	}

	for name, records := range byStrategy {
		sort.Slice(records, func(i, j int) bool { return records[i].TestCaseID < records[j].TestCaseID })

		path := filepath.Join(dir, util.Slugify(name)+".jsonl")
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("could not create %q: %w", path, err)
		}
		encoder := json.NewEncoder(file)
		for _, record := range records {
			if err := encoder.Encode(record); err != nil {
				file.Close()
				return fmt.Errorf("could not write %q: %w", path, err)
			}
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("could not close %q: %w", path, err)
		}
	}
	return nil
}

// PrintComparison renders the strategy comparison table and failure summary
// to w. Rows are assumed pre-sorted by Aggregate.
func PrintComparison(w io.Writer, rows []ComparisonRow, primaryMetric string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No results to compare.")
		return
	}

	metricNames := make(map[string]bool)
	for _, row := range rows {
		for name := range row.Metrics {
			metricNames[name] = true
		}
	}
	columns := make([]string, 0, len(metricNames))
	for name := range metricNames {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	// Primary metric leads the metric columns.
	for i, name := range columns {
		if name == primaryMetric && i > 0 {
			copy(columns[1:i+1], columns[:i])
			columns[0] = name
			break
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "STRATEGY\tDONE\tFAILED\tOVERALL\tLATENCY (ms)"
	for _, name := range columns {
		header += "\t" + name
	}
	fmt.Fprintln(tw, headerLabel(header))

	for _, row := range rows {
		line := fmt.Sprintf("%s\t%s\t%s\t%.3f\t%.0f ±%.0f",
			row.Strategy,
			successLabel(row.Done),
			failureLabel(row.Failed),
			row.OverallScore,
			row.LatencyMeanMs, row.LatencyStdDevMs)
		for _, name := range columns {
			stat, ok := row.Metrics[name]
			if !ok {
				line += "\t-"
				continue
			}
			line += fmt.Sprintf("\t%.3f (n=%d)", stat.Mean, stat.Count)
		}
		fmt.Fprintln(tw, line)
	}
	tw.Flush()

	if primaryMetric != "" {
		fmt.Fprintf(w, "\nRanked by %s (mean, descending).\n", primaryMetric)
	}

	for _, row := range rows {
		if len(row.FailuresByKind) == 0 {
			continue
		}
		kinds := make([]string, 0, len(row.FailuresByKind))
		for kind := range row.FailuresByKind {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(w, "%s %s: %d × %s\n", failureLabel("FAILED"), row.Strategy, row.FailuresByKind[kind], kind)
		}
	}
}
