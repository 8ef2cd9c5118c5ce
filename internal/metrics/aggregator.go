// internal/metrics/aggregator.go
// Package metrics condenses the per-pair records of a finished run into
// per-strategy comparison rows and writes the run artifacts.
package metrics

import (
	"math"
	"sort"

	"github.com/mwiater/ragbench/internal/results"
)

// RunningStat accumulates count, mean and variance using Welford's online
// algorithm.
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"-"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Add folds one observation into the running statistic.
func (rs *RunningStat) Add(value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

// StdDev returns the sample standard deviation, zero below two observations.
func (rs RunningStat) StdDev() float64 {
	if rs.Count < 2 {
		return 0
	}
	return math.Sqrt(rs.M2 / float64(rs.Count-1))
}

// MetricStat is one metric's aggregate for a strategy. Count is the number
// of pairs that actually produced the metric; pairs where the scorer could
// not compute it are excluded rather than counted as zero.
type MetricStat struct {
	Mean  float64 `json:"mean"`
	Count int64   `json:"count"`
}

// ComparisonRow is one strategy's line in the final comparison.
type ComparisonRow struct {
	Strategy        string                `json:"strategy"`
	Pairs           int                   `json:"pairs"`
	Done            int                   `json:"done"`
	Failed          int                   `json:"failed"`
	Metrics         map[string]MetricStat `json:"metrics"`
	OverallScore    float64               `json:"overallScore"`
	LatencyMeanMs   float64               `json:"latencyMeanMs"`
	LatencyStdDevMs float64               `json:"latencyStdDevMs"`
	FailuresByKind  map[string]int        `json:"failuresByKind,omitempty"`
}

// Aggregate folds the run's records into one ComparisonRow per strategy,
// sorted best-first by the primary metric. An empty primaryMetric selects
// the alphabetically first metric name observed across the run.
func Aggregate(retrievals []results.RetrievalResult, scores []results.EvaluationScore, primaryMetric string) []ComparisonRow {
	type accumulator struct {
		pairs    int
		done     int
		failed   int
		latency  RunningStat
		metrics  map[string]*RunningStat
		failures map[string]int
	}

	byStrategy := make(map[string]*accumulator)
	get := func(name string) *accumulator {
		acc, ok := byStrategy[name]
		if !ok {
			acc = &accumulator{
				metrics:  make(map[string]*RunningStat),
				failures: make(map[string]int),
			}
			byStrategy[name] = acc
		}
		return acc
	}

	for _, r := range retrievals {
		acc := get(r.StrategyName)
		acc.pairs++
		if r.Status == results.StatusDone {
			acc.done++
			acc.latency.Add(float64(r.LatencyMs))
		} else {
			acc.failed++
			acc.failures[string(r.ErrorKind)]++
		}
	}

	allMetrics := make(map[string]bool)
	for _, score := range scores {
		acc := get(score.StrategyName)
		for name, value := range score.Metrics {
			allMetrics[name] = true
			stat, ok := acc.metrics[name]
			if !ok {
				stat = &RunningStat{}
				acc.metrics[name] = stat
			}
			stat.Add(value)
		}
	}

	if primaryMetric == "" {
		names := make([]string, 0, len(allMetrics))
		for name := range allMetrics {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) > 0 {
			primaryMetric = names[0]
		}
	}

	rows := make([]ComparisonRow, 0, len(byStrategy))
	for name, acc := range byStrategy {
		row := ComparisonRow{
			Strategy:        name,
			Pairs:           acc.pairs,
			Done:            acc.done,
			Failed:          acc.failed,
			Metrics:         make(map[string]MetricStat, len(acc.metrics)),
			LatencyMeanMs:   acc.latency.Mean,
			LatencyStdDevMs: acc.latency.StdDev(),
		}
		if len(acc.failures) > 0 {
			row.FailuresByKind = acc.failures
		}
		for metricName, stat := range acc.metrics {
			row.Metrics[metricName] = MetricStat{Mean: stat.Mean, Count: stat.Count}
		}
		// Overall score is the unweighted mean of the metric means.
		if len(acc.metrics) > 0 {
			var sum float64
			for _, stat := range acc.metrics {
				sum += stat.Mean
			}
			row.OverallScore = sum / float64(len(acc.metrics))
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		a, aOK := rows[i].Metrics[primaryMetric]
		b, bOK := rows[j].Metrics[primaryMetric]
		if aOK != bOK {
			return aOK
		}
		if aOK && a.Mean != b.Mean {
			return a.Mean > b.Mean
		}
		return rows[i].Strategy < rows[j].Strategy
	})
	return rows
}

// PrimaryMetric reports the metric name Aggregate would rank by, for display.
func PrimaryMetric(rows []ComparisonRow, configured string) string {
	if configured != "" {
		return configured
	}
	names := make(map[string]bool)
	for _, row := range rows {
		for name := range row.Metrics {
			names[name] = true
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	if len(sorted) == 0 {
		return ""
	}
	return sorted[0]
}
