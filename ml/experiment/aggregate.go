// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"fmt"
	"io"

	"github.com/gomlx/linkpred/ml/train/metrics"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// MetricSummary is the mean and (population) standard deviation of a metric over the runs.
type MetricSummary struct {
	Metric    metrics.Interface
	Mean, Std float64
}

// String implements fmt.Stringer, in the form "AUC: 0.8000 ± 0.0163".
func (m MetricSummary) String() string {
	return fmt.Sprintf("%s: %s ± %s", m.Metric.Name(), m.Metric.PrettyPrint(m.Mean), m.Metric.PrettyPrint(m.Std))
}

// Summary of the runs of a dataset.
type Summary struct {
	Dataset string
	Runs    int

	// Diverged is the number of runs with a NaN or infinite loss in some epoch.
	Diverged int

	// Metrics in the order of metrics.All: AUC, AP and F1 first.
	Metrics []MetricSummary
}

// Aggregate the test metrics of the runs: for each metric its mean and population standard
// deviation (dividing by the number of runs).
//
// A metric that is NaN in any run (e.g.: empty test split) has a NaN mean and standard deviation.
func Aggregate(dataset string, results []RunResult) (Summary, error) {
	if len(results) == 0 {
		return Summary{}, errors.Errorf("no runs to aggregate for dataset %q", dataset)
	}
	summary := Summary{Dataset: dataset, Runs: len(results)}
	for _, r := range results {
		if r.Diverged {
			summary.Diverged++
		}
	}
	values := make([]float64, len(results))
	for _, metric := range metrics.All() {
		for ii, r := range results {
			values[ii] = metric.FromResult(r.Test)
		}
		mean, std := stat.PopMeanStdDev(values, nil)
		summary.Metrics = append(summary.Metrics, MetricSummary{Metric: metric, Mean: mean, Std: std})
	}
	return summary, nil
}

// Get returns the summary of the metric with the given name (or short name).
func (s Summary) Get(name string) (MetricSummary, bool) {
	metric, found := metrics.ByName(name)
	if !found {
		return MetricSummary{}, false
	}
	for _, m := range s.Metrics {
		if m.Metric == metric {
			return m, true
		}
	}
	return MetricSummary{}, false
}

// MainMetrics are the metrics printed by Report.
var MainMetrics = []metrics.Interface{metrics.AUC, metrics.AP, metrics.F1}

// Report writes one line per main metric, in the form "AUC: 0.8000 ± 0.0163".
func (s Summary) Report(w io.Writer) error {
	for _, main := range MainMetrics {
		for _, m := range s.Metrics {
			if m.Metric != main {
				continue
			}
			if _, err := fmt.Fprintln(w, m.String()); err != nil {
				return errors.Wrap(err, "failed to write report")
			}
		}
	}
	return nil
}
