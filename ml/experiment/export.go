// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gomlx/linkpred/ml/train/metrics"
	"github.com/pkg/errors"
)

// ResultsDataFrame returns a DataFrame with one row per run: its identification, training
// statistics and all test metrics (one column per metric, named in lower case).
func ResultsDataFrame(results []RunResult) dataframe.DataFrame {
	n := len(results)
	var (
		ids, datasets, methods, monitors = make([]string, n), make([]string, n), make([]string, n), make([]string, n)
		runs, seeds, bestEpochs, epochs  = make([]int, n), make([]int, n), make([]int, n), make([]int, n)
		diverged                         = make([]bool, n)
		seconds                          = make([]float64, n)
	)
	for ii, r := range results {
		ids[ii], datasets[ii], methods[ii], monitors[ii] = r.ID, r.Dataset, r.Method, string(r.Monitor)
		runs[ii], seeds[ii], bestEpochs[ii], epochs[ii] = r.Run, int(r.Seed), r.BestEpoch, r.EpochsRun
		diverged[ii] = r.Diverged
		seconds[ii] = r.Duration.Seconds()
	}
	columns := []series.Series{
		series.New(ids, series.String, "id"),
		series.New(datasets, series.String, "dataset"),
		series.New(methods, series.String, "method"),
		series.New(runs, series.Int, "run"),
		series.New(seeds, series.Int, "seed"),
	}
	for _, metric := range metrics.All() {
		values := make([]float64, n)
		for ii, r := range results {
			values[ii] = metric.FromResult(r.Test)
		}
		columns = append(columns, series.New(values, series.Float, strings.ToLower(metric.Name())))
	}
	columns = append(columns,
		series.New(monitors, series.String, "monitor"),
		series.New(bestEpochs, series.Int, "best_epoch"),
		series.New(epochs, series.Int, "epochs"),
		series.New(diverged, series.Bool, "diverged"),
		series.New(seconds, series.Float, "seconds"),
	)
	return dataframe.New(columns...)
}

// WriteResultsCSV writes the results, one run per row, as CSV with a header.
func WriteResultsCSV(w io.Writer, results []RunResult) error {
	df := ResultsDataFrame(results)
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to build results table")
	}
	if err := df.WriteCSV(w); err != nil {
		return errors.Wrap(err, "failed to write results CSV")
	}
	return nil
}

// SaveResultsCSV writes the results as CSV to the file in path.
func SaveResultsCSV(path string, results []RunResult) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "failed to close %q", path)
		}
	}()
	return WriteResultsCSV(f, results)
}
