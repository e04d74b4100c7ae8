// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI training tools for the command line.
package commandline

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/linkpred/ml/experiment"
	"github.com/pkg/errors"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center).Padding(0, 1)

// ReportSummary writes the summary of the runs of a dataset: one line "metric: mean ± std" for the
// main metrics, followed by a table with all the metrics.
func ReportSummary(w io.Writer, summary experiment.Summary) error {
	runs := fmt.Sprintf("%s runs", humanize.Comma(int64(summary.Runs)))
	if summary.Diverged > 0 {
		runs = fmt.Sprintf("%s, %d diverged", runs, summary.Diverged)
	}
	if _, err := fmt.Fprintf(w, "Results on %s (%s):\n", summary.Dataset, runs); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	if err := summary.Report(w); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, SummaryTable(summary))
	return errors.Wrap(err, "failed to write report")
}

// SummaryTable renders all metrics of the summary as a table.
func SummaryTable(summary experiment.Summary) string {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Metric", "Mean", "Std").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case col == 0:
				return rightAlignedStyle
			}
			return normalStyle
		})
	for _, m := range summary.Metrics {
		table.Row(m.Metric.Name(), m.Metric.PrettyPrint(m.Mean), m.Metric.PrettyPrint(m.Std))
	}
	return table.String()
}
