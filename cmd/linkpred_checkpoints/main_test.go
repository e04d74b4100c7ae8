// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/linkpred/ml/train/checkpoints"
	"github.com/gomlx/linkpred/ui/plots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimalUniquePaths(t *testing.T) {
	assert.Equal(t, []string{"run-000"}, MinimalUniquePaths("ckpt/cora/gcn/run-000"))
	assert.Equal(t,
		[]string{"gcn/run-000", "sage/run-000", "run-001"},
		MinimalUniquePaths("ckpt/cora/gcn/run-000", "ckpt/cora/sage/run-000", "ckpt/cora/sage/run-001"))
	assert.Equal(t, []string{"a/b", "a/b"}, MinimalUniquePaths("a/b/", "a/b"))
	assert.Empty(t, MinimalUniquePaths())
}

func saveCheckpoints(t *testing.T, dir string, scores ...float64) {
	handler, err := checkpoints.Build().Dir(dir).Keep(-1).Done()
	require.NoError(t, err)
	for ii, score := range scores {
		require.NoError(t, handler.Save(checkpoints.Checkpoint{
			Epoch: ii - 1, Score: score, Monitor: "val_auc", State: make([]byte, 10*(ii+1))}))
	}
}

func TestRuns(t *testing.T) {
	root := t.TempDir()
	saveCheckpoints(t, filepath.Join(root, "cora", "gcn", "run-000"), 0.5, 0.7, 0.8)
	saveCheckpoints(t, filepath.Join(root, "cora", "gcn", "run-001"), 0.5, math.NaN())
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o770))

	dirs, err := findRunDirs(root)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, "cora", "gcn", "run-000"),
		filepath.Join(root, "cora", "gcn", "run-001"),
	}, dirs)

	runs, err := loadRuns(dirs)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-000", runs[0].Name)
	assert.Len(t, runs[0].Checkpoints, 3)
	assert.True(t, runs[0].Checkpoints[0].IsInitial())
	assert.Equal(t, 1, runs[0].Latest().Epoch)
	assert.Equal(t, 0.8, runs[0].Latest().Score)
	assert.True(t, math.IsNaN(runs[1].Latest().Score))

	summary := SummaryTable(runs)
	assert.Contains(t, summary, "run-001")
	assert.Contains(t, summary, "0.8000")
	assert.Contains(t, summary, "NaN")
	list := ListTable(runs)
	assert.Contains(t, list, "initial")
	assert.Contains(t, list, "30 B")

	_, err = findRunDirs(filepath.Join(root, "missing"))
	require.Error(t, err)
}

func writePoints(t *testing.T, filePath string, points ...plots.Point) {
	writer, errReport := plots.CreatePointsWriter(filePath)
	for _, pt := range points {
		writer <- pt
	}
	close(writer)
	require.NoError(t, <-errReport)
}

func TestMetrics(t *testing.T) {
	dir := t.TempDir()
	loss := func(epoch int, v float64) plots.Point {
		return plots.Point{MetricName: "Train: Loss", Short: "Loss", MetricType: "loss", Epoch: epoch, Value: v}
	}
	auc := func(epoch int, v float64) plots.Point {
		return plots.Point{MetricName: "Validation: AUC", Short: "AUC", MetricType: "ranking", Epoch: epoch, Value: v}
	}
	writePoints(t, filepath.Join(dir, "cora-gcn-run000.json"), loss(0, 0.7), auc(0, 0.6), loss(1, 0.5), auc(1, 0.8))
	writePoints(t, filepath.Join(dir, "cora-gcn-run001.json"), loss(0, 0.6), auc(0, 0.7))

	files, err := findPointsFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	noFilter, err := newMetricsFilter("", "")
	require.NoError(t, err)
	points, err := mergePoints(files, noFilter)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, points.Epochs())
	assert.Contains(t, points.MetricsNames(), "cora-gcn-run001: Validation: AUC")
	assert.Len(t, points.MetricsNames(), 4)

	aucOnly, err := newMetricsFilter("^AUC$", "")
	require.NoError(t, err)
	points, err = mergePoints(files[:1], aucOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{"Validation: AUC"}, points.MetricsNames())
	epochs, values := points.Series("Validation: AUC")
	assert.Equal(t, []int{0, 1}, epochs)
	assert.Equal(t, []float64{0.6, 0.8}, values)

	lossType, err := newMetricsFilter("", "loss")
	require.NoError(t, err)
	points, err = mergePoints(files, lossType)
	require.NoError(t, err)
	assert.Equal(t, []string{"loss"}, points.MetricsTypes())

	saved, err := savePlots(points, dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "loss.png")}, saved)
	assert.FileExists(t, saved[0])

	_, err = newMetricsFilter("(", "")
	require.Error(t, err)
}
