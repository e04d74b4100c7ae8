// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/gomlx/linkpred/ml/experiment"
	"github.com/gomlx/linkpred/ml/params"
	"github.com/gomlx/linkpred/ml/train"
	"github.com/gomlx/linkpred/ml/train/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestParams() params.Params {
	return params.New().
		Set("x", 11.0).
		Set("y", 7).
		Set("seed", uint64(0)).
		Set("z", false).
		Set("s", "foo").
		Set("list_int", []int{}).
		Set("list_float", []float64{}).
		Set("list_str", []string{})
}

func TestParseSettings(t *testing.T) {
	p := createTestParams()
	require.NoError(t, ParseSettings(p,
		"x=13;y=1_000;seed=42;z=true;s=a=b;list_int=1,3,7;list_float=0.1, 1.2,3e3;list_str=a,b;"))
	assert.Equal(t, 13.0, p["x"])
	assert.Equal(t, 1000, p["y"])
	assert.Equal(t, uint64(42), p["seed"])
	assert.Equal(t, true, p["z"])
	assert.Equal(t, "a=b", p["s"])
	assert.Equal(t, []int{1, 3, 7}, p["list_int"])
	assert.Equal(t, []float64{0.1, 1.2, 3e3}, p["list_float"])
	assert.Equal(t, []string{"a", "b"}, p["list_str"])

	// Empty settings change nothing.
	require.NoError(t, ParseSettings(p, ""))
	assert.Equal(t, 13.0, p["x"])

	// Parameter "q" is unknown.
	require.Error(t, ParseSettings(p, "q=3"))
	// Cannot set the wrong type of value.
	require.Error(t, ParseSettings(p, "y=3.14"))
	require.Error(t, ParseSettings(p, "z=maybe"))
	require.Error(t, ParseSettings(p, "list_int=1,x"))
	// Missing value.
	require.Error(t, ParseSettings(p, "x"))
	assert.Equal(t, 1000, p["y"])

	text := SprintSettings(p)
	assert.True(t, strings.HasPrefix(text, "Hyperparameters:"))
	assert.Contains(t, text, `"y": (int) 1000`)
}

func TestReportSummary(t *testing.T) {
	result := func(auc float64) experiment.RunResult {
		return experiment.RunResult{Test: metrics.Result{AUC: auc, AP: 0.7, F1: 0.6}}
	}
	summary, err := experiment.Aggregate("toy", []experiment.RunResult{result(0.80), result(0.82), result(0.78)})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ReportSummary(&buf, summary))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Results on toy (3 runs):\nAUC: 0.8000 ± 0.0163\nAP: 0.7000 ± 0.0000\nF1: 0.6000 ± 0.0000\n"))
	for _, m := range metrics.All() {
		assert.Contains(t, out, m.Name())
	}
}

// constantModel always returns the same loss and scores.
type constantModel struct{}

func (constantModel) Reset(uint64) error { return nil }
func (constantModel) TrainEpoch(*train.Batch) (float64, error) { return 0.5, nil }
func (constantModel) Predict(pairs []graph.Edge) ([]float64, error) {
	scores := make([]float64, len(pairs))
	for ii, p := range pairs {
		scores[ii] = float64(p.U) / 10
	}
	return scores, nil
}
func (constantModel) SaveState() ([]byte, error) { return nil, nil }
func (constantModel) LoadState([]byte) error { return nil }

func TestProgressBar(t *testing.T) {
	loop := train.NewLoop(constantModel{}).
		WithValidation([]graph.Edge{graph.E(1, 2), graph.E(5, 6)}, []float64{0, 1})
	var buf bytes.Buffer
	attachProgressBar(loop, &buf)
	_, err := loop.RunEpochs(&train.Batch{}, 3)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Training (3 epochs)")
	assert.Contains(t, out, "Val AUC")
	assert.Contains(t, out, "2 / 3")

	// The loop can be run again.
	_, err = loop.RunEpochs(&train.Batch{}, 2)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Training (2 epochs)")
}
