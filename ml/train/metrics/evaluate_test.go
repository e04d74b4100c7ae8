// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	testCases := []struct {
		name           string
		scores, labels []float64
		auc, ap, f1    float64
	}{
		// Positives 0.9 and 0.2, negatives 0.8 and 0.1: 3 of the 4 pairs are ordered correctly.
		{"interleaved", []float64{0.9, 0.8, 0.2, 0.1}, []float64{1, 0, 1, 0}, 0.75, 5.0 / 6.0, 0.5},
		// One concordant and one discordant pair for each positive.
		{"half", []float64{0.9, 0.8, 0.2, 0.1}, []float64{1, 0, 0, 1}, 0.5, 0.75, 0.5},
		{"perfect", []float64{0.9, 0.8, 0.3, 0.1}, []float64{1, 1, 0, 0}, 1, 1, 1},
		{"inverted", []float64{0.1, 0.2, 0.8, 0.9}, []float64{1, 1, 0, 0}, 0, 5.0 / 12.0, 0},
		// All tied: every score is predicted positive.
		{"ties", []float64{0.5, 0.5}, []float64{1, 0}, 0.5, 0.5, 2.0 / 3.0},
		{"bounds", []float64{1, 0, 0.5, 0.4999}, []float64{1, 0, 1, 0}, 1, 1, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			scores := slices.Clone(tc.scores)
			r, err := Evaluate(scores, tc.labels)
			require.NoError(t, err)
			assert.InDelta(t, tc.auc, r.AUC, 1e-9, "AUC")
			assert.InDelta(t, tc.ap, r.AP, 1e-9, "AP")
			assert.InDelta(t, tc.f1, r.F1, 1e-9, "F1")
			assert.Equal(t, tc.scores, scores, "inputs must not be modified")

			// Pure function.
			r2, err := Evaluate(scores, tc.labels)
			require.NoError(t, err)
			assert.Equal(t, r, r2)
		})
	}
}

func TestEvaluateConfusionMatrix(t *testing.T) {
	r, err := Evaluate([]float64{0.9, 0.8, 0.6, 0.4, 0.3, 0.1}, []float64{1, 1, 0, 1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, r.TP)
	assert.Equal(t, 1, r.FP)
	assert.Equal(t, 2, r.TN)
	assert.Equal(t, 1, r.FN)
	assert.InDelta(t, 2.0/3.0, r.Precision, 1e-9)
	assert.InDelta(t, 2.0/3.0, r.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, r.Specificity, 1e-9)
	assert.InDelta(t, 4.0/6.0, r.Accuracy, 1e-9)
	assert.InDelta(t, 1.0/3.0, r.MCC, 1e-9)
	assert.Equal(t, 3, r.Positives)
	assert.Equal(t, 3, r.Negatives)
}

// pairwiseAUC is the O(n^2) definition of AUC.
func pairwiseAUC(scores, labels []float64) float64 {
	var sum float64
	var count int
	for ii := range scores {
		if labels[ii] != 1 {
			continue
		}
		for jj := range scores {
			if labels[jj] != 0 {
				continue
			}
			count++
			switch {
			case scores[ii] > scores[jj]:
				sum += 1
			case scores[ii] == scores[jj]:
				sum += 0.5
			}
		}
	}
	return sum / float64(count)
}

func TestAUCMatchesPairwise(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	for trial := range 20 {
		n := 10 + rng.IntN(50)
		scores, labels := make([]float64, n), make([]float64, n)
		for ii := range n {
			scores[ii] = float64(rng.IntN(8)) / 8 // Lots of ties.
			labels[ii] = float64(ii % 2)
		}
		r, err := Evaluate(scores, labels)
		require.NoError(t, err)
		require.InDeltaf(t, pairwiseAUC(scores, labels), r.AUC, 1e-9, "trial %d", trial)
	}
}

func TestEvaluateEdgeCases(t *testing.T) {
	// Empty evaluation set: undefined metrics, no error.
	r, err := Evaluate(nil, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(r.AUC))
	assert.True(t, math.IsNaN(r.AP))
	assert.True(t, math.IsNaN(r.F1))

	// Single class.
	_, err = Evaluate([]float64{0.2, 0.7}, []float64{1, 1})
	var degenerateErr *DegenerateLabelsError
	require.True(t, errors.As(err, &degenerateErr))
	assert.Equal(t, 2, degenerateErr.Positives)
	assert.Equal(t, 0, degenerateErr.Negatives)
	_, err = Evaluate([]float64{0.2}, []float64{0})
	require.True(t, errors.As(err, &degenerateErr))

	// Invalid inputs.
	_, err = Evaluate([]float64{0.2}, []float64{1, 0})
	require.Error(t, err)
	_, err = Evaluate([]float64{0.2, 0.3}, []float64{1, 2})
	require.Error(t, err)
	_, err = Evaluate([]float64{math.NaN(), 0.3}, []float64{1, 0})
	require.Error(t, err)
}

func TestEvaluateFixedThreshold(t *testing.T) {
	scores, labels := []float64{0.9, 0.6, 0.4, 0.1}, []float64{1, 1, 0, 0}
	r, err := Evaluate(scores, labels)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.F1)

	// Adding a pair never changes how the other pairs are binarized.
	r, err = Evaluate(append(slices.Clone(scores), 1), append(slices.Clone(labels), 1))
	require.NoError(t, err)
	assert.Equal(t, 3, r.TP)
	assert.Equal(t, 0, r.FP)
	assert.Equal(t, 2, r.TN)
	assert.Equal(t, 1.0, r.F1)

	// Scores outside [0, 1] (e.g.: logits) are rejected.
	for _, bad := range []float64{1.0001, -0.5, 3, math.Inf(1)} {
		_, err = Evaluate(append(slices.Clone(scores), bad), append(slices.Clone(labels), 1))
		require.Errorf(t, err, "score %g", bad)
	}
}

func TestDescriptors(t *testing.T) {
	r := Result{AUC: 0.9, AP: 0.8, F1: 0.7, MCC: 0.5}
	names := make([]string, 0, len(All()))
	for _, m := range All() {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{"AUC", "AP", "F1", "Precision", "Recall", "Accuracy", "Specificity", "MCC"}, names)
	assert.Equal(t, 0.8, AP.FromResult(r))
	assert.Equal(t, "0.9000", AUC.PrettyPrint(AUC.FromResult(r)))
	assert.Equal(t, "+0.5000", MCC.PrettyPrint(0.5))
	m, found := ByName("spec")
	require.True(t, found)
	assert.Equal(t, "Specificity", m.Name())
	_, found = ByName("loss")
	assert.False(t, found)
	assert.Equal(t, "1.000e-04", PrettyPrintLoss(1e-4))
}
