// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package edgesplit

import (
	"testing"

	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/gomlx/linkpred/pkg/support/sets"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cycle4(t *testing.T) *graph.Graph {
	g, err := graph.New(4, []graph.Edge{graph.E(0, 1), graph.E(1, 2), graph.E(2, 3), graph.E(3, 0)})
	require.NoError(t, err)
	return g
}

func TestSquare(t *testing.T) {
	g := cycle4(t)
	s, err := New(g, Config{DatasetName: "square", TestFrac: 0.25, Seed: 1})
	require.NoError(t, err)
	require.Len(t, s.TestPos, 1)
	require.Len(t, s.TrainPos, 3)
	require.Empty(t, s.ValPos)
	require.Empty(t, s.ValNeg)
	require.Len(t, s.TestNeg, 1)
	nonEdges := sets.MakeWith(graph.E(0, 2), graph.E(1, 3))
	assert.True(t, nonEdges.Has(s.TestNeg[0]), "negative %s is not a non-edge", s.TestNeg[0])

	// Only one non-edge is left for the 3 train positives.
	require.Len(t, s.TrainNeg, 1)
	assert.True(t, nonEdges.Has(s.TrainNeg[0]))
	assert.NotEqual(t, s.TestNeg[0], s.TrainNeg[0])

	assert.Equal(t, 3, s.Train.NumEdges())
	assert.False(t, s.Train.HasEdge(s.TestPos[0].U, s.TestPos[0].V))
	assert.Equal(t, 0, s.IsolatedNodes)
	assert.Equal(t, 1, s.Components)

	pairs, labels := s.Pairs(Test)
	assert.Equal(t, []graph.Edge{s.TestPos[0], s.TestNeg[0]}, pairs)
	assert.Equal(t, []float64{1, 0}, labels)

	// Requiring all train negatives fails.
	_, err = New(g, Config{DatasetName: "square", TestFrac: 0.25, Seed: 1, StrictTrainNegatives: true})
	var insufficientErr *InsufficientNegativesError
	require.True(t, errors.As(err, &insufficientErr), "unexpected error %v", err)
	assert.Equal(t, "square", insufficientErr.Dataset)
	assert.Equal(t, 4, insufficientErr.Needed)
	assert.Equal(t, int64(2), insufficientErr.Available)
}

func TestSplitProperties(t *testing.T) {
	g, err := graph.Synthetic(80, 0.08, 3)
	require.NoError(t, err)
	for _, sampling := range []Sampling{Rejection, Exhaustive} {
		t.Run(string(sampling), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Sampling, cfg.Seed = sampling, 17
			s, err := New(g, cfg)
			require.NoError(t, err)

			// Positives are disjoint and cover all edges.
			train, val, test := sets.MakeWith(s.TrainPos...), sets.MakeWith(s.ValPos...), sets.MakeWith(s.TestPos...)
			assert.Len(t, train, len(s.TrainPos))
			assert.True(t, train.Disjoint(val))
			assert.True(t, train.Disjoint(test))
			assert.True(t, val.Disjoint(test))
			assert.True(t, train.Union(val, test).Equal(g.EdgeSet()))
			assert.Equal(t, int(0.1*float64(g.NumEdges())), len(s.TestPos))
			assert.Equal(t, int(0.05*float64(g.NumEdges())), len(s.ValPos))

			// Negatives are non-edges, matched in count, never repeated.
			all := sets.Make[graph.Edge]()
			for _, kind := range Kinds {
				assert.Len(t, s.Negatives(kind), len(s.Positives(kind)), "kind %s", kind)
				for _, e := range s.Negatives(kind) {
					assert.Less(t, e.U, e.V)
					assert.False(t, g.HasEdge(e.U, e.V), "negative %s is an edge", e)
					assert.True(t, all.InsertNew(e), "negative %s sampled twice", e)
				}
			}

			// The training graph has exactly the train positives.
			assert.True(t, s.Train.EdgeSet().Equal(train))
		})
	}
}

func TestDeterminism(t *testing.T) {
	g, err := graph.Synthetic(50, 0.1, 5)
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Seed = 99
	s1, err := New(g, cfg)
	require.NoError(t, err)
	s2, err := New(g, cfg)
	require.NoError(t, err)
	for _, kind := range Kinds {
		assert.Equal(t, s1.Positives(kind), s2.Positives(kind))
		assert.Equal(t, s1.Negatives(kind), s2.Negatives(kind))
	}

	cfg.Seed = 100
	s3, err := New(g, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, s1.TestPos, s3.TestPos)
}

func TestEmptySplits(t *testing.T) {
	s, err := New(cycle4(t), Config{TestFrac: 0.1, ValFrac: 0.1})
	require.NoError(t, err)
	assert.Empty(t, s.TestPos)
	assert.Empty(t, s.ValPos)
	pairs, labels := s.Pairs(Validation)
	assert.Empty(t, pairs)
	assert.Empty(t, labels)
	assert.Len(t, s.TrainPos, 4)
	assert.Len(t, s.TrainNeg, 2)
}

func TestConfigurationErrors(t *testing.T) {
	g := cycle4(t)
	for _, cfg := range []Config{
		{TestFrac: -0.1},
		{TestFrac: 1},
		{ValFrac: 1.5},
		{TestFrac: 0.6, ValFrac: 0.4},
		{TestFrac: 0.1, MaxRetries: -1},
		{TestFrac: 0.1, Sampling: "magic"},
	} {
		_, err := New(g, cfg)
		var configErr *ConfigurationError
		require.Truef(t, errors.As(err, &configErr), "config %+v: unexpected error %v", cfg, err)
	}
}

func TestInsufficientNegatives(t *testing.T) {
	complete, err := graph.Synthetic(5, 1, 0)
	require.NoError(t, err)
	_, err = New(complete, Config{DatasetName: "k5", TestFrac: 0.2})
	var insufficientErr *InsufficientNegativesError
	require.True(t, errors.As(err, &insufficientErr))
	assert.Equal(t, 0, insufficientErr.Draws)
	assert.Equal(t, NoKind, insufficientErr.Kind)
	assert.Equal(t, 0.2, insufficientErr.TestFrac)
	assert.Equal(t, 0.0, insufficientErr.ValFrac)
	assert.Contains(t, err.Error(), "k5")
	assert.Contains(t, err.Error(), "test_frac=0.2")
	assert.Equal(t, "none", NoKind.String())

	// Retry bound exceeded.
	g, err := graph.Synthetic(60, 0.1, 0)
	require.NoError(t, err)
	_, err = New(g, Config{DatasetName: "tiny-budget", TestFrac: 0.2, MaxRetries: 3})
	require.True(t, errors.As(err, &insufficientErr))
	assert.Equal(t, 3, insufficientErr.Draws)
	assert.Equal(t, Test, insufficientErr.Kind)
	assert.Equal(t, "tiny-budget", insufficientErr.Dataset)
	assert.Equal(t, 0.2, insufficientErr.TestFrac)
	assert.Contains(t, err.Error(), "stopped in test split")
}
