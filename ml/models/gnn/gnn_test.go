// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gnn

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/linkpred/internal/workerspool"
	"github.com/gomlx/linkpred/ml/data/edgesplit"
	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/gomlx/linkpred/ml/train"
	"github.com/gomlx/linkpred/ml/train/losses"
	"github.com/gomlx/linkpred/ml/train/optimizers"
	"github.com/gomlx/linkpred/pkg/support/sets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestPropagate(t *testing.T) {
	path := graph.MustNew(3, []graph.Edge{graph.E(0, 1), graph.E(1, 2)})
	x := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})

	got := Propagate(path, x, 0, AggregationMean, nil)
	assert.True(t, mat.Equal(x, got))

	got = Propagate(path, x, 1, AggregationMean, workerspool.New())
	want := mat.NewDense(3, 3, []float64{
		0.5, 0.5, 0,
		1.0 / 3, 1.0 / 3, 1.0 / 3,
		0, 0.5, 0.5})
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	got = Propagate(path, x, 1, AggregationGCN, nil)
	s6 := 1 / math.Sqrt(6)
	want = mat.NewDense(3, 3, []float64{
		0.5, s6, 0,
		s6, 1.0 / 3, s6,
		0, s6, 0.5})
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	// Input is not modified and two hops compose.
	assert.Equal(t, 1.0, x.At(0, 0))
	twice := Propagate(path, Propagate(path, x, 1, AggregationGCN, nil), 1, AggregationGCN, nil)
	assert.True(t, mat.EqualApprox(twice, Propagate(path, x, 2, AggregationGCN, nil), 1e-12))
}

// twoCommunities returns a graph with two dense communities of size n, joined by a single edge.
func twoCommunities(n int) *graph.Graph {
	var edges []graph.Edge
	for c := range 2 {
		for i := range n {
			for j := i + 1; j < n; j++ {
				if (i+j)%3 != 0 {
					edges = append(edges, graph.E(c*n+i, c*n+j))
				}
			}
		}
	}
	edges = append(edges, graph.E(0, n))
	return graph.MustNew(2*n, edges)
}

func newTestModel(t *testing.T, decoder Decoder, seed uint64) *Model {
	return newObjectiveModel(t, decoder, ObjectiveSupervised, seed)
}

func newObjectiveModel(t *testing.T, decoder Decoder, objective Objective, seed uint64) *Model {
	p := Defaults(AggregationGCN, decoder).Set(ParamHiddenDim, 8).Set(optimizers.ParamLearningRate, 0.02).
		Set(ParamObjective, string(objective))
	m, err := New(p)
	require.NoError(t, err)
	require.NoError(t, m.Reset(seed))
	return m
}

func TestGradients(t *testing.T) {
	g := twoCommunities(5)
	features := graph.RandomFeatures(g.NumNodes(), 4, 7, 0)
	batch := &train.Batch{
		Graph: g, Features: features,
		Positives: g.Edges()[:6],
		Negatives: []graph.Edge{graph.E(1, 7), graph.E(2, 8), graph.E(3, 9), graph.E(0, 6)},
	}
	pairs, labels := batch.Pairs()
	for _, decoder := range []Decoder{DecoderMLP, DecoderDot} {
		t.Run(string(decoder), func(t *testing.T) {
			m := newTestModel(t, decoder, 42)
			require.NoError(t, m.setBatch(batch))
			m.initialize(4)
			lossFn := func() float64 {
				var st forwardState
				m.embed(&st, m.propagated)
				m.decode(&st, pairs)
				return losses.BinaryCrossentropyLogits(labels, st.logits, nil)
			}
			var st forwardState
			m.embed(&st, m.propagated)
			m.decode(&st, pairs)
			dLogits := make([]float64, len(pairs))
			losses.BinaryCrossentropyLogits(labels, st.logits, dLogits)
			m.backward(&st, pairs, dLogits)

			const h = 1e-6
			for ii := range m.params {
				original := m.params[ii]
				m.params[ii] = original + h
				plus := lossFn()
				m.params[ii] = original - h
				minus := lossFn()
				m.params[ii] = original
				assert.InDeltaf(t, (plus-minus)/(2*h), m.grads[ii], 1e-5, "gradient of parameter #%d", ii)
			}
		})
	}
}

func TestTraining(t *testing.T) {
	g := twoCommunities(8)
	cfg := edgesplit.DefaultConfig()
	cfg.Seed = 3
	split, err := edgesplit.New(g, cfg)
	require.NoError(t, err)
	batch := train.NewBatch(split, graph.RandomFeatures(g.NumNodes(), 16, 5, 0))

	for _, decoder := range []Decoder{DecoderMLP, DecoderDot} {
		t.Run(string(decoder), func(t *testing.T) {
			m := newTestModel(t, decoder, 1)
			_, err := m.Predict(split.TestPos)
			require.Error(t, err, "Predict before training")

			first, err := m.TrainEpoch(batch)
			require.NoError(t, err)
			var last float64
			for range 60 {
				last, err = m.TrainEpoch(batch)
				require.NoError(t, err)
			}
			assert.Less(t, last, first)

			pairs, _ := split.Pairs(edgesplit.Test)
			scores, err := m.Predict(pairs)
			require.NoError(t, err)
			require.Len(t, scores, len(pairs))
			for _, s := range scores {
				assert.True(t, s >= 0 && s <= 1)
			}

			// Same seed, same results.
			m2 := newTestModel(t, decoder, 1)
			for range 61 {
				_, err = m2.TrainEpoch(batch)
				require.NoError(t, err)
			}
			scores2, err := m2.Predict(pairs)
			require.NoError(t, err)
			assert.Equal(t, scores, scores2)

			// Save, train more and restore.
			state, err := m.SaveState()
			require.NoError(t, err)
			_, err = m.TrainEpoch(batch)
			require.NoError(t, err)
			require.NoError(t, m.LoadState(state))
			restored, err := m.Predict(pairs)
			require.NoError(t, err)
			assert.Equal(t, scores, restored)

			// Reset gives back the initial loss.
			require.NoError(t, m.Reset(1))
			again, err := m.TrainEpoch(batch)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		})
	}
}

func TestObjectiveGradients(t *testing.T) {
	g := twoCommunities(5)
	features := graph.RandomFeatures(g.NumNodes(), 4, 7, 0)
	batch := &train.Batch{
		Graph: g, Features: features,
		Positives: g.Edges(),
		Negatives: []graph.Edge{graph.E(1, 7), graph.E(2, 8), graph.E(3, 9), graph.E(0, 6)},
	}
	for _, tc := range []struct {
		decoder   Decoder
		objective Objective
	}{
		{DecoderMLP, ObjectiveMasked},
		{DecoderDot, ObjectiveMasked},
		{DecoderDot, ObjectiveInfomax},
	} {
		t.Run(string(tc.objective)+"/"+string(tc.decoder), func(t *testing.T) {
			m := newObjectiveModel(t, tc.decoder, tc.objective, 42)
			m.cfg.DegreeAlpha = 0.1
			require.NoError(t, m.setBatch(batch))
			m.initialize(4)
			m.epoch = 3
			_, err := m.loss(batch, true)
			require.NoError(t, err)
			grads := append([]float64(nil), m.grads...)

			const h = 1e-6
			for ii := range m.params {
				original := m.params[ii]
				m.params[ii] = original + h
				plus, err := m.loss(batch, false)
				require.NoError(t, err)
				m.params[ii] = original - h
				minus, err := m.loss(batch, false)
				require.NoError(t, err)
				m.params[ii] = original
				assert.InDeltaf(t, (plus-minus)/(2*h), grads[ii], 1e-5, "gradient of parameter #%d", ii)
			}
		})
	}
}

func TestMaskEdges(t *testing.T) {
	g := twoCommunities(8)
	masked := maskEdges(g.Edges(), 0.7, rand.New(rand.NewPCG(1, 2)))
	again := maskEdges(g.Edges(), 0.7, rand.New(rand.NewPCG(1, 2)))
	assert.Equal(t, masked, again)
	assert.Greater(t, len(masked), g.NumEdges()/3)
	assert.Less(t, len(masked), g.NumEdges())
	edges := sets.MakeWith(g.Edges()...)
	for _, e := range masked {
		assert.True(t, edges.Has(e))
	}

	// Never empty.
	assert.Len(t, maskEdges(g.Edges()[:3], 0, rand.New(rand.NewPCG(1, 2))), 1)
	assert.Empty(t, maskEdges(nil, 0.7, rand.New(rand.NewPCG(1, 2))))

	// The masked edges of an epoch are not visible to the encoder.
	m := newObjectiveModel(t, DecoderMLP, ObjectiveMasked, 5)
	first := maskEdges(g.Edges(), m.cfg.MaskRate, rand.New(rand.NewPCG(5, maskStream)))
	visible := g.Without(first)
	assert.Equal(t, g.NumEdges()-len(first), visible.NumEdges())
	for _, e := range first {
		assert.False(t, visible.HasEdge(e.U, e.V))
	}
}

func TestSelfSupervisedTraining(t *testing.T) {
	g := twoCommunities(8)
	cfg := edgesplit.DefaultConfig()
	cfg.Seed = 3
	split, err := edgesplit.New(g, cfg)
	require.NoError(t, err)
	batch := train.NewBatch(split, graph.RandomFeatures(g.NumNodes(), 16, 5, 0))
	pairs, _ := split.Pairs(edgesplit.Test)

	for _, tc := range []struct {
		decoder   Decoder
		objective Objective
	}{
		{DecoderMLP, ObjectiveMasked},
		{DecoderDot, ObjectiveInfomax},
	} {
		t.Run(string(tc.objective), func(t *testing.T) {
			trainModel := func() (*Model, []float64) {
				m := newObjectiveModel(t, tc.decoder, tc.objective, 7)
				epochLosses := make([]float64, 40)
				for ii := range epochLosses {
					epochLosses[ii], err = m.TrainEpoch(batch)
					require.NoError(t, err)
					require.False(t, math.IsNaN(epochLosses[ii]) || math.IsInf(epochLosses[ii], 0))
				}
				return m, epochLosses
			}
			m, epochLosses := trainModel()
			if tc.objective == ObjectiveMasked {
				// Masks change every epoch, so compare the averages of the first and last epochs.
				n := len(epochLosses)
				assert.Less(t, floats.Sum(epochLosses[n-5:]), floats.Sum(epochLosses[:5]))
			}
			initial := newObjectiveModel(t, tc.decoder, tc.objective, 7)
			initial.initialize(16)
			assert.NotEqual(t, initial.params, m.params)

			scores, err := m.Predict(pairs)
			require.NoError(t, err)
			for _, s := range scores {
				assert.True(t, s >= 0 && s <= 1)
			}

			// Masks and corruptions only depend on the seed and the epoch.
			m2, losses2 := trainModel()
			assert.Equal(t, epochLosses, losses2)
			scores2, err := m2.Predict(pairs)
			require.NoError(t, err)
			assert.Equal(t, scores, scores2)

			// Restoring a state restores the epoch, and with it the next mask.
			state, err := m.SaveState()
			require.NoError(t, err)
			next, err := m.TrainEpoch(batch)
			require.NoError(t, err)
			require.NoError(t, m.LoadState(state))
			again, err := m.TrainEpoch(batch)
			require.NoError(t, err)
			assert.Equal(t, next, again)

			supervised := newTestModel(t, tc.decoder, 7)
			_, err = supervised.TrainEpoch(batch)
			require.NoError(t, err)
			state, err = supervised.SaveState()
			require.NoError(t, err)
			require.Error(t, m.LoadState(state), "state of a model with another objective")
		})
	}
}

func TestConfigErrors(t *testing.T) {
	_, err := New(Defaults("max", DecoderMLP))
	require.Error(t, err)
	_, err = New(Defaults(AggregationMean, "bilinear"))
	require.Error(t, err)
	_, err = New(Defaults(AggregationMean, DecoderMLP).Set(ParamHiddenDim, 0))
	require.Error(t, err)
	_, err = New(Defaults(AggregationMean, DecoderMLP).Set(optimizers.ParamOptimizer, "lion"))
	require.Error(t, err)
	_, err = New(Defaults(AggregationMean, DecoderMLP).Set(ParamObjective, "contrastive"))
	require.Error(t, err)
	_, err = New(Defaults(AggregationMean, DecoderMLP).Set(ParamObjective, string(ObjectiveInfomax)))
	require.Error(t, err, "infomax requires the dot decoder")
	_, err = New(Defaults(AggregationMean, DecoderMLP).Set(ParamObjective, string(ObjectiveMasked)).Set(ParamMaskRate, 0.0))
	require.Error(t, err, "mask rate must be positive")
	_, err = New(Defaults(AggregationMean, DecoderMLP).Set(ParamMaskRate, 1.5))
	require.Error(t, err)

	m, err := New(Defaults(AggregationMean, DecoderDot))
	require.NoError(t, err)
	_, err = m.TrainEpoch(&train.Batch{Graph: twoCommunities(3)})
	require.Error(t, err, "features are required")
	other, err := New(Defaults(AggregationMean, DecoderMLP))
	require.NoError(t, err)
	require.NoError(t, other.Reset(0))
	g := twoCommunities(3)
	batch := &train.Batch{Graph: g, Features: graph.RandomFeatures(g.NumNodes(), 3, 0, 0), Positives: g.Edges()}
	_, err = other.TrainEpoch(batch)
	require.NoError(t, err)
	state, err := other.SaveState()
	require.NoError(t, err)
	require.Error(t, m.LoadState(state), "state of a model with another decoder")
}
