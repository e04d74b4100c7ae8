// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/gomlx/linkpred/ml/train/checkpoints"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel returns pre-defined losses and validation quality per epoch.
// Its state is the number of epochs trained.
type scriptedModel struct {
	losses []float64
	// quality[i] > 0 ranks positives above negatives after epoch i (AUC 1), < 0 inverts them (AUC 0),
	// 0 ties everything (AUC 0.5).
	quality []float64
	epochs  int
	loaded  []int
}

func (m *scriptedModel) Reset(_ uint64) error {
	m.epochs = 0
	return nil
}

func (m *scriptedModel) TrainEpoch(_ *Batch) (float64, error) {
	loss := m.losses[m.epochs]
	m.epochs++
	return loss, nil
}

func (m *scriptedModel) Predict(pairs []graph.Edge) ([]float64, error) {
	q := 0.0
	if m.epochs > 0 {
		q = m.quality[m.epochs-1]
	}
	scores := make([]float64, len(pairs))
	for ii, p := range pairs {
		// Positives in the tests are the pairs with U == 0.
		if p.U == 0 {
			scores[ii] = 0.5 + q/4
		} else {
			scores[ii] = 0.5 - q/4
		}
	}
	return scores, nil
}

func (m *scriptedModel) SaveState() ([]byte, error) {
	return binary.AppendUvarint(nil, uint64(m.epochs)), nil
}

func (m *scriptedModel) LoadState(state []byte) error {
	epochs, n := binary.Uvarint(state)
	if n <= 0 {
		return errors.New("invalid state")
	}
	m.epochs = int(epochs)
	m.loaded = append(m.loaded, m.epochs)
	return nil
}

var (
	testValPairs  = []graph.Edge{graph.E(0, 1), graph.E(0, 2), graph.E(1, 3), graph.E(2, 3)}
	testValLabels = []float64{1, 1, 0, 0}
)

func TestLoopHooks(t *testing.T) {
	model := &scriptedModel{losses: []float64{1, 0.5, 0.25, 0.2}, quality: []float64{0, 1, 1, -1}}
	loop := NewLoop(model).WithValidation(testValPairs, testValLabels)
	var order []string
	var aucs []float64
	loop.OnStart("start", 0, func(_ *Loop, _ *Batch) error {
		order = append(order, "start")
		return nil
	})
	loop.OnEpoch("second", 1, func(_ *Loop, m EpochMetrics) error {
		order = append(order, "second")
		return nil
	})
	loop.OnEpoch("first", -1, func(_ *Loop, m EpochMetrics) error {
		order = append(order, "first")
		aucs = append(aucs, m.Validation.AUC)
		return nil
	})
	loop.OnEnd("end", 0, func(_ *Loop, m EpochMetrics) error {
		order = append(order, "end")
		assert.Equal(t, 3, m.Epoch)
		return nil
	})
	m, err := loop.RunEpochs(&Batch{}, 4)
	require.NoError(t, err)
	assert.Equal(t, 0.2, m.Loss)
	assert.Equal(t, []float64{0.5, 1, 1, 0}, aucs)
	assert.Equal(t, []string{"start", "first", "second", "first", "second", "first", "second", "first", "second", "end"}, order)
	assert.Equal(t, 4, loop.Epoch)
	assert.Len(t, loop.EpochDurations, 4)
	assert.Equal(t, int64(4), loop.MedianLoss.Count())
	assert.False(t, loop.Diverged)

	// Errors are reported with the hook name.
	loop = NewLoop(&scriptedModel{losses: []float64{1}})
	loop.OnEpoch("failing", 0, func(_ *Loop, _ EpochMetrics) error { return errors.New("boom") })
	_, err = loop.RunEpochs(&Batch{}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"failing"`)
}

func TestLoopDivergence(t *testing.T) {
	model := &scriptedModel{losses: []float64{1, math.NaN(), 0.1}, quality: []float64{1, 1, 1}}
	loop := NewLoop(model).WithValidation(testValPairs, testValLabels)
	var epochs []int
	loop.OnEpoch("collect", 0, func(_ *Loop, m EpochMetrics) error {
		epochs = append(epochs, m.Epoch)
		if m.Epoch == 1 {
			assert.True(t, math.IsNaN(m.Validation.AUC))
		}
		return nil
	})
	_, err := loop.RunEpochs(&Batch{}, 3)
	require.NoError(t, err)
	assert.True(t, loop.Diverged)
	assert.Equal(t, []int{0, 1, 2}, epochs)
	assert.Equal(t, int64(2), loop.MedianLoss.Count())
}

func TestEarlyStoppingValAUC(t *testing.T) {
	// Validation AUC improves at epoch 1, then stalls for 2 epochs.
	model := &scriptedModel{
		losses:  []float64{1, 0.9, 0.8, 0.7, 0.6, 0.5},
		quality: []float64{0, 1, 0, -1, 1, 1},
	}
	loop := NewLoop(model).WithValidation(testValPairs, testValLabels)
	es, err := NewEarlyStopping(MonitorValAUC, 2, nil)
	require.NoError(t, err)
	es.Attach(loop, 100)
	_, err = loop.RunEpochs(&Batch{}, 6)
	require.NoError(t, err)
	assert.True(t, loop.Stopped)
	assert.Equal(t, MonitorValAUC, es.Monitor())
	assert.Equal(t, 1, es.BestEpoch())
	assert.Equal(t, 1.0, es.BestScore())
	assert.Equal(t, 3, es.StoppedEpoch)
	assert.Equal(t, 4, loop.Epoch)
	// Restored the state after 2 epochs (epoch 1).
	assert.Equal(t, []int{2}, model.loaded)
	assert.Equal(t, 2, model.epochs)
}

func TestEarlyStoppingLossFallback(t *testing.T) {
	// No validation: falls back to monitoring the loss.
	model := &scriptedModel{losses: []float64{1, 0.5, 0.7, 0.4, 0.9}}
	loop := NewLoop(model)
	es, err := NewEarlyStopping(MonitorValAUC, 0, nil)
	require.NoError(t, err)
	es.Attach(loop, 0)
	_, err = loop.RunEpochs(&Batch{}, 5)
	require.NoError(t, err)
	assert.False(t, loop.Stopped)
	assert.Equal(t, MonitorLoss, es.Monitor())
	assert.Equal(t, 3, es.BestEpoch())
	assert.Equal(t, []int{4}, model.loaded)

	// Only one class in validation also falls back.
	loop = NewLoop(&scriptedModel{losses: []float64{1}, quality: []float64{1}}).
		WithValidation(testValPairs[:2], testValLabels[:2])
	es.Attach(loop, 0)
	_, err = loop.RunEpochs(&Batch{}, 1)
	require.NoError(t, err)
	assert.Equal(t, MonitorLoss, es.Monitor())
}

func TestEarlyStoppingNaN(t *testing.T) {
	// NaN in every epoch: the initial model is restored.
	model := &scriptedModel{losses: []float64{math.NaN(), math.Inf(1)}}
	handler := checkpoints.Build().Dir(t.TempDir()).Keep(2).MustDone()
	loop := NewLoop(model)
	es, err := NewEarlyStopping(MonitorLoss, 5, handler)
	require.NoError(t, err)
	es.Attach(loop, 0)
	_, err = loop.RunEpochs(&Batch{}, 2)
	require.NoError(t, err)
	assert.True(t, loop.Diverged)
	assert.Equal(t, -1, es.BestEpoch())
	assert.Equal(t, []int{0}, model.loaded)
	best, err := handler.Latest()
	require.NoError(t, err)
	assert.True(t, best.IsInitial())

	// A NaN epoch in between is skipped.
	model = &scriptedModel{losses: []float64{1, math.NaN(), 0.5, 0.7}}
	loop = NewLoop(model)
	es, err = NewEarlyStopping(MonitorLoss, 5, nil)
	require.NoError(t, err)
	es.Attach(loop, 0)
	_, err = loop.RunEpochs(&Batch{}, 4)
	require.NoError(t, err)
	assert.True(t, loop.Diverged)
	assert.Equal(t, 2, es.BestEpoch())
	assert.Equal(t, []int{3}, model.loaded)

	_, err = NewEarlyStopping("val_loss", 5, nil)
	require.Error(t, err)
}

func TestCallbacks(t *testing.T) {
	losses := make([]float64, 10)
	for ii := range losses {
		losses[ii] = 1 / float64(ii+1)
	}
	loop := NewLoop(&scriptedModel{losses: losses})
	var everyTwo, nTimes []int
	EveryNEpochs(loop, 2, "every2", 0, func(_ *Loop, m EpochMetrics) error {
		everyTwo = append(everyTwo, m.Epoch)
		return nil
	})
	NTimesDuringLoop(loop, 3, "3times", 0, func(_ *Loop, m EpochMetrics) error {
		nTimes = append(nTimes, m.Epoch)
		return nil
	})
	_, err := loop.RunEpochs(&Batch{}, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5, 7, 9}, everyTwo)
	assert.LessOrEqual(t, len(nTimes), 4)
	assert.Equal(t, 9, nTimes[len(nTimes)-1])
	assert.Panics(t, func() { EveryNEpochs(loop, 0, "never", 0, nil) })
}

func TestBatchPairs(t *testing.T) {
	b := &Batch{Positives: []graph.Edge{graph.E(0, 1)}, Negatives: []graph.Edge{graph.E(1, 2), graph.E(0, 2)}}
	pairs, labels := b.Pairs()
	assert.Equal(t, []graph.Edge{graph.E(0, 1), graph.E(1, 2), graph.E(0, 2)}, pairs)
	assert.Equal(t, []float64{1, 0, 0}, labels)
}
