// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"math"
	"testing"

	"github.com/gomlx/linkpred/ml/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// quadraticGrad is the gradient of sum((x-target)^2).
func quadraticGrad(x, target []float64) []float64 {
	grads := make([]float64, len(x))
	for ii := range x {
		grads[ii] = 2 * (x[ii] - target[ii])
	}
	return grads
}

func TestOptimizersConverge(t *testing.T) {
	target := []float64{1, -2, 0.5}
	for _, name := range []string{"sgd", "adam", "adamax", "adamw"} {
		t.Run(name, func(t *testing.T) {
			p := params.New().Set(ParamLearningRate, 0.05)
			if name == "sgd" {
				p.Set(ParamLearningRate, 0.4)
			}
			opt := ByName(p, name)
			x := make([]float64, len(target))
			for range 2000 {
				opt.Step(x, quadraticGrad(x, target))
			}
			tolerance := 1e-2
			if name == "adamw" {
				// Weight decay pulls the solution towards 0.
				tolerance = 0.1
			}
			for ii := range x {
				assert.InDeltaf(t, target[ii], x[ii], tolerance, "%s: x[%d]", name, ii)
			}
		})
	}
}

func TestFromParams(t *testing.T) {
	opt := FromParams(params.New())
	assert.Equal(t, AdamDefaultLearningRate, opt.LearningRate())
	opt = FromParams(params.New().Set(ParamOptimizer, "sgd"))
	assert.Equal(t, SgdDefaultLearningRate, opt.LearningRate())
	assert.Panics(t, func() { FromParams(params.New().Set(ParamOptimizer, "lion")) })
}

func TestAdamReset(t *testing.T) {
	opt := Adam().LearningRate(0.1).Done()
	x := []float64{0}
	opt.Step(x, []float64{1})
	// First Adam step moves by ~learning rate, regardless of the gradient scale.
	assert.InDelta(t, -0.1, x[0], 1e-6)
	opt.SetLearningRate(0.5)
	assert.Equal(t, 0.5, opt.LearningRate())
	assert.Panics(t, func() { opt.Step([]float64{0, 0}, []float64{1, 1}) })
	opt.Reset()
	assert.Equal(t, 0.1, opt.LearningRate())
	require.NotPanics(t, func() { opt.Step([]float64{0, 0}, []float64{1, 1}) })
}

func TestClipByGlobalNorm(t *testing.T) {
	grads := []float64{3, 4}
	norm := ClipByGlobalNorm(grads, 1)
	assert.Equal(t, 5.0, norm)
	assert.InDelta(t, 1.0, floats.Norm(grads, 2), 1e-5)
	assert.InDelta(t, 4.0/3.0, grads[1]/grads[0], 1e-9)

	grads = []float64{0.3, 0.4}
	ClipByGlobalNorm(grads, 1)
	assert.Equal(t, []float64{0.3, 0.4}, grads)
	ClipByGlobalNorm(grads, 0)
	assert.Equal(t, []float64{0.3, 0.4}, grads)

	// Step clipping by value.
	opt := StochasticGradientDescent(params.New().Set(ParamClipStepByValue, 0.01))
	x := []float64{0}
	opt.Step(x, []float64{100})
	assert.Equal(t, -0.01, x[0])
}

func TestCosineSchedule(t *testing.T) {
	assert.Nil(t, CosineScheduleFromParams(params.New(), 0.1))
	s := CosineScheduleFromParams(params.New().Set(ParamCosineScheduleEpochs, 10).Set(ParamLearningRate, 0.1), 0.001)
	require.NotNil(t, s)
	assert.InDelta(t, 0.1, s.At(0), 1e-12)
	assert.InDelta(t, 1e-4+(0.1-1e-4)/2, s.At(5), 1e-12)
	assert.InDelta(t, s.At(3), s.At(13), 1e-12)
	for epoch := 1; epoch < 10; epoch++ {
		assert.Less(t, s.At(epoch), s.At(epoch-1))
		assert.Greater(t, s.At(epoch), 1e-4-1e-12)
	}
	opt := Adam().Done()
	s.Apply(opt, 5)
	assert.InDelta(t, s.At(5), opt.LearningRate(), 1e-12)
	var disabled *CosineSchedule
	disabled.Apply(opt, 7)
	assert.False(t, math.IsNaN(opt.LearningRate()))
	assert.InDelta(t, s.At(5), opt.LearningRate(), 1e-12)
}
