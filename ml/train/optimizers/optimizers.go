// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package optimizers implements gradient based optimizers over flat parameter vectors.
//
// Models keep all their trainable weights in one []float64 (possibly viewed as several gonum
// matrices), compute the gradient of the loss in a same-shaped slice, and call Interface.Step.
package optimizers

import (
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/linkpred/ml/params"
	"gonum.org/v1/gonum/floats"
)

// Interface implemented by optimizers.
type Interface interface {
	// Step updates params in place, given the gradient of the loss with respect to them.
	// params and grads must have the same length, which can't change between calls (until Reset).
	Step(params, grads []float64)

	// LearningRate returns the current base learning rate.
	LearningRate() float64

	// SetLearningRate changes the base learning rate, e.g.: by a schedule.
	SetLearningRate(lr float64)

	// Reset clears the optimizer state (moments, step counter), as when starting a new training run.
	Reset()
}

var (
	// KnownOptimizers is a map of known optimizers by name to their default constructors.
	// This provides an easy quick start point. One can hyperparameter-tune the optimizers
	// for usually slightly better results.
	KnownOptimizers = map[string]func(p params.Params) Interface{
		"sgd":    func(p params.Params) Interface { return StochasticGradientDescent(p) },
		"adam":   func(p params.Params) Interface { return Adam().FromParams(p).Done() },
		"adamax": func(p params.Params) Interface { return Adam().Adamax().FromParams(p).Done() },
		"adamw":  func(p params.Params) Interface { return Adam().WeightDecay(0.004).FromParams(p).Done() },
	}

	// ParamOptimizer is the hyperparameter with the name of the optimizer.
	// The default value is "adam", and the valid values are "sgd", "adam", "adamw" and "adamax".
	ParamOptimizer = "optimizer"

	// ParamLearningRate is the hyperparameter name for the default value of learning rate.
	// It is used by all optimizers.
	ParamLearningRate = "learning_rate"

	// ParamWeightDecay is the decoupled weight decay (AdamW style) applied by Adam.
	// Defaults to 0 (no decay).
	ParamWeightDecay = "weight_decay"

	// ParamClipGradNorm clips the gradient to this global L2 norm before each step.
	// Defaults to 0, which disables clipping.
	ParamClipGradNorm = "clip_grad_norm"

	// ParamClipStepByValue is a clip scalar value for each individual value of the gradient step, after
	// being scaled by the learning rate and optimizer.
	// Defaults to no clipping.
	ParamClipStepByValue = "clip_step_by_value"
)

// FromParams creates an optimizer from hyperparameters.
// See [ParamOptimizer]. The default is "adam".
func FromParams(p params.Params) Interface {
	return ByName(p, params.GetParamOr(p, ParamOptimizer, "adam"))
}

// ByName returns an optimizer given the name, or panics if one does not exist.
// It uses KnownOptimizers -- in case one wants to better handle invalid values.
func ByName(p params.Params, optName string) Interface {
	optBuilder, found := KnownOptimizers[optName]
	if !found {
		names := make([]string, 0, len(KnownOptimizers))
		for name := range KnownOptimizers {
			names = append(names, name)
		}
		slices.Sort(names)
		exceptions.Panicf("Unknown optimizer %q, valid values are %v.", optName, names)
	}
	return optBuilder(p)
}

// ClipByGlobalNorm scales grads in place so that its L2 norm is at most maxNorm.
// It returns the norm before clipping. A maxNorm <= 0 disables clipping.
func ClipByGlobalNorm(grads []float64, maxNorm float64) float64 {
	norm := floats.Norm(grads, 2)
	if maxNorm > 0 && norm > maxNorm {
		floats.Scale(maxNorm/(norm+1e-6), grads)
	}
	return norm
}

// clipStepByValue clips a single step value to [-clip, +clip], if clip > 0.
func clipStepByValue(step, clip float64) float64 {
	if clip <= 0 {
		return step
	}
	return max(-clip, min(clip, step))
}

// sgd implements Interface for SGD.
type sgd struct {
	learningRate, clipNorm, clipValue float64
	globalStep                        int
}

// SgdDefaultLearningRate is the default learning rate used by the StochasticGradientDescent optimizer.
const SgdDefaultLearningRate = 0.1

// StochasticGradientDescent creates an optimizer that performs SGD.
// It looks for ParamLearningRate in p for the initial learning rate, otherwise it defaults to
// SgdDefaultLearningRate.
//
// It has a decay of learning rate given by: `learning_rate = initial_learning_rate / Sqrt(global_step)`
func StochasticGradientDescent(p params.Params) Interface {
	return &sgd{
		learningRate: params.GetParamOr(p, ParamLearningRate, SgdDefaultLearningRate),
		clipNorm:     params.GetParamOr(p, ParamClipGradNorm, 0.0),
		clipValue:    params.GetParamOr(p, ParamClipStepByValue, 0.0),
	}
}

// Step implements Interface.
func (o *sgd) Step(params, grads []float64) {
	if len(params) != len(grads) {
		exceptions.Panicf("sgd.Step: %d params but %d gradients", len(params), len(grads))
	}
	o.globalStep++
	ClipByGlobalNorm(grads, o.clipNorm)
	lr := o.learningRate / math.Sqrt(float64(o.globalStep))
	for ii, g := range grads {
		params[ii] -= clipStepByValue(lr*g, o.clipValue)
	}
}

// LearningRate implements Interface.
func (o *sgd) LearningRate() float64 { return o.learningRate }

// SetLearningRate implements Interface.
func (o *sgd) SetLearningRate(lr float64) { o.learningRate = lr }

// Reset implements Interface.
func (o *sgd) Reset() { o.globalStep = 0 }
