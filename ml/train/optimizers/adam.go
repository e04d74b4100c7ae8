// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/linkpred/ml/params"
)

const (
	// AdamDefaultLearningRate is used by Adam if no learning rate is set.
	AdamDefaultLearningRate = 0.001
)

// Adam optimization is a stochastic gradient descent method that is based on adaptive estimation of first-order and
// second-order moments. According to [Kingma et al., 2014](http://arxiv.org/abs/1412.6980),
// the method is "*computationally efficient, has little memory requirement, invariant to diagonal rescaling of
// gradients, and is well suited for problems that are large in terms of data/parameters*".
//
// It returns a configuration object that can be used to set its parameters. Once configured call Done, and it
// will return an optimizers.Interface.
func Adam() *AdamConfig {
	return &AdamConfig{
		learningRate: AdamDefaultLearningRate,
		beta1:        0.9,
		beta2:        0.999,
		epsilon:      1e-7,
	}
}

// AdamConfig holds the configuration for an Adam configuration, create using Adam(), and once configured
// call Done to create an Adam based optimizers.Interface.
type AdamConfig struct {
	learningRate float64
	beta1, beta2 float64
	epsilon      float64
	adamax       bool    // Works as Adamax.
	weightDecay  float64 // Works as AdamW.
	clipNorm     float64
	clipValue    float64
}

// FromParams reads the learning rate, weight decay and clipping hyperparameters from p, if they are set.
// See ParamLearningRate, ParamWeightDecay, ParamClipGradNorm and ParamClipStepByValue.
func (c *AdamConfig) FromParams(p params.Params) *AdamConfig {
	c.learningRate = params.GetParamOr(p, ParamLearningRate, c.learningRate)
	c.weightDecay = params.GetParamOr(p, ParamWeightDecay, c.weightDecay)
	c.clipNorm = params.GetParamOr(p, ParamClipGradNorm, c.clipNorm)
	c.clipValue = params.GetParamOr(p, ParamClipStepByValue, c.clipValue)
	return c
}

// LearningRate sets the base learning rate. Default is 0.001.
func (c *AdamConfig) LearningRate(value float64) *AdamConfig {
	c.learningRate = value
	return c
}

// Betas sets the two moving averages constants (exponential decays). They default to 0.9 and 0.999.
func (c *AdamConfig) Betas(beta1, beta2 float64) *AdamConfig {
	c.beta1, c.beta2 = beta1, beta2
	return c
}

// Epsilon used on the denominator as a small constant for stability.
func (c *AdamConfig) Epsilon(epsilon float64) *AdamConfig {
	c.epsilon = epsilon
	return c
}

// Adamax configure Adam to use a L-infinity (== max, which gives the name) for
// the second moment, instead of L2, as described in the same Adam paper.
func (c *AdamConfig) Adamax() *AdamConfig {
	c.adamax = true
	return c
}

// WeightDecay configure optimizer to work as AdamW, with the given static weight decay.
// This is because L2 regularization doesn't work well with Adam.
func (c *AdamConfig) WeightDecay(weightDecay float64) *AdamConfig {
	c.weightDecay = weightDecay
	return c
}

// ClipGradNorm clips the gradient to the given global L2 norm before each step. 0 disables it.
func (c *AdamConfig) ClipGradNorm(maxNorm float64) *AdamConfig {
	c.clipNorm = maxNorm
	return c
}

// Done will finish the configuration and construct an optimizers.Interface that implements Adam to specification.
func (c *AdamConfig) Done() Interface {
	if c.learningRate <= 0 {
		exceptions.Panicf("Adam: learning rate must be > 0, got %g", c.learningRate)
	}
	cfg := *c
	return &adam{config: &cfg, learningRate: c.learningRate}
}

// adam implements the Adam algorithm as an optimizers.Interface.
type adam struct {
	config       *AdamConfig
	learningRate float64

	// Moments, lazily created on the first step.
	m, v       []float64
	globalStep int
}

// Step implements Interface.
func (o *adam) Step(params, grads []float64) {
	if len(params) != len(grads) {
		exceptions.Panicf("adam.Step: %d params but %d gradients", len(params), len(grads))
	}
	if o.m == nil {
		o.m = make([]float64, len(params))
		o.v = make([]float64, len(params))
	} else if len(o.m) != len(params) {
		exceptions.Panicf("adam.Step: number of params changed from %d to %d without Reset", len(o.m), len(params))
	}
	c := o.config
	o.globalStep++
	ClipByGlobalNorm(grads, c.clipNorm)
	step := float64(o.globalStep)
	debiasM := 1 - math.Pow(c.beta1, step)
	debiasV := 1 - math.Pow(c.beta2, step)
	for ii, g := range grads {
		o.m[ii] = c.beta1*o.m[ii] + (1-c.beta1)*g
		var update float64
		if c.adamax {
			o.v[ii] = max(c.beta2*o.v[ii], math.Abs(g))
			update = (o.m[ii] / debiasM) / (o.v[ii] + c.epsilon)
		} else {
			o.v[ii] = c.beta2*o.v[ii] + (1-c.beta2)*g*g
			update = (o.m[ii] / debiasM) / (math.Sqrt(o.v[ii]/debiasV) + c.epsilon)
		}
		if c.weightDecay > 0 {
			update += c.weightDecay * params[ii]
		}
		params[ii] -= clipStepByValue(o.learningRate*update, c.clipValue)
	}
}

// LearningRate implements Interface.
func (o *adam) LearningRate() float64 { return o.learningRate }

// SetLearningRate implements Interface.
func (o *adam) SetLearningRate(lr float64) { o.learningRate = lr }

// Reset implements Interface.
func (o *adam) Reset() {
	o.m, o.v, o.globalStep = nil, nil, 0
	o.learningRate = o.config.learningRate
}
