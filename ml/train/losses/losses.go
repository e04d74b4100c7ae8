// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package losses have several standard losses, all of type LossFn. They can also
// be called with the gradient buffer set to nil, to only evaluate the loss.
//
// All losses reduce with the mean over the batch, and the gradient is the gradient of that mean.
package losses

import (
	"math"

	"github.com/gomlx/exceptions"
)

// LossFn takes labels and model outputs (logits or predictions, depending on the loss), and returns
// the mean loss. If grads is not nil, it must have the same length as outputs, and it is filled with
// the gradient of the mean loss with respect to each output.
type LossFn func(labels, outputs, grads []float64) float64

func checkLengths(name string, labels, outputs, grads []float64) {
	if len(labels) != len(outputs) {
		exceptions.Panicf("%s: labels (%d) and outputs (%d) must have the same length", name, len(labels), len(outputs))
	}
	if grads != nil && len(grads) != len(outputs) {
		exceptions.Panicf("%s: grads (%d) and outputs (%d) must have the same length", name, len(grads), len(outputs))
	}
}

// BinaryCrossentropyLogits returns the cross-entropy loss between labels and `sigmoid(logits)`,
// for binary classification tasks. It assumes the predictions are given by `sigmoid(logits)`.
// This is a more numerically stable and faster implementation than actually taking the sigmoid of
// the logits and using the equivalent BinaryCrossentropy.
//
// Labels are expected to be 1.0 (for true) or 0.0 for false.
//
// See mathematical derivation of the stable solution in
// https://www.tensorflow.org/api_docs/python/tf/nn/sigmoid_cross_entropy_with_logits
func BinaryCrossentropyLogits(labels, logits, grads []float64) float64 {
	checkLengths("BinaryCrossentropyLogits", labels, logits, grads)
	if len(logits) == 0 {
		return 0
	}
	n := float64(len(logits))
	var sum float64
	for ii, z := range logits {
		y := labels[ii]
		sum += max(z, 0) - z*y + math.Log1p(math.Exp(-math.Abs(z)))
		if grads != nil {
			grads[ii] = (Sigmoid(z) - y) / n
		}
	}
	return sum / n
}

// BinaryCrossentropy returns the cross-entropy loss between labels and predictions (probabilities),
// for binary classification tasks.
//
// Predictions are clipped to [epsilon, 1-epsilon] to avoid infinities.
func BinaryCrossentropy(labels, predictions, grads []float64) float64 {
	checkLengths("BinaryCrossentropy", labels, predictions, grads)
	if len(predictions) == 0 {
		return 0
	}
	const epsilon = 1e-7
	n := float64(len(predictions))
	var sum float64
	for ii, p := range predictions {
		y := labels[ii]
		p = min(max(p, epsilon), 1-epsilon)
		sum -= y*math.Log(p) + (1-y)*math.Log(1-p)
		if grads != nil {
			grads[ii] = (-y/p + (1-y)/(1-p)) / n
		}
	}
	return sum / n
}

// MeanSquaredError returns the mean squared error between labels and predictions.
func MeanSquaredError(labels, predictions, grads []float64) float64 {
	checkLengths("MeanSquaredError", labels, predictions, grads)
	if len(predictions) == 0 {
		return 0
	}
	n := float64(len(predictions))
	var sum float64
	for ii, p := range predictions {
		diff := p - labels[ii]
		sum += diff * diff
		if grads != nil {
			grads[ii] = 2 * diff / n
		}
	}
	return sum / n
}

// Sigmoid is the logistic function, computed in a numerically stable way for large |x|.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
