// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package edgesplit

import "fmt"

// ConfigurationError is returned when the split fractions (or other settings) are invalid.
type ConfigurationError struct {
	Dataset           string
	TestFrac, ValFrac float64
	Reason            string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dataset %q: invalid edge split configuration (test_frac=%g, val_frac=%g): %s",
		e.Dataset, e.TestFrac, e.ValFrac, e.Reason)
}

// InsufficientNegativesError is returned when the graph doesn't have enough non-edges to match the
// number of positive edges of a split, or they could not be found within the retry bound.
type InsufficientNegativesError struct {
	Dataset string

	// TestFrac and ValFrac of the configuration that produced the split.
	TestFrac, ValFrac float64

	// Kind of the split being sampled when sampling failed. It is NoKind when the shortage is
	// detected before sampling any split.
	Kind Kind

	// Needed is the total number of negatives requested, Sampled how many were found.
	Needed, Sampled int

	// Available is the number of non-edges in the graph.
	Available int64

	// Draws is the number of random pairs drawn, 0 if sampling wasn't attempted.
	Draws int
}

// Error implements error.
func (e *InsufficientNegativesError) Error() string {
	if e.Draws == 0 {
		return fmt.Sprintf("dataset %q (test_frac=%g, val_frac=%g): %d negative pairs needed, but the graph only has %d non-edges",
			e.Dataset, e.TestFrac, e.ValFrac, e.Needed, e.Available)
	}
	return fmt.Sprintf("dataset %q (test_frac=%g, val_frac=%g): sampled only %d of %d negative pairs (stopped in %s split) "+
		"after %d draws, graph has %d non-edges -- is it too dense for rejection sampling? try exhaustive sampling",
		e.Dataset, e.TestFrac, e.ValFrac, e.Sampled, e.Needed, e.Kind, e.Draws, e.Available)
}
