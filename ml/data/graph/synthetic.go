// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// Synthetic generates an Erdős–Rényi G(n, p) graph: every pair of distinct nodes is
// connected independently with probability p. The result is deterministic for a given seed.
func Synthetic(numNodes int, p float64, seed uint64) (*Graph, error) {
	if numNodes < 1 {
		return nil, errors.Errorf("synthetic graph needs at least one node, got %d", numNodes)
	}
	if p < 0 || p > 1 {
		return nil, errors.Errorf("synthetic graph edge probability must be in [0, 1], got %g", p)
	}
	rng := rand.New(rand.NewPCG(seed, syntheticStream))
	var edges []Edge
	for u := range numNodes {
		for v := u + 1; v < numNodes; v++ {
			if rng.Float64() < p {
				edges = append(edges, E(u, v))
			}
		}
	}
	// Edges are generated canonical and sorted.
	return fromCanonical(numNodes, edges), nil
}

const syntheticStream = 0x6e9_6e9
