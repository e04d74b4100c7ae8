// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gnn

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/linkpred/internal/workerspool"
	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Aggregation of the neighbours features during propagation.
type Aggregation string

const (
	// AggregationGCN uses the symmetric normalization of GCN, with self-loops:
	// x'_i = sum_{j in N(i)+i} x_j / sqrt((d_i+1)*(d_j+1)).
	AggregationGCN Aggregation = "gcn"

	// AggregationMean uses the mean over the node and its neighbours (GraphSAGE mean aggregator):
	// x'_i = (x_i + sum_{j in N(i)} x_j) / (d_i+1).
	AggregationMean Aggregation = "mean"
)

// ParseAggregation converts a name to an Aggregation.
func ParseAggregation(name string) (Aggregation, error) {
	switch Aggregation(name) {
	case AggregationGCN, AggregationMean:
		return Aggregation(name), nil
	}
	return "", errors.Errorf("unknown aggregation %q, valid values are %q and %q", name, AggregationGCN, AggregationMean)
}

// Propagate returns the node features after hops rounds of neighbourhood aggregation over g.
// Rows are computed in parallel with pool (it can be nil). x is not modified.
func Propagate(g *graph.Graph, x *mat.Dense, hops int, aggregation Aggregation, pool *workerspool.Pool) *mat.Dense {
	numNodes, dim := x.Dims()
	if numNodes != g.NumNodes() {
		exceptions.Panicf("Propagate: features have %d rows, but graph has %d nodes", numNodes, g.NumNodes())
	}
	current := mat.DenseCopyOf(x)
	if hops <= 0 {
		return current
	}
	invSqrtDegree := make([]float64, numNodes)
	for node := range numNodes {
		invSqrtDegree[node] = 1 / math.Sqrt(float64(g.Degree(int32(node))+1))
	}
	next := mat.NewDense(numNodes, dim, nil)
	for range hops {
		pool.ParallelFor(numNodes, func(start, end int) {
			for node := start; node < end; node++ {
				row := next.RawRowView(node)
				neighbors := g.Neighbors(int32(node))
				switch aggregation {
				case AggregationGCN:
					floats.ScaleTo(row, invSqrtDegree[node], current.RawRowView(node))
					for _, neighbor := range neighbors {
						floats.AddScaled(row, invSqrtDegree[neighbor], current.RawRowView(int(neighbor)))
					}
					floats.Scale(invSqrtDegree[node], row)
				default:
					copy(row, current.RawRowView(node))
					for _, neighbor := range neighbors {
						floats.Add(row, current.RawRowView(int(neighbor)))
					}
					floats.Scale(1/float64(len(neighbors)+1), row)
				}
			}
		})
		current, next = next, current
	}
	return current
}
