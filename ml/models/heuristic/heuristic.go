// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package heuristic implements classic neighbourhood-based link predictors, that score a pair (u, v)
// from the residual training graph only. They have no trainable parameters: TrainEpoch only records
// the training graph and reports the loss of the scores on the training pairs.
//
// Unbounded scores s (common neighbours, Adamic–Adar, preferential attachment) are reported as
// s/(1+s), so they are in [0, 1) and a pair is predicted an edge at the 0.5 threshold when s >= 1.
package heuristic

import (
	"math"

	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/gomlx/linkpred/ml/train"
	"github.com/gomlx/linkpred/ml/train/losses"
	"github.com/pkg/errors"
)

// Method of scoring.
type Method string

const (
	CommonNeighbors        Method = "common_neighbors"
	Jaccard                Method = "jaccard"
	AdamicAdar             Method = "adamic_adar"
	PreferentialAttachment Method = "preferential_attachment"
)

// Methods lists all heuristics.
var Methods = []Method{CommonNeighbors, Jaccard, AdamicAdar, PreferentialAttachment}

// Model scores pairs with a heuristic. It implements train.Model.
type Model struct {
	method Method
	graph  *graph.Graph
}

var _ train.Model = (*Model)(nil)

// New returns a heuristic Model.
func New(method Method) (*Model, error) {
	for _, m := range Methods {
		if m == method {
			return &Model{method: method}, nil
		}
	}
	return nil, errors.Errorf("unknown heuristic %q, valid values are %q", method, Methods)
}

// Reset implements train.Model.
func (m *Model) Reset(_ uint64) error {
	m.graph = nil
	return nil
}

// TrainEpoch implements train.Model. It returns the binary cross-entropy of the scores of the
// training pairs.
func (m *Model) TrainEpoch(batch *train.Batch) (float64, error) {
	if batch.Graph == nil {
		return 0, errors.New("heuristic: training graph is required")
	}
	m.graph = batch.Graph
	pairs, labels := batch.Pairs()
	scores, err := m.Predict(pairs)
	if err != nil {
		return 0, err
	}
	return losses.BinaryCrossentropy(labels, scores, nil), nil
}

// Predict implements train.Model.
func (m *Model) Predict(pairs []graph.Edge) ([]float64, error) {
	if m.graph == nil {
		return nil, errors.New("heuristic: Predict called before training")
	}
	numNodes := int32(m.graph.NumNodes())
	scores := make([]float64, len(pairs))
	for ii, pair := range pairs {
		if pair.U < 0 || pair.V < 0 || pair.U >= numNodes || pair.V >= numNodes {
			return nil, errors.Errorf("heuristic: pair %s out of range for %d nodes", pair, numNodes)
		}
		scores[ii] = Score(m.graph, m.method, pair.U, pair.V)
	}
	return scores, nil
}

// SaveState implements train.Model. There is no state other than the training graph.
func (m *Model) SaveState() ([]byte, error) { return nil, nil }

// LoadState implements train.Model.
func (m *Model) LoadState(_ []byte) error { return nil }

// Score returns the heuristic score of the pair (u, v) in g, scaled to [0, 1].
func Score(g *graph.Graph, method Method, u, v int32) float64 {
	switch method {
	case Jaccard:
		common := commonNeighbors(g, u, v, nil)
		union := g.Degree(u) + g.Degree(v) - common
		if union == 0 {
			return 0
		}
		return float64(common) / float64(union)
	case AdamicAdar:
		var s float64
		commonNeighbors(g, u, v, func(w int32) {
			// Common neighbours have degree >= 2.
			s += 1 / math.Log(float64(g.Degree(w)))
		})
		return squash(s)
	case PreferentialAttachment:
		return squash(float64(g.Degree(u)) * float64(g.Degree(v)))
	default:
		return squash(float64(commonNeighbors(g, u, v, nil)))
	}
}

// squash maps [0, inf) to [0, 1).
func squash(s float64) float64 {
	return s / (1 + s)
}

// commonNeighbors counts the common neighbours of u and v by merging their sorted neighbour lists,
// calling fn (if not nil) for each of them.
func commonNeighbors(g *graph.Graph, u, v int32, fn func(w int32)) int {
	a, b := g.Neighbors(u), g.Neighbors(v)
	var count, i, j int
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			count++
			if fn != nil {
				fn(a[i])
			}
			i++
			j++
		}
	}
	return count
}
