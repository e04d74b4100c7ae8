// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph holds the undirected association graphs used for link prediction:
// nodes are dense indices `0..N-1`, edges are unordered pairs without self-loops or duplicates.
//
// The adjacency is stored in a compressed (CSR) layout: for node `i` the neighbours are
// `Targets[Starts[i-1]:Starts[i]]` (with start 0 for `i == 0`), sorted in increasing order.
// Every edge is stored in both directions, so the adjacency is always symmetric.
//
// Graphs are immutable once created: use New to build one from a list of edges (it dedupes,
// symmetrizes and drops self-loops) and Graph.Without to derive residual graphs.
package graph

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	humanize "github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/linkpred/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Edge is a pair of node indices. Edges are undirected: use Canonical to get the representation
// with `U < V` used for identity (in sets and maps).
type Edge struct {
	U, V int32
}

// E is a shortcut to create an Edge from ints.
func E(u, v int) Edge {
	return Edge{U: int32(u), V: int32(v)}
}

// Canonical returns the edge with its endpoints in increasing order.
func (e Edge) Canonical() Edge {
	if e.U > e.V {
		return Edge{U: e.V, V: e.U}
	}
	return e
}

// IsSelfLoop returns whether both endpoints are the same node.
func (e Edge) IsSelfLoop() bool { return e.U == e.V }

// String implements fmt.Stringer.
func (e Edge) String() string { return fmt.Sprintf("(%d,%d)", e.U, e.V) }

// CompareEdges orders edges by U then V. It can be used with slices.SortFunc.
func CompareEdges(a, b Edge) int {
	if c := cmp.Compare(a.U, b.U); c != 0 {
		return c
	}
	return cmp.Compare(a.V, b.V)
}

// Graph is an immutable undirected graph.
//
// All information is available for reading, but don't change it directly:
// it is shared by residual graphs and splits.
type Graph struct {
	// Starts has one entry per node: the end position (exclusive) of its neighbours in Targets.
	// The number of nodes is given by `len(Starts)`.
	Starts []int32

	// Targets lists the neighbours of every node, ordered by source node and then by target.
	// Each undirected edge appears twice.
	Targets []int32

	// EdgeList holds each undirected edge once, in canonical form (`U < V`), sorted.
	EdgeList []Edge
}

// New creates a graph with numNodes nodes and the given edges.
//
// Edges are canonicalized, duplicates (in either direction) are merged and self-loops dropped.
// If numNodes <= 0, it is inferred as the largest node index + 1.
// It returns an error if any node index is negative or >= numNodes.
func New(numNodes int, edges []Edge) (*Graph, error) {
	if numNodes <= 0 {
		maxID := int32(-1)
		for _, e := range edges {
			maxID = max(maxID, e.U, e.V)
		}
		numNodes = int(maxID) + 1
		if numNodes <= 0 {
			return nil, errors.New("cannot infer the number of nodes of a graph without edges")
		}
	}
	if numNodes > math.MaxInt32 {
		return nil, errors.Errorf("graph uses int32 node indices, but %d nodes were requested", numNodes)
	}

	unique := sets.Make[Edge](len(edges))
	var selfLoops, duplicates int
	for _, e := range edges {
		if e.U < 0 || e.V < 0 || int(e.U) >= numNodes || int(e.V) >= numNodes {
			return nil, errors.Errorf("edge %s out of range for a graph with %d nodes", e, numNodes)
		}
		if e.IsSelfLoop() {
			selfLoops++
			continue
		}
		if !unique.InsertNew(e.Canonical()) {
			duplicates++
		}
	}
	if selfLoops > 0 || duplicates > 0 {
		klog.V(1).Infof("graph.New: dropped %d self-loops and %d duplicate edges", selfLoops, duplicates)
	}
	return fromCanonical(numNodes, unique.SortedFunc(CompareEdges)), nil
}

// fromCanonical builds the CSR layout from canonical, unique and sorted edges.
func fromCanonical(numNodes int, edgeList []Edge) *Graph {
	g := &Graph{
		Starts:   make([]int32, numNodes),
		Targets:  make([]int32, 2*len(edgeList)),
		EdgeList: edgeList,
	}
	degrees := make([]int32, numNodes)
	for _, e := range edgeList {
		degrees[e.U]++
		degrees[e.V]++
	}
	var acc int32
	for node, d := range degrees {
		acc += d
		g.Starts[node] = acc
	}

	// Fill each node's neighbours from its start position.
	next := make([]int32, numNodes)
	for node := range next {
		next[node] = g.start(int32(node))
	}
	for _, e := range edgeList {
		g.Targets[next[e.U]] = e.V
		next[e.U]++
		g.Targets[next[e.V]] = e.U
		next[e.V]++
	}
	for node := range numNodes {
		slices.Sort(g.Neighbors(int32(node)))
	}
	return g
}

// MustNew is like New, but panics on error.
func MustNew(numNodes int, edges []Edge) *Graph {
	g, err := New(numNodes, edges)
	if err != nil {
		panic(errors.WithMessage(err, "graph.MustNew"))
	}
	return g
}

// NumNodes in the graph, including isolated ones.
func (g *Graph) NumNodes() int { return len(g.Starts) }

// NumEdges returns the number of undirected edges.
func (g *Graph) NumEdges() int { return len(g.EdgeList) }

// Edges returns the canonical edges, sorted. Don't modify the returned slice.
func (g *Graph) Edges() []Edge { return g.EdgeList }

func (g *Graph) start(node int32) int32 {
	if node == 0 {
		return 0
	}
	return g.Starts[node-1]
}

func (g *Graph) checkNode(node int32) {
	if node < 0 || int(node) >= len(g.Starts) {
		exceptions.Panicf("invalid node index %d for graph with %d nodes", node, len(g.Starts))
	}
}

// Neighbors returns the sorted neighbours of node.
// Don't modify the returned slice, it's in use by the Graph -- make a copy if you need to modify.
func (g *Graph) Neighbors(node int32) []int32 {
	g.checkNode(node)
	return g.Targets[g.start(node):g.Starts[node]]
}

// Degree of the node.
func (g *Graph) Degree(node int32) int {
	g.checkNode(node)
	return int(g.Starts[node] - g.start(node))
}

// HasEdge returns whether u and v are connected, in either direction.
func (g *Graph) HasEdge(u, v int32) bool {
	g.checkNode(u)
	g.checkNode(v)
	if g.Degree(u) > g.Degree(v) {
		u, v = v, u
	}
	_, found := slices.BinarySearch(g.Neighbors(u), v)
	return found
}

// EdgeSet returns a new set with the canonical edges of the graph.
func (g *Graph) EdgeSet() sets.Set[Edge] {
	return sets.MakeWith(g.EdgeList...)
}

// Without returns the residual graph with the same nodes and all edges except the ones given
// (in either orientation). Edges not in the graph are ignored.
func (g *Graph) Without(removed ...[]Edge) *Graph {
	toRemove := sets.Make[Edge]()
	for _, list := range removed {
		for _, e := range list {
			toRemove.Insert(e.Canonical())
		}
	}
	kept := make([]Edge, 0, len(g.EdgeList))
	for _, e := range g.EdgeList {
		if !toRemove.Has(e) {
			kept = append(kept, e)
		}
	}
	return fromCanonical(g.NumNodes(), kept)
}

// NumNonEdges returns the number of unordered node pairs `u != v` that are not edges.
func (g *Graph) NumNonEdges() int64 {
	n := int64(g.NumNodes())
	return n*(n-1)/2 - int64(g.NumEdges())
}

// Density is the fraction of all possible node pairs that are edges.
func (g *Graph) Density() float64 {
	n := float64(g.NumNodes())
	if n < 2 {
		return 0
	}
	return float64(g.NumEdges()) / (n * (n - 1) / 2)
}

// String implements fmt.Stringer.
func (g *Graph) String() string {
	return fmt.Sprintf("Graph(%s nodes, %s edges, density %.4g)",
		humanize.Comma(int64(g.NumNodes())), humanize.Comma(int64(g.NumEdges())), g.Density())
}
