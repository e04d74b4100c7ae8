// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	gonumgraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// ToGonum converts the graph to a gonum undirected graph, with node IDs equal to the node indices.
// Isolated nodes are included.
func (g *Graph) ToGonum() *simple.UndirectedGraph {
	ug := simple.NewUndirectedGraph()
	for node := range g.NumNodes() {
		ug.AddNode(simple.Node(node))
	}
	for _, e := range g.EdgeList {
		ug.SetEdge(simple.Edge{F: simple.Node(e.U), T: simple.Node(e.V)})
	}
	return ug
}

// Components returns the connected components of the graph, each one a list of node indices.
func (g *Graph) Components() [][]int32 {
	cc := topo.ConnectedComponents(g.ToGonum())
	components := make([][]int32, len(cc))
	for ii, nodes := range cc {
		components[ii] = nodeIDs(nodes)
	}
	return components
}

func nodeIDs(nodes []gonumgraph.Node) []int32 {
	ids := make([]int32, len(nodes))
	for ii, n := range nodes {
		ids[ii] = int32(n.ID())
	}
	return ids
}

// NumComponents returns the number of connected components, counting each isolated node as one.
func (g *Graph) NumComponents() int {
	return len(topo.ConnectedComponents(g.ToGonum()))
}

// IsolatedNodes returns the number of nodes without any edge.
func (g *Graph) IsolatedNodes() int {
	var count int
	for node := range g.NumNodes() {
		if g.Degree(int32(node)) == 0 {
			count++
		}
	}
	return count
}

// IsolatedRelativeTo counts the nodes that have edges in full but none in g: nodes that became
// unreachable when g was derived from full with Without.
func (g *Graph) IsolatedRelativeTo(full *Graph) int {
	var count int
	for node := range g.NumNodes() {
		if g.Degree(int32(node)) == 0 && full.Degree(int32(node)) > 0 {
			count++
		}
	}
	return count
}
