/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
// Package graph builds the package dependency graph of a cargo project.
package graph

import (
	"encoding/json"
	"slices"

	"bennypowers.dev/crateaudit/metadata"
)

// NodeIndex addresses a node of a Graph.
type NodeIndex int

// Edge is a dependency from one package to another, labelled with the kind
// of the declaration that produced it. The same pair of nodes may be joined
// by several edges.
type Edge struct {
	From NodeIndex               `json:"from"`
	To   NodeIndex               `json:"to"`
	Kind metadata.DependencyKind `json:"kind"`
}

// Graph is a directed multigraph of packages with one node per distinct
// package id. It is immutable once Build returns.
type Graph struct {
	nodes []metadata.PackageID
	edges []Edge

	// index maps package id -> node; it is also the visited set during Build
	index map[metadata.PackageID]NodeIndex

	// outgoing maps node -> indices into edges, in insertion order
	outgoing map[NodeIndex][]int
}

func newGraph() *Graph {
	return &Graph{
		index:    make(map[metadata.PackageID]NodeIndex),
		outgoing: make(map[NodeIndex][]int),
	}
}

// addNode inserts id unless present. Reports whether it was inserted.
func (g *Graph) addNode(id metadata.PackageID) (NodeIndex, bool) {
	if i, ok := g.index[id]; ok {
		return i, false
	}
	i := NodeIndex(len(g.nodes))
	g.nodes = append(g.nodes, id)
	g.index[id] = i
	return i, true
}

func (g *Graph) addEdge(from, to NodeIndex, kind metadata.DependencyKind) {
	g.outgoing[from] = append(g.outgoing[from], len(g.edges))
	g.edges = append(g.edges, Edge{From: from, To: to, Kind: kind})
}

// Root returns the node traversal started from. It is always index 0.
func (g *Graph) Root() metadata.PackageID {
	if len(g.nodes) == 0 {
		return ""
	}
	return g.nodes[0]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns every package id in insertion order.
func (g *Graph) Nodes() []metadata.PackageID {
	return slices.Clone(g.nodes)
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Node returns the package id of node i.
func (g *Graph) Node(i NodeIndex) metadata.PackageID {
	return g.nodes[i]
}

// Lookup returns the node holding id.
func (g *Graph) Lookup(id metadata.PackageID) (NodeIndex, bool) {
	i, ok := g.index[id]
	return i, ok
}

// EdgesFrom returns the outgoing edges of node i in insertion order.
func (g *Graph) EdgesFrom(i NodeIndex) []Edge {
	out := make([]Edge, 0, len(g.outgoing[i]))
	for _, e := range g.outgoing[i] {
		out = append(out, g.edges[e])
	}
	return out
}

// Dependencies returns the distinct packages id depends on, sorted.
func (g *Graph) Dependencies(id metadata.PackageID) []metadata.PackageID {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	seen := make(map[metadata.PackageID]bool)
	var result []metadata.PackageID
	for _, e := range g.EdgesFrom(i) {
		dep := g.nodes[e.To]
		if !seen[dep] {
			seen[dep] = true
			result = append(result, dep)
		}
	}
	slices.Sort(result)
	return result
}

// Dependents returns the distinct packages that directly depend on id, sorted.
func (g *Graph) Dependents(id metadata.PackageID) []metadata.PackageID {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	seen := make(map[metadata.PackageID]bool)
	var result []metadata.PackageID
	for _, e := range g.edges {
		if e.To != i {
			continue
		}
		dep := g.nodes[e.From]
		if !seen[dep] {
			seen[dep] = true
			result = append(result, dep)
		}
	}
	slices.Sort(result)
	return result
}

// TransitiveDependents returns all packages that directly or indirectly
// depend on id, sorted. Uses breadth-first traversal.
func (g *Graph) TransitiveDependents(id metadata.PackageID) []metadata.PackageID {
	visited := map[metadata.PackageID]bool{id: true}
	queue := []metadata.PackageID{id}
	var result []metadata.PackageID

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, dep := range g.Dependents(current) {
			if !visited[dep] {
				visited[dep] = true
				result = append(result, dep)
				queue = append(queue, dep)
			}
		}
	}

	slices.Sort(result)
	return result
}

type jsonGraph struct {
	Root  metadata.PackageID   `json:"root"`
	Nodes []metadata.PackageID `json:"nodes"`
	Edges []Edge               `json:"edges"`
}

// MarshalJSON encodes the graph as its node list and edge list.
func (g *Graph) MarshalJSON() ([]byte, error) {
	edges := g.edges
	if edges == nil {
		edges = []Edge{}
	}
	return json.Marshal(jsonGraph{Root: g.Root(), Nodes: g.nodes, Edges: edges})
}
