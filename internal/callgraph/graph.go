// Package callgraph builds, borrow-checks, and orders the per-target graphs
// of computations that realise a component's inputs.
package callgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/scopegraph"
)

// NodeID indexes a node inside one call graph.
type NodeID int

// InvocationLimit caps how many times a computation may appear in a graph.
type InvocationLimit int

const (
	// InvokeOnce: request-scoped and singleton computations are deduplicated.
	InvokeOnce InvocationLimit = iota
	// InvokeMultiple: transient computations are duplicated per request site.
	InvokeMultiple
)

// Node is the sum of call-graph node kinds.
type Node interface {
	isNode()
}

// ComputeNode invokes a component.
type ComputeNode struct {
	Component   components.ID
	Invocations InvocationLimit
}

func (ComputeNode) isNode() {}

// InputNode is a value supplied from outside the graph: a framework leaf, a
// singleton, or a value built by an upstream pipeline stage.
type InputNode struct {
	Type language.Type
	// Component is set when the input corresponds to a known component
	// (singleton, prebuilt, config); nil for framework leaves.
	Component *components.ID
}

func (InputNode) isNode() {}

// BranchNode splits a Result into its Ok and Err continuations.
type BranchNode struct{}

func (BranchNode) isNode() {}

// EdgeKind labels the relationship between two nodes.
type EdgeKind int

const (
	EdgeMove EdgeKind = iota
	EdgeSharedBorrow
	EdgeExclusiveBorrow
	EdgeHappensBefore
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeSharedBorrow:
		return "shared borrow"
	case EdgeExclusiveBorrow:
		return "exclusive borrow"
	case EdgeHappensBefore:
		return "happens before"
	default:
		return "move"
	}
}

// Graph is a directed graph over call-graph nodes. Nodes are never removed;
// edges can be rewired by the borrow checker.
type Graph struct {
	nodes []Node
	out   []map[NodeID]EdgeKind
	in    []map[NodeID]EdgeKind
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddNode inserts a node and returns its id.
func (g *Graph) AddNode(n Node) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.out = append(g.out, make(map[NodeID]EdgeKind))
	g.in = append(g.in, make(map[NodeID]EdgeKind))
	return id
}

// Node returns the node stored under id.
func (g *Graph) Node(id NodeID) Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// NodeIDs returns every node id in insertion order.
func (g *Graph) NodeIDs() []NodeID {
	ids := make([]NodeID, len(g.nodes))
	for i := range g.nodes {
		ids[i] = NodeID(i)
	}
	return ids
}

// UpdateEdge inserts or overwrites the edge from→to.
func (g *Graph) UpdateEdge(from, to NodeID, kind EdgeKind) {
	g.out[from][to] = kind
	g.in[to][from] = kind
}

// RemoveEdge deletes the edge from→to, if present.
func (g *Graph) RemoveEdge(from, to NodeID) {
	delete(g.out[from], to)
	delete(g.in[to], from)
}

// Edge returns the label of the edge from→to.
func (g *Graph) Edge(from, to NodeID) (EdgeKind, bool) {
	kind, ok := g.out[from][to]
	return kind, ok
}

// Out returns the successors of a node, ascending.
func (g *Graph) Out(id NodeID) []NodeID {
	return sortedKeys(g.out[id])
}

// In returns the predecessors of a node, ascending.
func (g *Graph) In(id NodeID) []NodeID {
	return sortedKeys(g.in[id])
}

// Sinks returns the nodes with no outgoing edges, ascending.
func (g *Graph) Sinks() []NodeID {
	var sinks []NodeID
	for i := range g.nodes {
		if len(g.out[i]) == 0 {
			sinks = append(sinks, NodeID(i))
		}
	}
	return sinks
}

// HasPath reports whether to is reachable from from.
func (g *Graph) HasPath(from, to NodeID) bool {
	if from == to {
		return true
	}
	seen := make(map[NodeID]struct{})
	stack := []NodeID{from}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == to {
			return true
		}
		if _, visited := seen[current]; visited {
			continue
		}
		seen[current] = struct{}{}
		for next := range g.out[current] {
			stack = append(stack, next)
		}
	}
	return false
}

// DebugDot renders the graph in DOT form for troubleshooting.
func (g *Graph) DebugDot(componentDB *components.DB) string {
	var b strings.Builder
	b.WriteString("digraph callgraph {\n")
	for i, n := range g.nodes {
		label := ""
		switch n := n.(type) {
		case ComputeNode:
			label = fmt.Sprintf("compute %s", componentDB.Kind(n.Component))
		case InputNode:
			label = fmt.Sprintf("input %s", language.Display(n.Type))
		case BranchNode:
			label = "match"
		}
		fmt.Fprintf(&b, "  %d [label=%q];\n", i, label)
	}
	for i := range g.nodes {
		for _, to := range g.Out(NodeID(i)) {
			kind := g.out[i][to]
			fmt.Fprintf(&b, "  %d -> %d [label=%q];\n", i, int(to), kind.String())
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// CallGraph is a graph with its distinguished root: the sink producing the
// target component's output.
type CallGraph struct {
	Graph         *Graph
	Root          NodeID
	RootScope     scopegraph.ScopeID
	RootComponent components.ID
}

func sortedKeys(m map[NodeID]EdgeKind) []NodeID {
	out := make([]NodeID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
