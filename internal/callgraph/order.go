package callgraph

import (
	"sort"

	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
)

// OrderedCallGraph is a call graph plus a total execution order consistent
// with its borrow constraints.
type OrderedCallGraph struct {
	*CallGraph
	// Positions maps every node to its slot in the total order. For every
	// edge u→v where v consumes u, Positions[u] < Positions[v].
	Positions map[NodeID]int
}

// Order borrow-checks the graph and assigns positions. It reports false when
// the borrow checker found unresolvable violations.
func Order(
	graph *CallGraph,
	componentDB *components.DB,
	docs *rustdoc.Collection,
	sink *diagnostics.Sink,
) (*OrderedCallGraph, bool) {
	if !BorrowCheck(graph, componentDB, docs, sink) {
		return nil, false
	}
	copyChecker := NewCopyChecker(docs)
	return assignOrder(graph, copyChecker, componentDB), true
}

// assignOrder assigns positions by fixpoint. A node is ready when every
// dependency has a position and no dependency it consumes is still borrowed
// by an unpositioned node (unless the dependency is Copy). Discovery is
// two-phase: first enqueue a node's dependencies, then visit it.
//
// The borrow checker has already guaranteed an ordering exists; failing to
// make progress is a bug, and the fixpoint crashes loudly.
func assignOrder(
	graph *CallGraph,
	copyChecker *CopyChecker,
	componentDB *components.DB,
) *OrderedCallGraph {
	g := graph.Graph
	positions := make(map[NodeID]int, g.Len())
	ownership := computeOwnership(g)
	position := 0

	toVisit := append([]NodeID(nil), g.Sinks()...)
	// Deterministic seed order.
	sort.Slice(toVisit, func(i, j int) bool { return toVisit[i] < toVisit[j] })

	discovered := make(map[NodeID]struct{})
	parked := make(map[NodeID]struct{})
	var parkedOrder []NodeID
	finished := 0

	for {
		for len(toVisit) > 0 {
			node := toVisit[len(toVisit)-1]
			toVisit = toVisit[:len(toVisit)-1]

			if _, done := positions[node]; done {
				continue
			}
			if _, seen := discovered[node]; !seen {
				// First sighting: re-enqueue the node behind its
				// dependencies.
				discovered[node] = struct{}{}
				toVisit = append(toVisit, node)
				for _, dep := range g.In(node) {
					if _, done := positions[dep]; !done {
						toVisit = append(toVisit, dep)
					}
				}
				continue
			}

			blocked := false
			for _, dep := range g.In(node) {
				if _, done := positions[dep]; !done {
					blocked = true
					break
				}
				if ownership.isConsumedBy(dep, node) && ownership.isBorrowed(dep) &&
					!copyChecker.IsCopy(g, dep, componentDB) {
					blocked = true
					break
				}
			}

			if blocked {
				if _, already := parked[node]; !already {
					parked[node] = struct{}{}
					parkedOrder = append(parkedOrder, node)
				}
				continue
			}

			ownership.releaseBorrowsOf(node)
			positions[node] = position
			position++

			for _, dep := range g.In(node) {
				if _, done := positions[dep]; done {
					continue
				}
				if _, isParked := parked[dep]; isParked {
					continue
				}
				toVisit = append(toVisit, dep)
			}
		}

		if len(parkedOrder) == 0 {
			break
		}
		if len(positions) == finished {
			panic("the fixed-point node-ordering algorithm is stuck; this is a bug")
		}
		finished = len(positions)

		toVisit = append(toVisit, parkedOrder...)
		parked = make(map[NodeID]struct{})
		parkedOrder = nil
	}

	return &OrderedCallGraph{CallGraph: graph, Positions: positions}
}

// InOrder returns the node ids sorted by position.
func (o *OrderedCallGraph) InOrder() []NodeID {
	ids := make([]NodeID, 0, len(o.Positions))
	for id := range o.Positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return o.Positions[ids[i]] < o.Positions[ids[j]] })
	return ids
}
