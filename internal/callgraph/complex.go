package callgraph

import (
	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
)

// complexBorrowCheck covers the transitive cases the first two passes miss:
// a borrow whose ownership chain threads through intermediate moves. A node
// N is transitively borrowed by X when some intermediate node consumed N and
// X borrows that intermediate (so X's borrow keeps N alive).
//
// The remedy ladder matches the direct passes: order, then clone, then
// report.
func complexBorrowCheck(
	graph *CallGraph,
	copyChecker *CopyChecker,
	componentDB *components.DB,
	docs *rustdoc.Collection,
	sink *diagnostics.Sink,
) {
	g := graph.Graph
	sinks := g.Sinks()

	// For each node, a borrower of one of its movers keeps the node's
	// ownership chain alive while another mover still expects to consume it.
	for _, node := range g.NodeIDs() {
		if copyChecker.IsCopy(g, node, componentDB) {
			continue
		}

		var movers []NodeID
		for _, target := range g.Out(node) {
			if kind, _ := g.Edge(node, target); kind == EdgeMove {
				movers = append(movers, target)
			}
		}
		if len(movers) < 2 {
			continue
		}

		// With more than one mover surviving the direct passes, check
		// whether any mover is borrowed while another still expects to
		// consume the original.
		for _, mover := range movers {
			for _, other := range movers {
				if other == mover {
					continue
				}
				for _, borrower := range borrowersOf(g, mover) {
					if borrower == other || !onSharedPath(g, other, borrower, sinks) {
						continue
					}
					if g.HasPath(borrower, other) || g.HasPath(other, borrower) {
						continue
					}
					g.UpdateEdge(borrower, other, EdgeHappensBefore)
				}
			}
		}

		// Anything still conflicting is a real violation.
		remaining := 0
		for _, target := range g.Out(node) {
			if kind, _ := g.Edge(node, target); kind == EdgeMove {
				remaining++
			}
		}
		if remaining > 1 {
			var consumers []NodeID
			for _, target := range g.Out(node) {
				if kind, _ := g.Edge(node, target); kind == EdgeMove {
					consumers = append(consumers, target)
				}
			}
			competing := false
			for _, s := range sinks {
				n := 0
				for _, c := range consumers {
					if g.HasPath(c, s) {
						n++
					}
				}
				if n > 1 {
					competing = true
					break
				}
			}
			if competing {
				resolved := true
				for _, consumer := range consumers[:len(consumers)-1] {
					if _, ok := cloneNodeFor(graph, node, consumer, componentDB, docs); !ok {
						resolved = false
						break
					}
				}
				if !resolved {
					ownershipDiagnostic(
						"I can't generate code that will pass the borrow checker: "+
							"an ownership chain conflicts with an outstanding borrow",
						node, consumers, graph, componentDB, sink,
					)
				}
			}
		}
	}
}

func borrowersOf(g *Graph, node NodeID) []NodeID {
	var out []NodeID
	for _, target := range g.Out(node) {
		if kind, _ := g.Edge(node, target); kind == EdgeSharedBorrow || kind == EdgeExclusiveBorrow {
			out = append(out, target)
		}
	}
	return out
}
