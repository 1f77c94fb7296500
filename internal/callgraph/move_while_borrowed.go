package callgraph

import (
	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
)

// moveWhileBorrowed scans for nodes that are simultaneously moved by one
// consumer and borrowed by another on the same control-flow path.
//
// Remedy ladder: make the borrower complete before the mover with a
// happens-before edge when that introduces no cycle; otherwise clone the
// value for the mover; otherwise report.
func moveWhileBorrowed(
	graph *CallGraph,
	copyChecker *CopyChecker,
	componentDB *components.DB,
	docs *rustdoc.Collection,
	sink *diagnostics.Sink,
) {
	g := graph.Graph
	sinks := g.Sinks()

	for _, node := range g.NodeIDs() {
		if copyChecker.IsCopy(g, node, componentDB) {
			continue
		}
		var movers, borrowers []NodeID
		for _, target := range g.Out(node) {
			kind, _ := g.Edge(node, target)
			switch kind {
			case EdgeMove:
				movers = append(movers, target)
			case EdgeSharedBorrow, EdgeExclusiveBorrow:
				borrowers = append(borrowers, target)
			}
		}
		if len(movers) == 0 || len(borrowers) == 0 {
			continue
		}

		for _, mover := range movers {
			for _, borrower := range borrowers {
				if borrower == mover {
					continue
				}
				if !onSharedPath(g, mover, borrower, sinks) {
					continue
				}
				// Already ordered?
				if g.HasPath(borrower, mover) {
					continue
				}
				// Ordering the borrow before the move is feasible when the
				// mover doesn't (transitively) feed the borrower.
				if !g.HasPath(mover, borrower) {
					g.UpdateEdge(borrower, mover, EdgeHappensBefore)
					continue
				}
				if _, ok := cloneNodeFor(graph, node, mover, componentDB, docs); ok {
					continue
				}
				ownershipDiagnostic(
					"I can't generate code that will pass the borrow checker: "+
						"a value is moved while it is still borrowed",
					node, []NodeID{mover, borrower}, graph, componentDB, sink,
				)
			}
		}
	}
}

// onSharedPath reports whether both nodes reach a common sink.
func onSharedPath(g *Graph, a, b NodeID, sinks []NodeID) bool {
	for _, s := range sinks {
		if g.HasPath(a, s) && g.HasPath(b, s) {
			return true
		}
	}
	return false
}
