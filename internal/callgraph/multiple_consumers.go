package callgraph

import (
	"sort"
	"strconv"

	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
)

// multipleConsumers scans for nodes consumed by value by two or more nodes on
// the same control-flow path. Each sink identifies one control-flow branch:
// two consumers compete only when both reach a common sink.
//
// Competing consumers are resolved by cloning for all but one of them, when
// the owner's policy allows it; otherwise an error is emitted listing every
// competitor.
func multipleConsumers(
	graph *CallGraph,
	copyChecker *CopyChecker,
	componentDB *components.DB,
	docs *rustdoc.Collection,
	sink *diagnostics.Sink,
) {
	g := graph.Graph
	sinks := g.Sinks()

	for _, node := range g.NodeIDs() {
		var consumers []NodeID
		for _, target := range g.Out(node) {
			if kind, _ := g.Edge(node, target); kind == EdgeMove {
				consumers = append(consumers, target)
			}
		}
		if len(consumers) < 2 {
			continue
		}
		// Copy values can be moved any number of times. Mutable references
		// belong to the move-while-borrowed pass.
		if copyChecker.IsCopy(g, node, componentDB) || isRefNode(g, node, componentDB) {
			continue
		}
		// A branch node hands the same value to its two exclusive
		// continuations; that's not a conflict.
		if _, isBranch := g.Node(node).(BranchNode); isBranch {
			continue
		}

		var competingSets []([]NodeID)
		seenSets := make(map[string]struct{})
		for _, s := range sinks {
			var onPath []NodeID
			for _, consumer := range consumers {
				if g.HasPath(consumer, s) {
					onPath = append(onPath, consumer)
				}
			}
			if len(onPath) < 2 {
				continue
			}
			sort.Slice(onPath, func(i, j int) bool { return onPath[i] < onPath[j] })
			key := ""
			for _, id := range onPath {
				key += strconv.Itoa(int(id)) + ","
			}
			if _, dup := seenSets[key]; dup {
				continue
			}
			seenSets[key] = struct{}{}
			competingSets = append(competingSets, onPath)
		}
		if len(competingSets) == 0 {
			continue
		}

		cloned := make(map[NodeID]struct{})
		failed := false
		for _, competing := range competingSets {
			pending := competing[:0:0]
			for _, consumer := range competing {
				if _, done := cloned[consumer]; !done {
					pending = append(pending, consumer)
				}
			}
			if len(pending) <= 1 {
				continue
			}
			// The last consumer moves the original; the rest get clones.
			for _, consumer := range pending[:len(pending)-1] {
				if _, ok := cloneNodeFor(graph, node, consumer, componentDB, docs); !ok {
					failed = true
					break
				}
				cloned[consumer] = struct{}{}
			}
			if failed {
				ownershipDiagnostic(
					"I can't generate code that will pass the borrow checker: "+
						"multiple components consume the same value by value",
					node, competing, graph, componentDB, sink,
				)
				break
			}
		}
	}
}
