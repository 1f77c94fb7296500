package callgraph

import (
	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
	"github.com/alexisbeaulieu97/weaver/internal/usercomponents"
)

// BorrowCheck verifies that code generated from the graph can satisfy linear
// ownership, inserting Clone nodes where a component's cloning policy allows
// it. It reports false when violations could not be remediated.
//
// The two obvious passes run first; when either finds an unresolvable
// violation the subtler third pass is skipped to avoid duplicated
// diagnostics.
func BorrowCheck(
	graph *CallGraph,
	componentDB *components.DB,
	docs *rustdoc.Collection,
	sink *diagnostics.Sink,
) bool {
	copyChecker := NewCopyChecker(docs)
	before := sink.Len()

	multipleConsumers(graph, copyChecker, componentDB, docs, sink)
	moveWhileBorrowed(graph, copyChecker, componentDB, docs, sink)
	if sink.Len() > before {
		return false
	}
	complexBorrowCheck(graph, copyChecker, componentDB, docs, sink)
	return sink.Len() == before
}

// cloneNodeFor inserts a Clone node between owner and consumer, when the
// owner's policy and a rustdoc Clone impl allow it:
//
//	owner --shared borrow--> clone --move--> consumer
func cloneNodeFor(
	graph *CallGraph,
	owner, consumer NodeID,
	componentDB *components.DB,
	docs *rustdoc.Collection,
) (NodeID, bool) {
	ownerComponent, ok := nodeComponent(graph.Graph, owner)
	if !ok {
		return 0, false
	}
	if componentDB.CloningPolicy(ownerComponent) != usercomponents.CloneIfNecessary {
		return 0, false
	}
	cloneID, ok := componentDB.CloneComponent(ownerComponent, graph.RootScope, docs)
	if !ok {
		return 0, false
	}

	cloneNode := graph.Graph.AddNode(ComputeNode{Component: cloneID, Invocations: InvokeOnce})
	graph.Graph.UpdateEdge(owner, cloneNode, EdgeSharedBorrow)
	graph.Graph.UpdateEdge(cloneNode, consumer, EdgeMove)
	graph.Graph.RemoveEdge(owner, consumer)
	return cloneNode, true
}

// nodeComponent returns the component behind a node, when there is one.
func nodeComponent(g *Graph, id NodeID) (components.ID, bool) {
	switch n := g.Node(id).(type) {
	case ComputeNode:
		return n.Component, true
	case InputNode:
		if n.Component != nil {
			return *n.Component, true
		}
	}
	return 0, false
}

func nodeOutputType(g *Graph, id NodeID, componentDB *components.DB) language.Type {
	switch n := g.Node(id).(type) {
	case ComputeNode:
		return componentDB.OutputType(n.Component)
	case InputNode:
		return n.Type
	default:
		return nil
	}
}

func isRefNode(g *Graph, id NodeID, componentDB *components.DB) bool {
	t := nodeOutputType(g, id, componentDB)
	return t != nil && language.IsReference(t)
}

// ownershipDiagnostic assembles the shared shape of borrow-checker errors:
// the contended type, every competing consumer with its registration site,
// and the remedy ladder.
func ownershipDiagnostic(
	message string,
	owner NodeID,
	consumers []NodeID,
	graph *CallGraph,
	componentDB *components.DB,
	sink *diagnostics.Sink,
) {
	userDB := componentDB.UserDB()
	t := nodeOutputType(graph.Graph, owner, componentDB)
	display := "the value"
	if t != nil {
		display = "`" + language.Display(t) + "`"
	}

	builder := diagnostics.NewError("%s", message)
	if ownerComponent, ok := nodeComponent(graph.Graph, owner); ok {
		if userID, ok := componentDB.UserComponentID(ownerComponent); ok {
			builder = builder.PrimaryLocation(
				userDB.Location(userID),
				display+" is built here",
			)
		}
	}
	for _, consumer := range consumers {
		consumerComponent, ok := nodeComponent(graph.Graph, consumer)
		if !ok {
			continue
		}
		if userID, ok := componentDB.UserComponentID(consumerComponent); ok {
			builder = builder.SecondaryLocation(
				userDB.Location(userID),
				"one of the consuming "+userDB.Get(userID).Kind.String()+"s",
			)
		}
	}
	builder = builder.
		Help("allow me to clone %s: enable `clone_if_necessary` on its constructor", display).
		Help("or take a shared reference, `&%s`, in the consuming signatures", strippedDisplay(t)).
		Help("or wrap the value in a shared smart pointer (`Rc`/`Arc`) with a dedicated constructor")
	sink.Push(builder.Build())
}

func strippedDisplay(t language.Type) string {
	if t == nil {
		return "_"
	}
	return language.Display(t)
}
