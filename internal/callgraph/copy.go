package callgraph

import (
	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
)

// CopyChecker answers "is this node's value Copy?" by inspecting rustdoc
// trait impls, memoising per-type answers.
type CopyChecker struct {
	docs *rustdoc.Collection
	memo map[string]bool
}

// NewCopyChecker creates a checker over the hydrated documentation.
func NewCopyChecker(docs *rustdoc.Collection) *CopyChecker {
	return &CopyChecker{docs: docs, memo: make(map[string]bool)}
}

// IsCopy reports whether the value produced by the node implements Copy.
func (c *CopyChecker) IsCopy(graph *Graph, id NodeID, componentDB *components.DB) bool {
	var t = nodeOutputType(graph, id, componentDB)
	if t == nil {
		return false
	}
	key := t.Key()
	if answer, ok := c.memo[key]; ok {
		return answer
	}
	answer := c.docs.ImplementsTrait(t, "Copy")
	c.memo[key] = answer
	return answer
}
