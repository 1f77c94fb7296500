// Package scopegraph assigns a unique id to each visibility scope.
//
// All components are anchored to a scope. Scopes can be user-defined (a
// nested blueprint) or implicit (the root scope, the dedicated scope of each
// request handler, and the application-state scope). Components registered in
// a scope are visible to every scope reachable from it.
package scopegraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
)

// ScopeID is the unique id of a scope.
type ScopeID int

// Root is the id of the root scope.
const Root ScopeID = 0

func (s ScopeID) String() string {
	return fmt.Sprintf("Scope %d", int(s))
}

// Builder accumulates scopes before the graph is frozen.
type Builder struct {
	parents   map[ScopeID][]ScopeID
	children  map[ScopeID][]ScopeID
	locations map[ScopeID]diagnostics.Location
	nextID    ScopeID
}

// NewBuilder creates a scope graph with a single root scope anchored at the
// blueprint's own location.
func NewBuilder(rootLocation diagnostics.Location) *Builder {
	b := &Builder{
		parents:   make(map[ScopeID][]ScopeID),
		children:  make(map[ScopeID][]ScopeID),
		locations: make(map[ScopeID]diagnostics.Location),
		nextID:    Root + 1,
	}
	b.locations[Root] = rootLocation
	return b
}

// AddScope adds a new scope as a child of parent. User-defined scopes carry
// the location of the nesting registration; implicit scopes pass nil.
func (b *Builder) AddScope(parent ScopeID, location *diagnostics.Location) ScopeID {
	id := b.nextID
	b.nextID++
	b.children[parent] = append(b.children[parent], id)
	b.parents[id] = append(b.parents[id], parent)
	if location != nil {
		b.locations[id] = *location
	}
	return id
}

// Build freezes the graph. It materialises the application-state scope as a
// child of every leaf's parents, so that singleton construction can see
// everything a request handler could see.
func (b *Builder) Build() *ScopeGraph {
	appState := b.nextID
	b.nextID++

	leafParents := make(map[ScopeID]struct{})
	for id := Root; id < appState; id++ {
		if len(b.children[id]) == 0 {
			for _, parent := range b.parents[id] {
				leafParents[parent] = struct{}{}
			}
		}
	}
	// A blueprint with no nested scopes at all: the root is the only leaf and
	// has no parent, so the application state hangs off the root itself.
	if len(leafParents) == 0 {
		leafParents[Root] = struct{}{}
	}

	sorted := make([]ScopeID, 0, len(leafParents))
	for id := range leafParents {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, parent := range sorted {
		b.children[parent] = append(b.children[parent], appState)
		b.parents[appState] = append(b.parents[appState], parent)
	}

	return &ScopeGraph{
		root:      Root,
		appState:  appState,
		parents:   b.parents,
		children:  b.children,
		locations: b.locations,
		count:     int(b.nextID),
	}
}

// ScopeGraph is the frozen visibility DAG.
type ScopeGraph struct {
	root      ScopeID
	appState  ScopeID
	parents   map[ScopeID][]ScopeID
	children  map[ScopeID][]ScopeID
	locations map[ScopeID]diagnostics.Location
	count     int
}

// RootScopeID returns the id of the root scope.
func (g *ScopeGraph) RootScopeID() ScopeID { return g.root }

// ApplicationStateScopeID returns the id of the application-state scope.
func (g *ScopeGraph) ApplicationStateScopeID() ScopeID { return g.appState }

// Len returns the number of scopes, including the implicit ones.
func (g *ScopeGraph) Len() int { return g.count }

// Location returns the registration site of a user-defined scope. Implicit
// scopes (request handlers, application state) have none.
func (g *ScopeGraph) Location(id ScopeID) (diagnostics.Location, bool) {
	loc, ok := g.locations[id]
	return loc, ok
}

// IsDescendantOf reports whether ancestor is reachable from id by walking
// parent edges. A scope is a descendant of itself.
func (g *ScopeGraph) IsDescendantOf(id, ancestor ScopeID) bool {
	if id == ancestor {
		return true
	}
	seen := make(map[ScopeID]struct{})
	stack := []ScopeID{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == ancestor {
			return true
		}
		if _, visited := seen[current]; visited {
			continue
		}
		seen[current] = struct{}{}
		stack = append(stack, g.parents[current]...)
	}
	return false
}

// DirectParents returns the immediate parents of a scope, in ascending order.
func (g *ScopeGraph) DirectParents(id ScopeID) []ScopeID {
	return sortedCopy(g.parents[id])
}

// DirectChildren returns the immediate children of a scope, in ascending order.
func (g *ScopeGraph) DirectChildren(id ScopeID) []ScopeID {
	return sortedCopy(g.children[id])
}

// FindCommonAncestor returns a scope that is an ancestor (directly or
// transitively) of every supplied scope. The graph is rooted, so a common
// ancestor always exists. Panics when ids is empty.
func (g *ScopeGraph) FindCommonAncestor(ids []ScopeID) ScopeID {
	if len(ids) == 0 {
		panic("FindCommonAncestor requires at least one scope id")
	}
	candidate := ids[0]
	uncovered := append([]ScopeID(nil), ids...)

	for len(uncovered) > 0 {
		target := uncovered[len(uncovered)-1]
		uncovered = uncovered[:len(uncovered)-1]
		if !g.IsDescendantOf(target, candidate) {
			// The candidate doesn't reach this target: walk to its first
			// parent and retry.
			parents := g.DirectParents(candidate)
			if len(parents) == 0 {
				return g.root
			}
			candidate = parents[0]
			if candidate == g.root {
				return candidate
			}
			uncovered = append(uncovered, target)
		}
	}
	return candidate
}

// DebugDot renders the scope graph in DOT form, for troubleshooting.
func (g *ScopeGraph) DebugDot() string {
	var b strings.Builder
	b.WriteString("digraph scopes {\n")
	for id := ScopeID(0); int(id) < g.count; id++ {
		label := id.String()
		switch id {
		case g.root:
			label += " (root)"
		case g.appState:
			label += " (application state)"
		}
		fmt.Fprintf(&b, "  %d [label=%q];\n", int(id), label)
	}
	for id := ScopeID(0); int(id) < g.count; id++ {
		for _, child := range sortedCopy(g.children[id]) {
			fmt.Fprintf(&b, "  %d -> %d;\n", int(id), int(child))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func sortedCopy(ids []ScopeID) []ScopeID {
	out := append([]ScopeID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
