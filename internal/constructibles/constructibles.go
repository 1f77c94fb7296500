// Package constructibles indexes, per scope, the component able to produce
// each concrete type. Lookups are scope-aware: the index walks from the
// requesting scope toward the root and returns the nearest visible
// constructor.
package constructibles

import (
	"sort"

	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/scopegraph"
)

// DB maps (scope, type) to the component that can produce the type.
type DB struct {
	componentDB *components.DB
	scopeGraph  *scopegraph.ScopeGraph
	// byScope[scope][typeKey] = producing component.
	byScope map[scopegraph.ScopeID]map[string]components.ID
	// generics[scope] lists constructors whose output still carries free
	// generics; they are specialised on demand.
	generics map[scopegraph.ScopeID][]components.ID
}

// Build indexes every constructor-like component by scope and output type.
// Two visible constructors for the same type in the same scope are reported
// as a diagnostic; the first registration wins.
func Build(
	componentDB *components.DB,
	scopeGraph *scopegraph.ScopeGraph,
	sink *diagnostics.Sink,
) *DB {
	db := &DB{
		componentDB: componentDB,
		scopeGraph:  scopeGraph,
		byScope:     make(map[scopegraph.ScopeID]map[string]components.ID),
		generics:    make(map[scopegraph.ScopeID][]components.ID),
	}

	for _, id := range componentDB.IDs() {
		if !isConstructible(componentDB.Kind(id)) {
			continue
		}
		// Match branches of fallible constructors register their Ok half;
		// neither the fallible component itself nor the Err half claims the
		// type.
		if isFallible(componentDB, id) || componentDB.IsErrBranch(id) {
			continue
		}
		output := componentDB.OutputType(id)
		if output == nil {
			continue
		}
		scope := componentDB.Scope(id)
		if language.HasUnassignedGenerics(output) {
			db.generics[scope] = append(db.generics[scope], id)
			continue
		}
		db.register(scope, output, id, sink)
	}

	return db
}

func (db *DB) register(
	scope scopegraph.ScopeID,
	output language.Type,
	id components.ID,
	sink *diagnostics.Sink,
) {
	bucket, ok := db.byScope[scope]
	if !ok {
		bucket = make(map[string]components.ID)
		db.byScope[scope] = bucket
	}
	key := output.Key()
	if existing, taken := bucket[key]; taken && existing != id {
		userDB := db.componentDB.UserDB()
		builder := diagnostics.NewError(
			"two constructors for `%s` are visible from the same scope",
			language.Display(output),
		)
		if userID, ok := db.componentDB.UserComponentID(id); ok {
			builder = builder.PrimaryLocation(userDB.Location(userID), "second constructor registered here")
		}
		if userID, ok := db.componentDB.UserComponentID(existing); ok {
			builder = builder.SecondaryLocation(userDB.Location(userID), "first constructor registered here")
		}
		sink.Push(builder.
			Help("remove one of the two, or move it to a more specific scope").
			Build())
		return
	}
	bucket[key] = id
}

// Get returns the component able to produce the requested type, visible from
// the given scope. It walks from the scope toward the root and prefers the
// nearest match. Generic constructors are specialised against the requested
// type on demand.
func (db *DB) Get(scope scopegraph.ScopeID, t language.Type) (components.ID, bool) {
	key := t.Key()
	current := scope
	visited := make(map[scopegraph.ScopeID]struct{})
	for {
		if _, seen := visited[current]; seen {
			return 0, false
		}
		visited[current] = struct{}{}

		if bucket, ok := db.byScope[current]; ok {
			if id, ok := bucket[key]; ok {
				return id, true
			}
		}
		if id, ok := db.specializeAt(current, t); ok {
			return id, true
		}

		parents := db.scopeGraph.DirectParents(current)
		if len(parents) == 0 {
			return 0, false
		}
		current = parents[0]
	}
}

func (db *DB) specializeAt(scope scopegraph.ScopeID, t language.Type) (components.ID, bool) {
	candidates := append([]components.ID(nil), db.generics[scope]...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	for _, id := range candidates {
		output := db.componentDB.OutputType(id)
		bindings, ok := language.Unify(output, t)
		if !ok {
			continue
		}
		specialized, ok := db.componentDB.Specialize(id, bindings)
		if !ok {
			continue
		}
		// If the specialised constructor is fallible, the Ok branch is the
		// one producing the requested type.
		if okBranch, _, fallible := db.componentDB.MatchBranches(specialized); fallible {
			return okBranch, true
		}
		return specialized, true
	}
	return 0, false
}

func isConstructible(kind components.Kind) bool {
	switch kind {
	case components.KindConstructor,
		components.KindPrebuiltType,
		components.KindConfigType,
		components.KindMatchBranch,
		components.KindSyntheticConstructor,
		components.KindCloneConstructor:
		return true
	default:
		return false
	}
}

// isFallible reports whether the component's own output is a Result whose
// branches were materialised separately.
func isFallible(db *components.DB, id components.ID) bool {
	_, _, found := db.MatchBranches(id)
	return found
}
