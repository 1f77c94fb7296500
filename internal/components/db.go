package components

import (
	"fmt"
	"sort"

	"github.com/alexisbeaulieu97/weaver/internal/computation"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/interner"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
	"github.com/alexisbeaulieu97/weaver/internal/scopegraph"
	"github.com/alexisbeaulieu97/weaver/internal/usercomponents"
)

// Build promotes every resolved user component and synthesises the derived
// ones. Unresolved user components are skipped: their resolution failure has
// already been reported.
func Build(
	userDB *usercomponents.DB,
	computations *computation.DB,
	docs *rustdoc.Collection,
	sink *diagnostics.Sink,
) *DB {
	db := &DB{
		components:     interner.New[interned](),
		computations:   computations,
		userDB:         userDB,
		kindOf:         make(map[ID]Kind),
		computationOf:  make(map[ID]computation.ID),
		scopeOf:        make(map[ID]scopegraph.ScopeID),
		lifecycleOf:    make(map[ID]usercomponents.Lifecycle),
		user2component: make(map[usercomponents.ID]ID),
		component2user: make(map[ID]usercomponents.ID),
		fallibleToOk:   make(map[ID]ID),
		fallibleToErr:  make(map[ID]ID),
		matchToSource:  make(map[ID]ID),
		errorHandlerOf: make(map[ID]ID),
		derivedFrom:    make(map[ID]ID),
		transformersOf: make(map[ID][]ID),
	}

	for _, userID := range userDB.IDs() {
		db.promote(userID)
	}
	db.linkErrorHandlers(sink)
	return db
}

func (db *DB) promote(userID usercomponents.ID) {
	resolved, ok := db.userDB.Resolved(userID)
	if !ok {
		return
	}
	user := db.userDB.Get(userID)

	var comp computation.Computation
	switch {
	case resolved.Callable != nil:
		comp = computation.Callable{Callable: *resolved.Callable}
	case resolved.Type != nil:
		comp = computation.PrebuiltType{Type: resolved.Type}
	default:
		return
	}

	id := db.intern(UserBacked{UserID: userID})
	db.kindOf[id] = kindOfUser(user.Kind)
	db.computationOf[id] = db.computations.GetOrIntern(comp)
	db.scopeOf[id] = user.Scope
	db.lifecycleOf[id] = db.userDB.Lifecycle(userID)
	db.user2component[userID] = id
	db.component2user[id] = userID

	if output := comp.OutputType(); output != nil && user.Kind != usercomponents.KindErrorHandler {
		if _, _, isResult := language.AsResult(output); isResult {
			db.deriveMatchBranches(id, output, user.Scope)
		}
	}
}

// deriveMatchBranches synthesises the Ok and Err transformers of a fallible
// component, anchored at the same scope.
func (db *DB) deriveMatchBranches(fallible ID, result language.Type, scope scopegraph.ScopeID) {
	okMatch, errMatch, valid := computation.MatchPair(result)
	if !valid {
		return
	}

	okComputation := db.computations.GetOrIntern(okMatch)
	okID := db.intern(Synthetic{
		Role:        RoleMatchOk,
		Computation: okComputation,
		Scope:       scope,
		Origin:      fallible,
	})
	db.kindOf[okID] = KindMatchBranch
	db.computationOf[okID] = okComputation
	db.scopeOf[okID] = scope
	db.lifecycleOf[okID] = db.lifecycleOf[fallible]
	db.derivedFrom[okID] = fallible
	db.fallibleToOk[fallible] = okID
	db.matchToSource[okID] = fallible

	errComputation := db.computations.GetOrIntern(errMatch)
	errID := db.intern(Synthetic{
		Role:        RoleMatchErr,
		Computation: errComputation,
		Scope:       scope,
		Origin:      fallible,
	})
	db.kindOf[errID] = KindMatchBranch
	db.computationOf[errID] = errComputation
	db.scopeOf[errID] = scope
	db.lifecycleOf[errID] = db.lifecycleOf[fallible]
	db.derivedFrom[errID] = fallible
	db.fallibleToErr[fallible] = errID
	db.matchToSource[errID] = fallible
}

func (db *DB) linkErrorHandlers(sink *diagnostics.Sink) {
	for _, userID := range db.userDB.IDs() {
		user := db.userDB.Get(userID)
		if user.Kind != usercomponents.KindErrorHandler {
			continue
		}
		handlerComponent, ok := db.user2component[userID]
		if !ok {
			continue
		}
		fallibleComponent, ok := db.user2component[user.FallibleID]
		if !ok {
			continue
		}
		if _, fallible := db.fallibleToErr[fallibleComponent]; !fallible {
			fallibleUser := db.userDB.Get(user.FallibleID)
			sink.Push(
				diagnostics.NewError(
					"an error handler is attached to `%s`, but that %s is infallible",
					fallibleUser.Coordinates, fallibleUser.Kind,
				).
					PrimaryLocation(db.userDB.Location(userID), "error handler registered here").
					SecondaryLocation(db.userDB.Location(user.FallibleID), "the infallible component").
					Help("remove the error handler, or make the component return a Result").
					Build(),
			)
			continue
		}
		db.errorHandlerOf[fallibleComponent] = handlerComponent
	}
}

// GetOrInternTransformer registers a transformer applied to the output of
// appliedTo. Transformers are chained in registration order.
func (db *DB) GetOrInternTransformer(comp computation.Computation, appliedTo ID) ID {
	computationID := db.computations.GetOrIntern(comp)
	id := db.intern(Synthetic{
		Role:        RoleTransformer,
		Computation: computationID,
		Scope:       db.scopeOf[appliedTo],
		Origin:      appliedTo,
	})
	if _, seen := db.kindOf[id]; !seen {
		db.kindOf[id] = KindTransformer
		db.computationOf[id] = computationID
		db.scopeOf[id] = db.scopeOf[appliedTo]
		db.lifecycleOf[id] = db.lifecycleOf[appliedTo]
		db.derivedFrom[id] = appliedTo
		db.transformersOf[appliedTo] = append(db.transformersOf[appliedTo], id)
	}
	return id
}

// GetOrInternDetachedTransformer interns a transformer that graph rewrites
// apply explicitly, without chaining it after its origin in every graph.
func (db *DB) GetOrInternDetachedTransformer(comp computation.Computation, origin ID, discriminant string) ID {
	computationID := db.computations.GetOrIntern(comp)
	id := db.intern(Synthetic{
		Role:         RoleTransformer,
		Computation:  computationID,
		Scope:        db.scopeOf[origin],
		Origin:       origin,
		Discriminant: discriminant,
	})
	if _, seen := db.kindOf[id]; !seen {
		db.kindOf[id] = KindTransformer
		db.computationOf[id] = computationID
		db.scopeOf[id] = db.scopeOf[origin]
		db.lifecycleOf[id] = db.lifecycleOf[origin]
		db.derivedFrom[id] = origin
	}
	return id
}

// GetOrInternSyntheticConstructor registers a constructor that exists only in
// the generated code, e.g. the ApplicationState struct literal.
func (db *DB) GetOrInternSyntheticConstructor(
	callable language.Callable,
	scope scopegraph.ScopeID,
	lifecycle usercomponents.Lifecycle,
) ID {
	computationID := db.computations.GetOrIntern(computation.Callable{Callable: callable})
	id := db.intern(Synthetic{
		Role:        RoleSynthetic,
		Computation: computationID,
		Scope:       scope,
	})
	if _, seen := db.kindOf[id]; !seen {
		db.kindOf[id] = KindSyntheticConstructor
		db.computationOf[id] = computationID
		db.scopeOf[id] = scope
		db.lifecycleOf[id] = lifecycle
	}
	if output := callable.Output; output != nil {
		if _, _, isResult := language.AsResult(output); isResult {
			if _, done := db.fallibleToOk[id]; !done {
				db.deriveMatchBranches(id, output, scope)
			}
		}
	}
	return id
}

// Specialize binds the generic parameters of a constructor to concrete types
// and returns the specialised component.
func (db *DB) Specialize(id ID, bindings map[string]language.Type) (ID, bool) {
	callable, ok := db.callableOf(id)
	if !ok {
		return 0, false
	}
	bound := callable.BindGenerics(bindings)

	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	discriminant := ""
	for _, name := range names {
		discriminant += name + "=" + bindings[name].Key() + ";"
	}

	computationID := db.computations.GetOrIntern(computation.Callable{Callable: bound})
	specialized := db.intern(Synthetic{
		Role:         RoleSpecialized,
		Computation:  computationID,
		Scope:        db.scopeOf[id],
		Origin:       id,
		Discriminant: discriminant,
	})
	if _, seen := db.kindOf[specialized]; !seen {
		db.kindOf[specialized] = db.kindOf[id]
		db.computationOf[specialized] = computationID
		db.scopeOf[specialized] = db.scopeOf[id]
		db.lifecycleOf[specialized] = db.lifecycleOf[id]
		db.derivedFrom[specialized] = id
		if output := bound.Output; output != nil {
			if _, _, isResult := language.AsResult(output); isResult {
				db.deriveMatchBranches(specialized, output, db.scopeOf[id])
			}
		}
	}
	return specialized, true
}

// CloneComponent prepares a `Clone::clone` constructor for the output type of
// the given component, anchored at the supplied scope. It fails when rustdoc
// exposes no Clone impl for the type.
func (db *DB) CloneComponent(id ID, scope scopegraph.ScopeID, docs *rustdoc.Collection) (ID, bool) {
	output := db.OutputType(id)
	if output == nil {
		return 0, false
	}
	if !docs.ImplementsTrait(output, "Clone") {
		return 0, false
	}

	path, isPath := output.(language.Path)
	segments := []string{"Clone", "clone"}
	pkg := language.CorePackageID
	if isPath {
		segments = append(append([]string(nil), path.Segments...), "clone")
		pkg = path.PackageID
	}
	callable := language.Callable{
		TakesSelfAsRef: true,
		Path:           language.CallPath{PackageID: pkg, Segments: segments},
		Inputs:         []language.Type{language.Reference{Inner: output}},
		Output:         output,
	}
	computationID := db.computations.GetOrIntern(computation.Callable{Callable: callable})
	cloneID := db.intern(Synthetic{
		Role:        RoleClone,
		Computation: computationID,
		Scope:       scope,
		Origin:      id,
	})
	if _, seen := db.kindOf[cloneID]; !seen {
		db.kindOf[cloneID] = KindCloneConstructor
		db.computationOf[cloneID] = computationID
		db.scopeOf[cloneID] = scope
		db.lifecycleOf[cloneID] = usercomponents.LifecycleRequestScoped
		db.derivedFrom[cloneID] = id
	}
	return cloneID, true
}

func (db *DB) intern(c Component) ID {
	return ID(db.components.GetOrIntern(interned{c: c}))
}

func (db *DB) callableOf(id ID) (language.Callable, bool) {
	comp := db.Computation(id)
	callable, ok := comp.(computation.Callable)
	if !ok {
		return language.Callable{}, false
	}
	return callable.Callable, true
}

func kindOfUser(kind usercomponents.Kind) Kind {
	switch kind {
	case usercomponents.KindConstructor:
		return KindConstructor
	case usercomponents.KindPrebuiltType:
		return KindPrebuiltType
	case usercomponents.KindConfigType:
		return KindConfigType
	case usercomponents.KindRequestHandler:
		return KindRequestHandler
	case usercomponents.KindFallback:
		return KindFallback
	case usercomponents.KindWrappingMiddleware:
		return KindWrappingMiddleware
	case usercomponents.KindPreProcessingMiddleware:
		return KindPreProcessingMiddleware
	case usercomponents.KindPostProcessingMiddleware:
		return KindPostProcessingMiddleware
	case usercomponents.KindErrorHandler:
		return KindErrorHandler
	case usercomponents.KindErrorObserver:
		return KindErrorObserver
	default:
		panic(fmt.Sprintf("unknown user component kind %d", kind))
	}
}

// Accessors.

// Len returns the number of typed components.
func (db *DB) Len() int { return db.components.Len() }

// IDs returns every component id in creation order.
func (db *DB) IDs() []ID {
	out := make([]ID, db.components.Len())
	for i := range out {
		out[i] = ID(i)
	}
	return out
}

// Kind returns the component's kind.
func (db *DB) Kind(id ID) Kind { return db.kindOf[id] }

// Computation returns the component's computation.
func (db *DB) Computation(id ID) computation.Computation {
	return db.computations.Get(db.computationOf[id])
}

// ComputationID returns the id of the component's computation.
func (db *DB) ComputationID(id ID) computation.ID { return db.computationOf[id] }

// OutputType returns the type the component produces, nil for unit.
func (db *DB) OutputType(id ID) language.Type {
	return db.Computation(id).OutputType()
}

// InputTypes returns the component's input types.
func (db *DB) InputTypes(id ID) []language.Type {
	return db.Computation(id).InputTypes()
}

// Scope returns the component's anchoring scope.
func (db *DB) Scope(id ID) scopegraph.ScopeID { return db.scopeOf[id] }

// Lifecycle returns the component's lifecycle.
func (db *DB) Lifecycle(id ID) usercomponents.Lifecycle { return db.lifecycleOf[id] }

// Hydrated returns the component joined with its computation.
func (db *DB) Hydrated(id ID) HydratedComponent {
	return HydratedComponent{
		ID:          id,
		Kind:        db.kindOf[id],
		Computation: db.Computation(id),
		Scope:       db.scopeOf[id],
		Lifecycle:   db.lifecycleOf[id],
	}
}

// ComponentID returns the typed component promoted from a user component.
func (db *DB) ComponentID(userID usercomponents.ID) (ID, bool) {
	id, ok := db.user2component[userID]
	return id, ok
}

// UserComponentID walks back to the user component behind a typed component,
// following derivation links.
func (db *DB) UserComponentID(id ID) (usercomponents.ID, bool) {
	current := id
	for {
		if userID, ok := db.component2user[current]; ok {
			return userID, true
		}
		origin, ok := db.derivedFrom[current]
		if !ok {
			return 0, false
		}
		current = origin
	}
}

// DerivedFrom returns the component this one was derived from, if any.
func (db *DB) DerivedFrom(id ID) (ID, bool) {
	origin, ok := db.derivedFrom[id]
	return origin, ok
}

// MatchBranches returns the Ok and Err branch components of a fallible
// component.
func (db *DB) MatchBranches(fallible ID) (okID, errID ID, found bool) {
	okID, ok := db.fallibleToOk[fallible]
	if !ok {
		return 0, 0, false
	}
	return okID, db.fallibleToErr[fallible], true
}

// FallibleOf returns the fallible component behind a match branch.
func (db *DB) FallibleOf(match ID) (ID, bool) {
	id, ok := db.matchToSource[match]
	return id, ok
}

// ErrorHandlerFor returns the error handler linked to a fallible component.
func (db *DB) ErrorHandlerFor(fallible ID) (ID, bool) {
	id, ok := db.errorHandlerOf[fallible]
	return id, ok
}

// Transformers returns the transformers applied to a component's output, in
// registration order.
func (db *DB) Transformers(id ID) []ID {
	return append([]ID(nil), db.transformersOf[id]...)
}

// CloningPolicy resolves the cloning policy of a component by walking back to
// the user registration. Derived components inherit their origin's policy.
func (db *DB) CloningPolicy(id ID) usercomponents.CloningPolicy {
	userID, ok := db.UserComponentID(id)
	if !ok {
		return usercomponents.CloneNever
	}
	policy, ok := db.userDB.CloningPolicy(userID)
	if !ok {
		return usercomponents.CloneNever
	}
	return policy
}

// UserDB exposes the underlying user-component database.
func (db *DB) UserDB() *usercomponents.DB { return db.userDB }

// IsErrBranch reports whether the component is the Err half of a fallible
// component's match.
func (db *DB) IsErrBranch(id ID) bool {
	source, ok := db.matchToSource[id]
	if !ok {
		return false
	}
	return db.fallibleToErr[source] == id
}
