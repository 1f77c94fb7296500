package usercomponents

import (
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/interner"
	"github.com/alexisbeaulieu97/weaver/internal/router"
	"github.com/alexisbeaulieu97/weaver/internal/scopegraph"
)

// Len returns the number of user components.
func (db *DB) Len() int { return db.components.Len() }

// IDs returns every component id in registration order.
func (db *DB) IDs() []ID {
	out := make([]ID, db.components.Len())
	for i := range out {
		out[i] = ID(i)
	}
	return out
}

// Get returns the interned component identity.
func (db *DB) Get(id ID) UserComponent {
	return db.components.Get(interner.ID(id))
}

// ScopeGraph returns the frozen scope graph.
func (db *DB) ScopeGraph() *scopegraph.ScopeGraph { return db.scopeGraph }

// Router returns the user-level router.
func (db *DB) Router() *router.Router { return db.routes }

// Scope returns the scope a component is anchored to.
func (db *DB) Scope(id ID) scopegraph.ScopeID { return db.Get(id).Scope }

// Lifecycle returns the component's lifecycle.
func (db *DB) Lifecycle(id ID) Lifecycle { return db.lifecycles[id] }

// SetLifecycle overrides the lifecycle; used by the annotation resolver when
// the blueprint did not pin one.
func (db *DB) SetLifecycle(id ID, lifecycle Lifecycle) { db.lifecycles[id] = lifecycle }

// CloningPolicy returns the component's cloning policy, when it has one.
func (db *DB) CloningPolicy(id ID) (CloningPolicy, bool) {
	p, ok := db.cloning[id]
	return p, ok
}

// SetCloningPolicy overrides the cloning policy.
func (db *DB) SetCloningPolicy(id ID, policy CloningPolicy) { db.cloning[id] = policy }

// Location returns the registration site.
func (db *DB) Location(id ID) diagnostics.Location { return db.locations[id] }

// LintOverride returns the component's override for the named lint, if any.
func (db *DB) LintOverride(id ID, lint string) (string, bool) {
	overrides, ok := db.lints[id]
	if !ok {
		return "", false
	}
	v, ok := overrides[lint]
	return v, ok
}

// MergeLints merges annotation-level lint settings underneath any overrides
// the blueprint already set.
func (db *DB) MergeLints(id ID, lints map[string]string) {
	if len(lints) == 0 {
		return
	}
	existing := db.lints[id]
	merged := make(map[string]string, len(lints)+len(existing))
	for k, v := range lints {
		merged[k] = v
	}
	for k, v := range existing {
		merged[k] = v
	}
	db.lints[id] = merged
}

// ConfigKey returns the unique key of a config component.
func (db *DB) ConfigKey(id ID) string { return db.configKeys[id] }

// SetConfigKey records a config key discovered during annotation resolution.
func (db *DB) SetConfigKey(id ID, key string) { db.configKeys[id] = key }

// DefaultStrategy returns the config's default strategy.
func (db *DB) DefaultStrategy(id ID) DefaultStrategy { return db.configDefaults[id] }

// IncludeIfUnused reports whether an unused config must still be emitted.
func (db *DB) IncludeIfUnused(id ID) bool { return db.configInclude[id] }

// MarkConfigInvalid excludes a config from the application config after a
// uniqueness violation.
func (db *DB) MarkConfigInvalid(id ID) { db.invalidConfigs[id] = true }

// ConfigInvalid reports whether a config was excluded.
func (db *DB) ConfigInvalid(id ID) bool { return db.invalidConfigs[id] }

// MiddlewareIDs returns the middlewares attached to a handler, grouped by
// kind: wrapping, then pre-processing, then post-processing, each group in
// declaration order.
func (db *DB) MiddlewareIDs(handler ID) []ID {
	return append([]ID(nil), db.handlerMiddlewares[handler]...)
}

// ObserverIDs returns the error observers attached to a handler, in
// declaration order.
func (db *DB) ObserverIDs(handler ID) []ID {
	return append([]ID(nil), db.handlerObservers[handler]...)
}

// FallbackPrefix returns the concatenated path prefix of a fallback.
func (db *DB) FallbackPrefix(id ID) string { return db.fallbackPrefixes[id] }

// FallbackDomain returns the innermost non-empty domain of a fallback.
func (db *DB) FallbackDomain(id ID) string { return db.fallbackDomains[id] }

// SetResolved stores the annotation-resolution outcome for a component.
func (db *DB) SetResolved(id ID, r *Resolved) { db.resolved[id] = r }

// Resolved returns the resolution outcome, when resolution succeeded.
func (db *DB) Resolved(id ID) (*Resolved, bool) {
	r, ok := db.resolved[id]
	return r, ok
}

// LifecycleWasExplicit reports whether the blueprint pinned the lifecycle.
func (db *DB) LifecycleWasExplicit(id ID) bool { return db.explicitLifecycle[id] }

// CloningWasExplicit reports whether the blueprint pinned the cloning policy.
func (db *DB) CloningWasExplicit(id ID) bool { return db.explicitCloning[id] }
