package usercomponents

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/scopegraph"
)

func TestBuildAnchorsComponentsToScopes(t *testing.T) {
	t.Parallel()

	bp := parseFixture(t, fixtureBlueprint)
	sink := diagnostics.NewSink()
	db := Build(bp, fixtureDocs(t), sink)
	require.False(t, sink.HasErrors())

	constructors := findByKind(db, KindConstructor)
	require.Len(t, constructors, 2)
	for _, id := range constructors {
		require.Equal(t, scopegraph.Root, db.Scope(id))
	}

	handlers := findByKind(db, KindRequestHandler)
	require.Len(t, handlers, 2)
	graph := db.ScopeGraph()
	for _, id := range handlers {
		scope := db.Scope(id)
		require.NotEqual(t, scopegraph.Root, scope)
		// Handler scopes are leaves: no children.
		require.Empty(t, graph.DirectChildren(scope))
	}
}

func TestBuildRecordsMiddlewaresAndObserversInOrder(t *testing.T) {
	t.Parallel()

	bp := parseFixture(t, fixtureBlueprint)
	sink := diagnostics.NewSink()
	db := Build(bp, fixtureDocs(t), sink)

	var home ID
	for _, id := range findByKind(db, KindRequestHandler) {
		if db.Get(id).RouterKey.Path == "/home" {
			home = id
		}
	}

	middlewares := db.MiddlewareIDs(home)
	require.Len(t, middlewares, 1)
	require.Equal(t, KindWrappingMiddleware, db.Get(middlewares[0]).Kind)

	observers := db.ObserverIDs(home)
	require.Len(t, observers, 1)
	require.Equal(t, KindErrorObserver, db.Get(observers[0]).Kind)
}

func TestBuildAccumulatesPrefixAndDomain(t *testing.T) {
	t.Parallel()

	bp := parseFixture(t, fixtureBlueprint)
	sink := diagnostics.NewSink()
	db := Build(bp, fixtureDocs(t), sink)

	var admin ID
	for _, id := range findByKind(db, KindRequestHandler) {
		if db.Get(id).RouterKey.Domain != "" {
			admin = id
		}
	}
	key := db.Get(admin).RouterKey
	require.Equal(t, "/admin/x", key.Path)
	require.Equal(t, "admin.example.com", key.Domain)

	fallbacks := findByKind(db, KindFallback)
	var userFallback ID
	found := false
	for _, id := range fallbacks {
		if db.FallbackDomain(id) == "admin.example.com" {
			userFallback = id
			found = true
		}
	}
	require.True(t, found)
	require.Equal(t, "/admin", db.FallbackPrefix(userFallback))
}

func TestBuildRegistersErrorHandlerAgainstFallible(t *testing.T) {
	t.Parallel()

	bp := parseFixture(t, fixtureBlueprint)
	sink := diagnostics.NewSink()
	db := Build(bp, fixtureDocs(t), sink)

	handlers := findByKind(db, KindErrorHandler)
	require.Len(t, handlers, 1)
	eh := db.Get(handlers[0])
	require.Equal(t, KindRequestHandler, db.Get(eh.FallibleID).Kind)
	require.Equal(t, db.Scope(eh.FallibleID), eh.Scope)
}

func TestBuildIsDeterministic(t *testing.T) {
	t.Parallel()

	bp := parseFixture(t, fixtureBlueprint)
	docs := fixtureDocs(t)

	first := Build(bp, docs, diagnostics.NewSink())
	second := Build(bp, docs, diagnostics.NewSink())

	require.Equal(t, first.Len(), second.Len())
	for _, id := range first.IDs() {
		require.Equal(t, first.Get(id).Key(), second.Get(id).Key())
		require.Equal(t, first.Lifecycle(id), second.Lifecycle(id))
		require.Equal(t, first.Scope(id), second.Scope(id))
	}
	require.Empty(t, cmp.Diff(first.Router().HandlerIDs(), second.Router().HandlerIDs()))
	require.Empty(t, cmp.Diff(first.Router().RouteInfos(), second.Router().RouteInfos()))
}

func TestBuildSynthesisesDefaultRootFallback(t *testing.T) {
	t.Parallel()

	bp := parseFixture(t, fixtureBlueprint)
	sink := diagnostics.NewSink()
	db := Build(bp, fixtureDocs(t), sink)

	// The blueprint registers a fallback only for the admin domain, so the
	// framework's own fallback must back the root.
	router := db.Router()
	require.NotNil(t, router.Domains)
	root := ID(router.Domains.RootFallbackID)
	require.Equal(t, KindFallback, db.Get(root).Kind)
	require.Equal(t, "weaver", string(db.Get(root).Coordinates.Package))
}
