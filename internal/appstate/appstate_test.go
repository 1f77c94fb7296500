package appstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/weaver/internal/blueprint"
	"github.com/alexisbeaulieu97/weaver/internal/callgraph"
	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/computation"
	"github.com/alexisbeaulieu97/weaver/internal/constructibles"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/framework"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/pipeline"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
	"github.com/alexisbeaulieu97/weaver/internal/usercomponents"
)

func appType(segments ...string) language.Path {
	return language.Path{PackageID: "app", Segments: segments}
}

func fnItem(id, name string, inputs []language.Type, output language.Type) *rustdoc.Item {
	return &rustdoc.Item{
		ID:        rustdoc.ItemID(id),
		Kind:      rustdoc.KindFunction,
		Name:      name,
		Path:      []string{"app", name},
		Signature: &rustdoc.Signature{Inputs: inputs, Output: output},
	}
}

type fixture struct {
	userDB      *usercomponents.DB
	componentDB *components.DB
	construct   *constructibles.DB
	docs        *rustdoc.Collection
	sink        *diagnostics.Sink
	pipelines   []*pipeline.RequestHandlerPipeline
}

func buildFixture(t *testing.T, bpYAML string, docs *rustdoc.Collection) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blueprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bpYAML), 0o644))
	bp, err := blueprint.ParseBlueprint(path)
	require.NoError(t, err)

	sink := diagnostics.NewSink()
	userDB := usercomponents.Build(bp, docs, sink)
	usercomponents.Resolve(userDB, docs, sink)
	componentDB := components.Build(userDB, computation.NewDB(), docs, sink)
	construct := constructibles.Build(componentDB, userDB.ScopeGraph(), sink)

	f := &fixture{userDB: userDB, componentDB: componentDB, construct: construct, docs: docs, sink: sink}
	for _, userID := range userDB.IDs() {
		if userDB.Get(userID).Kind != usercomponents.KindRequestHandler {
			continue
		}
		p, ok := pipeline.Build(userID, componentDB, construct, docs, sink)
		require.True(t, ok, "diagnostics: %v", sink.Diagnostics())
		f.pipelines = append(f.pipelines, p)
	}
	return f
}

func fallibleSingletonDocs() *rustdoc.Collection {
	typeT := appType("app", "Pool")
	typeU := appType("app", "Cache")
	err1 := appType("app", "PoolError")
	err2 := appType("app", "CacheError")

	docs := rustdoc.NewCollection()
	docs.AddCrate(&rustdoc.Crate{
		PackageID: "app",
		Items: map[rustdoc.ItemID]*rustdoc.Item{
			"new_pool":  fnItem("new_pool", "new_pool", nil, language.ResultOf(typeT, err1)),
			"new_cache": fnItem("new_cache", "new_cache", nil, language.ResultOf(typeU, err2)),
			"handler_t": fnItem("handler_t", "with_pool", []language.Type{language.Reference{Inner: typeT}}, framework.Response()),
			"handler_u": fnItem("handler_u", "with_cache", []language.Type{language.Reference{Inner: typeU}}, framework.Response()),
		},
	})
	docs.AddAnnotation("app", "new_pool", &rustdoc.Annotation{Kind: rustdoc.AnnotationConstructor, Lifecycle: "singleton"})
	docs.AddAnnotation("app", "new_cache", &rustdoc.Annotation{Kind: rustdoc.AnnotationConstructor, Lifecycle: "singleton"})
	docs.AddAnnotation("app", "handler_t", &rustdoc.Annotation{Kind: rustdoc.AnnotationRequestHandler})
	docs.AddAnnotation("app", "handler_u", &rustdoc.Annotation{Kind: rustdoc.AnnotationRequestHandler})
	return docs
}

const fallibleSingletonBlueprint = `registrations:
  - kind: constructor
    coordinates: {crate: app, item: new_pool}
  - kind: constructor
    coordinates: {crate: app, item: new_cache}
  - kind: route
    coordinates: {crate: app, item: handler_t}
    method: GET
    path: /pool
  - kind: route
    coordinates: {crate: app, item: handler_u}
    method: GET
    path: /cache
`

func TestFallibleSingletons(t *testing.T) {
	t.Parallel()

	// S5: two fallible singleton constructors, both consumed by handlers.
	f := buildFixture(t, fallibleSingletonBlueprint, fallibleSingletonDocs())
	require.False(t, f.sink.HasErrors(), "diagnostics: %v", f.sink.Diagnostics())

	state, ok := Build(f.pipelines, f.componentDB, f.construct, f.docs, f.sink)
	require.True(t, ok, "diagnostics: %v", f.sink.Diagnostics())

	// Both singletons are fields of ApplicationState.
	require.Len(t, state.Fields, 2)

	// One variant per distinct error, named after the callables in
	// PascalCase.
	require.Len(t, state.ErrorVariants, 2)
	names := []string{state.ErrorVariants[0].Name, state.ErrorVariants[1].Name}
	require.ElementsMatch(t, []string{"NewPool", "NewCache"}, names)

	// The graph's root produces Result<ApplicationState, ApplicationStateError>.
	rootType := rootOutputType(state.Graph, f.componentDB)
	okType, errType, isResult := language.AsResult(rootType)
	require.True(t, isResult)
	require.Equal(t, StateType().Key(), okType.Key())
	require.Equal(t, ErrorType().Key(), errType.Key())
}

func TestInfallibleStateHasNoErrorEnum(t *testing.T) {
	t.Parallel()

	typeT := appType("app", "Pool")
	docs := rustdoc.NewCollection()
	docs.AddCrate(&rustdoc.Crate{
		PackageID: "app",
		Items: map[rustdoc.ItemID]*rustdoc.Item{
			"new_pool":  fnItem("new_pool", "new_pool", nil, typeT),
			"handler_t": fnItem("handler_t", "with_pool", []language.Type{language.Reference{Inner: typeT}}, framework.Response()),
		},
	})
	docs.AddAnnotation("app", "new_pool", &rustdoc.Annotation{Kind: rustdoc.AnnotationConstructor, Lifecycle: "singleton"})
	docs.AddAnnotation("app", "handler_t", &rustdoc.Annotation{Kind: rustdoc.AnnotationRequestHandler})

	f := buildFixture(t, `registrations:
  - kind: constructor
    coordinates: {crate: app, item: new_pool}
  - kind: route
    coordinates: {crate: app, item: handler_t}
    method: GET
    path: /pool
`, docs)
	require.False(t, f.sink.HasErrors())

	state, ok := Build(f.pipelines, f.componentDB, f.construct, f.docs, f.sink)
	require.True(t, ok)
	require.Empty(t, state.ErrorVariants)
	require.Equal(t, StateType().Key(), rootOutputType(state.Graph, f.componentDB).Key())
}

func TestVariantNameCollisionGetsSuffix(t *testing.T) {
	t.Parallel()

	typeT := appType("app", "Pool")
	typeU := appType("app", "Cache")
	err1 := appType("app", "PoolError")
	err2 := appType("app", "CacheError")

	docs := rustdoc.NewCollection()
	crate := &rustdoc.Crate{
		PackageID: "app",
		Items: map[rustdoc.ItemID]*rustdoc.Item{
			"new_1":     fnItem("new_1", "build", nil, language.ResultOf(typeT, err1)),
			"new_2":     fnItem("new_2", "build", nil, language.ResultOf(typeU, err2)),
			"handler_t": fnItem("handler_t", "with_pool", []language.Type{language.Reference{Inner: typeT}}, framework.Response()),
			"handler_u": fnItem("handler_u", "with_cache", []language.Type{language.Reference{Inner: typeU}}, framework.Response()),
		},
	}
	// The two constructors share the bare name "build": the second variant
	// gets an integer suffix.
	crate.Items["new_2"].Path = []string{"app", "cache", "build"}
	docs.AddCrate(crate)
	docs.AddAnnotation("app", "new_1", &rustdoc.Annotation{Kind: rustdoc.AnnotationConstructor, Lifecycle: "singleton"})
	docs.AddAnnotation("app", "new_2", &rustdoc.Annotation{Kind: rustdoc.AnnotationConstructor, Lifecycle: "singleton"})
	docs.AddAnnotation("app", "handler_t", &rustdoc.Annotation{Kind: rustdoc.AnnotationRequestHandler})
	docs.AddAnnotation("app", "handler_u", &rustdoc.Annotation{Kind: rustdoc.AnnotationRequestHandler})

	f := buildFixture(t, `registrations:
  - kind: constructor
    coordinates: {crate: app, item: new_1}
  - kind: constructor
    coordinates: {crate: app, item: new_2}
  - kind: route
    coordinates: {crate: app, item: handler_t}
    method: GET
    path: /pool
  - kind: route
    coordinates: {crate: app, item: handler_u}
    method: GET
    path: /cache
`, docs)
	require.False(t, f.sink.HasErrors())

	state, ok := Build(f.pipelines, f.componentDB, f.construct, f.docs, f.sink)
	require.True(t, ok)
	require.Len(t, state.ErrorVariants, 2)
	names := []string{state.ErrorVariants[0].Name, state.ErrorVariants[1].Name}
	require.ElementsMatch(t, []string{"Build", "Build2"}, names)
}

func TestUnusedConfigIsPrunedWithWarning(t *testing.T) {
	t.Parallel()

	docs := rustdoc.NewCollection()
	docs.AddCrate(&rustdoc.Crate{
		PackageID: "app",
		Items: map[rustdoc.ItemID]*rustdoc.Item{
			"cfg": {
				ID: "cfg", Kind: rustdoc.KindStruct, Name: "PoolConfig",
				Path:   []string{"app", "PoolConfig"},
				Fields: []rustdoc.Field{{Name: "size", Type: language.Scalar{Name: "u32"}}},
			},
			"cfg_kept": {
				ID: "cfg_kept", Kind: rustdoc.KindStruct, Name: "RetryConfig",
				Path:   []string{"app", "RetryConfig"},
				Fields: []rustdoc.Field{{Name: "max", Type: language.Scalar{Name: "u8"}}},
			},
			"handler": fnItem("handler", "home", nil, framework.Response()),
		},
	})
	docs.AddAnnotation("app", "cfg", &rustdoc.Annotation{Kind: rustdoc.AnnotationConfig})
	docs.AddAnnotation("app", "cfg_kept", &rustdoc.Annotation{Kind: rustdoc.AnnotationConfig})
	docs.AddAnnotation("app", "handler", &rustdoc.Annotation{Kind: rustdoc.AnnotationRequestHandler})

	f := buildFixture(t, `registrations:
  - kind: config
    coordinates: {crate: app, item: cfg}
    key: pool
  - kind: config
    coordinates: {crate: app, item: cfg_kept}
    key: retry
    include_if_unused: true
  - kind: route
    coordinates: {crate: app, item: handler}
    method: GET
    path: /home
`, docs)
	require.False(t, f.sink.HasErrors())

	state, ok := Build(f.pipelines, f.componentDB, f.construct, f.docs, f.sink)
	require.True(t, ok)

	config := BuildConfig(f.pipelines, state, f.componentDB, f.sink)
	require.Len(t, config.Fields, 1)
	require.Equal(t, "retry", config.Fields[0].Ident)

	warned := false
	for _, d := range f.sink.Diagnostics() {
		if d.Severity == diagnostics.SeverityWarning {
			warned = true
		}
	}
	require.True(t, warned, "pruning an unused config must warn")
}

func rootOutputType(ordered *callgraph.OrderedCallGraph, componentDB *components.DB) language.Type {
	node := ordered.Graph.Node(ordered.Root)
	if compute, ok := node.(callgraph.ComputeNode); ok {
		return componentDB.OutputType(compute.Component)
	}
	if input, ok := node.(callgraph.InputNode); ok {
		return input.Type
	}
	return nil
}
