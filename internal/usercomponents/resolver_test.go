package usercomponents

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
)

func TestResolveReconstructsCallables(t *testing.T) {
	t.Parallel()

	bp := parseFixture(t, fixtureBlueprint)
	docs := fixtureDocs(t)
	sink := diagnostics.NewSink()
	db := Build(bp, docs, sink)
	Resolve(db, docs, sink)
	require.False(t, sink.HasErrors(), "diagnostics: %v", sink.Diagnostics())

	for _, id := range findByKind(db, KindConstructor) {
		resolved, ok := db.Resolved(id)
		require.True(t, ok)
		require.NotNil(t, resolved.Callable)
		require.NotNil(t, resolved.Callable.Output)
	}
}

func TestResolveMergesAnnotationLifecycle(t *testing.T) {
	t.Parallel()

	bp := parseFixture(t, fixtureBlueprint)
	docs := fixtureDocs(t)
	sink := diagnostics.NewSink()
	db := Build(bp, docs, sink)
	Resolve(db, docs, sink)

	for _, id := range findByKind(db, KindConstructor) {
		c := db.Get(id)
		switch string(c.Coordinates.Item) {
		case "fn_b":
			// The blueprint was silent, so the annotation's lifecycle wins.
			require.Equal(t, LifecycleSingleton, db.Lifecycle(id))
		case "fn_a":
			// The blueprint pinned request_scoped; the annotation can't
			// override it.
			require.Equal(t, LifecycleRequestScoped, db.Lifecycle(id))
		}
	}
}

func TestResolveReportsUnmatchedCoordinates(t *testing.T) {
	t.Parallel()

	bp := parseFixture(t, `registrations:
  - kind: constructor
    coordinates: {crate: app, item: missing}
`)
	docs := fixtureDocs(t)
	sink := diagnostics.NewSink()
	db := Build(bp, docs, sink)
	Resolve(db, docs, sink)

	require.True(t, sink.HasErrors())
	require.Contains(t, sink.Diagnostics()[0].Message, "can't find an annotation")
}

func TestResolveReportsKindMismatch(t *testing.T) {
	t.Parallel()

	bp := parseFixture(t, `registrations:
  - kind: constructor
    coordinates: {crate: app, item: handler}
`)
	docs := fixtureDocs(t)
	sink := diagnostics.NewSink()
	db := Build(bp, docs, sink)
	Resolve(db, docs, sink)

	require.True(t, sink.HasErrors())
	require.Contains(t, sink.Diagnostics()[0].Message, "registered as a constructor")
}

func TestResolveStructConstructorUsesStructLiteral(t *testing.T) {
	t.Parallel()

	docs := rustdoc.NewCollection()
	docs.AddCrate(&rustdoc.Crate{
		PackageID: "app",
		Items: map[rustdoc.ItemID]*rustdoc.Item{
			"cfg": {
				ID:   "cfg",
				Kind: rustdoc.KindStruct,
				Name: "Settings",
				Path: []string{"app", "Settings"},
				Fields: []rustdoc.Field{
					{Name: "level", Type: language.Scalar{Name: "u8"}},
					{Name: "verbose", Type: language.Scalar{Name: "bool"}, Default: "false"},
				},
			},
		},
	})
	docs.AddAnnotation("app", "cfg", &rustdoc.Annotation{Kind: rustdoc.AnnotationConstructor, Lifecycle: "singleton"})

	bp := parseFixture(t, `registrations:
  - kind: constructor
    coordinates: {crate: app, item: cfg}
`)
	sink := diagnostics.NewSink()
	db := Build(bp, docs, sink)
	Resolve(db, docs, sink)
	require.False(t, sink.HasErrors(), "diagnostics: %v", sink.Diagnostics())

	id := findByKind(db, KindConstructor)[0]
	resolved, ok := db.Resolved(id)
	require.True(t, ok)
	require.Equal(t, language.StructLiteral, resolved.Callable.Invocation)
	require.Len(t, resolved.Callable.Fields, 2)
	// Defaulted fields are not inputs.
	require.Len(t, resolved.Callable.Inputs, 1)
	require.Equal(t, "false", resolved.Callable.ExtraDefaults["verbose"])
	require.Equal(t, LifecycleSingleton, db.Lifecycle(id))
}

func TestResolveRejectsBorrowingConfigTypes(t *testing.T) {
	t.Parallel()

	docs := rustdoc.NewCollection()
	docs.AddCrate(&rustdoc.Crate{
		PackageID: "app",
		Items: map[rustdoc.ItemID]*rustdoc.Item{
			"cfg": {
				ID:   "cfg",
				Kind: rustdoc.KindStruct,
				Name: "Borrowing",
				Path: []string{"app", "Borrowing"},
				Fields: []rustdoc.Field{
					{Name: "inner", Type: language.Reference{Inner: language.Scalar{Name: "str"}}},
				},
			},
		},
	})
	docs.AddAnnotation("app", "cfg", &rustdoc.Annotation{Kind: rustdoc.AnnotationConfig, Config: &rustdoc.ConfigAnnotation{Key: "borrowing"}})

	bp := parseFixture(t, `registrations:
  - kind: config
    coordinates: {crate: app, item: cfg}
    key: borrowing
`)
	sink := diagnostics.NewSink()
	db := Build(bp, docs, sink)
	Resolve(db, docs, sink)

	require.True(t, sink.HasErrors())
	require.Contains(t, sink.Diagnostics()[0].Message, "borrows")
}

func TestResolveDiagnosesConfigKeyCollisions(t *testing.T) {
	t.Parallel()

	docs := rustdoc.NewCollection()
	docs.AddCrate(&rustdoc.Crate{
		PackageID: "app",
		Items: map[rustdoc.ItemID]*rustdoc.Item{
			"cfg_a": {
				ID: "cfg_a", Kind: rustdoc.KindStruct, Name: "PoolConfig",
				Path:   []string{"app", "PoolConfig"},
				Fields: []rustdoc.Field{{Name: "size", Type: language.Scalar{Name: "u32"}}},
			},
			"cfg_b": {
				ID: "cfg_b", Kind: rustdoc.KindStruct, Name: "CacheConfig",
				Path:   []string{"app", "CacheConfig"},
				Fields: []rustdoc.Field{{Name: "ttl", Type: language.Scalar{Name: "u64"}}},
			},
		},
	})
	docs.AddAnnotation("app", "cfg_a", &rustdoc.Annotation{Kind: rustdoc.AnnotationConfig})
	docs.AddAnnotation("app", "cfg_b", &rustdoc.Annotation{Kind: rustdoc.AnnotationConfig})

	bp := parseFixture(t, `registrations:
  - kind: config
    coordinates: {crate: app, item: cfg_a}
    key: pool
  - kind: config
    coordinates: {crate: app, item: cfg_b}
    key: pool
`)
	sink := diagnostics.NewSink()
	db := Build(bp, docs, sink)
	Resolve(db, docs, sink)

	require.True(t, sink.HasErrors())
	require.Contains(t, sink.Diagnostics()[0].Message, "claimed by two different types")

	// Neither config survives into the application config.
	for _, id := range findByKind(db, KindConfigType) {
		require.True(t, db.ConfigInvalid(id))
	}
}

func TestHarvestImportsRegistersAnnotatedItems(t *testing.T) {
	t.Parallel()

	docs := fixtureDocs(t)
	bp := parseFixture(t, `registrations:
  - kind: import
    modules: [app]
`)
	sink := diagnostics.NewSink()
	db := Build(bp, docs, sink)

	// Neither request-handler annotation carries a route, and middleware,
	// observer and error-handler annotations cannot be harvested, so all of
	// those are reported; the constructors and the fallback register fine.
	require.True(t, sink.HasErrors())
	require.NotEmpty(t, findByKind(db, KindConstructor))
}
