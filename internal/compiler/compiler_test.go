package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/weaver/internal/blueprint"
	"github.com/alexisbeaulieu97/weaver/internal/framework"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
)

func fnItem(id, name string, inputs []language.Type, output language.Type) *rustdoc.Item {
	return &rustdoc.Item{
		ID:        rustdoc.ItemID(id),
		Kind:      rustdoc.KindFunction,
		Name:      name,
		Path:      []string{"app", name},
		Signature: &rustdoc.Signature{Inputs: inputs, Output: output},
	}
}

func parse(t *testing.T, contents string) *blueprint.Blueprint {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blueprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	bp, err := blueprint.ParseBlueprint(path)
	require.NoError(t, err)
	return bp
}

func trivialDocs() *rustdoc.Collection {
	docs := rustdoc.NewCollection()
	docs.AddCrate(&rustdoc.Crate{
		PackageID: "app",
		Items: map[rustdoc.ItemID]*rustdoc.Item{
			"handler": fnItem("handler", "home", nil, framework.Response()),
			"other":   fnItem("other", "other", nil, framework.Response()),
			"fb":      fnItem("fb", "not_found", nil, framework.Response()),
			"fb2":     fnItem("fb2", "gone", nil, framework.Response()),
		},
	})
	docs.AddAnnotation("app", "handler", &rustdoc.Annotation{Kind: rustdoc.AnnotationRequestHandler})
	docs.AddAnnotation("app", "other", &rustdoc.Annotation{Kind: rustdoc.AnnotationRequestHandler})
	docs.AddAnnotation("app", "fb", &rustdoc.Annotation{Kind: rustdoc.AnnotationFallback})
	docs.AddAnnotation("app", "fb2", &rustdoc.Annotation{Kind: rustdoc.AnnotationFallback})
	return docs
}

func TestTrivialHandlerCompiles(t *testing.T) {
	t.Parallel()

	// S1: one GET /home handler with no inputs.
	bp := parse(t, `registrations:
  - kind: route
    coordinates: {crate: app, item: handler}
    method: GET
    path: /home
`)

	artifacts, sink := New(nil).Compile(context.Background(), bp, trivialDocs())
	require.NotNil(t, artifacts, "diagnostics: %v", sink.Diagnostics())
	require.False(t, sink.HasErrors())

	// One registered route.
	require.NotNil(t, artifacts.Router.Agnostic)
	require.Len(t, artifacts.Router.Agnostic.Paths, 1)

	// The handler pipeline has a single stage; the synthesised framework
	// fallback contributes its own pipeline.
	var handlerStages, totalStages int
	for _, p := range artifacts.Pipelines {
		totalStages += len(p.Stages)
		if len(p.Stages) == 1 && p.Stages[0].Name == "handler" {
			handlerStages++
		}
	}
	require.Equal(t, 2, len(artifacts.Pipelines))
	require.Equal(t, 2, totalStages)
	require.Equal(t, 2, handlerStages)

	// ApplicationState is empty.
	require.Empty(t, artifacts.State.Fields)
	require.Empty(t, artifacts.State.ErrorVariants)
	require.Empty(t, artifacts.Config.Fields)
}

func TestDomainRouting(t *testing.T) {
	t.Parallel()

	// S6: two domains register the same path; per-domain fallbacks are
	// honoured and the root fallback is untouched.
	bp := parse(t, `registrations:
  - kind: fallback
    coordinates: {crate: app, item: fb}
nested:
  - domain: admin.example.com
    registrations:
      - kind: route
        coordinates: {crate: app, item: handler}
        method: GET
        path: /x
      - kind: fallback
        coordinates: {crate: app, item: fb2}
  - domain: api.example.com
    registrations:
      - kind: route
        coordinates: {crate: app, item: other}
        method: GET
        path: /x
`)

	artifacts, sink := New(nil).Compile(context.Background(), bp, trivialDocs())
	require.NotNil(t, artifacts, "diagnostics: %v", sink.Diagnostics())

	domains := artifacts.Router.Domains
	require.NotNil(t, domains, "two domain guards must produce a two-level router")
	require.Nil(t, artifacts.Router.Agnostic)

	admin := domains.Routers["admin.example.com"]
	api := domains.Routers["api.example.com"]
	require.NotNil(t, admin.Paths["/x"])
	require.NotNil(t, api.Paths["/x"])

	// The admin fallback covers the admin domain only.
	require.NotEqual(t, admin.RootFallbackID, api.RootFallbackID)
	// The root fallback is the user's domain-agnostic one.
	require.Equal(t, domains.RootFallbackID, api.RootFallbackID)
}

func TestCompilationIsDeterministic(t *testing.T) {
	t.Parallel()

	// Property 4: compiling the same blueprint twice yields identical
	// routers and identical graph shapes.
	contents := `registrations:
  - kind: route
    coordinates: {crate: app, item: handler}
    method: GET
    path: /home
  - kind: route
    coordinates: {crate: app, item: other}
    method: POST
    path: /other
`
	bp1 := parse(t, contents)
	bp2 := parse(t, contents)

	first, sink1 := New(nil).Compile(context.Background(), bp1, trivialDocs())
	second, sink2 := New(nil).Compile(context.Background(), bp2, trivialDocs())
	require.NotNil(t, first)
	require.NotNil(t, second)
	require.Equal(t, sink1.Len(), sink2.Len())

	require.Empty(t, cmp.Diff(first.Router.HandlerIDs(), second.Router.HandlerIDs()))
	require.Equal(t, len(first.Pipelines), len(second.Pipelines))
	for i := range first.Pipelines {
		require.Equal(t, first.Pipelines[i].HandlerID, second.Pipelines[i].HandlerID)
		require.Equal(t, len(first.Pipelines[i].Stages), len(second.Pipelines[i].Stages))
		for j := range first.Pipelines[i].Stages {
			require.Equal(t,
				first.Pipelines[i].Stages[j].Graph.Graph.Len(),
				second.Pipelines[i].Stages[j].Graph.Graph.Len(),
			)
			require.Empty(t, cmp.Diff(
				first.Pipelines[i].Stages[j].Graph.Positions,
				second.Pipelines[i].Stages[j].Graph.Positions,
			))
		}
	}
}

func TestFailedResolutionSkipsLaterPasses(t *testing.T) {
	t.Parallel()

	bp := parse(t, `registrations:
  - kind: route
    coordinates: {crate: app, item: nonexistent}
    method: GET
    path: /home
`)

	artifacts, sink := New(nil).Compile(context.Background(), bp, trivialDocs())
	require.Nil(t, artifacts)
	require.True(t, sink.HasErrors())
}
