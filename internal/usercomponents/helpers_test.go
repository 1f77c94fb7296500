package usercomponents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/weaver/internal/blueprint"
	"github.com/alexisbeaulieu97/weaver/internal/framework"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
)

func parseFixture(t *testing.T, contents string) *blueprint.Blueprint {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blueprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	bp, err := blueprint.ParseBlueprint(path)
	require.NoError(t, err)
	return bp
}

func appType(segments ...string) language.Path {
	return language.Path{PackageID: "app", Segments: segments}
}

func fnItem(id, name string, inputs []language.Type, output language.Type) *rustdoc.Item {
	return &rustdoc.Item{
		ID:         rustdoc.ItemID(id),
		Kind:       rustdoc.KindFunction,
		Name:       name,
		Path:       []string{"app", name},
		Visibility: "public",
		Signature:  &rustdoc.Signature{Inputs: inputs, Output: output},
	}
}

// fixtureDocs builds the rustdoc collection shared by the tests: a request
// handler chain (RequestHead -> B -> A -> handler), a wrapping middleware, an
// error observer, and a nested-domain handler with a fallback.
func fixtureDocs(t *testing.T) *rustdoc.Collection {
	t.Helper()

	typeA := appType("app", "A")
	typeB := appType("app", "B")
	errType := appType("app", "HandlerError")

	crate := &rustdoc.Crate{
		PackageID:     "app",
		RootItemID:    "0",
		FormatVersion: 1,
		Items:         map[rustdoc.ItemID]*rustdoc.Item{},
	}
	items := []*rustdoc.Item{
		fnItem("fn_a", "new_a", []language.Type{typeB}, typeA),
		fnItem("fn_b", "new_b", []language.Type{framework.RequestHead()}, typeB),
		fnItem("mw", "wrap", []language.Type{framework.Next(language.Generic{Name: "C"})}, framework.Response()),
		fnItem("obs", "observe", []language.Type{language.Reference{Inner: errType}}, nil),
		fnItem("handler", "home", []language.Type{typeA}, framework.Response()),
		fnItem("handler2", "admin_x", nil, framework.Response()),
		fnItem("eh", "handle_error", []language.Type{language.Reference{Inner: errType}}, framework.Response()),
		fnItem("fb", "not_found", nil, framework.Response()),
	}
	for _, item := range items {
		crate.Items[item.ID] = item
	}

	docs := rustdoc.NewCollection()
	docs.AddCrate(crate)
	docs.AddAnnotation("app", "fn_a", &rustdoc.Annotation{Kind: rustdoc.AnnotationConstructor})
	docs.AddAnnotation("app", "fn_b", &rustdoc.Annotation{
		Kind:      rustdoc.AnnotationConstructor,
		Lifecycle: "singleton",
	})
	docs.AddAnnotation("app", "mw", &rustdoc.Annotation{Kind: rustdoc.AnnotationWrappingMW})
	docs.AddAnnotation("app", "obs", &rustdoc.Annotation{Kind: rustdoc.AnnotationErrorObserver})
	docs.AddAnnotation("app", "handler", &rustdoc.Annotation{Kind: rustdoc.AnnotationRequestHandler})
	docs.AddAnnotation("app", "handler2", &rustdoc.Annotation{Kind: rustdoc.AnnotationRequestHandler})
	docs.AddAnnotation("app", "eh", &rustdoc.Annotation{Kind: rustdoc.AnnotationErrorHandler})
	docs.AddAnnotation("app", "fb", &rustdoc.Annotation{Kind: rustdoc.AnnotationFallback})
	return docs
}

const fixtureBlueprint = `registrations:
  - kind: constructor
    coordinates: {crate: app, item: fn_b}
  - kind: constructor
    coordinates: {crate: app, item: fn_a}
    lifecycle: request_scoped
  - kind: wrapping_middleware
    coordinates: {crate: app, item: mw}
  - kind: error_observer
    coordinates: {crate: app, item: obs}
  - kind: route
    coordinates: {crate: app, item: handler}
    method: GET
    path: /home
    error_handler: {crate: app, item: eh}
nested:
  - prefix: /admin
    domain: admin.example.com
    registrations:
      - kind: route
        coordinates: {crate: app, item: handler2}
        method: GET
        path: /x
      - kind: fallback
        coordinates: {crate: app, item: fb}
`

func findByKind(db *DB, kind Kind) []ID {
	var out []ID
	for _, id := range db.IDs() {
		if db.Get(id).Kind == kind {
			out = append(out, id)
		}
	}
	return out
}
