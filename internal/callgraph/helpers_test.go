package callgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/weaver/internal/blueprint"
	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/computation"
	"github.com/alexisbeaulieu97/weaver/internal/constructibles"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
	"github.com/alexisbeaulieu97/weaver/internal/usercomponents"
)

type fixture struct {
	userDB      *usercomponents.DB
	componentDB *components.DB
	construct   *constructibles.DB
	docs        *rustdoc.Collection
	sink        *diagnostics.Sink
}

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
	return &fixture{
		userDB:      userDB,
		componentDB: componentDB,
		construct:   construct,
		docs:        docs,
		sink:        sink,
	}
}

// handlerComponent returns the typed component of the only request handler.
func (f *fixture) handlerComponent(t *testing.T) components.ID {
	t.Helper()
	for _, userID := range f.userDB.IDs() {
		if f.userDB.Get(userID).Kind == usercomponents.KindRequestHandler {
			id, ok := f.componentDB.ComponentID(userID)
			require.True(t, ok)
			return id
		}
	}
	t.Fatal("no request handler in fixture")
	return 0
}

func (f *fixture) observers(t *testing.T) []components.ID {
	t.Helper()
	var out []components.ID
	for _, userID := range f.userDB.IDs() {
		if f.userDB.Get(userID).Kind == usercomponents.KindErrorObserver {
			id, ok := f.componentDB.ComponentID(userID)
			require.True(t, ok)
			out = append(out, id)
		}
	}
	return out
}

func (f *fixture) buildGraph(t *testing.T, opts BuildOptions) *CallGraph {
	t.Helper()
	graph, ok := Build(opts, f.componentDB, f.construct, f.sink)
	require.True(t, ok, "diagnostics: %v", f.sink.Diagnostics())
	return graph
}

func countComputeNodes(g *Graph, componentDB *components.DB, component components.ID) int {
	n := 0
	for _, id := range g.NodeIDs() {
		if compute, ok := g.Node(id).(ComputeNode); ok && compute.Component == component {
			n++
		}
	}
	return n
}

func countClones(g *Graph, componentDB *components.DB) int {
	n := 0
	for _, id := range g.NodeIDs() {
		if compute, ok := g.Node(id).(ComputeNode); ok {
			if componentDB.Kind(compute.Component) == components.KindCloneConstructor {
				n++
			}
		}
	}
	return n
}
