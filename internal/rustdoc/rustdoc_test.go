package rustdoc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/weaver/internal/language"
)

const crateFixture = `{
  "package_id": "app",
  "root_item_id": "0",
  "format_version": 1,
  "external_crates": ["core"],
  "items": [
    {
      "id": "1",
      "kind": "function",
      "name": "new_pool",
      "path": ["app", "new_pool"],
      "visibility": "public",
      "signature": {
        "inputs": [{"kind": "path", "package": "app", "segments": ["app", "Config"]}],
        "output": {"kind": "path", "package": "app", "segments": ["app", "Pool"]}
      }
    },
    {
      "id": "2",
      "kind": "struct",
      "name": "Config",
      "path": ["app", "Config"],
      "visibility": "public",
      "fields": [
        {"name": "max_connections", "type": {"kind": "scalar", "name": "u32"}}
      ]
    }
  ],
  "trait_impls": [
    {"trait": "Clone", "for": {"kind": "path", "package": "app", "segments": ["app", "Config"]}},
    {
      "trait": "Clone",
      "for": {
        "kind": "path", "package": "app", "segments": ["app", "Wrapper"],
        "generics": [{"kind": "generic", "name": "T"}]
      }
    }
  ],
  "annotations": [
    {"item": "1", "kind": "constructor", "lifecycle": "singleton", "cloning_policy": "never_clone"},
    {"item": "2", "kind": "config", "config_key": "pool", "include_if_unused": true}
  ]
}`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.json"), []byte(crateFixture), 0o644))
	return dir
}

func TestLoadDirHydratesItemsAndSignatures(t *testing.T) {
	t.Parallel()

	collection, err := LoadDir(writeFixture(t))
	require.NoError(t, err)

	crate, ok := collection.Crate("app")
	require.True(t, ok)
	require.Equal(t, ItemID("0"), crate.RootItemID)
	require.Equal(t, []string{"core"}, crate.ExternalCrates)

	item, ok := collection.Item("app", "1")
	require.True(t, ok)
	require.Equal(t, KindFunction, item.Kind)
	require.Len(t, item.Signature.Inputs, 1)
	require.Equal(t, "app::Pool", language.Display(item.Signature.Output))

	config, ok := collection.Item("app", "2")
	require.True(t, ok)
	require.Len(t, config.Fields, 1)
	require.Equal(t, "max_connections", config.Fields[0].Name)
}

func TestAnnotationsAreKeyedByCoordinates(t *testing.T) {
	t.Parallel()

	collection, err := LoadDir(writeFixture(t))
	require.NoError(t, err)

	a, ok := collection.Annotation("app", "1")
	require.True(t, ok)
	require.Equal(t, AnnotationConstructor, a.Kind)
	require.Equal(t, "singleton", a.Lifecycle)
	require.Equal(t, "never_clone", a.CloningPolicy)

	cfg, ok := collection.Annotation("app", "2")
	require.True(t, ok)
	require.Equal(t, AnnotationConfig, cfg.Kind)
	require.Equal(t, "pool", cfg.Config.Key)
	require.True(t, cfg.Config.IncludeIfUnused)

	_, ok = collection.Annotation("app", "99")
	require.False(t, ok)
}

func TestImplementsTraitMatchesGenericImpls(t *testing.T) {
	t.Parallel()

	collection, err := LoadDir(writeFixture(t))
	require.NoError(t, err)

	config := language.Path{PackageID: "app", Segments: []string{"app", "Config"}}
	require.True(t, collection.ImplementsTrait(config, "Clone"))
	require.False(t, collection.ImplementsTrait(config, "Copy"))

	wrapped := language.Path{
		PackageID: "app",
		Segments:  []string{"app", "Wrapper"},
		Generics:  []language.GenericArgument{{Type: language.Scalar{Name: "u8"}}},
	}
	require.True(t, collection.ImplementsTrait(wrapped, "Clone"))

	// Scalars and shared references are Copy without any impl entry.
	require.True(t, collection.ImplementsTrait(language.Scalar{Name: "u32"}, "Copy"))
	require.True(t, collection.ImplementsTrait(language.Reference{Inner: config}, "Copy"))
	require.False(t, collection.ImplementsTrait(language.Reference{Inner: config, Mutable: true}, "Copy"))
}
