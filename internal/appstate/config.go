package appstate

import (
	"sort"

	"github.com/alexisbeaulieu97/weaver/internal/callgraph"
	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/pipeline"
	"github.com/alexisbeaulieu97/weaver/internal/usercomponents"
)

// ConfigField is one entry of the generated ApplicationConfig struct.
type ConfigField struct {
	// Ident is the field name: the config's unique key.
	Ident string
	Type  language.Type
	// DefaultIfMissing configs fall back to Default::default() when absent.
	DefaultIfMissing bool
}

// ApplicationConfig describes the generated configuration struct.
type ApplicationConfig struct {
	Fields []ConfigField
}

// BuildConfig prunes unused configuration and assembles ApplicationConfig.
//
// A config is kept when some graph references it, or when it is flagged
// include_if_unused. Dropped configs produce a warning unless the component
// silenced the unused lint.
func BuildConfig(
	pipelines []*pipeline.RequestHandlerPipeline,
	state *Graph,
	componentDB *components.DB,
	sink *diagnostics.Sink,
) *ApplicationConfig {
	referenced := make(map[components.ID]struct{})
	collect := func(g *callgraph.OrderedCallGraph) {
		if g == nil {
			return
		}
		for _, nodeID := range g.Graph.NodeIDs() {
			switch n := g.Graph.Node(nodeID).(type) {
			case callgraph.ComputeNode:
				referenced[n.Component] = struct{}{}
			case callgraph.InputNode:
				if n.Component != nil {
					referenced[*n.Component] = struct{}{}
				}
			}
		}
	}
	for _, p := range pipelines {
		for _, stage := range p.Stages {
			collect(stage.Graph)
		}
	}
	if state != nil {
		collect(state.Graph)
	}

	userDB := componentDB.UserDB()
	var kept []ConfigField
	for _, id := range componentDB.IDs() {
		if componentDB.Kind(id) != components.KindConfigType {
			continue
		}
		userID, ok := componentDB.UserComponentID(id)
		if !ok {
			continue
		}
		if userDB.ConfigInvalid(userID) {
			continue
		}

		_, used := referenced[id]
		if !used && !userDB.IncludeIfUnused(userID) {
			if override, ok := userDB.LintOverride(userID, usercomponents.LintUnused); !ok || override != "allow" {
				sink.Push(
					diagnostics.NewWarning(
						"the configuration %q is registered but never used",
						userDB.ConfigKey(userID),
					).
						PrimaryLocation(userDB.Location(userID), "registered here").
						Help("remove the registration, mark it include_if_unused, or silence the unused lint").
						Build(),
				)
			}
			continue
		}

		kept = append(kept, ConfigField{
			Ident:            userDB.ConfigKey(userID),
			Type:             componentDB.OutputType(id),
			DefaultIfMissing: userDB.DefaultStrategy(userID) == usercomponents.DefaultIfMissing,
		})
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Ident < kept[j].Ident })
	return &ApplicationConfig{Fields: kept}
}
