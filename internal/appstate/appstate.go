// Package appstate builds the singleton graph for process-wide state: a
// synthetic ApplicationState struct-literal constructor whose fields are the
// singletons actually consumed by the request pipelines, with a sum-type
// error for fallible construction.
package appstate

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

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

// Variant is one arm of the generated ApplicationStateError enum.
type Variant struct {
	Name string
	Type language.Type
}

// Graph is the analysed application-state construction.
type Graph struct {
	Graph *callgraph.OrderedCallGraph
	// StateType is the generated ApplicationState struct.
	StateType language.Type
	// Fields are the singleton bindings, name → type, in deterministic
	// order.
	Fields []language.StructField
	// ErrorVariants is empty when every singleton constructor is
	// infallible; otherwise build_application_state returns
	// Result<ApplicationState, ApplicationStateError>.
	ErrorVariants []Variant
}

// StateType is the generated ApplicationState struct's path.
func StateType() language.Type {
	return language.Path{
		PackageID: framework.GeneratedPackageID,
		Segments:  []string{"crate", "ApplicationState"},
	}
}

// ErrorType is the generated ApplicationStateError enum's path.
func ErrorType() language.Type {
	return language.Path{
		PackageID: framework.GeneratedPackageID,
		Segments:  []string{"crate", "ApplicationStateError"},
	}
}

// Build assembles the application-state graph from the singletons consumed by
// the request pipelines.
func Build(
	pipelines []*pipeline.RequestHandlerPipeline,
	componentDB *components.DB,
	constructibleDB *constructibles.DB,
	docs *rustdoc.Collection,
	sink *diagnostics.Sink,
) (*Graph, bool) {
	fields := consumedSingletonFields(pipelines, componentDB)

	stateType := StateType()
	inputs := make([]language.Type, 0, len(fields))
	for _, field := range fields {
		inputs = append(inputs, field.Type)
	}
	stateCallable := language.Callable{
		Path: language.CallPath{
			PackageID: framework.GeneratedPackageID,
			Segments:  []string{"crate", "ApplicationState"},
		},
		Inputs:     inputs,
		Output:     stateType,
		Invocation: language.StructLiteral,
		Fields:     fields,
	}
	scope := componentDB.UserDB().ScopeGraph().ApplicationStateScopeID()
	stateID := componentDB.GetOrInternSyntheticConstructor(
		stateCallable, scope, usercomponents.LifecycleSingleton,
	)

	// First construction: discover which fallible singletons participate.
	probe, ok := callgraph.Build(callgraph.BuildOptions{
		Root: stateID,
		Rule: callgraph.SingletonRule,
	}, componentDB, constructibleDB, sink)
	if !ok {
		return nil, false
	}

	variants := registerErrorTransformers(probe, stateID, componentDB)

	// With the transformers in place, the final graph surfaces a single
	// Result at its root.
	graph, ok := callgraph.Build(callgraph.BuildOptions{
		Root: stateID,
		Rule: callgraph.SingletonRule,
	}, componentDB, constructibleDB, sink)
	if !ok {
		return nil, false
	}
	ordered, ok := callgraph.Order(graph, componentDB, docs, sink)
	if !ok {
		return nil, false
	}

	return &Graph{
		Graph:         ordered,
		StateType:     stateType,
		Fields:        fields,
		ErrorVariants: variants,
	}, true
}

// consumedSingletonFields collects the types of every singleton actually
// consumed by at least one stage, in deterministic order.
func consumedSingletonFields(
	pipelines []*pipeline.RequestHandlerPipeline,
	componentDB *components.DB,
) []language.StructField {
	byKey := make(map[string]language.Type)
	for _, p := range pipelines {
		for _, stage := range p.Stages {
			for _, nodeID := range stage.Graph.Graph.NodeIDs() {
				input, ok := stage.Graph.Graph.Node(nodeID).(callgraph.InputNode)
				if !ok || input.Component == nil {
					continue
				}
				if componentDB.Lifecycle(*input.Component) != usercomponents.LifecycleSingleton {
					continue
				}
				// Config values are fields of ApplicationConfig, not of
				// ApplicationState.
				if componentDB.Kind(*input.Component) == components.KindConfigType {
					continue
				}
				byKey[input.Type.Key()] = input.Type
			}
		}
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	used := make(map[string]int)
	fields := make([]language.StructField, 0, len(keys))
	for _, key := range keys {
		t := byKey[key]
		name := fieldName(t)
		if n, taken := used[name]; taken {
			used[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			used[name] = 1
		}
		fields = append(fields, language.StructField{Name: name, Type: t})
	}
	return fields
}

// registerErrorTransformers wires the Ok/Err machinery: when any singleton
// constructor in the probe graph is fallible, the state constructor's output
// is rewritten to Result<ApplicationState, ApplicationStateError>, with one
// enum variant per distinct failure, names de-duplicated with an integer
// suffix.
func registerErrorTransformers(
	probe *callgraph.CallGraph,
	stateID components.ID,
	componentDB *components.DB,
) []Variant {
	type failure struct {
		errMatchID components.ID
		errType    language.Type
		name       string
	}
	var failures []failure
	seen := make(map[components.ID]struct{})
	for _, nodeID := range probe.Graph.NodeIDs() {
		compute, ok := probe.Graph.Node(nodeID).(callgraph.ComputeNode)
		if !ok || !componentDB.IsErrBranch(compute.Component) {
			continue
		}
		if _, dup := seen[compute.Component]; dup {
			continue
		}
		seen[compute.Component] = struct{}{}

		fallibleID, _ := componentDB.FallibleOf(compute.Component)
		failures = append(failures, failure{
			errMatchID: compute.Component,
			errType:    componentDB.OutputType(compute.Component),
			name:       variantName(componentDB, fallibleID),
		})
	}
	if len(failures) == 0 {
		return nil
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].errMatchID < failures[j].errMatchID
	})

	stateType := StateType()
	errorEnum := ErrorType()
	resultType := language.ResultOf(stateType, errorEnum)

	okWrapper := language.Callable{
		Path: language.CallPath{
			PackageID: language.CorePackageID,
			Segments:  []string{"core", "result", "Result", "Ok"},
		},
		Inputs: []language.Type{stateType},
		Output: resultType,
	}
	componentDB.GetOrInternTransformer(computation.Callable{Callable: okWrapper}, stateID)

	errWrapper := language.Callable{
		Path: language.CallPath{
			PackageID: language.CorePackageID,
			Segments:  []string{"core", "result", "Result", "Err"},
		},
		Inputs: []language.Type{errorEnum},
		Output: resultType,
	}

	collisions := make(map[string]int)
	variants := make([]Variant, 0, len(failures))
	for _, f := range failures {
		name := f.name
		n := collisions[name]
		collisions[name] = n + 1
		if n > 0 {
			name = fmt.Sprintf("%s%d", name, n+1)
		}
		variants = append(variants, Variant{Name: name, Type: f.errType})

		variantCtor := language.Callable{
			Path: language.CallPath{
				PackageID: framework.GeneratedPackageID,
				Segments:  []string{"crate", "ApplicationStateError", name},
			},
			Inputs: []language.Type{f.errType},
			Output: errorEnum,
		}
		variantID := componentDB.GetOrInternTransformer(
			computation.Callable{Callable: variantCtor}, f.errMatchID,
		)
		componentDB.GetOrInternTransformer(
			computation.Callable{Callable: errWrapper}, variantID,
		)
	}
	return variants
}

// variantName derives the enum variant from the fallible callable's name in
// PascalCase.
func variantName(componentDB *components.DB, fallibleID components.ID) string {
	comp := componentDB.Computation(fallibleID)
	callable, ok := comp.(computation.Callable)
	if !ok {
		return "Unknown"
	}
	return pascalCase(callable.Callable.Path.Last())
}

func pascalCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '_' || r == '-' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func fieldName(t language.Type) string {
	path, ok := t.(language.Path)
	if !ok {
		return "value"
	}
	last := path.Segments[len(path.Segments)-1]
	var b strings.Builder
	for i, r := range last {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
