// Package pipeline stitches, per route, the middleware stages and the handler
// into a sequence of ordered call graphs with explicit state hand-off.
package pipeline

import (
	"fmt"
	"sort"

	"github.com/alexisbeaulieu97/weaver/internal/callgraph"
	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/constructibles"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/framework"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
	"github.com/alexisbeaulieu97/weaver/internal/usercomponents"
)

// StageKind classifies a pipeline stage.
type StageKind int

const (
	StageWrapping StageKind = iota
	StagePreProcessing
	StageHandler
	StagePostProcessing
)

func (k StageKind) String() string {
	switch k {
	case StageWrapping:
		return "wrapping"
	case StagePreProcessing:
		return "pre-processing"
	case StagePostProcessing:
		return "post-processing"
	default:
		return "handler"
	}
}

// Stage is one ordered call graph of the pipeline.
type Stage struct {
	Kind      StageKind
	Component components.ID
	Graph     *callgraph.OrderedCallGraph
}

// NextState is the generated struct threading request-scoped values from one
// stage to the next, lowered through IntoFuture by the emitter.
type NextState struct {
	// Type is the generated struct's path.
	Type language.Type
	// Fields are the values carried across the hand-off, name → type, in
	// deterministic order.
	Fields []language.StructField
	// NextStageIndex is the stage the state's IntoFuture lowers into.
	NextStageIndex int
}

// RequestHandlerPipeline is the fully analysed pipeline of one route.
type RequestHandlerPipeline struct {
	HandlerID  components.ID
	Stages     []Stage
	NextStates []NextState
}

// Build composes the stages of one request handler: wrapping middlewares
// outermost-first, then pre-processing middlewares, the handler, and
// post-processing middlewares, all in declaration order.
func Build(
	handlerUserID usercomponents.ID,
	componentDB *components.DB,
	constructibleDB *constructibles.DB,
	docs *rustdoc.Collection,
	sink *diagnostics.Sink,
) (*RequestHandlerPipeline, bool) {
	userDB := componentDB.UserDB()

	handlerID, ok := componentDB.ComponentID(handlerUserID)
	if !ok {
		return nil, false
	}

	var observers []components.ID
	for _, observerUserID := range userDB.ObserverIDs(handlerUserID) {
		if id, ok := componentDB.ComponentID(observerUserID); ok {
			observers = append(observers, id)
		}
	}

	type stagePlan struct {
		kind      StageKind
		component components.ID
	}
	var plan []stagePlan
	for _, mwUserID := range userDB.MiddlewareIDs(handlerUserID) {
		mwID, ok := componentDB.ComponentID(mwUserID)
		if !ok {
			continue
		}
		switch userDB.Get(mwUserID).Kind {
		case usercomponents.KindWrappingMiddleware:
			plan = append(plan, stagePlan{kind: StageWrapping, component: mwID})
		case usercomponents.KindPreProcessingMiddleware:
			plan = append(plan, stagePlan{kind: StagePreProcessing, component: mwID})
		case usercomponents.KindPostProcessingMiddleware:
			// Post-processing runs after the handler; collect below.
		}
	}
	var posts []stagePlan
	for _, mwUserID := range userDB.MiddlewareIDs(handlerUserID) {
		if userDB.Get(mwUserID).Kind == usercomponents.KindPostProcessingMiddleware {
			if mwID, ok := componentDB.ComponentID(mwUserID); ok {
				posts = append(posts, stagePlan{kind: StagePostProcessing, component: mwID})
			}
		}
	}
	plan = append(plan, stagePlan{kind: StageHandler, component: handlerID})
	plan = append(plan, posts...)

	pipeline := &RequestHandlerPipeline{HandlerID: handlerID}
	var prebuilt []components.ID
	allOK := true

	for i, stage := range plan {
		component := stage.component
		if stage.kind == StageWrapping {
			component = bindNextState(componentDB, component, nextStateType(i))
		}

		opts := callgraph.BuildOptions{
			Root:              component,
			Prebuilt:          append([]components.ID(nil), prebuilt...),
			Observers:         observers,
			Rule:              callgraph.RequestScopedRule,
			WrapResponseSinks: stage.kind == StagePreProcessing,
		}
		if stage.kind == StagePostProcessing {
			opts.ExtraInputs = []language.Type{framework.Response()}
		}

		graph, built := callgraph.Build(opts, componentDB, constructibleDB, sink)
		if !built {
			allOK = false
			continue
		}
		ordered, orderedOK := callgraph.Order(graph, componentDB, docs, sink)
		if !orderedOK {
			allOK = false
			continue
		}

		pipeline.Stages = append(pipeline.Stages, Stage{
			Kind:      stage.kind,
			Component: stage.component,
			Graph:     ordered,
		})
		prebuilt = append(prebuilt, constructedComponents(ordered.CallGraph, componentDB)...)
	}

	if len(pipeline.Stages) > 0 {
		pipeline.NextStates = computeNextStates(pipeline, componentDB)
	}
	return pipeline, allOK
}

// constructedComponents lists the request-scoped values a stage builds, so
// later stages take them as inputs instead of rebuilding them.
func constructedComponents(graph *callgraph.CallGraph, componentDB *components.DB) []components.ID {
	var out []components.ID
	for _, nodeID := range graph.Graph.NodeIDs() {
		compute, ok := graph.Graph.Node(nodeID).(callgraph.ComputeNode)
		if !ok || compute.Invocations != callgraph.InvokeOnce {
			continue
		}
		id := compute.Component
		switch componentDB.Kind(id) {
		case components.KindConstructor:
			// A fallible constructor's value is its Ok branch; the branch
			// itself is collected when present.
			if _, _, fallible := componentDB.MatchBranches(id); fallible {
				continue
			}
			out = append(out, id)
		case components.KindMatchBranch:
			if !componentDB.IsErrBranch(id) {
				if source, ok := componentDB.FallibleOf(id); ok &&
					componentDB.Kind(source) == components.KindConstructor {
					out = append(out, id)
				}
			}
		}
	}
	return out
}

// computeNextStates derives, per hand-off, the request-scoped values built by
// earlier stages and consumed by later ones.
func computeNextStates(pipeline *RequestHandlerPipeline, componentDB *components.DB) []NextState {
	n := len(pipeline.Stages)
	if n < 2 {
		return nil
	}

	// available[i]: type keys available after stages 0..i ran.
	available := make([]map[string]language.Type, n)
	running := make(map[string]language.Type)
	for _, leaf := range framework.InputLeaves() {
		running[leaf.Key()] = leaf
	}
	for i, stage := range pipeline.Stages {
		for _, nodeID := range stage.Graph.Graph.NodeIDs() {
			if compute, ok := stage.Graph.Graph.Node(nodeID).(callgraph.ComputeNode); ok {
				if !producesCarriableValue(compute.Component, componentDB) {
					continue
				}
				if t := componentDB.OutputType(compute.Component); t != nil {
					if componentDB.Lifecycle(compute.Component) == usercomponents.LifecycleRequestScoped {
						running[t.Key()] = t
					}
				}
			}
		}
		if stage.Kind == StageHandler {
			response := framework.Response()
			running[response.Key()] = response
		}
		snapshot := make(map[string]language.Type, len(running))
		for k, v := range running {
			snapshot[k] = v
		}
		available[i] = snapshot
	}

	// consumedAfter[i]: type keys consumed by stages i+1..n-1.
	consumedAfter := make([]map[string]language.Type, n)
	consumed := make(map[string]language.Type)
	for i := n - 1; i >= 1; i-- {
		for _, nodeID := range pipeline.Stages[i].Graph.Graph.NodeIDs() {
			if input, ok := pipeline.Stages[i].Graph.Graph.Node(nodeID).(callgraph.InputNode); ok {
				if singletonInput(input, componentDB) || framework.IsNextType(input.Type) {
					continue
				}
				consumed[input.Type.Key()] = input.Type
			}
		}
		snapshot := make(map[string]language.Type, len(consumed))
		for k, v := range consumed {
			snapshot[k] = v
		}
		consumedAfter[i-1] = snapshot
	}

	states := make([]NextState, 0, n-1)
	for i := 0; i < n-1; i++ {
		var fields []language.StructField
		keys := make([]string, 0, len(consumedAfter[i]))
		for key := range consumedAfter[i] {
			if _, ok := available[i][key]; ok {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for j, key := range keys {
			fields = append(fields, language.StructField{
				Name: fmt.Sprintf("s_%d", j),
				Type: consumedAfter[i][key],
			})
		}
		states = append(states, NextState{
			Type:           nextStateType(i),
			Fields:         fields,
			NextStageIndex: i + 1,
		})
	}
	return states
}

// producesCarriableValue reports whether a computed component yields a value
// a NextState can carry: constructed request-scoped data, not middleware or
// handler invocations.
func producesCarriableValue(id components.ID, componentDB *components.DB) bool {
	switch componentDB.Kind(id) {
	case components.KindConstructor, components.KindCloneConstructor:
		return true
	case components.KindMatchBranch:
		if componentDB.IsErrBranch(id) {
			return false
		}
		source, ok := componentDB.FallibleOf(id)
		return ok && componentDB.Kind(source) == components.KindConstructor
	default:
		return false
	}
}

// singletonInput reports whether the input arrives from the application
// state rather than from an upstream stage.
func singletonInput(input callgraph.InputNode, componentDB *components.DB) bool {
	if input.Component == nil {
		return false
	}
	return componentDB.Lifecycle(*input.Component) == usercomponents.LifecycleSingleton
}

// bindNextState specialises a wrapping middleware against the concrete
// next-stage state struct.
func bindNextState(componentDB *components.DB, id components.ID, state language.Type) components.ID {
	comp := componentDB.Computation(id)
	callable, ok := comp.(interface{ InputTypes() []language.Type })
	if !ok {
		return id
	}
	for _, input := range callable.InputTypes() {
		path, isPath := input.(language.Path)
		if !isPath || !framework.IsNextType(path) {
			continue
		}
		if len(path.Generics) != 1 || path.Generics[0].Type == nil {
			continue
		}
		generic, isGeneric := path.Generics[0].Type.(language.Generic)
		if !isGeneric {
			continue
		}
		if specialized, ok := componentDB.Specialize(id, map[string]language.Type{generic.Name: state}); ok {
			return specialized
		}
	}
	return id
}

// nextStateType names the generated state struct handed to stage i's
// continuation.
func nextStateType(i int) language.Type {
	return language.Path{
		PackageID: framework.GeneratedPackageID,
		Segments:  []string{"crate", fmt.Sprintf("Next%d", i)},
	}
}
