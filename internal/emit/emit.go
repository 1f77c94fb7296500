// Package emit defines the hand-off records consumed by the code emitter:
// per-route pipelines with their stage functions and next-state structs, the
// router description, and the application state/config shapes.
//
// The emitter itself is a separate tool; these records are the boundary.
package emit

import (
	"fmt"

	"github.com/alexisbeaulieu97/weaver/internal/appstate"
	"github.com/alexisbeaulieu97/weaver/internal/callgraph"
	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/computation"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/pipeline"
	"github.com/alexisbeaulieu97/weaver/internal/router"
)

// CodegenedFn describes one generated stage function.
type CodegenedFn struct {
	Name    string
	IsAsync bool
	// Component is the stage's root component.
	Component components.ID
	// InputTypes are the parameters the function requires, in deterministic
	// order.
	InputTypes []language.Type
	// Graph is the ordered call graph the function body lowers.
	Graph *callgraph.OrderedCallGraph
}

// CodegenedNextState describes one inter-stage hand-off struct and the stage
// function its IntoFuture lowering invokes.
type CodegenedNextState struct {
	StructName string
	Fields     []language.StructField
	NextFn     string
}

// CodegenedRequestHandlerPipeline is the full per-route hand-off.
type CodegenedRequestHandlerPipeline struct {
	HandlerID components.ID
	// Route is the human-readable route the pipeline serves, for logs and
	// summaries.
	Route      string
	Stages     []CodegenedFn
	NextStates []CodegenedNextState
}

// ApplicationStateSpec describes the generated state struct, its fallible
// construction function, and the error enum.
type ApplicationStateSpec struct {
	StateType language.Type
	Fields    []language.StructField
	// BuildFn is the construction function's name.
	BuildFn string
	// ErrorVariants is empty for infallible construction.
	ErrorVariants []appstate.Variant
	Graph         *callgraph.OrderedCallGraph
}

// Artifacts is everything the emitter needs for one application.
type Artifacts struct {
	Router     *router.Router
	RouteInfos map[router.ID]router.RouteInfo
	Pipelines  []*CodegenedRequestHandlerPipeline
	State      *ApplicationStateSpec
	Config     *appstate.ApplicationConfig
}

// LowerPipeline converts an analysed pipeline into its codegen record.
func LowerPipeline(
	p *pipeline.RequestHandlerPipeline,
	route string,
	componentDB *components.DB,
) *CodegenedRequestHandlerPipeline {
	out := &CodegenedRequestHandlerPipeline{HandlerID: p.HandlerID, Route: route}

	for i, stage := range p.Stages {
		name := fmt.Sprintf("middleware_%d", i)
		if stage.Kind == pipeline.StageHandler {
			name = "handler"
		}
		out.Stages = append(out.Stages, CodegenedFn{
			Name:       name,
			IsAsync:    stageIsAsync(stage, componentDB),
			Component:  stage.Component,
			InputTypes: requiredInputs(stage.Graph),
			Graph:      stage.Graph,
		})
	}
	for _, state := range p.NextStates {
		structName := "NextState"
		if path, ok := state.Type.(language.Path); ok {
			structName = path.Segments[len(path.Segments)-1]
		}
		out.NextStates = append(out.NextStates, CodegenedNextState{
			StructName: structName,
			Fields:     state.Fields,
			NextFn:     out.Stages[state.NextStageIndex].Name,
		})
	}
	return out
}

// requiredInputs lists the types a stage function takes as parameters: every
// input leaf of its graph.
func requiredInputs(ordered *callgraph.OrderedCallGraph) []language.Type {
	var inputs []language.Type
	for _, nodeID := range ordered.Graph.NodeIDs() {
		if input, ok := ordered.Graph.Node(nodeID).(callgraph.InputNode); ok {
			inputs = append(inputs, input.Type)
		}
	}
	return inputs
}

// stageIsAsync reports whether the stage function must await: any async
// computation inside it makes the whole stage async.
func stageIsAsync(stage pipeline.Stage, componentDB *components.DB) bool {
	for _, nodeID := range stage.Graph.Graph.NodeIDs() {
		compute, ok := stage.Graph.Graph.Node(nodeID).(callgraph.ComputeNode)
		if !ok {
			continue
		}
		if callable, ok := componentDB.Computation(compute.Component).(computation.Callable); ok {
			if callable.Callable.IsAsync {
				return true
			}
		}
	}
	return false
}

// LowerState converts the analysed application-state graph.
func LowerState(state *appstate.Graph) *ApplicationStateSpec {
	return &ApplicationStateSpec{
		StateType:     state.StateType,
		Fields:        state.Fields,
		BuildFn:       "build_application_state",
		ErrorVariants: state.ErrorVariants,
		Graph:         state.Graph,
	}
}
