// Package compiler orchestrates the full analysis pipeline: blueprint
// ingestion, annotation resolution, router assembly, component promotion,
// per-route call graphs, borrow checking and ordering, application-state
// construction, and the final hand-off records for the code emitter.
//
// Each pass reports failure through the diagnostic sink; later passes are
// skipped once a pass fails, to avoid cascading noise.
package compiler

import (
	"context"

	"github.com/alexisbeaulieu97/weaver/internal/appstate"
	"github.com/alexisbeaulieu97/weaver/internal/blueprint"
	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/computation"
	"github.com/alexisbeaulieu97/weaver/internal/constructibles"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/emit"
	"github.com/alexisbeaulieu97/weaver/internal/logging"
	"github.com/alexisbeaulieu97/weaver/internal/pipeline"
	"github.com/alexisbeaulieu97/weaver/internal/ports"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
	"github.com/alexisbeaulieu97/weaver/internal/usercomponents"
)

// Compiler runs the analysis pipeline.
type Compiler struct {
	logger ports.Logger
}

// New creates a compiler. A nil logger discards all output.
func New(logger ports.Logger) *Compiler {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Compiler{logger: logger}
}

// Compile analyses the blueprint against the hydrated documentation and
// returns the emitter hand-off. Artifacts is nil when compilation failed;
// the sink carries the diagnostics either way.
func (c *Compiler) Compile(
	ctx context.Context,
	bp *blueprint.Blueprint,
	docs *rustdoc.Collection,
) (*emit.Artifacts, *diagnostics.Sink) {
	sink := diagnostics.NewSink()

	userDB := usercomponents.Build(bp, docs, sink)
	c.logger.Debug(ctx, "user components ingested",
		"components", userDB.Len(),
		"scopes", userDB.ScopeGraph().Len(),
	)
	if sink.HasErrors() {
		return nil, sink
	}

	usercomponents.Resolve(userDB, docs, sink)
	c.logger.Debug(ctx, "annotations resolved", "diagnostics", sink.Len())
	if sink.HasErrors() {
		return nil, sink
	}

	computationDB := computation.NewDB()
	componentDB := components.Build(userDB, computationDB, docs, sink)
	if sink.HasErrors() {
		return nil, sink
	}

	constructibleDB := constructibles.Build(componentDB, userDB.ScopeGraph(), sink)
	if sink.HasErrors() {
		return nil, sink
	}
	c.logger.Debug(ctx, "component databases frozen",
		"typed_components", componentDB.Len(),
		"computations", computationDB.Len(),
	)

	routes := userDB.Router()
	routeInfos := routes.RouteInfos()

	// Build every pipeline even when one fails: each failure produces its
	// own diagnostics and we want all of them in a single run.
	var pipelines []*pipeline.RequestHandlerPipeline
	pipelinesOK := true
	for _, handlerID := range routes.HandlerIDs() {
		userID := usercomponents.ID(handlerID)
		kind := userDB.Get(userID).Kind
		if kind != usercomponents.KindRequestHandler && kind != usercomponents.KindFallback {
			continue
		}
		p, ok := pipeline.Build(userID, componentDB, constructibleDB, docs, sink)
		if !ok {
			pipelinesOK = false
			continue
		}
		pipelines = append(pipelines, p)
		c.logger.Debug(ctx, "pipeline built",
			"route", routeInfos[handlerID].String(),
			"stages", len(p.Stages),
		)
	}
	if !pipelinesOK || sink.HasErrors() {
		return nil, sink
	}

	state, ok := appstate.Build(pipelines, componentDB, constructibleDB, docs, sink)
	if !ok || sink.HasErrors() {
		return nil, sink
	}
	c.logger.Debug(ctx, "application state assembled",
		"singletons", len(state.Fields),
		"error_variants", len(state.ErrorVariants),
	)

	config := appstate.BuildConfig(pipelines, state, componentDB, sink)

	artifacts := &emit.Artifacts{
		Router:     routes,
		RouteInfos: routeInfos,
		State:      emit.LowerState(state),
		Config:     config,
	}
	for _, p := range pipelines {
		route := ""
		if userID, ok := componentDB.UserComponentID(p.HandlerID); ok {
			route = routeInfos[int(userID)].String()
		}
		artifacts.Pipelines = append(artifacts.Pipelines, emit.LowerPipeline(p, route, componentDB))
	}

	c.logger.Info(ctx, "compilation finished",
		"routes", len(artifacts.Pipelines),
		"configs", len(config.Fields),
		"warnings", sink.Len(),
	)
	return artifacts, sink
}
