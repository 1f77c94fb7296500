package callgraph

import (
	"github.com/alexisbeaulieu97/weaver/internal/components"
	"github.com/alexisbeaulieu97/weaver/internal/computation"
	"github.com/alexisbeaulieu97/weaver/internal/constructibles"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/framework"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/scopegraph"
	"github.com/alexisbeaulieu97/weaver/internal/usercomponents"
)

// InvocationMode says how a component of a given lifecycle participates in a
// graph.
type InvocationMode int

const (
	// ModeCompute: the component is invoked inside this graph.
	ModeCompute InvocationMode = iota
	// ModeInput: the component's value arrives as an input parameter.
	ModeInput
	// ModeForbidden: the lifecycle is not allowed in this graph.
	ModeForbidden
)

// InvocationRule decides mode and cap per lifecycle. Request graphs compute
// request-scoped and transient components and take singletons as inputs; the
// application-state graph computes singletons only.
type InvocationRule func(usercomponents.Lifecycle) (InvocationLimit, InvocationMode)

// RequestScopedRule is the invocation rule of per-request graphs.
func RequestScopedRule(lifecycle usercomponents.Lifecycle) (InvocationLimit, InvocationMode) {
	switch lifecycle {
	case usercomponents.LifecycleSingleton:
		return InvokeOnce, ModeInput
	case usercomponents.LifecycleTransient:
		return InvokeMultiple, ModeCompute
	default:
		return InvokeOnce, ModeCompute
	}
}

// SingletonRule is the invocation rule of the application-state graph.
func SingletonRule(lifecycle usercomponents.Lifecycle) (InvocationLimit, InvocationMode) {
	if lifecycle == usercomponents.LifecycleSingleton {
		return InvokeOnce, ModeCompute
	}
	return InvokeOnce, ModeForbidden
}

// BuildOptions configure one call-graph construction.
type BuildOptions struct {
	Root components.ID
	// Prebuilt components were initialised by upstream pipeline stages and
	// arrive as inputs.
	Prebuilt []components.ID
	// Observers are invoked on the error path, in declaration order.
	Observers []components.ID
	Rule      InvocationRule
	// WrapResponseSinks rewrites every Response-typed sink through
	// Processing::EarlyReturn; used for pre-processing middleware stages.
	WrapResponseSinks bool
	// ExtraInputs are additional types available as input leaves, e.g. the
	// upstream response handed to a post-processing middleware.
	ExtraInputs []language.Type
}

type builder struct {
	graph          *Graph
	componentDB    *components.DB
	constructibles *constructibles.DB
	sink           *diagnostics.Sink
	scope          scopegraph.ScopeID
	rule           InvocationRule
	observers      []components.ID

	computeNodes map[components.ID]NodeID
	inputNodes   map[string]NodeID
	prebuilt     map[components.ID]struct{}
	// scopedValues short-circuits type resolution while wiring error paths.
	scopedValues map[string]NodeID
	inProgress   []components.ID
}

// Build constructs the call graph realising the root component's inputs. It
// reports false when new diagnostics were emitted.
func Build(
	opts BuildOptions,
	componentDB *components.DB,
	constructibleDB *constructibles.DB,
	sink *diagnostics.Sink,
) (*CallGraph, bool) {
	before := sink.Len()

	b := &builder{
		graph:          NewGraph(),
		componentDB:    componentDB,
		constructibles: constructibleDB,
		sink:           sink,
		scope:          componentDB.Scope(opts.Root),
		rule:           opts.Rule,
		observers:      opts.Observers,
		computeNodes:   make(map[components.ID]NodeID),
		inputNodes:     make(map[string]NodeID),
		prebuilt:       make(map[components.ID]struct{}),
		scopedValues:   make(map[string]NodeID),
	}
	for _, id := range opts.Prebuilt {
		b.prebuilt[id] = struct{}{}
	}
	for _, t := range opts.ExtraInputs {
		b.inputNode(t, nil)
	}

	root := b.addComponent(opts.Root, true)

	graph := &CallGraph{
		Graph:         b.graph,
		Root:          root,
		RootScope:     b.scope,
		RootComponent: opts.Root,
	}

	if opts.WrapResponseSinks {
		b.wrapResponseSinks(graph)
	}

	return graph, sink.Len() == before
}

// addComponent adds (or reuses) the node computing the component and returns
// the node producing its usable value: the Ok branch for fallibles, the last
// transformer when transformers are registered.
func (b *builder) addComponent(id components.ID, isRoot bool) NodeID {
	if _, ok := b.prebuilt[id]; ok {
		return b.inputNode(b.componentDB.OutputType(id), &id)
	}

	// Asking for a match branch means asking for its fallible source: the
	// branch only exists downstream of the fallible invocation.
	if fallible, ok := b.componentDB.FallibleOf(id); ok {
		return b.addComponent(fallible, false)
	}

	// Prebuilt and config values are never computed: the caller supplies
	// them (process arguments, the application config).
	if _, isPrebuilt := b.componentDB.Computation(id).(computation.PrebuiltType); isPrebuilt {
		return b.inputNode(b.componentDB.OutputType(id), &id)
	}

	limit, mode := b.rule(b.componentDB.Lifecycle(id))
	if !isRoot {
		switch mode {
		case ModeInput:
			return b.valueInputNode(id)
		case ModeForbidden:
			b.reportForbiddenLifecycle(id)
			return b.valueInputNode(id)
		}
	}

	for _, pending := range b.inProgress {
		if pending == id {
			b.reportCycle(id)
			return b.inputNode(b.componentDB.OutputType(id), &id)
		}
	}

	if limit == InvokeOnce {
		if node, ok := b.computeNodes[id]; ok {
			return b.produceNodeOf(node, id)
		}
	}

	b.inProgress = append(b.inProgress, id)
	defer func() { b.inProgress = b.inProgress[:len(b.inProgress)-1] }()

	node := b.graph.AddNode(ComputeNode{Component: id, Invocations: limit})
	if limit == InvokeOnce {
		b.computeNodes[id] = node
	}

	for _, input := range b.componentDB.InputTypes(id) {
		dep, ok := b.resolveInput(input, id)
		if !ok {
			continue
		}
		b.graph.UpdateEdge(dep, node, edgeKindFor(input))
	}

	return b.finishComponent(node, id)
}

// finishComponent wires match branches, error handling, and transformers
// around a freshly added compute node.
func (b *builder) finishComponent(node NodeID, id components.ID) NodeID {
	produce := node

	okID, errID, fallible := b.componentDB.MatchBranches(id)
	if fallible {
		branch := b.graph.AddNode(BranchNode{})
		b.graph.UpdateEdge(node, branch, EdgeMove)

		limit := invocationsOf(b.graph.Node(node))
		okNode := b.graph.AddNode(ComputeNode{Component: okID, Invocations: limit})
		b.graph.UpdateEdge(branch, okNode, EdgeMove)
		errNode := b.graph.AddNode(ComputeNode{Component: errID, Invocations: limit})
		b.graph.UpdateEdge(branch, errNode, EdgeMove)
		if limit == InvokeOnce {
			b.computeNodes[okID] = okNode
			b.computeNodes[errID] = errNode
		}

		b.wireErrorPath(id, errID, errNode)
		produce = b.chainTransformers(okNode, id)
	} else {
		produce = b.chainTransformers(node, id)
	}
	return produce
}

// produceNodeOf recovers the value-producing node of an already-added
// component: its Ok branch or final transformer, when present.
func (b *builder) produceNodeOf(node NodeID, id components.ID) NodeID {
	produce := node
	if okID, _, fallible := b.componentDB.MatchBranches(id); fallible {
		if okNode, ok := b.computeNodes[okID]; ok {
			produce = okNode
		}
	}
	for _, transformer := range b.componentDB.Transformers(id) {
		if tNode, ok := b.computeNodes[transformer]; ok {
			produce = tNode
		}
	}
	return produce
}

// chainTransformers appends the transformers registered against the
// component, in order, and returns the final producing node.
func (b *builder) chainTransformers(node NodeID, id components.ID) NodeID {
	current := node
	currentType := b.nodeOutputType(current)
	for _, transformer := range b.componentDB.Transformers(id) {
		tNode := b.graph.AddNode(ComputeNode{Component: transformer, Invocations: InvokeOnce})
		b.computeNodes[transformer] = tNode
		primaryWired := false
		for _, input := range b.componentDB.InputTypes(transformer) {
			if !primaryWired && currentType != nil && sameValueType(input, currentType) {
				b.graph.UpdateEdge(current, tNode, edgeKindFor(input))
				primaryWired = true
				continue
			}
			dep, ok := b.resolveInput(input, transformer)
			if !ok {
				continue
			}
			b.graph.UpdateEdge(dep, tNode, edgeKindFor(input))
		}
		if !primaryWired {
			b.graph.UpdateEdge(current, tNode, EdgeMove)
		}
		// Transformers can themselves be transformed (e.g. an error-variant
		// constructor wrapped in Err).
		current = b.chainTransformers(tNode, transformer)
		currentType = b.nodeOutputType(current)
	}
	return current
}

// wireErrorPath connects the Err branch to its error handler (when any) and
// threads the error observers with happens-before edges.
func (b *builder) wireErrorPath(fallibleID, errID components.ID, errNode NodeID) {
	errProduce := b.chainTransformers(errNode, errID)
	errType := b.nodeOutputType(errProduce)

	handlerID, hasHandler := b.componentDB.ErrorHandlerFor(fallibleID)

	var handlerNode NodeID
	if hasHandler {
		handlerNode = b.withScopedValue(errType, errProduce, func() NodeID {
			return b.addComponent(handlerID, false)
		})
	} else if b.errorFallbackDenied(fallibleID) {
		userDB := b.componentDB.UserDB()
		builder := diagnostics.NewWarning(
			"the error path of this fallible component falls back to the default error response",
		)
		if userID, ok := b.componentDB.UserComponentID(fallibleID); ok {
			builder = builder.PrimaryLocation(userDB.Location(userID), "registered here")
		}
		b.sink.Push(builder.
			Help("attach an error handler, or silence the error_fallback lint").
			Build())
	}

	// Observers run before the error-path sink, in declaration order.
	previous := NodeID(-1)
	for _, observerID := range b.observers {
		observerNode := b.withScopedValue(errType, errProduce, func() NodeID {
			return b.addComponent(observerID, false)
		})
		if previous >= 0 {
			b.graph.UpdateEdge(previous, observerNode, EdgeHappensBefore)
		}
		previous = observerNode
	}
	if previous >= 0 && hasHandler {
		b.graph.UpdateEdge(previous, handlerNode, EdgeHappensBefore)
	}
}

// withScopedValue makes a value (typically the error) resolvable by type
// while fn runs.
func (b *builder) withScopedValue(t language.Type, node NodeID, fn func() NodeID) NodeID {
	if t == nil {
		return fn()
	}
	key := t.Key()
	prev, had := b.scopedValues[key]
	b.scopedValues[key] = node
	defer func() {
		if had {
			b.scopedValues[key] = prev
		} else {
			delete(b.scopedValues, key)
		}
	}()
	return fn()
}

// resolveInput returns the node producing a value of the requested type.
func (b *builder) resolveInput(input language.Type, requester components.ID) (NodeID, bool) {
	valueType := input
	if ref, ok := input.(language.Reference); ok {
		valueType = ref.Inner
	}
	key := valueType.Key()

	if node, ok := b.scopedValues[key]; ok {
		return node, true
	}
	if node, ok := b.inputNodes[key]; ok {
		return node, true
	}

	if id, ok := b.constructibles.Get(b.scope, valueType); ok {
		return b.addComponent(id, false), true
	}

	if framework.IsInputLeaf(valueType) || framework.IsNextType(valueType) {
		return b.inputNode(valueType, nil), true
	}

	b.reportMissingConstructor(valueType, requester)
	return 0, false
}

// valueInputNode produces the input leaf carrying a component's usable
// value: the Ok half for fallible components.
func (b *builder) valueInputNode(id components.ID) NodeID {
	target := id
	if okID, _, fallible := b.componentDB.MatchBranches(id); fallible {
		target = okID
	}
	return b.inputNode(b.componentDB.OutputType(target), &target)
}

func (b *builder) inputNode(t language.Type, component *components.ID) NodeID {
	if t == nil {
		t = language.Unit()
	}
	key := t.Key()
	if node, ok := b.inputNodes[key]; ok {
		return node
	}
	var owned *components.ID
	if component != nil {
		id := *component
		owned = &id
	}
	node := b.graph.AddNode(InputNode{Type: t, Component: owned})
	b.inputNodes[key] = node
	return node
}

func (b *builder) nodeOutputType(id NodeID) language.Type {
	switch n := b.graph.Node(id).(type) {
	case ComputeNode:
		return b.componentDB.OutputType(n.Component)
	case InputNode:
		return n.Type
	default:
		return nil
	}
}

// wrapResponseSinks rewrites every Response-typed sink through
// Processing::EarlyReturn so the stage's output is uniformly Processing.
func (b *builder) wrapResponseSinks(graph *CallGraph) {
	responseKey := framework.Response().Key()
	for _, sinkNode := range b.graph.Sinks() {
		output := b.nodeOutputType(sinkNode)
		if output == nil || output.Key() != responseKey {
			continue
		}
		origin := graph.RootComponent
		if compute, ok := b.graph.Node(sinkNode).(ComputeNode); ok {
			origin = compute.Component
		}
		wrapID := b.componentDB.GetOrInternDetachedTransformer(
			computation.Callable{Callable: framework.EarlyReturnWrapper()},
			origin,
			"early_return",
		)
		wrapNode := b.graph.AddNode(ComputeNode{Component: wrapID, Invocations: InvokeOnce})
		b.graph.UpdateEdge(sinkNode, wrapNode, EdgeMove)
		if sinkNode == graph.Root {
			graph.Root = wrapNode
		}
	}
}

func (b *builder) errorFallbackDenied(id components.ID) bool {
	userID, ok := b.componentDB.UserComponentID(id)
	if !ok {
		return false
	}
	override, ok := b.componentDB.UserDB().LintOverride(userID, usercomponents.LintErrorFallback)
	if !ok {
		// The lint warns by default only when the blueprint asked for it.
		return false
	}
	return override == "deny"
}

func (b *builder) reportMissingConstructor(t language.Type, requester components.ID) {
	userDB := b.componentDB.UserDB()
	builder := diagnostics.NewError(
		"I can't find a constructor for `%s`",
		language.Display(t),
	)
	if userID, ok := b.componentDB.UserComponentID(requester); ok {
		builder = builder.PrimaryLocation(
			userDB.Location(userID),
			"needed by the "+userDB.Get(userID).Kind.String()+" registered here",
		)
	}
	b.sink.Push(builder.
		Help("register a constructor for `%s`, or move an existing one to a scope visible from here", language.Display(t)).
		Build())
}

func (b *builder) reportCycle(id components.ID) {
	userDB := b.componentDB.UserDB()
	builder := diagnostics.NewError("the dependency graph of `%s` is cyclic", b.describe(id))
	if userID, ok := b.componentDB.UserComponentID(id); ok {
		builder = builder.PrimaryLocation(userDB.Location(userID), "cycle entered here")
	}
	for _, pending := range b.inProgress {
		if pending == id {
			continue
		}
		if userID, ok := b.componentDB.UserComponentID(pending); ok {
			builder = builder.SecondaryLocation(userDB.Location(userID), "part of the cycle")
		}
	}
	b.sink.Push(builder.
		Help("break the cycle by borrowing instead of consuming, or by splitting a constructor").
		Build())
}

func (b *builder) reportForbiddenLifecycle(id components.ID) {
	userDB := b.componentDB.UserDB()
	builder := diagnostics.NewError(
		"singletons can't depend on `%s`: its lifecycle is %s",
		b.describe(id), b.componentDB.Lifecycle(id),
	)
	if userID, ok := b.componentDB.UserComponentID(id); ok {
		builder = builder.PrimaryLocation(userDB.Location(userID), "registered here")
	}
	b.sink.Push(builder.
		Help("promote the dependency to a singleton, or stop consuming it at startup").
		Build())
}

func (b *builder) describe(id components.ID) string {
	if output := b.componentDB.OutputType(id); output != nil {
		return language.Display(output)
	}
	return b.componentDB.Kind(id).String()
}

func invocationsOf(n Node) InvocationLimit {
	if compute, ok := n.(ComputeNode); ok {
		return compute.Invocations
	}
	return InvokeOnce
}

func edgeKindFor(input language.Type) EdgeKind {
	if ref, ok := input.(language.Reference); ok {
		if ref.Mutable {
			return EdgeExclusiveBorrow
		}
		return EdgeSharedBorrow
	}
	return EdgeMove
}

func sameValueType(input, produced language.Type) bool {
	valueType := input
	if ref, ok := input.(language.Reference); ok {
		valueType = ref.Inner
	}
	return valueType.Key() == produced.Key()
}
