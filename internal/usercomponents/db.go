package usercomponents

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/weaver/internal/blueprint"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/framework"
	"github.com/alexisbeaulieu97/weaver/internal/interner"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/router"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
	"github.com/alexisbeaulieu97/weaver/internal/scopegraph"
)

// Resolved is the outcome of annotation resolution for one component: either
// a callable or a type-valued component, plus the merged annotation.
type Resolved struct {
	Callable   *language.Callable
	Type       language.Type
	Annotation *rustdoc.Annotation
}

// DB is the canonical record of every user-declared component.
type DB struct {
	components *interner.Interner[UserComponent]
	scopeGraph *scopegraph.ScopeGraph

	lifecycles map[ID]Lifecycle
	cloning    map[ID]CloningPolicy
	locations  map[ID]diagnostics.Location
	lints      map[ID]map[string]string

	explicitLifecycle map[ID]bool
	explicitCloning   map[ID]bool

	configKeys     map[ID]string
	configDefaults map[ID]DefaultStrategy
	configInclude  map[ID]bool
	invalidConfigs map[ID]bool

	handlerMiddlewares map[ID][]ID
	handlerObservers   map[ID][]ID

	fallbackPrefixes map[ID]string
	fallbackDomains  map[ID]string

	routes *router.Router

	resolved map[ID]*Resolved
}

// ingestion carries the mutable state of the depth-first blueprint walk.
type ingestion struct {
	db      *DB
	builder *scopegraph.Builder
	docs    *rustdoc.Collection
	sink    *diagnostics.Sink
	file    string

	routeEntries    []router.RouteEntry
	fallbackEntries []router.FallbackEntry
}

// Build ingests the blueprint tree depth-first and assembles the user-level
// router. User mistakes are reported to the sink; internal invariant
// violations panic.
func Build(bp *blueprint.Blueprint, docs *rustdoc.Collection, sink *diagnostics.Sink) *DB {
	db := &DB{
		components:         interner.New[UserComponent](),
		lifecycles:         make(map[ID]Lifecycle),
		cloning:            make(map[ID]CloningPolicy),
		locations:          make(map[ID]diagnostics.Location),
		lints:              make(map[ID]map[string]string),
		explicitLifecycle:  make(map[ID]bool),
		explicitCloning:    make(map[ID]bool),
		configKeys:         make(map[ID]string),
		configDefaults:     make(map[ID]DefaultStrategy),
		configInclude:      make(map[ID]bool),
		invalidConfigs:     make(map[ID]bool),
		handlerMiddlewares: make(map[ID][]ID),
		handlerObservers:   make(map[ID][]ID),
		fallbackPrefixes:   make(map[ID]string),
		fallbackDomains:    make(map[ID]string),
		resolved:           make(map[ID]*Resolved),
	}

	in := &ingestion{
		db:      db,
		builder: scopegraph.NewBuilder(bp.Location()),
		docs:    docs,
		sink:    sink,
		file:    bp.File(),
	}

	in.walk(bp, scopegraph.Root, "", "", nil, nil, nil, nil)

	db.scopeGraph = in.builder.Build()

	defaultFallback := in.defaultFallbackID()
	db.routes = router.Build(in.routeEntries, in.fallbackEntries, int(defaultFallback), sink)

	db.mustBeCoherent()
	return db
}

func (in *ingestion) walk(
	bp *blueprint.Blueprint,
	scope scopegraph.ScopeID,
	prefix, domain string,
	wrapping, pre, post, observers []ID,
) {
	prefix = joinPrefix(prefix, bp.Prefix)
	if bp.Domain != "" {
		domain = bp.Domain
	}

	for _, reg := range bp.Registrations {
		loc := reg.Location(in.file)
		switch reg.Kind {
		case blueprint.KindConstructor:
			id := in.registerConstructor(reg, scope, loc)
			in.attachErrorHandler(reg, id, scope, loc)
		case blueprint.KindConfig:
			in.registerConfig(reg, scope, loc)
		case blueprint.KindPrebuilt:
			in.registerPrebuilt(reg, scope, loc)
		case blueprint.KindRoute:
			in.registerRoute(reg, scope, prefix, domain, loc, wrapping, pre, post, observers)
		case blueprint.KindFallback:
			in.registerFallback(coordinatesOf(reg), scope, prefix, domain, loc)
		case blueprint.KindWrappingMW:
			id := in.registerMiddleware(reg, KindWrappingMiddleware, scope, loc)
			wrapping = append(wrapping, id)
		case blueprint.KindPreProcessingMW:
			id := in.registerMiddleware(reg, KindPreProcessingMiddleware, scope, loc)
			pre = append(pre, id)
		case blueprint.KindPostProcessingMW:
			id := in.registerMiddleware(reg, KindPostProcessingMiddleware, scope, loc)
			post = append(post, id)
		case blueprint.KindErrorObserver:
			id := in.intern(UserComponent{
				Kind:        KindErrorObserver,
				Coordinates: coordinatesOf(reg),
				Scope:       scope,
			}, LifecycleRequestScoped, loc, reg.Lints)
			observers = append(observers, id)
		case blueprint.KindImport:
			wrapping, pre, post, observers = in.harvestImports(
				reg, scope, prefix, domain, loc, wrapping, pre, post, observers,
			)
		}
	}

	for _, nested := range bp.Nested {
		nestedLoc := nested.Location()
		childScope := in.builder.AddScope(scope, &nestedLoc)
		in.walk(nested, childScope, prefix, domain, wrapping, pre, post, observers)
	}
}

func (in *ingestion) registerConstructor(reg *blueprint.Registration, scope scopegraph.ScopeID, loc diagnostics.Location) ID {
	id := in.intern(UserComponent{
		Kind:        KindConstructor,
		Coordinates: coordinatesOf(reg),
		Scope:       scope,
	}, parseLifecycle(reg.Lifecycle, LifecycleRequestScoped), loc, reg.Lints)
	in.db.cloning[id] = parseCloning(reg.Cloning, CloneNever)
	in.db.explicitLifecycle[id] = reg.Lifecycle != ""
	in.db.explicitCloning[id] = reg.Cloning != ""
	return id
}

func (in *ingestion) registerConfig(reg *blueprint.Registration, scope scopegraph.ScopeID, loc diagnostics.Location) {
	id := in.intern(UserComponent{
		Kind:        KindConfigType,
		Coordinates: coordinatesOf(reg),
		Scope:       scope,
	}, LifecycleSingleton, loc, reg.Lints)
	// Config values are handed out by value from the application config, so
	// they default to permissive cloning.
	in.db.cloning[id] = parseCloning(reg.Cloning, CloneIfNecessary)
	in.db.explicitCloning[id] = reg.Cloning != ""
	in.db.configKeys[id] = reg.Key
	if reg.DefaultIfMissing {
		in.db.configDefaults[id] = DefaultIfMissing
	} else {
		in.db.configDefaults[id] = DefaultRequired
	}
	in.db.configInclude[id] = reg.IncludeIfUnused
}

func (in *ingestion) registerPrebuilt(reg *blueprint.Registration, scope scopegraph.ScopeID, loc diagnostics.Location) {
	id := in.intern(UserComponent{
		Kind:        KindPrebuiltType,
		Coordinates: coordinatesOf(reg),
		Scope:       scope,
	}, LifecycleSingleton, loc, reg.Lints)
	in.db.cloning[id] = parseCloning(reg.Cloning, CloneNever)
	in.db.explicitCloning[id] = reg.Cloning != ""
}

func (in *ingestion) registerRoute(
	reg *blueprint.Registration,
	scope scopegraph.ScopeID,
	prefix, domain string,
	loc diagnostics.Location,
	wrapping, pre, post, observers []ID,
) {
	handlerScope := in.builder.AddScope(scope, nil)
	key := &RouterKey{
		Method: strings.ToUpper(reg.Method),
		Path:   joinPrefix(prefix, reg.Path),
		Domain: domain,
	}
	id := in.intern(UserComponent{
		Kind:        KindRequestHandler,
		Coordinates: coordinatesOf(reg),
		Scope:       handlerScope,
		RouterKey:   key,
	}, LifecycleRequestScoped, loc, reg.Lints)

	middlewares := make([]ID, 0, len(wrapping)+len(pre)+len(post))
	middlewares = append(middlewares, wrapping...)
	middlewares = append(middlewares, pre...)
	middlewares = append(middlewares, post...)
	in.db.handlerMiddlewares[id] = middlewares
	in.db.handlerObservers[id] = append([]ID(nil), observers...)

	in.routeEntries = append(in.routeEntries, router.RouteEntry{
		HandlerID: int(id),
		Method:    key.Method,
		Path:      key.Path,
		Domain:    domain,
		Location:  loc,
	})

	in.attachErrorHandler(reg, id, handlerScope, loc)
}

func (in *ingestion) registerFallback(
	coords rustdoc.Coordinates,
	scope scopegraph.ScopeID,
	prefix, domain string,
	loc diagnostics.Location,
) ID {
	id := in.intern(UserComponent{
		Kind:        KindFallback,
		Coordinates: coords,
		Scope:       scope,
	}, LifecycleRequestScoped, loc, nil)
	in.db.fallbackPrefixes[id] = prefix
	in.db.fallbackDomains[id] = domain
	in.fallbackEntries = append(in.fallbackEntries, router.FallbackEntry{
		FallbackID: int(id),
		PathPrefix: prefix,
		Domain:     domain,
		Location:   loc,
	})
	return id
}

func (in *ingestion) registerMiddleware(
	reg *blueprint.Registration,
	kind Kind,
	scope scopegraph.ScopeID,
	loc diagnostics.Location,
) ID {
	mwScope := in.builder.AddScope(scope, nil)
	id := in.intern(UserComponent{
		Kind:        kind,
		Coordinates: coordinatesOf(reg),
		Scope:       mwScope,
	}, LifecycleRequestScoped, loc, reg.Lints)
	in.attachErrorHandler(reg, id, mwScope, loc)
	return id
}

func (in *ingestion) attachErrorHandler(reg *blueprint.Registration, fallible ID, scope scopegraph.ScopeID, loc diagnostics.Location) {
	if reg.ErrorHandler == nil {
		return
	}
	in.intern(UserComponent{
		Kind: KindErrorHandler,
		Coordinates: rustdoc.Coordinates{
			Package: rustdoc.PackageID(reg.ErrorHandler.Crate),
			Item:    rustdoc.ItemID(reg.ErrorHandler.Item),
			Impl:    rustdoc.ItemID(reg.ErrorHandler.Impl),
		},
		Scope:      scope,
		FallibleID: fallible,
	}, LifecycleRequestScoped, loc, nil)
}

// harvestImports walks the rustdoc index for every module named by an import
// registration and registers each annotated item as if it had been declared
// inline.
func (in *ingestion) harvestImports(
	reg *blueprint.Registration,
	scope scopegraph.ScopeID,
	prefix, domain string,
	loc diagnostics.Location,
	wrapping, pre, post, observers []ID,
) ([]ID, []ID, []ID, []ID) {
	for _, module := range reg.Modules {
		found := false
		for _, crate := range in.docs.Crates() {
			itemIDs := make([]string, 0, len(crate.Items))
			for itemID := range crate.Items {
				itemIDs = append(itemIDs, string(itemID))
			}
			sort.Strings(itemIDs)

			for _, itemID := range itemIDs {
				item := crate.Items[rustdoc.ItemID(itemID)]
				if !moduleContains(module, item.Path) {
					continue
				}
				annotation, ok := in.docs.Annotation(crate.PackageID, item.ID)
				if !ok {
					continue
				}
				found = true
				in.registerHarvested(crate.PackageID, item, annotation, scope, prefix, domain, loc, wrapping, pre, post, observers)
			}
		}
		if !found {
			in.sink.Push(
				diagnostics.NewError("import of %q matched no annotated items", module).
					PrimaryLocation(loc, "imported here").
					Help("check the module path and that the items carry a weaver annotation").
					Build(),
			)
		}
	}
	return wrapping, pre, post, observers
}

func (in *ingestion) registerHarvested(
	pkg rustdoc.PackageID,
	item *rustdoc.Item,
	annotation *rustdoc.Annotation,
	scope scopegraph.ScopeID,
	prefix, domain string,
	loc diagnostics.Location,
	wrapping, pre, post, observers []ID,
) {
	coords := rustdoc.Coordinates{Package: pkg, Item: item.ID}
	switch annotation.Kind {
	case rustdoc.AnnotationConstructor:
		id := in.intern(UserComponent{
			Kind:        KindConstructor,
			Coordinates: coords,
			Scope:       scope,
		}, parseLifecycle(annotation.Lifecycle, LifecycleRequestScoped), loc, annotation.Lints)
		in.db.cloning[id] = parseCloning(annotation.CloningPolicy, CloneNever)
	case rustdoc.AnnotationConfig:
		id := in.intern(UserComponent{
			Kind:        KindConfigType,
			Coordinates: coords,
			Scope:       scope,
		}, LifecycleSingleton, loc, annotation.Lints)
		in.db.cloning[id] = parseCloning(annotation.CloningPolicy, CloneIfNecessary)
		if annotation.Config != nil {
			in.db.configKeys[id] = annotation.Config.Key
			if annotation.Config.DefaultIfMissing {
				in.db.configDefaults[id] = DefaultIfMissing
			} else {
				in.db.configDefaults[id] = DefaultRequired
			}
			in.db.configInclude[id] = annotation.Config.IncludeIfUnused
		} else {
			in.db.configDefaults[id] = DefaultRequired
		}
	case rustdoc.AnnotationPrebuilt:
		id := in.intern(UserComponent{
			Kind:        KindPrebuiltType,
			Coordinates: coords,
			Scope:       scope,
		}, LifecycleSingleton, loc, annotation.Lints)
		in.db.cloning[id] = parseCloning(annotation.CloningPolicy, CloneNever)
	case rustdoc.AnnotationRequestHandler:
		if annotation.Route == nil {
			in.sink.Push(
				diagnostics.NewError("request handler %s carries no route in its annotation", coords).
					PrimaryLocation(loc, "imported here").
					Build(),
			)
			return
		}
		route := &blueprint.Registration{
			Kind:   blueprint.KindRoute,
			Method: annotation.Route.Method,
			Path:   annotation.Route.Path,
			Coordinates: &blueprint.Coordinates{
				Crate: string(pkg),
				Item:  string(item.ID),
			},
			Lints: annotation.Lints,
		}
		in.registerRoute(route, scope, prefix, domain, loc, wrapping, pre, post, observers)
	case rustdoc.AnnotationFallback:
		in.registerFallback(coords, scope, prefix, domain, loc)
	default:
		in.sink.Push(
			diagnostics.NewError(
				"items annotated as %s cannot be harvested via an import; register them explicitly",
				annotation.Kind,
			).
				PrimaryLocation(loc, "imported here").
				Build(),
		)
	}
}

// defaultFallbackID returns the root fallback to use when the user registered
// none, interning the framework's own 404 handler on demand.
func (in *ingestion) defaultFallbackID() ID {
	for _, f := range in.fallbackEntries {
		if f.Domain == "" && (f.PathPrefix == "" || f.PathPrefix == "/") {
			return ID(f.FallbackID)
		}
	}
	id := in.intern(UserComponent{
		Kind:        KindFallback,
		Coordinates: framework.DefaultFallbackCoordinates,
		Scope:       scopegraph.Root,
	}, LifecycleRequestScoped, diagnostics.Location{File: in.file, Line: 1, Column: 1}, nil)
	in.db.fallbackPrefixes[id] = ""
	in.db.fallbackDomains[id] = ""
	return id
}

func (in *ingestion) intern(c UserComponent, lifecycle Lifecycle, loc diagnostics.Location, lints map[string]string) ID {
	id := ID(in.db.components.GetOrIntern(c))
	if _, seen := in.db.locations[id]; seen {
		return id
	}
	in.db.lifecycles[id] = lifecycle
	in.db.locations[id] = loc
	if len(lints) > 0 {
		overrides := make(map[string]string, len(lints))
		for k, v := range lints {
			overrides[k] = v
		}
		in.db.lints[id] = overrides
	}
	if c.Kind == KindRequestHandler {
		if _, ok := in.db.handlerMiddlewares[id]; !ok {
			in.db.handlerMiddlewares[id] = []ID{}
		}
		if _, ok := in.db.handlerObservers[id]; !ok {
			in.db.handlerObservers[id] = []ID{}
		}
	}
	return id
}

func coordinatesOf(reg *blueprint.Registration) rustdoc.Coordinates {
	if reg.Coordinates == nil {
		return rustdoc.Coordinates{}
	}
	return rustdoc.Coordinates{
		Package: rustdoc.PackageID(reg.Coordinates.Crate),
		Item:    rustdoc.ItemID(reg.Coordinates.Item),
		Impl:    rustdoc.ItemID(reg.Coordinates.Impl),
	}
}

func parseLifecycle(raw string, fallback Lifecycle) Lifecycle {
	switch raw {
	case blueprint.LifecycleSingleton:
		return LifecycleSingleton
	case blueprint.LifecycleRequestScoped:
		return LifecycleRequestScoped
	case blueprint.LifecycleTransient:
		return LifecycleTransient
	default:
		return fallback
	}
}

func parseCloning(raw string, fallback CloningPolicy) CloningPolicy {
	switch raw {
	case blueprint.CloningNever:
		return CloneNever
	case blueprint.CloningIfNecessary:
		return CloneIfNecessary
	default:
		return fallback
	}
}

func joinPrefix(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if path == "" {
		return prefix
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}

// mustBeCoherent checks the structural invariants of the database and panics
// on violation: these can only be produced by a bug in ingestion, never by
// user input.
func (db *DB) mustBeCoherent() {
	for _, id := range db.IDs() {
		c := db.Get(id)
		if _, ok := db.lifecycles[id]; !ok {
			panic(fmt.Sprintf("user component %d (%s) has no lifecycle", id, c.Kind))
		}
		if _, ok := db.locations[id]; !ok {
			panic(fmt.Sprintf("user component %d (%s) has no registration site", id, c.Kind))
		}
		switch c.Kind {
		case KindConstructor, KindConfigType, KindPrebuiltType:
			if _, ok := db.cloning[id]; !ok {
				panic(fmt.Sprintf("user component %d (%s) has no cloning policy", id, c.Kind))
			}
		}
		if c.Kind == KindConfigType {
			if _, ok := db.configDefaults[id]; !ok {
				panic(fmt.Sprintf("config component %d has no default strategy", id))
			}
		}
		if c.Kind == KindRequestHandler {
			if _, ok := db.handlerMiddlewares[id]; !ok {
				panic(fmt.Sprintf("request handler %d has no middleware list", id))
			}
			if _, ok := db.handlerObservers[id]; !ok {
				panic(fmt.Sprintf("request handler %d has no observer list", id))
			}
		}
		if c.Kind == KindFallback {
			if _, ok := db.fallbackPrefixes[id]; !ok {
				panic(fmt.Sprintf("fallback %d has no path prefix", id))
			}
			if _, ok := db.fallbackDomains[id]; !ok {
				panic(fmt.Sprintf("fallback %d has no domain", id))
			}
		}
	}
}

func moduleContains(module string, path []string) bool {
	segments := strings.Split(module, "::")
	if len(path) <= len(segments) {
		return false
	}
	for i, segment := range segments {
		if path[i] != segment {
			return false
		}
	}
	return true
}
