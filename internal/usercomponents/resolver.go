package usercomponents

import (
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/framework"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
)

// Resolve matches every registration against the annotation registry, merges
// the annotation's properties into the database, and reconstructs the
// fully-qualified callable (or type) behind each component.
//
// Failures are reported as diagnostics; the affected component stays
// unresolved and later passes skip it.
func Resolve(db *DB, docs *rustdoc.Collection, sink *diagnostics.Sink) {
	for _, id := range db.IDs() {
		resolveComponent(db, docs, sink, id)
	}
	checkConfigUniqueness(db, sink)
}

func resolveComponent(db *DB, docs *rustdoc.Collection, sink *diagnostics.Sink, id ID) {
	c := db.Get(id)
	coords := c.Coordinates

	if coords == framework.DefaultFallbackCoordinates {
		callable := framework.DefaultFallbackCallable()
		db.SetResolved(id, &Resolved{Callable: &callable})
		return
	}

	annotation, ok := docs.Annotation(coords.Package, coords.Item)
	if !ok {
		sink.Push(
			diagnostics.NewError(
				"I can't find an annotation matching the coordinates %s for this %s",
				coords, c.Kind,
			).
				PrimaryLocation(db.Location(id), "registered here").
				Help("re-run the documentation pass, or check that the item carries a weaver attribute").
				Build(),
		)
		return
	}

	if expected := annotationKindFor(c.Kind); !kindCompatible(c.Kind, annotation.Kind) {
		sink.Push(
			diagnostics.NewError(
				"%s is annotated as a %s, but it was registered as a %s",
				coords, annotation.Kind, c.Kind,
			).
				PrimaryLocation(db.Location(id), "registered here").
				Help("the registration kind must match the annotation; expected %s", expected).
				Build(),
		)
		return
	}

	item, ok := docs.Item(coords.Package, coords.Item)
	if !ok {
		sink.Push(
			diagnostics.NewError("the item at %s is missing from the documentation index", coords).
				PrimaryLocation(db.Location(id), "registered here").
				Build(),
		)
		return
	}

	mergeAnnotation(db, id, c, annotation)

	resolved := &Resolved{Annotation: annotation}
	switch c.Kind {
	case KindConfigType, KindPrebuiltType:
		t, ok := resolveTypeComponent(db, sink, id, c, item, coords)
		if !ok {
			return
		}
		resolved.Type = t
	default:
		callable, ok := resolveCallable(db, sink, id, c, item, coords)
		if !ok {
			return
		}
		resolved.Callable = callable
	}
	db.SetResolved(id, resolved)
}

func resolveTypeComponent(
	db *DB,
	sink *diagnostics.Sink,
	id ID,
	c UserComponent,
	item *rustdoc.Item,
	coords rustdoc.Coordinates,
) (language.Type, bool) {
	if item.Kind != rustdoc.KindStruct && item.Kind != rustdoc.KindEnum {
		sink.Push(
			diagnostics.NewError(
				"%s items can't be used as %s components; only structs and enums can",
				item.Kind, c.Kind,
			).
				PrimaryLocation(db.Location(id), "registered here").
				Build(),
		)
		return nil, false
	}
	for _, field := range item.Fields {
		if language.IsReference(field.Type) || language.HasUnassignedGenerics(field.Type) {
			sink.Push(
				diagnostics.NewError(
					"`%s` can't be used as a %s component: field `%s` borrows or is generic",
					language.Display(typeOfItem(coords, item)), c.Kind, field.Name,
				).
					PrimaryLocation(db.Location(id), "registered here").
					Help("%s components must be plain owned types", c.Kind).
					Build(),
			)
			return nil, false
		}
	}
	return typeOfItem(coords, item), true
}

func resolveCallable(
	db *DB,
	sink *diagnostics.Sink,
	id ID,
	c UserComponent,
	item *rustdoc.Item,
	coords rustdoc.Coordinates,
) (*language.Callable, bool) {
	switch item.Kind {
	case rustdoc.KindFunction, rustdoc.KindMethod:
		if item.Signature == nil {
			sink.Push(
				diagnostics.NewError("the documentation index has no signature for %s", coords).
					PrimaryLocation(db.Location(id), "registered here").
					Build(),
			)
			return nil, false
		}
		callable := &language.Callable{
			IsAsync:        item.Signature.IsAsync,
			TakesSelfAsRef: item.Signature.TakesSelfAsRef,
			Path: language.CallPath{
				PackageID: string(coords.Package),
				Segments:  item.Path,
			},
			Inputs: item.Signature.Inputs,
			Output: item.Signature.Output,
		}
		// Middlewares keep a free generic for the next-stage state; the
		// pipeline assembler binds it. Constructors must be inferable from
		// their output alone.
		if c.Kind == KindConstructor && !genericsAreResolvable(callable) {
			sink.Push(
				diagnostics.NewError(
					"I can't infer every generic parameter of `%s` from its output type",
					callable.Path,
				).
					PrimaryLocation(db.Location(id), "registered here").
					Help("add concrete types for the free generic parameters").
					Build(),
			)
			return nil, false
		}
		return callable, true
	case rustdoc.KindStruct:
		// A constructor annotation on a struct means "build it with a
		// struct literal".
		if c.Kind != KindConstructor {
			break
		}
		fields := make([]language.StructField, 0, len(item.Fields))
		inputs := make([]language.Type, 0, len(item.Fields))
		extraDefaults := make(map[string]string)
		for _, f := range item.Fields {
			fields = append(fields, language.StructField{Name: f.Name, Type: f.Type})
			if f.Default != "" {
				extraDefaults[f.Name] = f.Default
				continue
			}
			inputs = append(inputs, f.Type)
		}
		callable := &language.Callable{
			Path: language.CallPath{
				PackageID: string(coords.Package),
				Segments:  item.Path,
			},
			Inputs:     inputs,
			Output:     typeOfItem(coords, item),
			Invocation: language.StructLiteral,
			Fields:     fields,
		}
		if len(extraDefaults) > 0 {
			callable.ExtraDefaults = extraDefaults
		}
		return callable, true
	}
	sink.Push(
		diagnostics.NewError("a %s can't back a %s component", item.Kind, c.Kind).
			PrimaryLocation(db.Location(id), "registered here").
			Build(),
	)
	return nil, false
}

func mergeAnnotation(db *DB, id ID, c UserComponent, annotation *rustdoc.Annotation) {
	if annotation.Lifecycle != "" && !db.LifecycleWasExplicit(id) && c.Kind == KindConstructor {
		db.SetLifecycle(id, parseLifecycle(annotation.Lifecycle, db.Lifecycle(id)))
	}
	if annotation.CloningPolicy != "" && !db.CloningWasExplicit(id) {
		if _, ok := db.CloningPolicy(id); ok {
			db.SetCloningPolicy(id, parseCloning(annotation.CloningPolicy, CloneNever))
		}
	}
	if c.Kind == KindConfigType && annotation.Config != nil {
		if db.ConfigKey(id) == "" {
			db.SetConfigKey(id, annotation.Config.Key)
		}
		if annotation.Config.IncludeIfUnused {
			db.configInclude[id] = true
		}
	}
	db.MergeLints(id, annotation.Lints)
}

// genericsAreResolvable checks that every generic parameter mentioned in the
// inputs also appears in the output, so unification against the requested
// type can bind it.
func genericsAreResolvable(c *language.Callable) bool {
	if c.Output == nil {
		for _, in := range c.Inputs {
			if language.HasUnassignedGenerics(in) {
				return false
			}
		}
		return true
	}
	outputNames := genericNames(c.Output)
	for _, in := range c.Inputs {
		for name := range genericNames(in) {
			if _, ok := outputNames[name]; !ok {
				return false
			}
		}
	}
	return true
}

func genericNames(t language.Type) map[string]struct{} {
	names := make(map[string]struct{})
	var walk func(language.Type)
	walk = func(t language.Type) {
		switch t := t.(type) {
		case language.Generic:
			names[t.Name] = struct{}{}
		case language.Tuple:
			for _, e := range t.Elems {
				walk(e)
			}
		case language.Slice:
			walk(t.Elem)
		case language.Reference:
			walk(t.Inner)
		case language.Path:
			for _, g := range t.Generics {
				if g.Type != nil {
					walk(g.Type)
				}
			}
		}
	}
	walk(t)
	return names
}

func typeOfItem(coords rustdoc.Coordinates, item *rustdoc.Item) language.Type {
	return language.Path{
		PackageID: string(coords.Package),
		ItemID:    string(item.ID),
		Segments:  item.Path,
	}
}

func annotationKindFor(kind Kind) rustdoc.AnnotationKind {
	switch kind {
	case KindConstructor:
		return rustdoc.AnnotationConstructor
	case KindConfigType:
		return rustdoc.AnnotationConfig
	case KindPrebuiltType:
		return rustdoc.AnnotationPrebuilt
	case KindRequestHandler:
		return rustdoc.AnnotationRequestHandler
	case KindFallback:
		return rustdoc.AnnotationFallback
	case KindWrappingMiddleware:
		return rustdoc.AnnotationWrappingMW
	case KindPreProcessingMiddleware:
		return rustdoc.AnnotationPreProcessingMW
	case KindPostProcessingMiddleware:
		return rustdoc.AnnotationPostProcessingMW
	case KindErrorHandler:
		return rustdoc.AnnotationErrorHandler
	case KindErrorObserver:
		return rustdoc.AnnotationErrorObserver
	default:
		return ""
	}
}

func kindCompatible(kind Kind, annotation rustdoc.AnnotationKind) bool {
	if annotationKindFor(kind) == annotation {
		return true
	}
	// A request handler can serve as a fallback.
	if kind == KindFallback && annotation == rustdoc.AnnotationRequestHandler {
		return true
	}
	return false
}

func checkConfigUniqueness(db *DB, sink *diagnostics.Sink) {
	type configRecord struct {
		id  ID
		key string
		t   language.Type
	}
	var configs []configRecord
	for _, id := range db.IDs() {
		if db.Get(id).Kind != KindConfigType {
			continue
		}
		resolved, ok := db.Resolved(id)
		if !ok || resolved.Type == nil {
			continue
		}
		configs = append(configs, configRecord{id: id, key: db.ConfigKey(id), t: resolved.Type})
	}

	byKey := make(map[string]configRecord)
	byType := make(map[string]configRecord)
	for _, c := range configs {
		if prev, ok := byKey[c.key]; ok && prev.t.Key() != c.t.Key() {
			sink.Push(
				diagnostics.NewError(
					"the config key %q is claimed by two different types: `%s` and `%s`",
					c.key, language.Display(prev.t), language.Display(c.t),
				).
					PrimaryLocation(db.Location(c.id), "registered here").
					SecondaryLocation(db.Location(prev.id), "also registered here").
					Help("choose a unique key for each configuration type").
					Build(),
			)
			db.MarkConfigInvalid(c.id)
			db.MarkConfigInvalid(prev.id)
			continue
		}
		byKey[c.key] = c

		if prev, ok := byType[c.t.Key()]; ok && prev.key != c.key {
			sink.Push(
				diagnostics.NewError(
					"`%s` is registered as a config under two different keys: %q and %q",
					language.Display(c.t), prev.key, c.key,
				).
					PrimaryLocation(db.Location(c.id), "registered here").
					SecondaryLocation(db.Location(prev.id), "also registered here").
					Help("register the type once, under a single key").
					Build(),
			)
			db.MarkConfigInvalid(c.id)
			db.MarkConfigInvalid(prev.id)
			continue
		}
		byType[c.t.Key()] = c
	}
}
