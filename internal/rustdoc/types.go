// Package rustdoc holds the hydrated form of the rustdoc-JSON collaborator's
// output: per-crate item indexes, canonical import paths, trait impls, and the
// registry of macro-emitted annotations.
//
// The compiler core never parses attributes or fetches documentation itself;
// everything here is materialised in memory before the first pass runs.
package rustdoc

import (
	"fmt"
	"sort"

	"github.com/alexisbeaulieu97/weaver/internal/language"
)

// PackageID identifies a package in the dependency graph.
type PackageID string

// ItemID is a crate-local rustdoc item id.
type ItemID string

// ItemKind classifies an item in the index.
type ItemKind string

const (
	KindFunction ItemKind = "function"
	KindMethod   ItemKind = "method"
	KindStruct   ItemKind = "struct"
	KindEnum     ItemKind = "enum"
	KindModule   ItemKind = "module"
	KindTrait    ItemKind = "trait"
)

// Signature is the resolved signature of a function or method.
type Signature struct {
	IsAsync        bool
	TakesSelfAsRef bool
	Inputs         []language.Type
	// Output is nil for unit-returning callables.
	Output language.Type
	// SelfType is the `impl Self` type for methods.
	SelfType language.Type
}

// Field is a named struct field, in declaration order.
type Field struct {
	Name string
	Type language.Type
	// Default carries a literal expression when the field has a default that
	// the emitter should fill in instead of taking an input.
	Default string
}

// Item is a single entry in a crate's item index.
type Item struct {
	ID         ItemID
	Kind       ItemKind
	Name       string
	Path       []string
	Visibility string
	Signature  *Signature
	Fields     []Field
}

// TraitImpl records that a trait is implemented for a type. The For type may
// contain unassigned generics (a blanket or generic impl).
type TraitImpl struct {
	Trait string
	For   language.Type
}

// Crate is the hydrated record for one package.
type Crate struct {
	PackageID      PackageID
	RootItemID     ItemID
	FormatVersion  int
	ExternalCrates []string
	Items          map[ItemID]*Item
	TraitImpls     []TraitImpl
}

// Coordinates address an annotated item: crate, item, optional impl block.
type Coordinates struct {
	Package PackageID
	Item    ItemID
	Impl    ItemID
}

func (c Coordinates) String() string {
	if c.Impl != "" {
		return fmt.Sprintf("%s::%s@%s", c.Package, c.Item, c.Impl)
	}
	return fmt.Sprintf("%s::%s", c.Package, c.Item)
}

// AnnotationKind mirrors the macro that emitted the annotation.
type AnnotationKind string

const (
	AnnotationConstructor       AnnotationKind = "constructor"
	AnnotationConfig            AnnotationKind = "config"
	AnnotationPrebuilt          AnnotationKind = "prebuilt"
	AnnotationRequestHandler    AnnotationKind = "request_handler"
	AnnotationFallback          AnnotationKind = "fallback"
	AnnotationWrappingMW        AnnotationKind = "wrapping_middleware"
	AnnotationPreProcessingMW   AnnotationKind = "pre_processing_middleware"
	AnnotationPostProcessingMW  AnnotationKind = "post_processing_middleware"
	AnnotationErrorHandler      AnnotationKind = "error_handler"
	AnnotationErrorObserver     AnnotationKind = "error_observer"
)

// RouteAnnotation carries the method and path of a request-handler annotation.
type RouteAnnotation struct {
	Method string
	Path   string
}

// ConfigAnnotation carries the properties of a `#[config]` annotation.
type ConfigAnnotation struct {
	Key             string
	DefaultIfMissing bool
	IncludeIfUnused bool
}

// Annotation is a parsed macro attribute, as delivered by the collaborator.
// The core never parses attribute text.
type Annotation struct {
	Kind          AnnotationKind
	Lifecycle     string
	CloningPolicy string
	Route         *RouteAnnotation
	Config        *ConfigAnnotation
	Lints         map[string]string
	AllowErrorFallback bool
}

// Collection is the full set of hydrated crates plus the annotation registry.
type Collection struct {
	crates      map[PackageID]*Crate
	annotations map[string]*Annotation
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{
		crates:      make(map[PackageID]*Crate),
		annotations: make(map[string]*Annotation),
	}
}

// AddCrate registers a hydrated crate.
func (c *Collection) AddCrate(crate *Crate) {
	c.crates[crate.PackageID] = crate
}

// AddAnnotation registers a parsed annotation under its coordinates.
func (c *Collection) AddAnnotation(pkg PackageID, item ItemID, a *Annotation) {
	c.annotations[annotationKey(pkg, item)] = a
}

// Crate returns the hydrated record for a package.
func (c *Collection) Crate(pkg PackageID) (*Crate, bool) {
	crate, ok := c.crates[pkg]
	return crate, ok
}

// Item looks up an item by coordinates.
func (c *Collection) Item(pkg PackageID, id ItemID) (*Item, bool) {
	crate, ok := c.crates[pkg]
	if !ok {
		return nil, false
	}
	item, ok := crate.Items[id]
	return item, ok
}

// Annotation returns the parsed annotation registered at the coordinates.
func (c *Collection) Annotation(pkg PackageID, item ItemID) (*Annotation, bool) {
	a, ok := c.annotations[annotationKey(pkg, item)]
	return a, ok
}

// ImplementsTrait reports whether the given type has an impl of the named
// trait in its defining crate. Generic impls are matched by unification, so
// `impl<T> Clone for Wrapper<T>` covers `Wrapper<u8>`.
func (c *Collection) ImplementsTrait(t language.Type, trait string) bool {
	path, ok := t.(language.Path)
	if !ok {
		// Scalars are Copy and Clone, and so are shared references. Other
		// non-path types (tuples, slices, generics) report no trait.
		switch tt := t.(type) {
		case language.Scalar:
			return trait == "Copy" || trait == "Clone"
		case language.Reference:
			return !tt.Mutable && (trait == "Copy" || trait == "Clone")
		default:
			return false
		}
	}
	crate, ok := c.crates[PackageID(path.PackageID)]
	if !ok {
		return false
	}
	for _, impl := range crate.TraitImpls {
		if impl.Trait != trait {
			continue
		}
		if _, ok := language.Unify(impl.For, t); ok {
			return true
		}
	}
	return false
}

func annotationKey(pkg PackageID, item ItemID) string {
	return string(pkg) + "\x00" + string(item)
}

// Crates returns every hydrated crate, ordered by package id.
func (c *Collection) Crates() []*Crate {
	ids := make([]string, 0, len(c.crates))
	for id := range c.crates {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	out := make([]*Crate, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.crates[PackageID(id)])
	}
	return out
}
