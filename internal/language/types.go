// Package language models resolved Rust-like types and callables.
//
// Types are package-id-qualified: two mentions of the same item compare equal
// even when the importing crates renamed the dependency. Types reference each
// other by value, never by pointer, and every shape can produce a canonical
// key suitable for interning.
package language

import (
	"fmt"
	"strings"
)

// Type is the sum of resolved type shapes.
type Type interface {
	// Key returns a canonical encoding: equal keys mean equal types.
	Key() string
	isType()
}

// Scalar is a primitive type (bool, u64, str, ...).
type Scalar struct {
	Name string
}

// Tuple is a tuple type; the empty tuple is the unit type.
type Tuple struct {
	Elems []Type
}

// Slice is a slice type.
type Slice struct {
	Elem Type
}

// Reference is a shared or unique reference with an optional lifetime.
type Reference struct {
	Lifetime string
	Mutable  bool
	Inner    Type
}

// Path is a fully-qualified nominal type with generic arguments.
type Path struct {
	PackageID string
	ItemID    string
	Segments  []string
	Generics  []GenericArgument
}

// Generic is a generic parameter that has not been assigned a concrete type.
type Generic struct {
	Name string
}

// GenericArgument is either a type argument or a lifetime argument.
type GenericArgument struct {
	Type     Type
	Lifetime string
}

func (Scalar) isType()    {}
func (Tuple) isType()     {}
func (Slice) isType()     {}
func (Reference) isType() {}
func (Path) isType()      {}
func (Generic) isType()   {}

func (t Scalar) Key() string { return "s:" + t.Name }

func (t Tuple) Key() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.Key()
	}
	return "t:(" + strings.Join(parts, ",") + ")"
}

func (t Slice) Key() string { return "sl:[" + t.Elem.Key() + "]" }

func (t Reference) Key() string {
	mut := ""
	if t.Mutable {
		mut = "mut "
	}
	return fmt.Sprintf("r:&%s %s%s", t.Lifetime, mut, t.Inner.Key())
}

func (t Path) Key() string {
	var b strings.Builder
	b.WriteString("p:")
	b.WriteString(t.PackageID)
	b.WriteString("::")
	b.WriteString(strings.Join(t.Segments, "::"))
	if len(t.Generics) > 0 {
		b.WriteString("<")
		for i, g := range t.Generics {
			if i > 0 {
				b.WriteString(",")
			}
			if g.Type != nil {
				b.WriteString(g.Type.Key())
			} else {
				b.WriteString("'" + g.Lifetime)
			}
		}
		b.WriteString(">")
	}
	return b.String()
}

func (t Generic) Key() string { return "g:" + t.Name }

// Display renders a type the way a user would write it, without package ids.
func Display(t Type) string {
	switch t := t.(type) {
	case Scalar:
		return t.Name
	case Tuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = Display(e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case Slice:
		return "[" + Display(t.Elem) + "]"
	case Reference:
		prefix := "&"
		if t.Lifetime != "" {
			prefix += "'" + t.Lifetime + " "
		}
		if t.Mutable {
			prefix += "mut "
		}
		return prefix + Display(t.Inner)
	case Path:
		s := strings.Join(t.Segments, "::")
		if len(t.Generics) > 0 {
			parts := make([]string, len(t.Generics))
			for i, g := range t.Generics {
				if g.Type != nil {
					parts[i] = Display(g.Type)
				} else {
					parts[i] = "'" + g.Lifetime
				}
			}
			s += "<" + strings.Join(parts, ", ") + ">"
		}
		return s
	case Generic:
		return t.Name
	default:
		return "<unknown>"
	}
}

// Unit returns the unit type.
func Unit() Type { return Tuple{} }

// IsUnit reports whether the type is the empty tuple.
func IsUnit(t Type) bool {
	tuple, ok := t.(Tuple)
	return ok && len(tuple.Elems) == 0
}

// CorePackageID is the package id used for standard-library types such as
// Result.
const CorePackageID = "core"

// ResultOf builds the Result type for the given Ok and Err types.
func ResultOf(ok, err Type) Type {
	return Path{
		PackageID: CorePackageID,
		Segments:  []string{"core", "result", "Result"},
		Generics: []GenericArgument{
			{Type: ok},
			{Type: err},
		},
	}
}

// AsResult destructures a Result type into its Ok and Err halves.
func AsResult(t Type) (okType, errType Type, isResult bool) {
	path, ok := t.(Path)
	if !ok || path.PackageID != CorePackageID {
		return nil, nil, false
	}
	if len(path.Segments) == 0 || path.Segments[len(path.Segments)-1] != "Result" {
		return nil, nil, false
	}
	if len(path.Generics) != 2 || path.Generics[0].Type == nil || path.Generics[1].Type == nil {
		return nil, nil, false
	}
	return path.Generics[0].Type, path.Generics[1].Type, true
}

// IsReference reports whether the type is a shared or unique reference.
func IsReference(t Type) bool {
	_, ok := t.(Reference)
	return ok
}

// HasUnassignedGenerics reports whether any generic parameter inside the type
// is still unbound.
func HasUnassignedGenerics(t Type) bool {
	switch t := t.(type) {
	case Generic:
		return true
	case Tuple:
		for _, e := range t.Elems {
			if HasUnassignedGenerics(e) {
				return true
			}
		}
	case Slice:
		return HasUnassignedGenerics(t.Elem)
	case Reference:
		return HasUnassignedGenerics(t.Inner)
	case Path:
		for _, g := range t.Generics {
			if g.Type != nil && HasUnassignedGenerics(g.Type) {
				return true
			}
		}
	}
	return false
}

// Bind substitutes unassigned generic parameters using the supplied bindings.
// Parameters without a binding are left untouched.
func Bind(t Type, bindings map[string]Type) Type {
	switch t := t.(type) {
	case Generic:
		if bound, ok := bindings[t.Name]; ok {
			return bound
		}
		return t
	case Tuple:
		elems := make([]Type, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = Bind(e, bindings)
		}
		return Tuple{Elems: elems}
	case Slice:
		return Slice{Elem: Bind(t.Elem, bindings)}
	case Reference:
		return Reference{Lifetime: t.Lifetime, Mutable: t.Mutable, Inner: Bind(t.Inner, bindings)}
	case Path:
		generics := make([]GenericArgument, len(t.Generics))
		for i, g := range t.Generics {
			if g.Type != nil {
				generics[i] = GenericArgument{Type: Bind(g.Type, bindings)}
			} else {
				generics[i] = g
			}
		}
		return Path{PackageID: t.PackageID, ItemID: t.ItemID, Segments: t.Segments, Generics: generics}
	default:
		return t
	}
}

// Unify matches a templated type (possibly containing unassigned generics)
// against a concrete expected type and returns the generic bindings that make
// the two equal. It fails when the shapes diverge.
func Unify(template, concrete Type) (map[string]Type, bool) {
	bindings := make(map[string]Type)
	if !unify(template, concrete, bindings) {
		return nil, false
	}
	return bindings, true
}

func unify(template, concrete Type, bindings map[string]Type) bool {
	if g, ok := template.(Generic); ok {
		if existing, bound := bindings[g.Name]; bound {
			return existing.Key() == concrete.Key()
		}
		bindings[g.Name] = concrete
		return true
	}

	switch t := template.(type) {
	case Scalar:
		c, ok := concrete.(Scalar)
		return ok && c.Name == t.Name
	case Tuple:
		c, ok := concrete.(Tuple)
		if !ok || len(c.Elems) != len(t.Elems) {
			return false
		}
		for i := range t.Elems {
			if !unify(t.Elems[i], c.Elems[i], bindings) {
				return false
			}
		}
		return true
	case Slice:
		c, ok := concrete.(Slice)
		return ok && unify(t.Elem, c.Elem, bindings)
	case Reference:
		c, ok := concrete.(Reference)
		return ok && c.Mutable == t.Mutable && unify(t.Inner, c.Inner, bindings)
	case Path:
		c, ok := concrete.(Path)
		if !ok || c.PackageID != t.PackageID || len(c.Segments) != len(t.Segments) {
			return false
		}
		for i := range t.Segments {
			if c.Segments[i] != t.Segments[i] {
				return false
			}
		}
		if len(c.Generics) != len(t.Generics) {
			return false
		}
		for i := range t.Generics {
			tg, cg := t.Generics[i], c.Generics[i]
			if (tg.Type == nil) != (cg.Type == nil) {
				return false
			}
			if tg.Type != nil && !unify(tg.Type, cg.Type, bindings) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
