package rustdoc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	weavererrors "github.com/alexisbeaulieu97/weaver/pkg/errors"

	"github.com/alexisbeaulieu97/weaver/internal/language"
)

// wireType is the JSON encoding of a resolved type.
type wireType struct {
	Kind     string     `json:"kind"`
	Name     string     `json:"name,omitempty"`
	Elems    []wireType `json:"elems,omitempty"`
	Elem     *wireType  `json:"elem,omitempty"`
	Mutable  bool       `json:"mutable,omitempty"`
	Lifetime string     `json:"lifetime,omitempty"`
	Package  string     `json:"package,omitempty"`
	Item     string     `json:"item,omitempty"`
	Segments []string   `json:"segments,omitempty"`
	Generics []wireType `json:"generics,omitempty"`
}

func (w wireType) resolve() (language.Type, error) {
	switch w.Kind {
	case "scalar":
		return language.Scalar{Name: w.Name}, nil
	case "tuple":
		elems := make([]language.Type, len(w.Elems))
		for i, e := range w.Elems {
			t, err := e.resolve()
			if err != nil {
				return nil, err
			}
			elems[i] = t
		}
		return language.Tuple{Elems: elems}, nil
	case "slice":
		if w.Elem == nil {
			return nil, fmt.Errorf("slice type missing element")
		}
		elem, err := w.Elem.resolve()
		if err != nil {
			return nil, err
		}
		return language.Slice{Elem: elem}, nil
	case "ref":
		if w.Elem == nil {
			return nil, fmt.Errorf("reference type missing inner type")
		}
		inner, err := w.Elem.resolve()
		if err != nil {
			return nil, err
		}
		return language.Reference{Lifetime: w.Lifetime, Mutable: w.Mutable, Inner: inner}, nil
	case "path":
		generics := make([]language.GenericArgument, 0, len(w.Generics))
		for _, g := range w.Generics {
			if g.Kind == "lifetime" {
				generics = append(generics, language.GenericArgument{Lifetime: g.Lifetime})
				continue
			}
			t, err := g.resolve()
			if err != nil {
				return nil, err
			}
			generics = append(generics, language.GenericArgument{Type: t})
		}
		return language.Path{
			PackageID: w.Package,
			ItemID:    w.Item,
			Segments:  w.Segments,
			Generics:  generics,
		}, nil
	case "generic":
		return language.Generic{Name: w.Name}, nil
	default:
		return nil, fmt.Errorf("unknown type kind %q", w.Kind)
	}
}

type wireSignature struct {
	IsAsync        bool       `json:"is_async,omitempty"`
	TakesSelfAsRef bool       `json:"takes_self_as_ref,omitempty"`
	Inputs         []wireType `json:"inputs"`
	Output         *wireType  `json:"output,omitempty"`
	SelfType       *wireType  `json:"self_type,omitempty"`
}

type wireField struct {
	Name    string   `json:"name"`
	Type    wireType `json:"type"`
	Default string   `json:"default,omitempty"`
}

type wireItem struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	Path       []string       `json:"path"`
	Visibility string         `json:"visibility,omitempty"`
	Signature  *wireSignature `json:"signature,omitempty"`
	Fields     []wireField    `json:"fields,omitempty"`
}

type wireTraitImpl struct {
	Trait string   `json:"trait"`
	For   wireType `json:"for"`
}

type wireAnnotation struct {
	Item               string            `json:"item"`
	Kind               string            `json:"kind"`
	Lifecycle          string            `json:"lifecycle,omitempty"`
	CloningPolicy      string            `json:"cloning_policy,omitempty"`
	Method             string            `json:"method,omitempty"`
	Path               string            `json:"path,omitempty"`
	ConfigKey          string            `json:"config_key,omitempty"`
	DefaultIfMissing   bool              `json:"default_if_missing,omitempty"`
	IncludeIfUnused    bool              `json:"include_if_unused,omitempty"`
	Lints              map[string]string `json:"lints,omitempty"`
	AllowErrorFallback bool              `json:"allow_error_fallback,omitempty"`
}

type wireCrate struct {
	PackageID      string           `json:"package_id"`
	RootItemID     string           `json:"root_item_id"`
	FormatVersion  int              `json:"format_version"`
	ExternalCrates []string         `json:"external_crates,omitempty"`
	Items          []wireItem       `json:"items"`
	TraitImpls     []wireTraitImpl  `json:"trait_impls,omitempty"`
	Annotations    []wireAnnotation `json:"annotations,omitempty"`
}

// LoadDir hydrates every *.json crate record found in dir into a Collection.
func LoadDir(dir string) (*Collection, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, weavererrors.NewParseError(dir, 0, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	collection := NewCollection()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := loadFile(collection, path); err != nil {
			return nil, err
		}
	}
	return collection, nil
}

// LoadFile hydrates a single crate record into an existing collection.
func LoadFile(collection *Collection, path string) error {
	return loadFile(collection, path)
}

func loadFile(collection *Collection, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return weavererrors.NewParseError(path, 0, err)
	}

	var doc wireCrate
	if err := json.Unmarshal(data, &doc); err != nil {
		return weavererrors.NewParseError(path, 0, err)
	}

	crate := &Crate{
		PackageID:      PackageID(doc.PackageID),
		RootItemID:     ItemID(doc.RootItemID),
		FormatVersion:  doc.FormatVersion,
		ExternalCrates: doc.ExternalCrates,
		Items:          make(map[ItemID]*Item, len(doc.Items)),
	}

	for _, wi := range doc.Items {
		item := &Item{
			ID:         ItemID(wi.ID),
			Kind:       ItemKind(wi.Kind),
			Name:       wi.Name,
			Path:       wi.Path,
			Visibility: wi.Visibility,
		}
		if wi.Signature != nil {
			sig := &Signature{
				IsAsync:        wi.Signature.IsAsync,
				TakesSelfAsRef: wi.Signature.TakesSelfAsRef,
			}
			for _, in := range wi.Signature.Inputs {
				t, err := in.resolve()
				if err != nil {
					return weavererrors.NewParseError(path, 0, fmt.Errorf("item %s: %w", wi.ID, err))
				}
				sig.Inputs = append(sig.Inputs, t)
			}
			if wi.Signature.Output != nil {
				t, err := wi.Signature.Output.resolve()
				if err != nil {
					return weavererrors.NewParseError(path, 0, fmt.Errorf("item %s: %w", wi.ID, err))
				}
				sig.Output = t
			}
			if wi.Signature.SelfType != nil {
				t, err := wi.Signature.SelfType.resolve()
				if err != nil {
					return weavererrors.NewParseError(path, 0, fmt.Errorf("item %s: %w", wi.ID, err))
				}
				sig.SelfType = t
			}
			item.Signature = sig
		}
		for _, wf := range wi.Fields {
			t, err := wf.Type.resolve()
			if err != nil {
				return weavererrors.NewParseError(path, 0, fmt.Errorf("item %s field %s: %w", wi.ID, wf.Name, err))
			}
			item.Fields = append(item.Fields, Field{Name: wf.Name, Type: t, Default: wf.Default})
		}
		crate.Items[item.ID] = item
	}

	for _, wt := range doc.TraitImpls {
		t, err := wt.For.resolve()
		if err != nil {
			return weavererrors.NewParseError(path, 0, fmt.Errorf("trait impl %s: %w", wt.Trait, err))
		}
		crate.TraitImpls = append(crate.TraitImpls, TraitImpl{Trait: wt.Trait, For: t})
	}

	collection.AddCrate(crate)

	for _, wa := range doc.Annotations {
		annotation := &Annotation{
			Kind:               AnnotationKind(wa.Kind),
			Lifecycle:          wa.Lifecycle,
			CloningPolicy:      wa.CloningPolicy,
			Lints:              wa.Lints,
			AllowErrorFallback: wa.AllowErrorFallback,
		}
		if wa.Method != "" || wa.Path != "" {
			annotation.Route = &RouteAnnotation{Method: wa.Method, Path: wa.Path}
		}
		if wa.ConfigKey != "" || wa.DefaultIfMissing || wa.IncludeIfUnused {
			annotation.Config = &ConfigAnnotation{
				Key:              wa.ConfigKey,
				DefaultIfMissing: wa.DefaultIfMissing,
				IncludeIfUnused:  wa.IncludeIfUnused,
			}
		}
		collection.AddAnnotation(crate.PackageID, ItemID(wa.Item), annotation)
	}

	return nil
}
