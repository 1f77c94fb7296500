// Package blueprint models the declarative application description supplied
// by the user and loads it from YAML.
package blueprint

import (
	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
)

// Registration kinds accepted in a blueprint.
const (
	KindConstructor      = "constructor"
	KindConfig           = "config"
	KindPrebuilt         = "prebuilt"
	KindRoute            = "route"
	KindFallback         = "fallback"
	KindWrappingMW       = "wrapping_middleware"
	KindPreProcessingMW  = "pre_processing_middleware"
	KindPostProcessingMW = "post_processing_middleware"
	KindErrorObserver    = "error_observer"
	KindImport           = "import"
)

// Lifecycle names accepted in a blueprint.
const (
	LifecycleSingleton     = "singleton"
	LifecycleRequestScoped = "request_scoped"
	LifecycleTransient     = "transient"
)

// Cloning policy names accepted in a blueprint.
const (
	CloningNever       = "never_clone"
	CloningIfNecessary = "clone_if_necessary"
)

// Coordinates reference an annotated item in the rustdoc index.
type Coordinates struct {
	Crate string `yaml:"crate" validate:"required"`
	Item  string `yaml:"item" validate:"required"`
	Impl  string `yaml:"impl,omitempty"`
}

// Registration is a single entry in a blueprint node.
type Registration struct {
	Kind        string       `yaml:"kind" validate:"required,registration_kind"`
	Coordinates *Coordinates `yaml:"coordinates,omitempty"`

	// Overrides that take precedence over the annotation's own properties.
	Lifecycle string `yaml:"lifecycle,omitempty" validate:"omitempty,lifecycle"`
	Cloning   string `yaml:"cloning,omitempty" validate:"omitempty,cloning_policy"`

	// Route registrations.
	Method string `yaml:"method,omitempty"`
	Path   string `yaml:"path,omitempty"`

	// Config registrations.
	Key              string `yaml:"key,omitempty" validate:"omitempty,config_key"`
	DefaultIfMissing bool   `yaml:"default_if_missing,omitempty"`
	IncludeIfUnused  bool   `yaml:"include_if_unused,omitempty"`

	// An error handler attached to this fallible registration.
	ErrorHandler *Coordinates `yaml:"error_handler,omitempty"`

	// Per-registration lint overrides, e.g. {"unused": "allow"}.
	Lints map[string]string `yaml:"lints,omitempty"`

	// Import registrations harvest every annotated item of these modules.
	Modules []string `yaml:"modules,omitempty"`

	line   int
	column int
}

// UnmarshalYAML captures the node position so diagnostics can point at the
// exact registration.
func (r *Registration) UnmarshalYAML(node *yaml.Node) error {
	type plain Registration
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Registration(p)
	r.line = node.Line
	r.column = node.Column
	return nil
}

// Location returns the registration site inside the blueprint file.
func (r *Registration) Location(file string) diagnostics.Location {
	return diagnostics.Location{File: file, Line: r.line, Column: r.column}
}

// Blueprint is one node of the blueprint tree.
type Blueprint struct {
	Prefix        string          `yaml:"prefix,omitempty" validate:"omitempty,route_prefix"`
	Domain        string          `yaml:"domain,omitempty" validate:"omitempty,domain_guard"`
	Registrations []*Registration `yaml:"registrations,omitempty" validate:"dive"`
	Nested        []*Blueprint    `yaml:"nested,omitempty" validate:"dive"`

	file   string
	line   int
	column int
}

// UnmarshalYAML captures the node position of each nested blueprint.
func (b *Blueprint) UnmarshalYAML(node *yaml.Node) error {
	type plain Blueprint
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*b = Blueprint(p)
	b.line = node.Line
	b.column = node.Column
	return nil
}

// Location returns the blueprint node's own position.
func (b *Blueprint) Location() diagnostics.Location {
	line := b.line
	if line == 0 {
		line = 1
	}
	column := b.column
	if column == 0 {
		column = 1
	}
	return diagnostics.Location{File: b.file, Line: line, Column: column}
}

// File returns the path the blueprint was loaded from.
func (b *Blueprint) File() string { return b.file }

func (b *Blueprint) setFile(file string) {
	b.file = file
	for _, nested := range b.Nested {
		nested.setFile(file)
	}
}
