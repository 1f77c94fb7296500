// Package usercomponents is the canonical record of every component the user
// declared: its kind, scope, lifecycle, registration site, cloning policy,
// and lint overrides, plus the user-level router assembled from route
// registrations.
package usercomponents

import (
	"fmt"

	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
	"github.com/alexisbeaulieu97/weaver/internal/scopegraph"
)

// ID is a dense user-component id.
type ID int

// Kind enumerates every user-registrable component kind.
type Kind int

const (
	KindConstructor Kind = iota
	KindPrebuiltType
	KindConfigType
	KindRequestHandler
	KindFallback
	KindWrappingMiddleware
	KindPreProcessingMiddleware
	KindPostProcessingMiddleware
	KindErrorHandler
	KindErrorObserver
)

func (k Kind) String() string {
	switch k {
	case KindConstructor:
		return "constructor"
	case KindPrebuiltType:
		return "prebuilt type"
	case KindConfigType:
		return "config type"
	case KindRequestHandler:
		return "request handler"
	case KindFallback:
		return "fallback"
	case KindWrappingMiddleware:
		return "wrapping middleware"
	case KindPreProcessingMiddleware:
		return "pre-processing middleware"
	case KindPostProcessingMiddleware:
		return "post-processing middleware"
	case KindErrorHandler:
		return "error handler"
	case KindErrorObserver:
		return "error observer"
	default:
		return "unknown"
	}
}

// Lifecycle governs caching of a component's output in a call graph.
type Lifecycle int

const (
	LifecycleSingleton Lifecycle = iota
	LifecycleRequestScoped
	LifecycleTransient
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleSingleton:
		return "singleton"
	case LifecycleTransient:
		return "transient"
	default:
		return "request-scoped"
	}
}

// CloningPolicy is the per-component permission for the borrow checker to
// insert clones.
type CloningPolicy int

const (
	CloneNever CloningPolicy = iota
	CloneIfNecessary
)

func (p CloningPolicy) String() string {
	if p == CloneIfNecessary {
		return "clone_if_necessary"
	}
	return "never_clone"
}

// DefaultStrategy applies to config components.
type DefaultStrategy int

const (
	DefaultRequired DefaultStrategy = iota
	DefaultIfMissing
)

// Lint names recognised in per-component overrides.
const (
	LintUnused        = "unused"
	LintErrorFallback = "error_fallback"
)

// RouterKey identifies the route a request handler serves.
type RouterKey struct {
	Method string
	Path   string
	Domain string
}

func (k RouterKey) String() string {
	s := k.Method + " " + k.Path
	if k.Domain != "" {
		s += " [for " + k.Domain + "]"
	}
	return s
}

// UserComponent is the interned identity of a declared component. Identity
// includes the anchoring scope: registering the same callable in two scopes
// produces two components.
type UserComponent struct {
	Kind        Kind
	Coordinates rustdoc.Coordinates
	Scope       scopegraph.ScopeID
	// RouterKey is set for request handlers only.
	RouterKey *RouterKey
	// FallibleID links an error handler to the fallible component it serves.
	FallibleID ID
}

// Key returns the canonical identity used for interning.
func (c UserComponent) Key() string {
	key := fmt.Sprintf("%d|%s|%d", c.Kind, c.Coordinates, c.Scope)
	if c.RouterKey != nil {
		key += "|" + c.RouterKey.String()
	}
	if c.Kind == KindErrorHandler {
		key += fmt.Sprintf("|fallible=%d", c.FallibleID)
	}
	return key
}
