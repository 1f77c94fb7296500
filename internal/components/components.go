// Package components promotes user components to fully-typed components and
// generates the derived ones: Ok/Err match branches for fallible callables,
// transformers, cloning constructors, and specialised generic constructors.
package components

import (
	"fmt"

	"github.com/alexisbeaulieu97/weaver/internal/computation"
	"github.com/alexisbeaulieu97/weaver/internal/interner"
	"github.com/alexisbeaulieu97/weaver/internal/scopegraph"
	"github.com/alexisbeaulieu97/weaver/internal/usercomponents"
)

// ID is a dense component id.
type ID int

// Kind classifies a typed component.
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
	// Derived kinds.
	KindMatchBranch
	KindTransformer
	KindCloneConstructor
	KindSyntheticConstructor
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
	case KindMatchBranch:
		return "match branch"
	case KindTransformer:
		return "transformer"
	case KindCloneConstructor:
		return "clone constructor"
	case KindSyntheticConstructor:
		return "synthetic constructor"
	default:
		return "unknown"
	}
}

// Role distinguishes synthesised components.
type Role int

const (
	RoleMatchOk Role = iota
	RoleMatchErr
	RoleTransformer
	RoleClone
	RoleSynthetic
	RoleSpecialized
)

// Component is the interned identity of a typed component.
type Component interface {
	Key() string
	isComponent()
}

// UserBacked is a component promoted straight from a user registration.
type UserBacked struct {
	UserID usercomponents.ID
}

func (UserBacked) isComponent() {}

func (c UserBacked) Key() string { return fmt.Sprintf("user:%d", c.UserID) }

// Synthetic is a derived component.
type Synthetic struct {
	Role        Role
	Computation computation.ID
	Scope       scopegraph.ScopeID
	// Origin is the component this one was derived from.
	Origin ID
	// Discriminant separates otherwise-identical derivations (e.g. the two
	// match branches, or distinct generic bindings).
	Discriminant string
}

func (Synthetic) isComponent() {}

func (c Synthetic) Key() string {
	return fmt.Sprintf("syn:%d:%d:%d:%d:%s", c.Role, c.Computation, c.Scope, c.Origin, c.Discriminant)
}

// interned wraps Component for the generic interner.
type interned struct {
	c Component
}

func (i interned) Key() string { return i.c.Key() }

// HydratedComponent pairs a component with its computation.
type HydratedComponent struct {
	ID          ID
	Kind        Kind
	Computation computation.Computation
	Scope       scopegraph.ScopeID
	Lifecycle   usercomponents.Lifecycle
}

// DB holds every typed component and the relationships between them.
type DB struct {
	components   *interner.Interner[interned]
	computations *computation.DB
	userDB       *usercomponents.DB

	kindOf        map[ID]Kind
	computationOf map[ID]computation.ID
	scopeOf       map[ID]scopegraph.ScopeID
	lifecycleOf   map[ID]usercomponents.Lifecycle

	user2component map[usercomponents.ID]ID
	component2user map[ID]usercomponents.ID

	fallibleToOk  map[ID]ID
	fallibleToErr map[ID]ID
	matchToSource map[ID]ID

	errorHandlerOf map[ID]ID
	derivedFrom    map[ID]ID
	transformersOf map[ID][]ID
}
