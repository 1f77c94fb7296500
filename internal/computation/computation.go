// Package computation interns the typed, invocable form of components:
// resolved callables, prebuilt values, and the synthesised Ok/Err match
// branches of fallible construction.
package computation

import (
	"fmt"

	"github.com/alexisbeaulieu97/weaver/internal/interner"
	"github.com/alexisbeaulieu97/weaver/internal/language"
)

// ID is a dense computation id, stable across passes.
type ID int

// Computation is the sum of invocable forms.
type Computation interface {
	Key() string
	// OutputType is nil for unit-returning computations.
	OutputType() language.Type
	InputTypes() []language.Type
	isComputation()
}

// Callable wraps a fully-resolved callable.
type Callable struct {
	Callable language.Callable
}

func (Callable) isComputation() {}

func (c Callable) Key() string { return "call:" + c.Callable.Key() }

func (c Callable) OutputType() language.Type { return c.Callable.Output }

func (c Callable) InputTypes() []language.Type { return c.Callable.Inputs }

// MatchVariant selects a branch of a Result.
type MatchVariant int

const (
	MatchOk MatchVariant = iota
	MatchErr
)

func (v MatchVariant) String() string {
	if v == MatchErr {
		return "Err"
	}
	return "Ok"
}

// MatchResult materialises one branch of fallible construction as its own
// computation, enabling per-branch ownership analysis.
type MatchResult struct {
	// Input is the Result type being destructured.
	Input language.Type
	// Output is the Ok or Err half, matching Variant.
	Output  language.Type
	Variant MatchVariant
}

func (MatchResult) isComputation() {}

func (m MatchResult) Key() string {
	return fmt.Sprintf("match:%s:%s", m.Variant, m.Input.Key())
}

func (m MatchResult) OutputType() language.Type { return m.Output }

func (m MatchResult) InputTypes() []language.Type { return []language.Type{m.Input} }

// PrebuiltType is a value supplied from outside the generated code.
type PrebuiltType struct {
	Type language.Type
}

func (PrebuiltType) isComputation() {}

func (p PrebuiltType) Key() string { return "prebuilt:" + p.Type.Key() }

func (p PrebuiltType) OutputType() language.Type { return p.Type }

func (p PrebuiltType) InputTypes() []language.Type { return nil }

// MatchPair builds the two MatchResult computations for a Result type.
func MatchPair(result language.Type) (ok MatchResult, err MatchResult, valid bool) {
	okType, errType, isResult := language.AsResult(result)
	if !isResult {
		return MatchResult{}, MatchResult{}, false
	}
	return MatchResult{Input: result, Output: okType, Variant: MatchOk},
		MatchResult{Input: result, Output: errType, Variant: MatchErr},
		true
}

// DB interns computations and hands out stable dense ids.
type DB struct {
	interner *interner.Interner[Computation]
}

// NewDB creates an empty computation database.
func NewDB() *DB {
	return &DB{interner: interner.New[Computation]()}
}

// GetOrIntern returns the id for the computation, interning it on first
// sight.
func (db *DB) GetOrIntern(c Computation) ID {
	return ID(db.interner.GetOrIntern(c))
}

// Get returns the computation stored under id.
func (db *DB) Get(id ID) Computation {
	return db.interner.Get(interner.ID(id))
}

// Len returns the number of interned computations.
func (db *DB) Len() int { return db.interner.Len() }
