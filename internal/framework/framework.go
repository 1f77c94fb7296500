// Package framework declares the well-known types the runtime hands to every
// request pipeline without registration: the request head, the raw body,
// routing metadata, and the response/processing envelope types.
package framework

import (
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
)

// PackageID is the package id of the framework runtime crate.
const PackageID = "weaver"

func frameworkType(segments ...string) language.Path {
	return language.Path{PackageID: PackageID, Segments: segments}
}

// RequestHead is the method, target, and headers of the incoming request.
func RequestHead() language.Type { return frameworkType("weaver", "request", "RequestHead") }

// RawBody is the unconsumed request body.
func RawBody() language.Type { return frameworkType("weaver", "request", "RawBody") }

// MatchedPathPattern is the route template that matched the request.
func MatchedPathPattern() language.Type {
	return frameworkType("weaver", "request", "path", "MatchedPathPattern")
}

// RawPathParams are the raw, percent-encoded path parameters.
func RawPathParams() language.Type {
	return frameworkType("weaver", "request", "path", "RawPathParams")
}

// ConnectionInfo describes the peer of the underlying connection.
func ConnectionInfo() language.Type {
	return frameworkType("weaver", "connection", "ConnectionInfo")
}

// AllowedMethods is the method set registered for the matched path.
func AllowedMethods() language.Type {
	return frameworkType("weaver", "router", "AllowedMethods")
}

// Response is the framework's response type.
func Response() language.Type { return frameworkType("weaver", "response", "Response") }

// Processing is the pre-processing middleware envelope: either continue or
// return early with a response.
func Processing() language.Type {
	return frameworkType("weaver", "middleware", "Processing")
}

// Next is the generated next-stage state handed to a wrapping middleware; the
// generic parameter is the concrete state struct.
func Next(state language.Type) language.Type {
	return language.Path{
		PackageID: PackageID,
		Segments:  []string{"weaver", "middleware", "Next"},
		Generics:  []language.GenericArgument{{Type: state}},
	}
}

// IsNextType reports whether the type is the Next<_> envelope handed to a
// wrapping middleware.
func IsNextType(t language.Type) bool {
	path, ok := t.(language.Path)
	if !ok || path.PackageID != PackageID {
		return false
	}
	return len(path.Segments) > 0 && path.Segments[len(path.Segments)-1] == "Next"
}

// GeneratedPackageID is the package id of the emitted server crate; generated
// types (NextState structs, ApplicationState) live there.
const GeneratedPackageID = "generated_app"

// InputLeaves returns every type the runtime supplies to request graphs
// without a constructor.
func InputLeaves() []language.Type {
	return []language.Type{
		RequestHead(),
		RawBody(),
		MatchedPathPattern(),
		RawPathParams(),
		ConnectionInfo(),
		AllowedMethods(),
	}
}

// IsInputLeaf reports whether the type is provided by the runtime.
func IsInputLeaf(t language.Type) bool {
	key := t.Key()
	for _, leaf := range InputLeaves() {
		if leaf.Key() == key {
			return true
		}
	}
	return false
}

// DefaultFallbackCoordinates address the framework's own 404 fallback, used
// when the blueprint registers none.
var DefaultFallbackCoordinates = rustdoc.Coordinates{Package: PackageID, Item: "default_fallback"}

// DefaultFallbackCallable is the framework 404 handler.
func DefaultFallbackCallable() language.Callable {
	return language.Callable{
		IsAsync: true,
		Path: language.CallPath{
			PackageID: PackageID,
			Segments:  []string{"weaver", "router", "default_fallback"},
		},
		Inputs: []language.Type{AllowedMethods()},
		Output: Response(),
	}
}

// EarlyReturnWrapper lifts a response into Processing::EarlyReturn, so a
// pre-processing stage always outputs Processing.
func EarlyReturnWrapper() language.Callable {
	return language.Callable{
		Path: language.CallPath{
			PackageID: PackageID,
			Segments:  []string{"weaver", "middleware", "Processing", "EarlyReturn"},
		},
		Inputs: []language.Type{Response()},
		Output: Processing(),
	}
}
