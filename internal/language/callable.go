package language

import (
	"fmt"
	"strings"
)

// InvocationStyle describes how a callable is lowered to code.
type InvocationStyle int

const (
	// FunctionCall invokes the callable as a plain function or method call.
	FunctionCall InvocationStyle = iota
	// StructLiteral builds the output type via a struct-literal expression.
	StructLiteral
)

// CallPath is the fully-qualified path of a callable.
type CallPath struct {
	PackageID string
	Segments  []string
}

func (p CallPath) String() string {
	return strings.Join(p.Segments, "::")
}

// Last returns the final path segment, the callable's bare name.
func (p CallPath) Last() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[len(p.Segments)-1]
}

// Child returns a path extended with one more segment.
func (p CallPath) Child(segment string) CallPath {
	segments := make([]string, 0, len(p.Segments)+1)
	segments = append(segments, p.Segments...)
	segments = append(segments, segment)
	return CallPath{PackageID: p.PackageID, Segments: segments}
}

// StructField is a named field of a struct-literal constructor, in declaration
// order.
type StructField struct {
	Name string
	Type Type
}

// Callable is a resolved invocable: a free function, a method, or a
// struct-literal constructor.
type Callable struct {
	IsAsync        bool
	TakesSelfAsRef bool
	Path           CallPath
	Inputs         []Type
	// Output is nil for unit-returning callables.
	Output     Type
	Invocation InvocationStyle
	// Fields is populated for StructLiteral invocations, preserving field
	// declaration order.
	Fields []StructField
	// ExtraDefaults maps field names to literal expressions for fields that
	// are not supplied as inputs.
	ExtraDefaults map[string]string
}

// Key returns a canonical encoding of the callable signature.
func (c Callable) Key() string {
	var b strings.Builder
	b.WriteString(c.Path.PackageID)
	b.WriteString("::")
	b.WriteString(c.Path.String())
	if c.IsAsync {
		b.WriteString("|async")
	}
	if c.TakesSelfAsRef {
		b.WriteString("|&self")
	}
	b.WriteString("|(")
	for i, in := range c.Inputs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(in.Key())
	}
	b.WriteString(")->")
	if c.Output != nil {
		b.WriteString(c.Output.Key())
	} else {
		b.WriteString("()")
	}
	if c.Invocation == StructLiteral {
		b.WriteString("|lit{")
		for i, f := range c.Fields {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "%s:%s", f.Name, f.Type.Key())
		}
		b.WriteString("}")
	}
	return b.String()
}

// BindGenerics returns a copy of the callable with every type run through the
// supplied generic bindings.
func (c Callable) BindGenerics(bindings map[string]Type) Callable {
	out := c
	out.Inputs = make([]Type, len(c.Inputs))
	for i, in := range c.Inputs {
		out.Inputs[i] = Bind(in, bindings)
	}
	if c.Output != nil {
		out.Output = Bind(c.Output, bindings)
	}
	if len(c.Fields) > 0 {
		out.Fields = make([]StructField, len(c.Fields))
		for i, f := range c.Fields {
			out.Fields[i] = StructField{Name: f.Name, Type: Bind(f.Type, bindings)}
		}
	}
	return out
}
