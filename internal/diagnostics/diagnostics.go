// Package diagnostics accumulates structured compiler errors and warnings.
//
// Passes never fail fast on user mistakes: they append diagnostics to a Sink
// and continue where possible, so a single run surfaces as many problems as it
// can. Only internal invariant violations panic.
package diagnostics

import "fmt"

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// Location is a file-accurate registration site.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// SourceSpan identifies a byte range inside a named source.
type SourceSpan struct {
	Source string
	Offset int
	Length int
}

// AnnotatedSpan is a span with a human-readable label.
type AnnotatedSpan struct {
	Span  SourceSpan
	Label string
}

// Help is a suggestion attached to a diagnostic, optionally with a snippet.
type Help struct {
	Message string
	Snippet *AnnotatedSpan
}

// Diagnostic is a single structured error or warning.
type Diagnostic struct {
	Severity  Severity
	Message   string
	Primary   *AnnotatedSpan
	Secondary []AnnotatedSpan
	Helps     []Help
}

// Builder assembles a Diagnostic fluently.
type Builder struct {
	d Diagnostic
}

// NewError starts building an error diagnostic.
func NewError(format string, args ...interface{}) *Builder {
	return &Builder{d: Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...)}}
}

// NewWarning starts building a warning diagnostic.
func NewWarning(format string, args ...interface{}) *Builder {
	return &Builder{d: Diagnostic{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)}}
}

// Primary sets the primary annotated span.
func (b *Builder) Primary(span SourceSpan, label string) *Builder {
	b.d.Primary = &AnnotatedSpan{Span: span, Label: label}
	return b
}

// PrimaryLocation sets the primary span from a registration site. The span
// names the site as file:line:column and carries no byte range.
func (b *Builder) PrimaryLocation(loc Location, label string) *Builder {
	b.d.Primary = &AnnotatedSpan{
		Span:  SourceSpan{Source: loc.String()},
		Label: label,
	}
	return b
}

// Secondary appends a secondary annotated span, possibly in another file.
func (b *Builder) Secondary(span SourceSpan, label string) *Builder {
	b.d.Secondary = append(b.d.Secondary, AnnotatedSpan{Span: span, Label: label})
	return b
}

// SecondaryLocation appends a secondary span from a registration site.
func (b *Builder) SecondaryLocation(loc Location, label string) *Builder {
	b.d.Secondary = append(b.d.Secondary, AnnotatedSpan{
		Span:  SourceSpan{Source: loc.String()},
		Label: label,
	})
	return b
}

// Help appends a help message.
func (b *Builder) Help(format string, args ...interface{}) *Builder {
	b.d.Helps = append(b.d.Helps, Help{Message: fmt.Sprintf(format, args...)})
	return b
}

// HelpWithSnippet appends a help message anchored to a snippet.
func (b *Builder) HelpWithSnippet(message string, span SourceSpan, label string) *Builder {
	b.d.Helps = append(b.d.Helps, Help{
		Message: message,
		Snippet: &AnnotatedSpan{Span: span, Label: label},
	})
	return b
}

// Build returns the assembled diagnostic.
func (b *Builder) Build() Diagnostic {
	return b.d
}

// Sink is an append-only, insertion-ordered collection of diagnostics.
type Sink struct {
	diags []Diagnostic
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Push appends a diagnostic.
func (s *Sink) Push(d Diagnostic) {
	s.diags = append(s.diags, d)
}

// Len returns the number of accumulated diagnostics.
func (s *Sink) Len() int {
	return len(s.diags)
}

// ErrorCount returns the number of error-severity diagnostics.
func (s *Sink) ErrorCount() int {
	n := 0
	for _, d := range s.diags {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (s *Sink) HasErrors() bool {
	return s.ErrorCount() > 0
}

// Diagnostics returns the accumulated diagnostics in insertion order.
func (s *Sink) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(s.diags))
	copy(out, s.diags)
	return out
}
