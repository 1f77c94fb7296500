package diagnostics

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	spanStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	labelStyle   = lipgloss.NewStyle().Faint(true)
)

// Renderer writes diagnostics in a human-readable form, styled when the
// destination is a terminal.
type Renderer struct {
	w     io.Writer
	color bool
}

// NewRenderer creates a renderer targeting w. Styling is enabled only when
// requested.
func NewRenderer(w io.Writer, color bool) *Renderer {
	return &Renderer{w: w, color: color}
}

// IsTerminal reports whether the file descriptor refers to a terminal,
// so callers can decide whether to enable colored output.
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// Render writes every diagnostic in insertion order.
func (r *Renderer) Render(diags []Diagnostic) error {
	for i, d := range diags {
		if i > 0 {
			if _, err := fmt.Fprintln(r.w); err != nil {
				return err
			}
		}
		if err := r.renderOne(d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) renderOne(d Diagnostic) error {
	var b strings.Builder

	header := d.Severity.String()
	if r.color {
		switch d.Severity {
		case SeverityWarning:
			header = warningStyle.Render(header)
		default:
			header = errorStyle.Render(header)
		}
	}
	fmt.Fprintf(&b, "%s: %s\n", header, d.Message)

	if d.Primary != nil {
		b.WriteString(r.renderSpan("  -->", *d.Primary))
	}
	for _, span := range d.Secondary {
		b.WriteString(r.renderSpan("  :::", span))
	}
	for _, help := range d.Helps {
		prefix := "help"
		if r.color {
			prefix = helpStyle.Render(prefix)
		}
		fmt.Fprintf(&b, "  %s: %s\n", prefix, help.Message)
		if help.Snippet != nil {
			b.WriteString(r.renderSpan("    -->", *help.Snippet))
		}
	}

	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *Renderer) renderSpan(arrow string, span AnnotatedSpan) string {
	source := span.Span.Source
	if span.Span.Length > 0 {
		source = fmt.Sprintf("%s @%d+%d", source, span.Span.Offset, span.Span.Length)
	}
	if r.color {
		source = spanStyle.Render(source)
	}
	line := fmt.Sprintf("%s %s", arrow, source)
	if span.Label != "" {
		label := span.Label
		if r.color {
			label = labelStyle.Render(label)
		}
		line = fmt.Sprintf("%s (%s)", line, label)
	}
	return line + "\n"
}
