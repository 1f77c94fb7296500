package diagnostics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSinkPreservesInsertionOrder(t *testing.T) {
	t.Parallel()

	sink := NewSink()
	sink.Push(NewError("first").Build())
	sink.Push(NewWarning("second").Build())
	sink.Push(NewError("third").Build())

	diags := sink.Diagnostics()
	require.Len(t, diags, 3)
	require.Equal(t, "first", diags[0].Message)
	require.Equal(t, "second", diags[1].Message)
	require.Equal(t, "third", diags[2].Message)
	require.Equal(t, 2, sink.ErrorCount())
	require.True(t, sink.HasErrors())
}

func TestBuilderAssemblesSpansAndHelps(t *testing.T) {
	t.Parallel()

	loc := Location{File: "blueprint.yaml", Line: 4, Column: 3}
	d := NewError("duplicate route %q", "/home").
		PrimaryLocation(loc, "registered here").
		SecondaryLocation(Location{File: "blueprint.yaml", Line: 9, Column: 3}, "also registered here").
		Help("remove one of the two registrations").
		Build()

	require.Equal(t, SeverityError, d.Severity)
	require.NotNil(t, d.Primary)
	require.Equal(t, "blueprint.yaml:4:3", d.Primary.Span.Source)
	require.Len(t, d.Secondary, 1)
	require.Len(t, d.Helps, 1)
}

func TestRendererPlainOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer(&buf, false)

	d := NewWarning("configuration %q is never used", "pool").
		PrimaryLocation(Location{File: "blueprint.yaml", Line: 2, Column: 1}, "registered here").
		Help("remove the config or mark it include_if_unused").
		Build()

	require.NoError(t, r.Render([]Diagnostic{d}))
	out := buf.String()
	require.Contains(t, out, "warning: configuration \"pool\" is never used")
	require.Contains(t, out, "blueprint.yaml:2:1")
	require.Contains(t, out, "help: remove the config")
}
