package framework

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/weaver/internal/language"
)

func TestInputLeavesAreWellKnown(t *testing.T) {
	t.Parallel()

	require.True(t, IsInputLeaf(RequestHead()))
	require.True(t, IsInputLeaf(AllowedMethods()))
	require.False(t, IsInputLeaf(Response()))
	require.False(t, IsInputLeaf(language.Scalar{Name: "u8"}))
}

func TestEarlyReturnWrapperSignature(t *testing.T) {
	t.Parallel()

	wrapper := EarlyReturnWrapper()
	require.Len(t, wrapper.Inputs, 1)
	require.Equal(t, Response().Key(), wrapper.Inputs[0].Key())
	require.Equal(t, Processing().Key(), wrapper.Output.Key())
}

func TestNextWrapsStateType(t *testing.T) {
	t.Parallel()

	state := language.Path{PackageID: "generated_app", Segments: []string{"crate", "Next0"}}
	next := Next(state)
	path, ok := next.(language.Path)
	require.True(t, ok)
	require.Len(t, path.Generics, 1)
	require.Equal(t, state.Key(), path.Generics[0].Type.Key())
}
