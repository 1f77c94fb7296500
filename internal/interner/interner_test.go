package interner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type keyedString string

func (s keyedString) Key() string { return string(s) }

func TestGetOrInternDeduplicates(t *testing.T) {
	t.Parallel()

	in := New[keyedString]()
	a := in.GetOrIntern("alpha")
	b := in.GetOrIntern("beta")
	again := in.GetOrIntern("alpha")

	require.Equal(t, a, again)
	require.NotEqual(t, a, b)
	require.Equal(t, 2, in.Len())
}

func TestIdsAreDenseAndStable(t *testing.T) {
	t.Parallel()

	in := New[keyedString]()
	for _, v := range []keyedString{"a", "b", "c"} {
		in.GetOrIntern(v)
	}

	require.Equal(t, []ID{0, 1, 2}, in.IDs())
	require.Equal(t, keyedString("b"), in.Get(1))

	id, ok := in.Lookup("c")
	require.True(t, ok)
	require.Equal(t, ID(2), id)

	_, ok = in.Lookup("missing")
	require.False(t, ok)
}
