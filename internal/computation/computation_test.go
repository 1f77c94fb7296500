package computation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/weaver/internal/language"
)

func TestMatchPairSplitsResult(t *testing.T) {
	t.Parallel()

	okType := language.Path{PackageID: "app", Segments: []string{"app", "Pool"}}
	errType := language.Path{PackageID: "app", Segments: []string{"app", "PoolError"}}
	result := language.ResultOf(okType, errType)

	okMatch, errMatch, valid := MatchPair(result)
	require.True(t, valid)
	require.Equal(t, okType.Key(), okMatch.OutputType().Key())
	require.Equal(t, errType.Key(), errMatch.OutputType().Key())
	require.Equal(t, MatchOk, okMatch.Variant)
	require.Equal(t, MatchErr, errMatch.Variant)
	require.NotEqual(t, okMatch.Key(), errMatch.Key())

	_, _, valid = MatchPair(okType)
	require.False(t, valid)
}

func TestDBDeduplicatesComputations(t *testing.T) {
	t.Parallel()

	db := NewDB()
	callable := Callable{Callable: language.Callable{
		Path:   language.CallPath{PackageID: "app", Segments: []string{"app", "new_pool"}},
		Output: language.Path{PackageID: "app", Segments: []string{"app", "Pool"}},
	}}

	a := db.GetOrIntern(callable)
	b := db.GetOrIntern(callable)
	require.Equal(t, a, b)
	require.Equal(t, 1, db.Len())

	prebuilt := db.GetOrIntern(PrebuiltType{Type: language.Scalar{Name: "u32"}})
	require.NotEqual(t, a, prebuilt)
	require.Equal(t, 2, db.Len())
}
