package language

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pathType(pkg string, segments ...string) Path {
	return Path{PackageID: pkg, Segments: segments}
}

func TestTypesCompareByPackageID(t *testing.T) {
	t.Parallel()

	// The same item imported under two different crate renames still carries
	// the same package id, so the keys must match.
	a := pathType("registry+sqlx@0.7", "sqlx", "PgPool")
	b := pathType("registry+sqlx@0.7", "sqlx", "PgPool")
	other := pathType("registry+sqlx@0.6", "sqlx", "PgPool")

	require.Equal(t, a.Key(), b.Key())
	require.NotEqual(t, a.Key(), other.Key())
}

func TestAsResultRoundTrip(t *testing.T) {
	t.Parallel()

	okType := pathType("app", "app", "Config")
	errType := pathType("app", "app", "ConfigError")
	result := ResultOf(okType, errType)

	gotOk, gotErr, isResult := AsResult(result)
	require.True(t, isResult)
	require.Equal(t, okType.Key(), gotOk.Key())
	require.Equal(t, errType.Key(), gotErr.Key())

	_, _, isResult = AsResult(okType)
	require.False(t, isResult)
}

func TestUnifyBindsGenerics(t *testing.T) {
	t.Parallel()

	template := Path{
		PackageID: "alloc",
		Segments:  []string{"alloc", "vec", "Vec"},
		Generics:  []GenericArgument{{Type: Generic{Name: "T"}}},
	}
	concrete := Path{
		PackageID: "alloc",
		Segments:  []string{"alloc", "vec", "Vec"},
		Generics:  []GenericArgument{{Type: Scalar{Name: "u8"}}},
	}

	bindings, ok := Unify(template, concrete)
	require.True(t, ok)
	require.Equal(t, Scalar{Name: "u8"}.Key(), bindings["T"].Key())

	bound := Bind(template, bindings)
	require.Equal(t, concrete.Key(), bound.Key())
}

func TestUnifyRejectsConflictingBindings(t *testing.T) {
	t.Parallel()

	template := Tuple{Elems: []Type{Generic{Name: "T"}, Generic{Name: "T"}}}
	concrete := Tuple{Elems: []Type{Scalar{Name: "u8"}, Scalar{Name: "u16"}}}

	_, ok := Unify(template, concrete)
	require.False(t, ok)
}

func TestCallableKeyDistinguishesInvocationStyle(t *testing.T) {
	t.Parallel()

	output := pathType("app", "app", "State")
	fn := Callable{
		Path:   CallPath{PackageID: "app", Segments: []string{"app", "new_state"}},
		Output: output,
	}
	lit := Callable{
		Path:       CallPath{PackageID: "app", Segments: []string{"app", "new_state"}},
		Output:     output,
		Invocation: StructLiteral,
		Fields:     []StructField{{Name: "pool", Type: pathType("app", "app", "Pool")}},
	}

	require.NotEqual(t, fn.Key(), lit.Key())
}

func TestHasUnassignedGenerics(t *testing.T) {
	t.Parallel()

	generic := Reference{Inner: Generic{Name: "T"}}
	concrete := Reference{Inner: Scalar{Name: "bool"}}

	require.True(t, HasUnassignedGenerics(generic))
	require.False(t, HasUnassignedGenerics(concrete))
}
