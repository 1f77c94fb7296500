package blueprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	weavererrors "github.com/alexisbeaulieu97/weaver/pkg/errors"
)

const blueprintFixture = `prefix: /api
registrations:
  - kind: constructor
    coordinates: {crate: app, item: "1"}
    lifecycle: singleton
    cloning: never_clone
  - kind: config
    coordinates: {crate: app, item: "2"}
    key: pool
    include_if_unused: true
  - kind: route
    coordinates: {crate: app, item: "3"}
    method: GET
    path: /home
    error_handler: {crate: app, item: "4"}
nested:
  - domain: admin.example.com
    registrations:
      - kind: fallback
        coordinates: {crate: app, item: "5"}
`

func writeBlueprint(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blueprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParseBlueprintCapturesLocations(t *testing.T) {
	t.Parallel()

	path := writeBlueprint(t, blueprintFixture)
	bp, err := ParseBlueprint(path)
	require.NoError(t, err)

	require.Equal(t, "/api", bp.Prefix)
	require.Len(t, bp.Registrations, 3)
	require.Len(t, bp.Nested, 1)

	route := bp.Registrations[2]
	require.Equal(t, KindRoute, route.Kind)
	require.Equal(t, "GET", route.Method)
	require.NotNil(t, route.ErrorHandler)

	loc := route.Location(path)
	require.Equal(t, path, loc.File)
	require.Equal(t, 11, loc.Line)

	nested := bp.Nested[0]
	require.Equal(t, "admin.example.com", nested.Domain)
	require.Equal(t, path, nested.File())
}

func TestParseBlueprintRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	path := writeBlueprint(t, "registrations:\n  - kind: [broken\n")
	_, err := ParseBlueprint(path)

	var parseErr *weavererrors.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Positive(t, parseErr.Line)
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	path := writeBlueprint(t, "registrations:\n  - kind: teleporter\n    coordinates: {crate: app, item: \"1\"}\n")
	_, err := ParseBlueprint(path)

	var validationErr *weavererrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestValidateRejectsRouteWithoutMethod(t *testing.T) {
	t.Parallel()

	path := writeBlueprint(t, "registrations:\n  - kind: route\n    coordinates: {crate: app, item: \"1\"}\n    path: /home\n")
	_, err := ParseBlueprint(path)

	var validationErr *weavererrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Message, "method")
}

func TestValidRoutePath(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidRoutePath("/users/{id}"))
	require.NoError(t, ValidRoutePath("/assets/{*path}"))
	require.Error(t, ValidRoutePath("users"))
	require.Error(t, ValidRoutePath("/users/{id"))
	require.Error(t, ValidRoutePath("/assets/{*path}/extra"))
}

func TestValidDomainGuard(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidDomainGuard("example.com"))
	require.NoError(t, ValidDomainGuard("*.example.com"))
	require.Error(t, ValidDomainGuard("bad_.example.com"))
	require.Error(t, ValidDomainGuard("..example.com"))
}

func TestValidateRejectsErrorHandlerOnConfig(t *testing.T) {
	t.Parallel()

	path := writeBlueprint(t, `registrations:
  - kind: config
    coordinates: {crate: app, item: "1"}
    key: pool
    error_handler: {crate: app, item: "2"}
`)
	_, err := ParseBlueprint(path)

	var validationErr *weavererrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Message, "error handler")
}
