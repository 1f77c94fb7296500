package blueprint

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	weavererrors "github.com/alexisbeaulieu97/weaver/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	configKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	pathParamPattern = regexp.MustCompile(`^\{\*?[A-Za-z_][A-Za-z0-9_]*\}$`)
	domainLabel      = regexp.MustCompile(`^(\*|[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)$`)

	registrationKinds = map[string]struct{}{
		KindConstructor:      {},
		KindConfig:           {},
		KindPrebuilt:         {},
		KindRoute:            {},
		KindFallback:         {},
		KindWrappingMW:       {},
		KindPreProcessingMW:  {},
		KindPostProcessingMW: {},
		KindErrorObserver:    {},
		KindImport:           {},
	}
	lifecycles = map[string]struct{}{
		LifecycleSingleton:     {},
		LifecycleRequestScoped: {},
		LifecycleTransient:     {},
	}
	cloningPolicies = map[string]struct{}{
		CloningNever:       {},
		CloningIfNecessary: {},
	}
	httpMethods = map[string]struct{}{
		"GET": {}, "HEAD": {}, "POST": {}, "PUT": {}, "DELETE": {},
		"CONNECT": {}, "OPTIONS": {}, "TRACE": {}, "PATCH": {}, "ANY": {},
	}
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("registration_kind", func(fl validator.FieldLevel) bool {
			_, ok := registrationKinds[fl.Field().String()]
			return ok
		})

		_ = v.RegisterValidation("lifecycle", func(fl validator.FieldLevel) bool {
			_, ok := lifecycles[fl.Field().String()]
			return ok
		})

		_ = v.RegisterValidation("cloning_policy", func(fl validator.FieldLevel) bool {
			_, ok := cloningPolicies[fl.Field().String()]
			return ok
		})

		_ = v.RegisterValidation("config_key", func(fl validator.FieldLevel) bool {
			return configKeyPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("route_prefix", func(fl validator.FieldLevel) bool {
			return ValidRoutePath(fl.Field().String()) == nil
		})

		_ = v.RegisterValidation("domain_guard", func(fl validator.FieldLevel) bool {
			return ValidDomainGuard(fl.Field().String()) == nil
		})

		validateInst = v
	})

	return validateInst
}

// ValidRoutePath checks a route path or prefix: it must start with a slash and
// every parameter segment must be well-formed. A catch-all parameter may only
// appear in the final segment.
func ValidRoutePath(path string) error {
	if path == "" {
		return nil
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("route paths must begin with '/', got %q", path)
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, segment := range segments {
		if !strings.Contains(segment, "{") {
			continue
		}
		if !pathParamPattern.MatchString(segment) {
			return fmt.Errorf("malformed path parameter segment %q in %q", segment, path)
		}
		if strings.HasPrefix(segment, "{*") && i != len(segments)-1 {
			return fmt.Errorf("catch-all parameter %q must be the final segment of %q", segment, path)
		}
	}
	return nil
}

// ValidDomainGuard checks a host pattern: dot-separated labels, each either a
// literal or a single-label wildcard.
func ValidDomainGuard(domain string) error {
	if domain == "" {
		return nil
	}
	for _, label := range strings.Split(domain, ".") {
		if !domainLabel.MatchString(label) {
			return fmt.Errorf("invalid domain label %q in %q", label, domain)
		}
	}
	return nil
}

// ValidateBlueprint performs schema and cross-field validation on the
// blueprint tree.
func ValidateBlueprint(bp *Blueprint) error {
	if bp == nil {
		return weavererrors.NewValidationError("blueprint", "blueprint is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(bp); err != nil {
		return convertValidationError(err)
	}

	return validateNode(bp, "blueprint")
}

func validateNode(bp *Blueprint, field string) error {
	for i, reg := range bp.Registrations {
		regField := fmt.Sprintf("%s.registrations[%d]", field, i)
		if err := validateRegistration(reg, regField); err != nil {
			return err
		}
	}
	for i, nested := range bp.Nested {
		if err := validateNode(nested, fmt.Sprintf("%s.nested[%d]", field, i)); err != nil {
			return err
		}
	}
	return nil
}

func validateRegistration(reg *Registration, field string) error {
	switch reg.Kind {
	case KindImport:
		if len(reg.Modules) == 0 {
			return weavererrors.NewValidationError(field, "import registrations require at least one module", nil)
		}
		return nil
	case KindRoute:
		if reg.Method == "" || reg.Path == "" {
			return weavererrors.NewValidationError(field, "route registrations require a method and a path", nil)
		}
		if _, ok := httpMethods[strings.ToUpper(reg.Method)]; !ok {
			return weavererrors.NewValidationError(field, fmt.Sprintf("unknown HTTP method %q", reg.Method), nil)
		}
		if err := ValidRoutePath(reg.Path); err != nil {
			return weavererrors.NewValidationError(field, err.Error(), nil)
		}
	case KindConfig:
		if reg.Key == "" {
			return weavererrors.NewValidationError(field, "config registrations require a key", nil)
		}
	}

	if reg.Kind != KindImport && reg.Coordinates == nil {
		return weavererrors.NewValidationError(field, fmt.Sprintf("%s registrations require coordinates", reg.Kind), nil)
	}

	if reg.ErrorHandler != nil {
		switch reg.Kind {
		case KindConstructor, KindRoute, KindWrappingMW, KindPreProcessingMW, KindPostProcessingMW:
		default:
			return weavererrors.NewValidationError(field, fmt.Sprintf("%s registrations cannot carry an error handler", reg.Kind), nil)
		}
	}

	return nil
}

func convertValidationError(err error) error {
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return weavererrors.NewValidationError("blueprint", invalid.Error(), err)
	}

	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		first := errs[0]
		message := fmt.Sprintf("failed %q validation", first.Tag())
		return weavererrors.NewValidationError(strings.ToLower(first.Namespace()), message, err)
	}

	return weavererrors.NewValidationError("blueprint", err.Error(), err)
}
