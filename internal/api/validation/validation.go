package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pvboard/pvboard/internal/project"
	"github.com/pvboard/pvboard/internal/teammember"
)

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "personname", func(fl validator.FieldLevel) bool {
		return teammember.ValidName(fl.Field().String())
	})
	mustRegister(v, "weburl", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	})
	mustRegister(v, "projecttype", oneOf(project.ProjectTypes))
	mustRegister(v, "projectstatus", oneOf(project.Statuses))
	mustRegister(v, "department", oneOf(project.Departments))

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("registering %s validation: %v", tag, err))
	}
}

func oneOf(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return slices.Contains(allowed, fl.Field().String())
	}
}

// check runs the struct-tag rules on s and translates failures into field
// errors.
func check(s any) []FieldError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Message: err.Error()}}
	}

	errs := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return errs
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "personname":
		return field + " can only contain letters and spaces"
	case "weburl":
		return field + " must be a valid http(s) URL"
	case "projecttype":
		return field + " must be one of: " + strings.Join(project.ProjectTypes, ", ")
	case "projectstatus":
		return field + " must be one of: " + strings.Join(project.Statuses, ", ")
	case "department":
		return field + " must be one of: " + strings.Join(project.Departments, ", ")
	default:
		return field + " is invalid"
	}
}
