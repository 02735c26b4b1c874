package parent

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/smartedu/dashboard/internal/domain/shared"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = RegisterValidations(v)
	return v
}

// RegisterValidations adds the parent_status, parent_stage and sort_field
// tags to v, so HTTP form bindings accept the same rules
func RegisterValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("parent_status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation("parent_stage", func(fl validator.FieldLevel) bool {
		return Stage(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("sort_field", func(fl validator.FieldLevel) bool {
		for _, f := range SortFields {
			if f == fl.Field().String() {
				return true
			}
		}
		return false
	})
}

// Validator exposes the configured validator so HTTP bindings share the custom tags
func Validator() *validator.Validate {
	return validate
}

// validateStruct runs struct tags and converts the first failure into a DomainError
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return err
	}
	fe := ve[0]
	return shared.NewValidationError(fe.Field(), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be a date in YYYY-MM-DD form"
	case "parent_status":
		return fmt.Sprintf("unknown status %q", fe.Value())
	case "parent_stage":
		return fmt.Sprintf("unknown stage %q", fe.Value())
	case "sort_field":
		return fmt.Sprintf("cannot sort by %q", fe.Value())
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
