package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"example.com/backstage/services/clinops/errs"
)

var (
	validate       *validator.Validate
	statusCodeExpr = regexp.MustCompile(`^[A-Z][A-Z_]*$`)
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	RegisterCustomValidations()
}

// ValidateStruct validates a struct using validation tags. Field failures are
// reported as an *errs.ValidationError keyed by json field name.
func ValidateStruct(s interface{}) error {
	return report(s, validate.Struct(s))
}

// ValidateStructExcept validates s, skipping the named top-level fields
func ValidateStructExcept(s interface{}, fields ...string) error {
	return report(s, validate.StructExcept(s, fields...))
}

func report(s interface{}, err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate %T: %w", s, err)
	}

	verr := &errs.ValidationError{
		Message: "invalid request",
		Fields:  make(map[string]string, len(fieldErrs)),
	}
	for _, fe := range fieldErrs {
		verr.Fields[fe.Field()] = describe(fe)
	}
	return verr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "email":
		return "must be a valid email address"
	case "datetime":
		return "must be a date formatted as YYYY-MM-DD"
	case "status_code":
		return "must be an upper-case status code"
	case "identity":
		return "must be a UUID or a positive integer id"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// IsValidIdentity reports whether s is a canonical UUID or a positive
// base-10 legacy id.
func IsValidIdentity(s string) bool {
	if _, err := uuid.Parse(s); err == nil {
		return true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && n > 0
}

// RegisterCustomValidations registers custom validation functions
func RegisterCustomValidations() {
	validate.RegisterValidation("status_code", func(fl validator.FieldLevel) bool {
		return statusCodeExpr.MatchString(fl.Field().String())
	})

	validate.RegisterValidation("identity", func(fl validator.FieldLevel) bool {
		return IsValidIdentity(fl.Field().String())
	})
}
