// Package validate holds the struct validator shared by form decoding and
// backend response schemas.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"pulsepoint/pkg/types"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("bloodgroup", func(fl validator.FieldLevel) bool {
			return types.BloodGroup(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return types.Role(fl.Field().String()).Valid()
		})
		instance = v
	})
	return instance
}

// Struct validates v against its `validate` tags.
func Struct(v any) error {
	return get().Struct(v)
}

// FieldErrors flattens a validation error into form field name -> message.
// Field names are taken from the `form` tag when present.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out[""] = err.Error()
		return out
	}

	for _, fe := range verrs {
		out[fieldName(fe)] = message(fe)
	}

	return out
}

func fieldName(fe validator.FieldError) string {
	name := fe.StructField()
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "bloodgroup":
		return "Choose one of A+, A-, B+, B-, AB+, AB-, O+, O-."
	case "datetime":
		return fmt.Sprintf("Use the format %s.", fe.Param())
	case "gt":
		return fmt.Sprintf("Must be greater than %s.", fe.Param())
	default:
		return "Invalid value."
	}
}
