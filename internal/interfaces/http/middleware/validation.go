package middleware

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var setupOnce sync.Once

// SetupValidator configures gin's validator: field names in errors follow
// the form or json tag, and the notblank tag rejects whitespace-only values.
func SetupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"form", "json", "uri"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
}

// BindingError turns a gin binding failure into a ValidationError naming
// the offending fields.
func BindingError(err error) *shared.ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &shared.ValidationError{Message: "Malformed request: " + err.Error()}
	}

	keys := make([]string, 0, len(verrs))
	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		keys = append(keys, e.Field())
		messages = append(messages, e.Field()+": "+getValidationMessage(e))
	}
	return &shared.ValidationError{Message: strings.Join(messages, "; "), Keys: keys}
}

// getValidationMessage returns a human-readable validation message
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "notblank":
		return "This field is required"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "email":
		return "Invalid email format"
	default:
		return "Invalid value"
	}
}
