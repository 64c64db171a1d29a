// Package validation checks tagged request structs and reports the first
// failure as an apperr.Validation error.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/xtrntr/fxdesk/internal/apperr"

	"github.com/go-playground/validator/v10"
)

// Messages maps a failure to the text returned to clients. Keys are
// "field.tag" (field by its json name) or just "tag"; the more specific key wins.
type Messages map[string]string

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct validates s against its `validate` tags
func Struct(s interface{}, messages Messages) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("failed to validate %T: %w", s, err)
	}

	fe := fieldErrs[0]
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return apperr.Validation(msg)
	}
	if msg, ok := messages[fe.Tag()]; ok {
		return apperr.Validation(msg)
	}
	return apperr.Validation(fmt.Sprintf("Invalid %s", fe.Field()))
}
