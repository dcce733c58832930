// Package form binds submitted HTML forms onto entities and validates them.
//
// A form wraps a target entity. On GET it only exposes the entity's current
// values for rendering; on a POST carrying the form's fields it copies the
// submitted values onto the entity and runs the declared validation rules.
// Binding happens even when validation fails, so a rejected form can be
// redisplayed with exactly what the user typed next to the error messages.
package form

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// decoder copies posted values onto input structs by their `form` tag.
// Keys a form does not declare, such as the security token, are skipped.
var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag("form")
	d.IgnoreUnknownKeys(true)
	return d
}

// validatorInstance returns the shared validator. Field errors are reported
// under the `form` tag name, so they line up with the input names in the
// templates.
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		// Registration only fails on an empty tag or a nil func.
		_ = validate.RegisterValidation("score_range", scoreInRange)
	})
	return validate
}

// fieldErrors runs the validator over v and turns its complaints into one
// message per field. Only the first failing rule of a field is kept.
func fieldErrors(v any, messages map[string]string) map[string]string {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	errs := map[string]string{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs[""] = err.Error()
		return errs
	}
	for _, fe := range verrs {
		if _, seen := errs[fe.Field()]; seen {
			continue
		}
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fe.Field() + " is invalid"
		}
		errs[fe.Field()] = msg
	}
	return errs
}
