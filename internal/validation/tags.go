package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// TagName is the struct tag carrying field rules. gin reads the same tag
// when binding requests.
const TagName = "binding"

var (
	engineOnce sync.Once
	engine     *validator.Validate
)

// Configure reports fields under their json names and registers notblank,
// a required that rejects whitespace-only strings
func Configure(v *validator.Validate) {
	v.RegisterTagNameFunc(jsonName)
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "" {
		return f.Name
	}
	return name
}

func validate() *validator.Validate {
	engineOnce.Do(func() {
		engine = validator.New()
		engine.SetTagName(TagName)
		Configure(engine)
	})
	return engine
}

// Struct checks the binding tags of v. The result is keyed by json field
// name and is empty when every rule holds.
func Struct(v interface{}) map[string]string {
	fields, _ := FieldErrors(validate().Struct(v))
	return fields
}

// Var checks one value against rule and returns the message for field, or
// "" when it passes
func Var(field string, value interface{}, rule string) string {
	var verrs validator.ValidationErrors
	if errors.As(validate().Var(value, rule), &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fieldMessage(field, fe.Tag(), fe.Param(), fe.Kind())
	}
	return ""
}

// FieldErrors translates a validator failure into field messages. ok is
// false when err is not a validation failure, e.g. malformed JSON.
func FieldErrors(err error) (fields map[string]string, ok bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}
	fields = make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = fieldMessage(fe.Field(), fe.Tag(), fe.Param(), fe.Kind())
		}
	}
	return fields, true
}

func fieldMessage(field, tag, param string, kind reflect.Kind) string {
	label := Humanize(field)
	switch tag {
	case "required", "notblank":
		return RequiredMessage(field)
	case "min":
		if kind == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", label, param)
		}
		return fmt.Sprintf("%s must be at least %s", label, param)
	case "max":
		if kind == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", label, param)
		}
		return fmt.Sprintf("%s must be at most %s", label, param)
	case "oneof":
		return fmt.Sprintf("%s must be %s", label, strings.Join(strings.Fields(param), " or "))
	}
	return label + " is invalid"
}
