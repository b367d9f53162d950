// Package validate holds the process-wide struct validator with english
// messages and json field names
package validate

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	perr "amplisend/internal/platform/errors"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Svc pairs the validator with its translator
type Svc struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	once sync.Once
	svc  *Svc
)

// Get returns the singleton, building it on first use
func Get() *Svc {
	once.Do(func() {
		loc := en.New()
		trans, _ := ut.New(loc, loc).GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonName)
		_ = en_translations.RegisterDefaultTranslations(v, trans)
		registerEither(v, trans)

		svc = &Svc{Validator: v, Translator: trans}
	})
	return svc
}

// Struct validates s and returns the first failure as a validation error whose
// field is the json name of the offending field
func Struct(s any) error {
	g := Get()
	err := g.Validator.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "validate")
	}
	fe := ves[0]
	return perr.WithField(perr.Validationf("%s", fe.Translate(g.Translator)), fe.Field())
}

func jsonName(fld reflect.StructField) string {
	tag := fld.Tag.Get("json")
	if tag == "" || tag == "-" {
		return fld.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}

// registerEither gives required_without a message naming both alternatives
func registerEither(v *validator.Validate, trans ut.Translator) {
	_ = v.RegisterTranslation("required_without", trans,
		func(ut ut.Translator) error {
			return ut.Add("required_without", "{0} or {1} is required", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T("required_without", fe.Field(), toSnake(fe.Param()))
			return msg
		},
	)
}

// toSnake maps a Go field name such as DeviceID to device_id for messages
func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
