package payload

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/vasapolrittideah/credential-authority/shared/security"
)

// Validator checks request payloads and renders failures in English.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// NewValidator creates a Validator with the English translations and the
// strongpassword tag registered.
func NewValidator() (*Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Report json names instead of Go field names
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	english := en.New()
	trans, _ := ut.New(english, english).GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, fmt.Errorf("register translations: %w", err)
	}

	if err := validate.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return security.ValidatePasswordStrength(fl.Field().String()) == nil
	}); err != nil {
		return nil, fmt.Errorf("register strongpassword: %w", err)
	}

	if err := validate.RegisterTranslation("strongpassword", trans,
		func(ut ut.Translator) error {
			return ut.Add("strongpassword", fmt.Sprintf(
				"{0} must be at least %d characters and contain upper and lower case letters, a digit and a symbol",
				security.MinPasswordLength,
			), true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T("strongpassword", fe.Field())
			return t
		},
	); err != nil {
		return nil, fmt.Errorf("register strongpassword translation: %w", err)
	}

	return &Validator{validate: validate, trans: trans}, nil
}

// ValidationErrors maps the json name of every failing field to its
// translated message.
type ValidationErrors map[string]string

func (e ValidationErrors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs = append(msgs, e[field])
	}
	return strings.Join(msgs, "; ")
}

// Validate checks s and returns ValidationErrors when a field fails.
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	details := make(ValidationErrors, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Translate(v.trans)
	}

	return details
}
