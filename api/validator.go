package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tradesense/tradesense-go/apierror"
)

// Validator checks request forms before they are sent
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator reporting fields by their JSON name
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate returns apierror.FieldErrors when form breaks its rules
func (v *Validator) Validate(form any) error {
	if err := v.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apierror.FromValidator(verrs)
		}
		return err
	}
	return nil
}
