package apierror

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldErrors maps a field name to its validation messages
type FieldErrors map[string][]string

// Add appends msg to field
func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Messages returns every message ordered by field name
func (f FieldErrors) Messages() []string {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var out []string
	for _, field := range fields {
		for _, msg := range f[field] {
			if msg != "" {
				out = append(out, msg)
			}
		}
	}
	return out
}

// Join returns all messages separated by ", "
func (f FieldErrors) Join() string {
	return strings.Join(f.Messages(), ", ")
}

func (f FieldErrors) Error() string {
	if len(f) == 0 {
		return "validation failed"
	}
	return "validation failed: " + f.Join()
}

// FromValidator converts validator errors into FieldErrors keyed by the
// field's JSON name when the validator was set up to report it.
func FromValidator(errs validator.ValidationErrors) FieldErrors {
	out := make(FieldErrors, len(errs))
	for _, fe := range errs {
		out.Add(fe.Field(), validatorMessage(fe))
	}
	return out
}

func validatorMessage(fe validator.FieldError) string {
	name := humanize(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "email":
		return "Invalid email format"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", name, fe.Param())
	case "eqfield":
		return fmt.Sprintf("%s must match %s", name, humanize(fe.Param()))
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", name, humanize(fe.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}

// humanize turns "first_name" into "First name"
func humanize(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
