package command

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/slotsync/internal/timegrid"
)

// ValidationError captures field level validation issues that callers can
// surface to users. A failed validation always blocks the send.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// Validator checks commands before they are sent. The time source is
// injected so temporal constraints stay deterministic in tests.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewValidator constructs a Validator using the given time source. A nil now
// falls back to time.Now.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}

	v := validator.New()

	// Report field names as they appear on the wire.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	_ = v.RegisterValidation("caldate", func(fl validator.FieldLevel) bool {
		_, err := timegrid.ParseDate(fl.Field().String())
		return err == nil
	})

	return &Validator{validate: v, now: now}
}

// Validate runs structural and temporal checks against the command. It
// returns a *ValidationError naming each offending field, or nil.
func (v *Validator) Validate(cmd Command) error {
	vErr := &ValidationError{}

	if err := v.validate.Struct(cmd); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			vErr.add("input", err.Error())
			return vErr
		}
		for _, fe := range fieldErrs {
			vErr.add(fe.Field(), tagMessage(fe))
		}
	}

	if vErr.HasErrors() {
		return vErr
	}

	if future, ok := cmd.(futureConstrained); ok {
		field, instant, err := future.futureInstant()
		if err != nil {
			vErr.add(field, "must be a calendar date in the form YYYY-MM-DD")
			return vErr
		}
		if instant.Before(v.now()) {
			vErr.add(field, "must not be in the past")
			return vErr
		}
	}

	return nil
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid4":
		return "must be a valid identifier"
	case "caldate":
		return "must be a calendar date in the form YYYY-MM-DD"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "is below the allowed minimum"
	case "max":
		return "is above the allowed maximum"
	default:
		return "is invalid"
	}
}
