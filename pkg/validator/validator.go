// Package validator decodes JSON request bodies and checks them against
// go-playground/validator struct tags. Failures unwrap to
// apperrors.ErrValidation so they surface as 400 VALIDATION_ERROR.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
)

// MaxPasswordBytes is bcrypt's input limit; longer passwords would be
// silently truncated.
const MaxPasswordBytes = 72

// MaxBodyBytes caps request bodies read by DecodeAndValidate.
const MaxBodyBytes = 1 << 20

var validate = build()

func build() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	if err := v.RegisterValidation("password", validPassword); err != nil {
		panic(err)
	}
	return v
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

func validPassword(fl validator.FieldLevel) bool {
	pw := fl.Field().String()
	return strings.TrimSpace(pw) != "" && len(pw) <= MaxPasswordBytes
}

// Validate checks s against its validate tags. Field failures come back as a
// *ValidationError keyed by JSON field name.
func Validate(s any) error {
	err := validate.Struct(s)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return &ValidationError{Errors: fieldErrs}
	}
	return err
}

// DecodeAndValidate reads one JSON object of at most MaxBodyBytes into dst
// and validates it. Malformed, oversized or trailing input is reported as an
// apperrors validation error.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.Validation("request body too large")
		}
		return apperrors.Validation("invalid request body")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperrors.Validation("invalid request body")
	}
	return Validate(dst)
}

type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field()+" "+describe(fe))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return apperrors.ErrValidation }

// Fields maps each failing JSON field to a readable reason.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		out[fe.Field()] = describe(fe)
	}
	return out
}

var reasons = map[string]func(param string) string{
	"required": func(string) string { return "is required" },
	"email":    func(string) string { return "must be a valid email address" },
	"password": func(string) string {
		return fmt.Sprintf("must be non-blank and at most %d bytes", MaxPasswordBytes)
	},
	"min":   func(p string) string { return "must be at least " + p + " characters" },
	"max":   func(p string) string { return "must be at most " + p + " characters" },
	"oneof": func(p string) string { return "must be one of: " + p },
}

func describe(fe validator.FieldError) string {
	if reason, ok := reasons[fe.Tag()]; ok {
		return reason(fe.Param())
	}
	return "failed " + fe.Tag() + " check"
}
