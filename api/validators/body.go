package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
)

// MaxBodyBytes caps JSON request bodies. Inquiry notes are the largest payload.
const MaxBodyBytes = 64 << 10

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}()

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// DecodeJSONBody decodes exactly one JSON object into dest, rejecting unknown
// fields and trailing data, then runs struct validation.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return decodeError(err)
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func decodeError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return pkgerrors.New(pkgerrors.CodeValidation, "request body is required")
	case errors.As(err, &maxErr):
		return pkgerrors.New(pkgerrors.CodeValidation, "request body too large").
			WithDetails(map[string]any{"limit_bytes": maxErr.Limit})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
		WithDetails(map[string]any{"error": err.Error()})
}

func formatValidationErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[fieldErr.Field()] = validationMessage(fieldErr)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

var fixedMessages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email",
	"uuid":     "must be a valid uuid",
}

func validationMessage(fe validator.FieldError) string {
	if msg, ok := fixedMessages[fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be %s %s characters", bound, fe.Param())
		}
		return fmt.Sprintf("must be %s %s", bound, fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "is invalid"
}
