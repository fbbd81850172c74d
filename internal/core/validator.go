package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"floodfactor/internal/types"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// IsValid reports whether no blocking errors were found.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// warner is implemented by request types that can flag accepted-but-odd
// input.
type warner interface {
	Warnings() []string
}

// Validator wraps go-playground/validator with the service's custom tags and
// maps failures onto AppError codes.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator registers the custom tags and reports fields by their JSON
// names.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("artifact_name", validateArtifactName); err != nil {
		logger.Error("failed to register validation tag", "tag", "artifact_name", "error", err)
	}

	return &Validator{validate: v, logger: logger}
}

func validateArtifactName(fl validator.FieldLevel) bool {
	return types.ValidateArtifactName(fl.Field().String()) == nil
}

// ValidateStruct returns nil or an AppError whose code comes from the first
// failing field. All failures are listed under details["validation_errors"].
func (v *Validator) ValidateStruct(s any) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}
	first := result.Errors[0]
	return types.NewAppErrorWithDetails(types.ErrorCode(first.Code), first.Message, nil,
		map[string]any{"validation_errors": result.Errors})
}

// ValidateStructWithWarnings collects every failure plus the warnings the
// value reports about itself.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	var result ValidationResult

	if err := v.validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			v.logger.Error("validator failed unexpectedly", "error", err)
			result.Errors = append(result.Errors, ValidationError{
				Field:   "",
				Code:    string(types.ErrCodeValidationInvalidRequest),
				Message: "request could not be validated",
			})
			return result
		}
		for _, fe := range fieldErrs {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fieldPath(fe),
				Code:    errorCodeFor(fe),
				Message: messageFor(fe),
			})
		}
	}

	if w, ok := s.(warner); ok {
		result.Warnings = append(result.Warnings, w.Warnings()...)
	}
	return result
}

// fieldPath drops the top-level struct name from the namespace
// ("FloodRequest.bbox.east" becomes "bbox.east").
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// tagToErrorCode maps tags whose meaning does not depend on the field.
func tagToErrorCode(tag string) string {
	switch tag {
	case "required", "required_without", "required_with", "required_if":
		return string(types.ErrCodeValidationMissingField)
	case "latitude":
		return string(types.ErrCodeValidationInvalidLat)
	case "longitude":
		return string(types.ErrCodeValidationInvalidLon)
	case "artifact_name":
		return string(types.ErrCodeValidationInvalidArtifact)
	}
	return ""
}

func errorCodeFor(fe validator.FieldError) string {
	if code := tagToErrorCode(fe.Tag()); code != "" {
		return code
	}
	switch fe.Field() {
	case "rainfall_intensity":
		return string(types.ErrCodeValidationInvalidRainfall)
	case "duration":
		return string(types.ErrCodeValidationInvalidDuration)
	case "west", "east", "south", "north":
		return string(types.ErrCodeValidationInvalidBBox)
	}
	return string(types.ErrCodeValidationInvalidRequest)
}

func messageFor(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required", "required_without", "required_with", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gtfield":
		return fmt.Sprintf("%s must be greater than %s", field, strings.ToLower(fe.Param()))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
