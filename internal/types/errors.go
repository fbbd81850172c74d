package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField    ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidLat      ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon      ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationInvalidBBox     ErrorCode = "validation_invalid_bounding_box"
	ErrCodeValidationInvalidRainfall ErrorCode = "validation_invalid_rainfall_intensity"
	ErrCodeValidationInvalidDuration ErrorCode = "validation_invalid_duration"
	ErrCodeValidationInvalidVolume   ErrorCode = "validation_invalid_runoff_volume"
	ErrCodeValidationInvalidGrid     ErrorCode = "validation_invalid_grid"
	ErrCodeValidationInvalidTable    ErrorCode = "validation_invalid_cfactor_table"
	ErrCodeValidationInvalidArtifact ErrorCode = "validation_invalid_artifact_name"
	ErrCodeValidationGeocodeFailed   ErrorCode = "validation_geocode_failed"
	ErrCodeValidationInvalidRequest  ErrorCode = "validation_invalid_request"

	// Hydrology (422): the inputs are well-formed but the terrain cannot be modeled.
	ErrCodeChannelNotFound          ErrorCode = "channel_not_found"
	ErrCodeCRSMismatch              ErrorCode = "crs_mismatch"
	ErrCodeSimulationDegenerate     ErrorCode = "simulation_numeric_degeneracy"
	ErrCodeSimulationIterationLimit ErrorCode = "simulation_iteration_limit"

	// Not Found (404)
	ErrCodeNotFoundRun      ErrorCode = "not_found_run"
	ErrCodeNotFoundArtifact ErrorCode = "not_found_artifact"

	// Conflict (409)
	ErrCodeConflictRunState ErrorCode = "conflict_run_state"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB           ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected   ErrorCode = "internal_unexpected_error"
	ErrCodeInternalStorage      ErrorCode = "internal_storage_error"
	ErrCodeToolkitMissingOutput ErrorCode = "toolkit_missing_output"
	ErrCodeToolkitFailed        ErrorCode = "toolkit_failed"
	ErrCodeUpstreamGeocoder     ErrorCode = "upstream_geocoder_unavailable"
	ErrCodeUpstreamElevation    ErrorCode = "upstream_elevation_unavailable"
	ErrCodeUpstreamQueue        ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamUnavailable  ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited  ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case c == ErrCodeChannelNotFound, c == ErrCodeCRSMismatch:
		return http.StatusUnprocessableEntity // 422
	case strings.HasPrefix(s, "simulation_"):
		return http.StatusUnprocessableEntity // 422
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "toolkit_"):
		return http.StatusInternalServerError // 500
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the service.
// Pipeline stages and handlers express failures as AppError so that a failed
// run can be reported and persisted with a stable code.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError carrying the same code. This lets
// package-level sentinel AppErrors be matched with errors.Is even after
// WithDetails has produced a copy.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf extracts the ErrorCode carried by err. Errors that are not AppErrors
// report ErrCodeInternalUnexpected.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}
