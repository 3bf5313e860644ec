package types

import (
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// ErrorCode classifies a failure. The prefix decides the HTTP status.
type ErrorCode string

// Error code constants. Telemetry reason strings and API error bodies use
// these values verbatim, so they are part of the log contract.
const (
	// Input validation (400)
	ErrCodeInvalidCoordinate    ErrorCode = "validation_invalid_coordinate"
	ErrCodeInvalidSample        ErrorCode = "validation_invalid_sample"
	ErrCodeInvalidThresholds    ErrorCode = "validation_invalid_threshold_config"
	ErrCodeInvalidCameraDataset ErrorCode = "validation_invalid_camera_dataset"
	ErrCodeMissingField         ErrorCode = "validation_missing_required_field"

	// Degraded operation (not fatal)
	ErrCodeMissingCameraDataset ErrorCode = "degraded_missing_camera_dataset"
	ErrCodeLogParseSkipped      ErrorCode = "degraded_log_parse_skipped"
	ErrCodeDeliveryFailed       ErrorCode = "degraded_delivery_failed"

	// Release gate
	ErrCodeGateFailure ErrorCode = "gate_failure"

	// Not Found (404)
	ErrCodeNotFoundParkingRecord ErrorCode = "not_found_parking_record"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamQueue       ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
)

var statusByPrefix = []struct {
	prefix string
	status int
}{
	{"validation_", http.StatusBadRequest},
	{"not_found_", http.StatusNotFound},
	{"upstream_", http.StatusBadGateway},
	{"degraded_", http.StatusAccepted},
}

// HTTPStatus returns the status for c, 500 when no prefix matches.
func (c ErrorCode) HTTPStatus() int {
	for _, p := range statusByPrefix {
		if strings.HasPrefix(string(c), p.prefix) {
			return p.status
		}
	}
	return http.StatusInternalServerError
}

// AppError carries a machine-readable code alongside the message, so every
// dropped sample, skipped line and failed gate can be logged with a reason.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) HTTPStatus() int { return e.Code.HTTPStatus() }

// WithDetails returns a copy with details merged over the existing ones.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+len(details))
	maps.Copy(cp.Details, e.Details)
	maps.Copy(cp.Details, details)
	return &cp
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}
