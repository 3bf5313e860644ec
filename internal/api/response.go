package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"drivewatch/internal/types"
)

// maxRequestBodySize caps a request body; a full batch fits well inside.
const maxRequestBodySize = 4 << 20

const errCodeInvalidJSON types.ErrorCode = "validation_invalid_json"

// APIErrorResponse is the envelope for every error response.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-visible part of an error.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON encodes data with status. An unencodable value degrades to a 500
// error body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorBody(r, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode response", err)))
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func errorBody(r *http.Request, e *types.AppError) APIErrorResponse {
	return APIErrorResponse{Error: ErrorDetail{
		Code:      string(e.Code),
		Message:   e.Message,
		Details:   e.Details,
		RequestID: types.GetRequestID(r.Context()),
	}}
}

// Error writes err as an APIErrorResponse. An *types.AppError picks the status
// from its code; anything else becomes a generic 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		appErr = types.NewAppError(types.ErrCodeInternalUnexpected, "an unexpected error occurred", err)
	}
	JSON(w, r, appErr.HTTPStatus(), errorBody(r, appErr))
}

// decodeStrict decodes exactly one JSON value from data into dst, rejecting
// unknown fields.
func decodeStrict(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return types.NewAppError(errCodeInvalidJSON, "body must hold a single JSON value", nil)
	}
	return nil
}

func decodeError(err error) *types.AppError {
	var (
		tooLarge *http.MaxBytesError
		syntax   *json.SyntaxError
		typeErr  *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &tooLarge):
		return types.NewAppErrorWithDetails(errCodeInvalidJSON, "body too large", err,
			map[string]any{"limit_bytes": tooLarge.Limit})
	case errors.As(err, &syntax):
		return types.NewAppErrorWithDetails(errCodeInvalidJSON, "malformed JSON", err,
			map[string]any{"offset": syntax.Offset})
	case errors.As(err, &typeErr):
		return types.NewAppErrorWithDetails(errCodeInvalidJSON, "wrong type for field", err,
			map[string]any{"field": typeErr.Field, "expected": typeErr.Type.String()})
	}
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return types.NewAppErrorWithDetails(errCodeInvalidJSON, "unknown field", err,
			map[string]any{"field": strings.Trim(field, `"`)})
	}
	return types.NewAppError(errCodeInvalidJSON, "invalid JSON body", err)
}
