package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"evalview/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error          string             `json:"error"`
	Code           string             `json:"code"`
	Details        interface{}        `json:"details,omitempty"`
	SuggestedFixes []errors.FixAction `json:"suggestedFixes,omitempty"`
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := ErrorResponse{
		Error: err.Error(),
	}

	var evalErr *errors.EvalError
	if stderrors.As(err, &evalErr) {
		resp.Error = evalErr.Message
		resp.Code = string(evalErr.Code)
		resp.Details = evalErr.Details
		resp.SuggestedFixes = evalErr.SuggestedFixes
	} else {
		resp.Code = string(errors.InternalError)
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// WriteEvalError writes err with the status its code maps to. Errors without
// a code are reported as internal errors and their text is not exposed.
func WriteEvalError(w http.ResponseWriter, err error) {
	var evalErr *errors.EvalError
	if !stderrors.As(err, &evalErr) {
		InternalError(w, "Internal server error", err)
		return
	}
	WriteError(w, evalErr, MapErrorToStatus(evalErr.Code))
}

// MapErrorToStatus maps error codes to HTTP status codes
func MapErrorToStatus(code errors.ErrorCode) int {
	switch code {
	case errors.InvalidFilter, errors.InvalidPage:
		return http.StatusBadRequest // 400
	case errors.Unauthorized:
		return http.StatusUnauthorized // 401
	case errors.NotFound:
		return http.StatusNotFound // 404
	case errors.RateLimited:
		return http.StatusTooManyRequests // 429
	case errors.StoreNotFound:
		return http.StatusServiceUnavailable // 503
	case errors.InternalError:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 Bad Request error
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, errors.Newf(errors.InvalidFilter, "%s", message), http.StatusBadRequest)
}

// NotFound writes a 404 Not Found error
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, errors.Newf(errors.NotFound, "%s", message), http.StatusNotFound)
}

// MethodNotAllowed writes a 405 error
func MethodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", "GET, HEAD, OPTIONS")
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// InternalError writes a 500 Internal Server Error. The cause is logged by
// the caller, never sent to the client.
func InternalError(w http.ResponseWriter, message string, _ error) {
	WriteError(w, errors.Newf(errors.InternalError, "%s", message), http.StatusInternalServerError)
}
