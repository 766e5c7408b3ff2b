package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"evalview/internal/errors"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.InvalidFilter, http.StatusBadRequest},
		{errors.InvalidPage, http.StatusBadRequest},
		{errors.Unauthorized, http.StatusUnauthorized},
		{errors.NotFound, http.StatusNotFound},
		{errors.RateLimited, http.StatusTooManyRequests},
		{errors.StoreNotFound, http.StatusServiceUnavailable},
		{errors.InternalError, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError}, // default case
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			got := MapErrorToStatus(tt.code)
			if got != tt.want {
				t.Errorf("MapErrorToStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("writes basic error", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, fmt.Errorf("something went wrong"), http.StatusInternalServerError)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}

		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Error != "something went wrong" {
			t.Errorf("resp.Error = %q, want 'something went wrong'", resp.Error)
		}
		if resp.Code != "INTERNAL_ERROR" {
			t.Errorf("resp.Code = %q, want INTERNAL_ERROR", resp.Code)
		}
	})

	t.Run("writes wrapped EvalError with details", func(t *testing.T) {
		w := httptest.NewRecorder()
		evalErr := errors.Newf(errors.InvalidFilter, "min_score must be a number").
			WithDetails(map[string]string{"param": "min_score"})

		WriteError(w, fmt.Errorf("query: %w", evalErr), http.StatusBadRequest)

		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Code != "INVALID_FILTER" {
			t.Errorf("resp.Code = %q, want INVALID_FILTER", resp.Code)
		}
		if resp.Error != "min_score must be a number" {
			t.Errorf("resp.Error = %q", resp.Error)
		}
		if resp.Details == nil {
			t.Error("resp.Details should not be nil")
		}
	})
}

func TestWriteEvalError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteEvalError(w, errors.Newf(errors.InvalidPage, "page must be at least 1"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	WriteEvalError(w, fmt.Errorf("disk I/O error at /secret/path"))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != "Internal server error" {
		t.Errorf("internal error text leaked: %q", resp.Error)
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, map[string]string{"message": "success"}, http.StatusOK)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["message"] != "success" {
		t.Errorf("resp[message] = %q, want success", resp["message"])
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad") }, http.StatusBadRequest, "INVALID_FILTER"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound, "NOT_FOUND"},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "database error", fmt.Errorf("x")) }, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp.Code != tt.code {
				t.Errorf("resp.Code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}
