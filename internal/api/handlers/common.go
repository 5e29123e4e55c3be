// Package handlers implements the HTTP handlers of the scanward trigger
// API. This file holds the helpers shared across handlers: JSON
// responses, error mapping, and strict request parsing.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scanward/scanward/internal/api/middleware"
	"github.com/scanward/scanward/internal/errors"
	"github.com/scanward/scanward/internal/logging"
)

// ErrorResponse is the JSON body of every error answer, including the
// router's 404 fallback.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error("failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"path", r.URL.Path,
			"error", err)
	}
}

// writeError writes an error response with a status derived from the
// error's code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorStatus(w, r, statusForError(err), err)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	}
	if code := errors.GetCode(err); code != errors.CodeUnknown {
		response.Code = string(code)
	}

	writeJSON(w, r, statusCode, response)
}

// statusForError maps the job error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeInvalidTarget, errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeBusy:
		return http.StatusConflict
	case errors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// parseJSON decodes a request body strictly: unknown fields are
// rejected so typos in trigger payloads fail loudly. An empty body is
// reported as io.EOF for callers that allow it.
func parseJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return io.EOF
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return errors.NewJobError(errors.CodeValidation,
			fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// NotFound is the router fallback: unknown paths answer JSON like
// every other endpoint.
func NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, r, http.StatusNotFound,
			fmt.Errorf("no such endpoint: %s", r.URL.Path))
	})
}

// MethodNotAllowed answers JSON for wrong-method requests.
func MethodNotAllowed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, r, http.StatusMethodNotAllowed,
			fmt.Errorf("method %s not allowed for %s", r.Method, r.URL.Path))
	})
}
