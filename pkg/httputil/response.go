// Package httputil provides HTTP handler utilities for consistent JSON
// encoding, error envelopes, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the standardized error envelope
type ErrorResponse struct {
	Error    string   `json:"error"`
	Kind     string   `json:"kind,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 OK response with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a 201 Created response with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes a JSON error envelope with the given status code
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteErrorMessage(w, status, err.Error())
}

// WriteErrorMessage writes a JSON error envelope with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteValidationFailed writes a 400 response carrying every collected
// validation message; callers surface the full list, never a partial one.
func WriteValidationFailed(w http.ResponseWriter, messages []string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:    "validation failed",
		Kind:     "ValidationFailed",
		Messages: messages,
	})
}

// WriteForbidden writes a 403 response with a permission failure kind
func WriteForbidden(w http.ResponseWriter, kind, message string) {
	WriteJSON(w, http.StatusForbidden, ErrorResponse{Error: message, Kind: kind})
}

// WriteUnauthorized writes a 401 response
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteIntegrityError writes a 500 response for configuration or integrity
// faults (for example an authenticated principal absent from the
// directory). These are operator problems, not user problems.
func WriteIntegrityError(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: message,
		Kind:  "IntegrityError",
	})
}

// WriteInternalError writes a 500 response with a generic message; the
// underlying error belongs in the log, not the response body.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal error")
}

// WriteNotFound writes a 404 response
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}
