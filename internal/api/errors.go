package api

import (
	"encoding/json"
	"net/http"

	"umrahlink/pkg/backend"
)

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeActionNotPermitted = "ACTION_NOT_PERMITTED"
	CodeBackendRejected    = "BACKEND_REJECTED"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Error: APIError{Code: code, Message: message},
	})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteBackendError maps a failed backend call onto the envelope. Unreachable backends become 502,
// auth and lookup failures keep their meaning, and every other refusal is BACKEND_REJECTED with the
// backend's own status and message.
func WriteBackendError(w http.ResponseWriter, err error) {
	apiErr, ok := backend.AsAPIError(err)
	if !ok {
		WriteError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}
	switch {
	case apiErr.Unreachable():
		WriteError(w, http.StatusBadGateway, CodeBackendUnavailable, apiErr.Message())
	case apiErr.Status == http.StatusUnauthorized:
		WriteError(w, http.StatusUnauthorized, CodeUnauthorized, apiErr.Message())
	case apiErr.Status == http.StatusNotFound:
		WriteError(w, http.StatusNotFound, CodeNotFound, apiErr.Message())
	default:
		WriteError(w, apiErr.Status, CodeBackendRejected, apiErr.Message())
	}
}
