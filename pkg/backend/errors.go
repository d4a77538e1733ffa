package backend

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
)

// APIError is a non-2xx answer from the backend, or Status 0 when the backend could not be reached.
// Data holds the decoded error body: usually {"detail": "..."}, a field-error object, or a bare list
// of messages.
type APIError struct {
	Status int
	Data   any
	cause  error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("backend unreachable: %v", e.cause)
	}
	return fmt.Sprintf("backend api error: status=%d message=%s", e.Status, e.Message())
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Unreachable reports a transport failure rather than a backend answer.
func (e *APIError) Unreachable() bool {
	return e.Status == 0
}

// Message extracts the text a user should see: the "detail" string, else the first message of the
// first field error, else the HTTP status text.
func (e *APIError) Message() string {
	if e.Status == 0 {
		return "Cannot reach the marketplace backend. Please try again shortly."
	}
	switch data := e.Data.(type) {
	case map[string]any:
		if d, ok := data["detail"].(string); ok && d != "" {
			return d
		}
		for _, key := range fieldOrder(data) {
			if msg := firstString(data[key]); msg != "" {
				return msg
			}
		}
	case []any:
		if msg := firstString(data); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("%s (HTTP %d)", http.StatusText(e.Status), e.Status)
}

// fieldOrder puts non_field_errors first so form-wide errors win over a single field. The rest are
// sorted so the chosen message does not depend on map order.
func fieldOrder(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != "non_field_errors" && k != "detail" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if _, ok := m["non_field_errors"]; ok {
		keys = append([]string{"non_field_errors"}, keys...)
	}
	return keys
}

func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// AsAPIError unwraps err into an *APIError when the failure came from the backend call.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
