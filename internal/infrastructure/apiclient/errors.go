package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const defaultErrorMessage = "An error occurred"

// Sentinel errors
var (
	// ErrUnauthorized means the token is missing, expired or rejected. The
	// session should be dropped and the user sent back to the login page.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoCustomer means no customer id was available for a tenant-scoped call
	ErrNoCustomer = errors.New("no customer id configured for this session")
)

// APIError is a normalised non-2xx response from the admissions backend
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.Status, e.Message)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsUnsupported reports whether the backend lacks the endpoint (404, 405 or 501)
func IsUnsupported(err error) bool {
	switch statusOf(err) {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	}
	return false
}

// IsValidation reports whether the backend rejected the payload (400 or 422)
func IsValidation(err error) bool {
	s := statusOf(err)
	return s == http.StatusBadRequest || s == http.StatusUnprocessableEntity
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Message returns a user-facing message for err
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, context.DeadlineExceeded):
		return "The admissions service did not respond in time"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return defaultErrorMessage
}

// errorBody covers the error shapes the backend produces: FastAPI's
// {"detail": "..."} and {"detail": [{"msg": ...}]}, plus {"message": ...}
// and {"error": {"message": ...}} from proxies.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
	Code    string          `json:"code"`
}

type validationIssue struct {
	Msg string `json:"msg"`
}

func newAPIError(status int, body []byte, requestID, endpoint string) *APIError {
	e := &APIError{Status: status, RequestID: requestID, Endpoint: endpoint}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		e.Code = eb.Code
		e.Message = firstNonEmpty(detailMessage(eb.Detail), eb.Message, nestedMessage(eb.Error))
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("Request failed with status code %d", status)
	}
	return e
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var issues []validationIssue
	if json.Unmarshal(raw, &issues) == nil {
		for _, is := range issues {
			if is.Msg != "" {
				return is.Msg
			}
		}
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Message
	}
	return ""
}

func nestedMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Message
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
