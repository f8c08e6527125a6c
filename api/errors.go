package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/itsneelabh/storefront/core"
)

// APIError is a 4xx answer from the backend. It is never retried and carries
// the server-provided message when there was one.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: request rejected (status %d)", e.Op, e.Status)
}

// Unwrap maps 401 to core.ErrNotAuthenticated and every other status to
// core.ErrClientRequest.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return core.ErrNotAuthenticated
	}
	return core.ErrClientRequest
}

// NotFound reports whether the backend answered 404
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// errorBody covers the error payload shapes the backend emits
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Msg     string `json:"msg"`
	Code    string `json:"code"`
}

func newAPIError(op string, status int, body []byte) *APIError {
	apiErr := &APIError{Op: op, Status: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return apiErr
	}
	apiErr.Code = eb.Code
	switch {
	case eb.Message != "":
		apiErr.Message = eb.Message
	case eb.Error != "":
		apiErr.Message = eb.Error
	default:
		apiErr.Message = eb.Msg
	}
	return apiErr
}
