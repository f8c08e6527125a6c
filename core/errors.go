package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Network errors (transient, retried by the fetch client)
	ErrTimeout            = errors.New("operation timeout")
	ErrServerError        = errors.New("server error")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrCircuitOpen        = errors.New("circuit breaker is open")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// Request errors (never retried)
	ErrClientRequest    = errors.New("client request rejected")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrDecode           = errors.New("malformed response")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Checkout errors
	ErrEmptyCart          = errors.New("cart is empty")
	ErrNoAddress          = errors.New("no delivery address selected")
	ErrNoPaymentMethod    = errors.New("no payment method selected")
	ErrPaymentCancelled   = errors.New("payment cancelled")
	ErrCheckoutInProgress = errors.New("checkout already in progress")

	// Validation
	ErrInvalidInput = errors.New("invalid input")
)

// StoreError provides structured error information with context
// It implements the error interface and supports error wrapping
type StoreError struct {
	Op      string // Operation that failed (e.g., "session.Login")
	Kind    string // Error kind (e.g., "network", "auth", "config")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *StoreError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError
func NewStoreError(op, kind string, err error) *StoreError {
	return &StoreError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is retryable
// Retryable errors are transient network or availability issues
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServerError) ||
		errors.Is(err, ErrConnectionFailed)
}

// IsNetworkError reports whether err is a terminal transient-network failure,
// including a rejection by an open circuit breaker.
func IsNetworkError(err error) bool {
	return IsRetryable(err) || errors.Is(err, ErrCircuitOpen)
}

// IsClientError checks if an error came from a 4xx response
func IsClientError(err error) bool {
	return errors.Is(err, ErrClientRequest) || errors.Is(err, ErrNotAuthenticated)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsCheckoutPrecondition reports whether err is a rejected checkout precondition
func IsCheckoutPrecondition(err error) bool {
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrNoAddress) ||
		errors.Is(err, ErrNoPaymentMethod)
}
