package resilience

import (
	"fmt"

	"github.com/itsneelabh/storefront/core"
)

// NetworkErrorKind distinguishes the transient failure variants.
type NetworkErrorKind string

const (
	KindTimeout     NetworkErrorKind = "timeout"
	KindServerError NetworkErrorKind = "server_error"
	KindConnection  NetworkErrorKind = "connection"
	KindCircuitOpen NetworkErrorKind = "circuit_open"
)

// NetworkError is the terminal failure of a fetch: the request timed out,
// could not connect, kept answering 5xx, or was rejected by an open breaker.
// 4xx responses are never reported as a NetworkError.
type NetworkError struct {
	Kind       NetworkErrorKind
	Method     string
	URL        string
	Attempts   int
	StatusCode int // last 5xx status for KindServerError
	Err        error
}

func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the matching core sentinel and the underlying cause.
func (e *NetworkError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (k NetworkErrorKind) sentinel() error {
	switch k {
	case KindTimeout:
		return core.ErrTimeout
	case KindServerError:
		return core.ErrServerError
	case KindCircuitOpen:
		return core.ErrCircuitOpen
	default:
		return core.ErrConnectionFailed
	}
}
