package mockbackend

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/itsneelabh/storefront/core"
)

// NewTestServer starts a seeded backend on a loopback listener that is
// closed when the test ends.
func NewTestServer(tb testing.TB, opts ...Option) (*Server, *httptest.Server) {
	tb.Helper()
	backend := New(opts...)
	srv := httptest.NewServer(backend.Handler())
	tb.Cleanup(srv.Close)
	return backend, srv
}

// FastFetchConfig is a retry policy with millisecond backoff for tests
func FastFetchConfig() core.FetchConfig {
	return core.FetchConfig{
		Timeout:     2 * time.Second,
		Retries:     3,
		BackoffBase: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		Jitter:      false,
	}
}
