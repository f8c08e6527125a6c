package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/core"
)

func testFetchConfig() core.FetchConfig {
	return core.FetchConfig{
		Timeout:     time.Second,
		Retries:     3,
		BackoffBase: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		Jitter:      false,
	}
}

func TestFetch_RetryBound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var retries []int
	client := NewFetchClient(testFetchConfig())
	resp, err := client.Fetch(context.Background(), srv.URL, FetchOptions{
		OnRetry: func(attempt int, err error) {
			retries = append(retries, attempt)
		},
	})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []int{1, 2}, retries)

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindServerError, ne.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, ne.StatusCode)
	assert.Equal(t, 3, ne.Attempts)
	assert.ErrorIs(t, err, core.ErrServerError)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
}

func TestFetch_NoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"not found"}`)
	}))
	defer srv.Close()

	retried := false
	client := NewFetchClient(testFetchConfig())
	resp, err := client.Fetch(context.Background(), srv.URL, FetchOptions{
		OnRetry: func(int, error) { retried = true },
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, resp.OK())
	assert.JSONEq(t, `{"message":"not found"}`, string(resp.Body))
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, int32(1), hits.Load())
	assert.False(t, retried)
}

func TestFetch_RecoversAfterServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	resp, err := NewFetchClient(testFetchConfig()).Fetch(context.Background(), srv.URL, FetchOptions{})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, 3, resp.Attempts)
}

func TestFetch_TimeoutIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewFetchClient(testFetchConfig()).Fetch(context.Background(), srv.URL, FetchOptions{
		Timeout: 20 * time.Millisecond,
		Retries: 2,
	})

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindTimeout, ne.Kind)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewFetchClient(testFetchConfig()).Fetch(context.Background(), url, FetchOptions{Retries: 2})

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindConnection, ne.Kind)
	assert.Equal(t, 2, ne.Attempts)
	assert.True(t, core.IsNetworkError(err))
}

func TestFetch_SendsMethodHeadersBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer tok")
	resp, err := NewFetchClient(testFetchConfig()).Fetch(context.Background(), srv.URL, FetchOptions{
		Method: http.MethodPost,
		Header: header,
		Body:   []byte(`{"a":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestFetch_ResendsBodyOnRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body))
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	resp, err := NewFetchClient(testFetchConfig()).Fetch(context.Background(), srv.URL, FetchOptions{
		Method: http.MethodPost,
		Body:   []byte("payload"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
}

func TestFetch_ParentCancellationStopsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewFetchClient(core.FetchConfig{Timeout: time.Second, Retries: 5, BackoffBase: 200 * time.Millisecond})
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Fetch(ctx, srv.URL, FetchOptions{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_CircuitBreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cb, err := NewCircuitBreaker(&CircuitBreakerConfig{Name: "backend", FailureThreshold: 2, SleepWindow: time.Hour})
	require.NoError(t, err)

	client := NewFetchClient(testFetchConfig(), WithCircuitBreaker(cb))
	_, err = client.Fetch(context.Background(), srv.URL, FetchOptions{})

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindCircuitOpen, ne.Kind)
	assert.ErrorIs(t, err, core.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, "open", cb.GetState())

	// Subsequent calls never reach the server
	_, err = client.Fetch(context.Background(), srv.URL, FetchOptions{})
	assert.ErrorIs(t, err, core.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

type countingMetrics struct {
	counters atomic.Int64
	hists    atomic.Int64
}

func (m *countingMetrics) Counter(ctx context.Context, name string, value int64, labels map[string]string) {
	m.counters.Add(value)
}

func (m *countingMetrics) Histogram(ctx context.Context, name string, value float64, labels map[string]string) {
	m.hists.Add(1)
}

func TestFetch_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	m := &countingMetrics{}
	_, err := NewFetchClient(testFetchConfig(), WithMetrics(m)).Fetch(context.Background(), srv.URL, FetchOptions{})
	require.NoError(t, err)

	// one attempt counter plus one request counter
	assert.Equal(t, int64(2), m.counters.Load())
	assert.Equal(t, int64(1), m.hists.Load())
}

func TestNetworkError_Message(t *testing.T) {
	err := &NetworkError{Kind: KindServerError, Method: "GET", URL: "http://x/api", Attempts: 3, StatusCode: 503}
	assert.Equal(t, "GET http://x/api: server_error (status 503) after 3 attempt(s)", err.Error())
	assert.ErrorIs(t, err, core.ErrServerError)
	assert.NotErrorIs(t, err, core.ErrTimeout)
}
