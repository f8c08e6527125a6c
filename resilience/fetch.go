package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/itsneelabh/storefront/core"
)

// FetchOptions carries one request plus per-call overrides of the client's
// retry policy. Zero values fall back to the client configuration.
type FetchOptions struct {
	Method string
	Header http.Header
	Body   []byte

	Timeout     time.Duration
	Retries     int
	BackoffBase time.Duration

	// OnRetry is invoked before every retry with the 1-based number of the
	// attempt that just failed, so callers can surface "reconnecting" state.
	OnRetry func(attempt int, err error)
}

// Response is a fully read HTTP response. Any status below 500 is returned
// as a Response; callers inspect StatusCode for 4xx payloads.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// OK reports whether the status is 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// FetchClient issues HTTP requests with a per-attempt deadline and bounded
// exponential backoff. It keeps no per-call state; the optional circuit
// breaker is the only thing shared between calls.
type FetchClient struct {
	httpClient *http.Client
	config     core.FetchConfig
	breaker    *CircuitBreaker
	logger     core.Logger
	metrics    core.Metrics
	rand       func() float64
}

// FetchOption configures a FetchClient
type FetchOption func(*FetchClient)

// WithHTTPClient sets the underlying HTTP client (e.g. a traced client)
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *FetchClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithCircuitBreaker guards every attempt with cb
func WithCircuitBreaker(cb *CircuitBreaker) FetchOption {
	return func(c *FetchClient) {
		c.breaker = cb
	}
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) FetchOption {
	return func(c *FetchClient) {
		c.logger = core.LoggerOrNoOp(logger)
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics core.Metrics) FetchOption {
	return func(c *FetchClient) {
		c.metrics = core.MetricsOrNoOp(metrics)
	}
}

// WithJitterSource replaces the random source used for backoff jitter
func WithJitterSource(r func() float64) FetchOption {
	return func(c *FetchClient) {
		c.rand = r
	}
}

// NewFetchClient creates a client using cfg as the default policy
func NewFetchClient(cfg core.FetchConfig, opts ...FetchOption) *FetchClient {
	c := &FetchClient{
		httpClient: &http.Client{},
		config:     cfg,
		logger:     &core.NoOpLogger{},
		metrics:    &core.NoOpMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch issues the request, retrying timeouts, connection failures and 5xx
// responses up to the configured number of total attempts. 4xx responses are
// returned after a single attempt. When every attempt fails the error
// unwraps to a *NetworkError describing the last failure.
func (c *FetchClient) Fetch(ctx context.Context, url string, opts FetchOptions) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := c.config.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	retries := c.config.Retries
	if opts.Retries > 0 {
		retries = opts.Retries
	}
	base := c.config.BackoffBase
	if opts.BackoffBase > 0 {
		base = opts.BackoffBase
	}

	start := time.Now()
	attempts := 0
	var resp *Response
	var lastNetErr *NetworkError

	retryConfig := &RetryConfig{
		MaxAttempts:   retries,
		InitialDelay:  base,
		MaxDelay:      c.config.MaxBackoff,
		BackoffFactor: 2.0,
		JitterEnabled: c.config.Jitter,
		Rand:          c.rand,
		OnRetry: func(retry int, err error, delay time.Duration) {
			c.logger.Warn("Request failed, retrying", map[string]interface{}{
				"operation": "fetch_retry",
				"method":    method,
				"url":       url,
				"attempt":   retry,
				"error":     err,
				"delay_ms":  delay.Milliseconds(),
			})
			c.metrics.Counter(ctx, "storefront.fetch.retries", 1, map[string]string{"method": method})
			if opts.OnRetry != nil {
				opts.OnRetry(retry, err)
			}
		},
	}

	err := Retry(ctx, retryConfig, func() error {
		attempts++
		r, err := c.attempt(ctx, method, url, opts, timeout, attempts)
		if err != nil {
			var ne *NetworkError
			if errors.As(err, &ne) {
				lastNetErr = ne
			}
			return err
		}
		resp = r
		return nil
	})

	duration := time.Since(start)
	if err != nil {
		if lastNetErr != nil {
			lastNetErr.Attempts = attempts
		}
		c.logger.Error("Request failed", map[string]interface{}{
			"operation":   "fetch",
			"method":      method,
			"url":         url,
			"attempt":     attempts,
			"error":       err,
			"duration_ms": duration.Milliseconds(),
		})
		c.record(ctx, method, "failure", duration)
		return nil, err
	}

	resp.Attempts = attempts
	c.record(ctx, method, strconv.Itoa(resp.StatusCode), duration)
	return resp, nil
}

func (c *FetchClient) attempt(ctx context.Context, method, url string, opts FetchOptions, timeout time.Duration, n int) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, url, body)
	if err != nil {
		return nil, err
	}
	if opts.Header != nil {
		req.Header = opts.Header.Clone()
	}

	if c.breaker != nil && !c.breaker.CanExecute() {
		return nil, &NetworkError{Kind: KindCircuitOpen, Method: method, URL: url}
	}

	c.logger.Debug("Fetching", map[string]interface{}{
		"operation": "fetch_attempt",
		"method":    method,
		"url":       url,
		"attempt":   n,
	})
	c.metrics.Counter(ctx, "storefront.fetch.attempts", 1, map[string]string{"method": method})

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportFailure(ctx, attemptCtx, method, url, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, c.transportFailure(ctx, attemptCtx, method, url, err)
	}

	if httpResp.StatusCode >= 500 {
		ne := &NetworkError{
			Kind:       KindServerError,
			Method:     method,
			URL:        url,
			StatusCode: httpResp.StatusCode,
		}
		c.recordBreaker(ne)
		return nil, ne
	}

	c.recordBreaker(nil)
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

// transportFailure classifies an error from the transport or body read.
// Cancellation of the caller's context is returned as-is and never retried.
func (c *FetchClient) transportFailure(parent, attemptCtx context.Context, method, url string, err error) error {
	if parent.Err() != nil {
		if c.breaker != nil {
			c.breaker.RecordCancelled()
		}
		return parent.Err()
	}

	kind := KindConnection
	var netErr net.Error
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}

	ne := &NetworkError{Kind: kind, Method: method, URL: url, Err: err}
	c.recordBreaker(ne)
	return ne
}

func (c *FetchClient) recordBreaker(err error) {
	if c.breaker != nil {
		c.breaker.Record(err)
	}
}

func (c *FetchClient) record(ctx context.Context, method, status string, d time.Duration) {
	labels := map[string]string{"method": method, "status": status}
	c.metrics.Counter(ctx, "storefront.fetch.requests", 1, labels)
	c.metrics.Histogram(ctx, "storefront.fetch.duration_ms", float64(d.Milliseconds()), labels)
}
