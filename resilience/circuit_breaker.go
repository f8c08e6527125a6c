package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/storefront/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows a single trial request
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrorClassifier determines which errors should count toward circuit breaker thresholds
type ErrorClassifier func(error) bool

// DefaultErrorClassifier only counts transient network failures. A 4xx or a
// cancelled context says nothing about backend health.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return core.IsRetryable(err)
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker in logs and metrics
	Name string

	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int

	// SleepWindow is how long to wait before entering half-open state
	SleepWindow time.Duration

	// ErrorClassifier determines which errors count as failures
	ErrorClassifier ErrorClassifier

	Logger  core.Logger
	Metrics core.Metrics

	// now is swapped in tests
	now func() time.Time
}

// DefaultConfig returns the default breaker configuration
func DefaultConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "backend",
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
		Metrics:          &core.NoOpMetrics{},
	}
}

// Validate checks the configuration
func (c *CircuitBreakerConfig) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1: %w", core.ErrInvalidConfiguration)
	}
	if c.SleepWindow <= 0 {
		return fmt.Errorf("sleep window must be positive: %w", core.ErrInvalidConfiguration)
	}
	return nil
}

// CircuitBreaker fails fast after a run of consecutive transient failures,
// then lets one trial call through after the sleep window. A successful
// trial call closes the circuit; a failed one re-opens it.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu             sync.Mutex
	state          CircuitState
	stateChangedAt time.Time
	failures       int
	trialInFlight  bool

	listeners []func(name string, from, to CircuitState)
}

// NewCircuitBreaker creates a circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}

	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}
	config.Logger = core.LoggerOrNoOp(config.Logger)
	config.Metrics = core.MetricsOrNoOp(config.Metrics)
	if config.now == nil {
		config.now = time.Now
	}

	cb := &CircuitBreaker{
		config:         config,
		state:          StateClosed,
		stateChangedAt: config.now(),
	}

	config.Logger.Info("Circuit breaker created", map[string]interface{}{
		"operation":         "circuit_breaker_created",
		"name":              config.Name,
		"failure_threshold": config.FailureThreshold,
		"sleep_window_ms":   config.SleepWindow.Milliseconds(),
	})

	return cb, nil
}

// CanExecute reports whether a request may proceed. In half-open state only
// one caller is admitted until its outcome is recorded.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.config.now().Sub(cb.stateChangedAt) < cb.config.SleepWindow {
			cb.config.Metrics.Counter(context.Background(), "storefront.circuit_breaker.rejected", 1,
				map[string]string{"name": cb.config.Name})
			return false
		}
		cb.transitionLocked(StateHalfOpen)
		cb.trialInFlight = true
		return true
	case StateHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess records a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.trialInFlight = false
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}

// RecordFailure records a failed call
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.trialInFlight = false
	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionLocked(StateOpen)
		}
	}
}

// RecordCancelled releases the half-open trial slot of a call the caller
// abandoned. The state and failure count are left unchanged since the
// backend never answered.
func (cb *CircuitBreaker) RecordCancelled() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialInFlight = false
}

// Record classifies err and records it as a success or failure. Errors the
// classifier ignores count as successes since the backend answered; a
// cancelled call counts as neither.
func (cb *CircuitBreaker) Record(err error) {
	if errors.Is(err, context.Canceled) {
		cb.RecordCancelled()
		return
	}
	if err != nil && cb.config.ErrorClassifier(err) {
		cb.RecordFailure()
		return
	}
	cb.RecordSuccess()
}

// Execute runs fn with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.CanExecute() {
		return fmt.Errorf("circuit breaker '%s' is open: %w", cb.config.Name, core.ErrCircuitOpen)
	}
	err := fn()
	cb.Record(err)
	return err
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.stateChangedAt = cb.config.now()
	if to == StateClosed {
		cb.failures = 0
	}

	cb.config.Logger.Warn("Circuit breaker state changed", map[string]interface{}{
		"operation":  "circuit_breaker_state_change",
		"name":       cb.config.Name,
		"from_state": from.String(),
		"to_state":   to.String(),
		"failures":   cb.failures,
	})
	cb.config.Metrics.Counter(context.Background(), "storefront.circuit_breaker.state_changes", 1,
		map[string]string{"name": cb.config.Name, "from_state": from.String(), "to_state": to.String()})

	for _, listener := range cb.listeners {
		go listener(cb.config.Name, from, to)
	}
}

// AddStateChangeListener registers a callback run on every transition
func (cb *CircuitBreaker) AddStateChangeListener(listener func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, listener)
}

// GetState returns the current state name
func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// Reset closes the circuit and clears the failure count
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialInFlight = false
	cb.transitionLocked(StateClosed)
	cb.failures = 0
}
