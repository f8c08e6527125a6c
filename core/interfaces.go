package core

import (
	"context"
)

// Logger interface - minimal logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// Metrics is the narrow recording surface components use for counters and
// distributions. The telemetry package provides an OpenTelemetry-backed
// implementation; NoOpMetrics is the default.
type Metrics interface {
	Counter(ctx context.Context, name string, value int64, labels map[string]string)
	Histogram(ctx context.Context, name string, value float64, labels map[string]string)
}

// Storage is the persisted key-value collaborator used for session state.
// Get returns ("", false, nil) for a missing key.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
}

// Persisted keys written by the session store.
const (
	StorageKeyAuthToken = "authToken"
	StorageKeyUserData  = "userData"
)

// Default no-op implementations

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// NoOpMetrics discards all measurements
type NoOpMetrics struct{}

func (n *NoOpMetrics) Counter(ctx context.Context, name string, value int64, labels map[string]string) {
}

func (n *NoOpMetrics) Histogram(ctx context.Context, name string, value float64, labels map[string]string) {
}

// LoggerOrNoOp returns l, or a NoOpLogger when l is nil.
func LoggerOrNoOp(l Logger) Logger {
	if l == nil {
		return &NoOpLogger{}
	}
	return l
}

// MetricsOrNoOp returns m, or NoOpMetrics when m is nil.
func MetricsOrNoOp(m Metrics) Metrics {
	if m == nil {
		return &NoOpMetrics{}
	}
	return m
}
