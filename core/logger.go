package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProductionLogger writes structured log lines for the storefront client.
//
// Two formats are supported:
//   - json: one object per line with timestamp, level, service, component,
//     message and all caller fields (for log aggregation)
//   - text: "<ts> [LEVEL] [service:component] message k=v ..." for local use
//
// Error lines are rate limited so a backend outage that fails every request
// cannot flood the output. Child loggers created with WithComponent share the
// writer, level and limiter of their parent.
type ProductionLogger struct {
	shared    *loggerShared
	component string
}

type loggerShared struct {
	mu           sync.Mutex
	level        int
	format       string
	service      string
	timeFormat   string
	output       io.Writer
	errorLimiter *RateLimiter
}

var logLevels = map[string]int{
	"DEBUG": 0,
	"INFO":  1,
	"WARN":  2,
	"ERROR": 3,
}

// NewProductionLogger creates a logger from the logging and development
// configuration. Development mode forces text output at debug level.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) *ProductionLogger {
	level := strings.ToUpper(logging.Level)
	format := strings.ToLower(logging.Format)
	if dev.Enabled {
		level = "DEBUG"
		format = "text"
	}
	lvl, ok := logLevels[level]
	if !ok {
		lvl = logLevels["INFO"]
	}
	if format != "json" && format != "text" {
		format = "json"
	}

	var out io.Writer = os.Stdout
	if strings.EqualFold(logging.Output, "stderr") {
		out = os.Stderr
	}

	timeFormat := logging.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	return &ProductionLogger{
		shared: &loggerShared{
			level:        lvl,
			format:       format,
			service:      serviceName,
			timeFormat:   timeFormat,
			output:       out,
			errorLimiter: NewRateLimiter(logging.ErrorInterval),
		},
		component: "storefront",
	}
}

// WithComponent returns a child logger tagged with the given component name
func (l *ProductionLogger) WithComponent(component string) *ProductionLogger {
	return &ProductionLogger{shared: l.shared, component: component}
}

// SetOutput changes the output writer (useful for testing)
func (l *ProductionLogger) SetOutput(w io.Writer) {
	l.shared.mu.Lock()
	defer l.shared.mu.Unlock()
	l.shared.output = w
}

// SetLevel dynamically updates the log level
func (l *ProductionLogger) SetLevel(level string) {
	l.shared.mu.Lock()
	defer l.shared.mu.Unlock()
	if lvl, ok := logLevels[strings.ToUpper(level)]; ok {
		l.shared.level = lvl
	}
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

// Error logs error messages with rate limiting
func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	if !l.shared.errorLimiter.Allow() {
		return
	}
	l.log("ERROR", msg, fields)
}

func (l *ProductionLogger) log(level, msg string, fields map[string]interface{}) {
	s := l.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	if logLevels[level] < s.level {
		return
	}

	timestamp := time.Now().Format(s.timeFormat)
	if s.format == "json" {
		l.writeJSON(timestamp, level, msg, fields)
		return
	}
	l.writeText(timestamp, level, msg, fields)
}

func (l *ProductionLogger) writeJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   l.shared.service,
		"component": l.component,
		"message":   msg,
	}
	for k, v := range fields {
		// Avoid overwriting core fields
		if _, reserved := entry[k]; reserved {
			continue
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(l.shared.output, string(data))
	}
}

func (l *ProductionLogger) writeText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			fmt.Fprintf(&b, " %s=%q", k, v)
		case error:
			fmt.Fprintf(&b, " %s=%q", k, v.Error())
		default:
			fmt.Fprintf(&b, " %s=%v", k, v)
		}
	}
	fmt.Fprintf(l.shared.output, "%s [%s] [%s:%s] %s%s\n",
		timestamp, level, l.shared.service, l.component, msg, b.String())
}

// RateLimiter implements a simple rate limiter for error logging
type RateLimiter struct {
	interval time.Duration
	lastTime time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a new rate limiter. A zero interval allows everything.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
	}
}

// Allow returns true if an action is allowed based on rate limiting
func (r *RateLimiter) Allow() bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastTime) >= r.interval {
		r.lastTime = now
		return true
	}
	return false
}
