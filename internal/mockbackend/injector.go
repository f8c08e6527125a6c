package mockbackend

import (
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itsneelabh/storefront/core"
)

// Injection modes
const (
	ModeNormal      = "normal"
	ModeRateLimit   = "rate_limit"
	ModeServerError = "server_error"
)

// InjectionConfig controls how failures and delays are injected for
// resilience testing.
type InjectionConfig struct {
	Mode            string        `json:"mode"`              // normal, rate_limit, server_error
	RateLimitAfter  int           `json:"rate_limit_after"`  // Return 429 after N requests
	ServerErrorRate float64       `json:"server_error_rate"` // Probability of 503 (0.0-1.0)
	RetryAfterSecs  int           `json:"retry_after_secs"`  // Retry-After header value for 429
	Latency         time.Duration `json:"latency"`           // Added to every request
	ColdStart       time.Duration `json:"cold_start"`        // Added to the first ColdStartRequests requests
	ColdStartCount  int           `json:"cold_start_requests"`
}

// InjectRequest is the payload of POST /admin/inject-error. Durations are
// given in milliseconds.
type InjectRequest struct {
	Mode            string  `json:"mode"`
	RateLimitAfter  int     `json:"rate_limit_after,omitempty"`
	ServerErrorRate float64 `json:"server_error_rate,omitempty"`
	RetryAfterSecs  int     `json:"retry_after_secs,omitempty"`
	LatencyMs       int     `json:"latency_ms,omitempty"`
	ColdStartMs     int     `json:"cold_start_ms,omitempty"`
	ColdStartCount  int     `json:"cold_start_requests,omitempty"`
}

type scriptedFailure struct {
	method     string
	pathPrefix string
	status     int
	remaining  int
}

// Injector decides, per request, whether to delay or fail it. Admin and
// health endpoints are never affected.
type Injector struct {
	mu           sync.RWMutex
	config       InjectionConfig
	scripted     []*scriptedFailure
	requestCount int64
	coldSeen     int64
	hits         map[string]int
	rand         func() float64
	logger       core.Logger
}

// NewInjector creates an injector in normal mode
func NewInjector(logger core.Logger) *Injector {
	return &Injector{
		config: InjectionConfig{
			Mode:           ModeNormal,
			RateLimitAfter: 5,
			RetryAfterSecs: 5,
		},
		hits:   make(map[string]int),
		rand:   rand.Float64,
		logger: core.LoggerOrNoOp(logger),
	}
}

// Config returns the current configuration
func (i *Injector) Config() InjectionConfig {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.config
}

// Configure applies an admin request
func (i *Injector) Configure(req InjectRequest) error {
	switch req.Mode {
	case ModeNormal, ModeRateLimit, ModeServerError:
	default:
		return fmt.Errorf("invalid mode %q: use normal, rate_limit, or server_error", req.Mode)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.config.Mode = req.Mode
	if req.RateLimitAfter > 0 {
		i.config.RateLimitAfter = req.RateLimitAfter
	}
	if req.ServerErrorRate >= 0 && req.ServerErrorRate <= 1 {
		i.config.ServerErrorRate = req.ServerErrorRate
	}
	if req.RetryAfterSecs > 0 {
		i.config.RetryAfterSecs = req.RetryAfterSecs
	}
	i.config.Latency = time.Duration(req.LatencyMs) * time.Millisecond
	i.config.ColdStart = time.Duration(req.ColdStartMs) * time.Millisecond
	i.config.ColdStartCount = req.ColdStartCount
	atomic.StoreInt64(&i.requestCount, 0)
	atomic.StoreInt64(&i.coldSeen, 0)

	i.logger.Info("Error injection updated", map[string]interface{}{
		"mode":              i.config.Mode,
		"rate_limit_after":  i.config.RateLimitAfter,
		"server_error_rate": i.config.ServerErrorRate,
		"latency_ms":        req.LatencyMs,
		"cold_start_ms":     req.ColdStartMs,
	})
	return nil
}

// SetLatency adds d to every request
func (i *Injector) SetLatency(d time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.config.Latency = d
}

// SetColdStart delays the next n requests by d, as a sleeping backend does
// while it wakes up.
func (i *Injector) SetColdStart(d time.Duration, n int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.config.ColdStart = d
	i.config.ColdStartCount = n
	atomic.StoreInt64(&i.coldSeen, 0)
}

// FailNext answers the next n requests matching method and path prefix with
// status. An empty method matches any method.
func (i *Injector) FailNext(method, pathPrefix string, status, n int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.scripted = append(i.scripted, &scriptedFailure{
		method:     method,
		pathPrefix: pathPrefix,
		status:     status,
		remaining:  n,
	})
}

// Reset returns to normal mode and drops scripted failures
func (i *Injector) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.config.Mode = ModeNormal
	i.config.ServerErrorRate = 0
	i.config.Latency = 0
	i.config.ColdStart = 0
	i.config.ColdStartCount = 0
	i.scripted = nil
	i.hits = make(map[string]int)
	atomic.StoreInt64(&i.requestCount, 0)
	atomic.StoreInt64(&i.coldSeen, 0)
	i.logger.Info("Error injection reset to normal mode", nil)
}

// Hits returns how many requests reached "METHOD /path", injected or not
func (i *Injector) Hits(method, path string) int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.hits[method+" "+path]
}

func (i *Injector) takeScripted(method, path string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.hits[method+" "+path]++
	for _, f := range i.scripted {
		if f.remaining <= 0 {
			continue
		}
		if f.method != "" && f.method != method {
			continue
		}
		if !strings.HasPrefix(path, f.pathPrefix) {
			continue
		}
		f.remaining--
		return f.status
	}
	return 0
}

// Middleware wraps handlers with injection logic
func (i *Injector) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/admin") || path == "/health" {
			c.Next()
			return
		}

		scripted := i.takeScripted(c.Request.Method, path)
		cfg := i.Config()

		delay := cfg.Latency
		if cfg.ColdStartCount > 0 && atomic.AddInt64(&i.coldSeen, 1) <= int64(cfg.ColdStartCount) {
			delay += cfg.ColdStart
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-c.Request.Context().Done():
				c.Abort()
				return
			}
		}

		if scripted != 0 {
			i.logger.Debug("Scripted failure triggered", map[string]interface{}{
				"path":   path,
				"status": scripted,
			})
			c.AbortWithStatusJSON(scripted, gin.H{
				"error": http.StatusText(scripted),
				"code":  "SCRIPTED_FAILURE",
			})
			return
		}

		switch cfg.Mode {
		case ModeRateLimit:
			count := atomic.AddInt64(&i.requestCount, 1)
			if int(count) > cfg.RateLimitAfter {
				i.logger.Warn("Rate limit triggered", map[string]interface{}{
					"requests_made":  count,
					"requests_limit": cfg.RateLimitAfter,
				})
				c.Header("Retry-After", fmt.Sprintf("%d", cfg.RetryAfterSecs))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error":          "Rate limit exceeded",
					"code":           "RATE_LIMIT_EXCEEDED",
					"requests_made":  count,
					"requests_limit": cfg.RateLimitAfter,
					"retry_after":    fmt.Sprintf("%ds", cfg.RetryAfterSecs),
				})
				return
			}

		case ModeServerError:
			if i.rand() < cfg.ServerErrorRate {
				i.logger.Warn("Server error triggered", map[string]interface{}{
					"path":       path,
					"error_rate": cfg.ServerErrorRate,
				})
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error":      "Service unavailable (simulated for resilience testing)",
					"code":       "SERVICE_UNAVAILABLE",
					"error_rate": fmt.Sprintf("%.0f%%", cfg.ServerErrorRate*100),
				})
				return
			}
		}

		c.Next()
	}
}

func (i *Injector) handleInject(c *gin.Context) {
	var req InjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := i.Configure(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Error injection mode set to '%s'", req.Mode),
		"config":  i.Config(),
	})
}

func (i *Injector) handleStatus(c *gin.Context) {
	cfg := i.Config()
	c.JSON(http.StatusOK, gin.H{
		"mode":                cfg.Mode,
		"rate_limit_after":    cfg.RateLimitAfter,
		"server_error_rate":   cfg.ServerErrorRate,
		"retry_after_secs":    cfg.RetryAfterSecs,
		"latency_ms":          cfg.Latency.Milliseconds(),
		"cold_start_ms":       cfg.ColdStart.Milliseconds(),
		"cold_start_requests": cfg.ColdStartCount,
		"request_count":       atomic.LoadInt64(&i.requestCount),
	})
}

func (i *Injector) handleReset(c *gin.Context) {
	i.Reset()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Error injection reset to normal mode",
		"config":  i.Config(),
	})
}
