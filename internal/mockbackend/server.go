// Package mockbackend is an in-process fake of the storefront backend. It
// serves every endpoint the client consumes, hashes passwords with bcrypt,
// dedupes orders on an idempotency key and can inject cold-start delays,
// 5xx bursts and rate limiting.
package mockbackend

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/telemetry"
)

// Server bundles the router with the data store and injector it serves.
type Server struct {
	Store    *Store
	Injector *Injector

	handler http.Handler
	logger  core.Logger
}

type options struct {
	logger      core.Logger
	tracingName string
	seed        bool
}

// Option configures a Server
type Option func(*options)

// WithLogger sets the logger used for request and injection logs
func WithLogger(logger core.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracing wraps the router with server spans named after serviceName
func WithTracing(serviceName string) Option {
	return func(o *options) { o.tracingName = serviceName }
}

// WithoutSeed starts with an empty catalog
func WithoutSeed() Option {
	return func(o *options) { o.seed = false }
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// New builds a server with a seeded catalog
func New(opts ...Option) *Server {
	o := options{seed: true}
	for _, opt := range opts {
		opt(&o)
	}
	logger := core.LoggerOrNoOp(o.logger)

	store := NewStore()
	if o.seed {
		store.Seed()
	}
	injector := NewInjector(logger)
	h := NewHandler(store)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	// Health check and admin endpoints bypass error injection
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "storefront-mock-backend"})
	})
	admin := r.Group("/admin")
	admin.POST("/inject-error", injector.handleInject)
	admin.GET("/status", injector.handleStatus)
	admin.POST("/reset", injector.handleReset)

	api := r.Group("/api", injector.Middleware())
	api.GET("/categories", h.ListCategories)
	api.GET("/products", h.ListProducts)
	api.GET("/products/category/:id", h.ProductsByCategory)
	api.GET("/products/subcategory/:id", h.ProductsBySubcategory)
	api.GET("/subcategories/category/:id", h.ListSubcategories)
	api.GET("/banners", h.ListBanners)
	api.POST("/auth/signup", h.Signup)
	api.POST("/auth/login", h.Login)

	authed := api.Group("", h.AuthMiddleware())
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/cart/:userId", h.GetCart)
	authed.POST("/cart/save", h.SaveCart)
	authed.GET("/address", h.ListAddresses)
	authed.POST("/address", h.AddAddress)
	authed.DELETE("/address/:id", h.DeleteAddress)
	authed.POST("/order", h.CreateOrder)
	authed.GET("/order/my", h.MyOrders)
	authed.POST("/payment/order", h.CreatePaymentOrder)
	authed.GET("/profile/my", h.MyProfile)
	authed.POST("/profile", h.SaveProfile)

	var handler http.Handler = r
	if o.tracingName != "" {
		handler = telemetry.TracingMiddleware(o.tracingName)(r)
	}

	return &Server{
		Store:    store,
		Injector: injector,
		handler:  handler,
		logger:   logger,
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Mock backend listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// RegisterUser creates an account directly in the store
func (s *Server) RegisterUser(username, email, password string) (*Account, error) {
	return s.Store.CreateUser(username, email, password)
}

func requestLogger(logger core.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request served", map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}
