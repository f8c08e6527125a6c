// Package storefront wires the client together. Most callers only need App:
//
//	app, err := storefront.New(ctx, storefront.WithConfigOptions(
//	    core.WithBaseURL("https://shop.example.com"),
//	))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close(ctx)
//	app.Start(ctx)
//
// Lower-level packages can be used on their own:
//   - github.com/itsneelabh/storefront/resilience - timeout and retry over HTTP
//   - github.com/itsneelabh/storefront/api - typed backend client
//   - github.com/itsneelabh/storefront/store - catalog and cart model
//   - github.com/itsneelabh/storefront/checkout - order placement
package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/checkout"
	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/resilience"
	"github.com/itsneelabh/storefront/session"
	"github.com/itsneelabh/storefront/storage"
	"github.com/itsneelabh/storefront/store"
	"github.com/itsneelabh/storefront/telemetry"
)

// App owns every component of a running client
type App struct {
	Config   *core.Config
	Logger   core.Logger
	API      *api.Client
	Sessions *session.Manager
	Store    *store.Store
	Checkout *checkout.Flow

	fetch     *resilience.FetchClient
	breaker   *resilience.CircuitBreaker
	telemetry *telemetry.Provider
	storage   core.Storage
	closer    func() error

	closeOnce sync.Once
	closeErr  error
}

type appOptions struct {
	config        *core.Config
	configOptions []core.Option
	logger        core.Logger
	storage       core.Storage
	httpClient    *http.Client
	authorizer    checkout.PaymentAuthorizer
	telemetryOpts []telemetry.SetupOption
}

// AppOption configures New
type AppOption func(*appOptions)

// WithConfig uses cfg as is instead of building one from the environment
func WithConfig(cfg *core.Config) AppOption {
	return func(o *appOptions) { o.config = cfg }
}

// WithConfigOptions applies core options on top of defaults and environment
func WithConfigOptions(opts ...core.Option) AppOption {
	return func(o *appOptions) { o.configOptions = append(o.configOptions, opts...) }
}

// WithLogger replaces the production logger built from the config
func WithLogger(logger core.Logger) AppOption {
	return func(o *appOptions) { o.logger = logger }
}

// WithStorage replaces the configured storage provider. The caller keeps
// ownership and closes it.
func WithStorage(s core.Storage) AppOption {
	return func(o *appOptions) { o.storage = s }
}

// WithHTTPClient sets the client the fetch layer sends requests with
func WithHTTPClient(c *http.Client) AppOption {
	return func(o *appOptions) { o.httpClient = c }
}

// WithPaymentAuthorizer sets the collaborator for online payments
func WithPaymentAuthorizer(a checkout.PaymentAuthorizer) AppOption {
	return func(o *appOptions) { o.authorizer = a }
}

// WithTelemetryOptions passes options through to telemetry.Setup
func WithTelemetryOptions(opts ...telemetry.SetupOption) AppOption {
	return func(o *appOptions) { o.telemetryOpts = append(o.telemetryOpts, opts...) }
}

// New builds an App: config, logger, storage, telemetry, fetch client, API
// client, session manager, store and checkout flow, in that order.
func New(ctx context.Context, opts ...AppOption) (*App, error) {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.config
	if cfg == nil {
		var err error
		cfg, err = core.NewConfig(o.configOptions...)
		if err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &App{Config: cfg}

	component := func(name string) core.Logger { return o.logger }
	if o.logger == nil {
		base := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
		app.Logger = base
		component = func(name string) core.Logger { return base.WithComponent(name) }
	} else {
		app.Logger = o.logger
	}

	if o.storage != nil {
		app.storage = o.storage
	} else {
		st, err := storage.New(cfg.Storage, component("storage"))
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		app.storage = st
		app.closer = st.Close
	}

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.Name
	}
	tp, err := telemetry.Setup(ctx, cfg.Telemetry, serviceName, component("telemetry"), o.telemetryOpts...)
	if err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	app.telemetry = tp
	metrics := tp.Metrics()

	fetchOpts := []resilience.FetchOption{
		resilience.WithLogger(component("fetch")),
		resilience.WithMetrics(metrics),
	}
	switch {
	case o.httpClient != nil:
		fetchOpts = append(fetchOpts, resilience.WithHTTPClient(o.httpClient))
	case tp.Enabled():
		fetchOpts = append(fetchOpts, resilience.WithHTTPClient(telemetry.NewTracedHTTPClient(nil)))
	}
	if cfg.CircuitBreaker.Enabled {
		cb, err := resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
			Name:             "backend",
			FailureThreshold: cfg.CircuitBreaker.Threshold,
			SleepWindow:      cfg.CircuitBreaker.Cooldown,
			Logger:           component("circuit_breaker"),
			Metrics:          metrics,
		})
		if err != nil {
			app.shutdown(ctx)
			return nil, err
		}
		app.breaker = cb
		fetchOpts = append(fetchOpts, resilience.WithCircuitBreaker(cb))
	}
	app.fetch = resilience.NewFetchClient(cfg.Fetch, fetchOpts...)

	app.API = api.NewClient(app.fetch, cfg.Backend.BaseURL,
		api.WithImageBaseURL(cfg.ImageBase()),
		api.WithLogger(component("api")),
	)
	app.Sessions = session.NewManager(app.storage, app.API, session.WithLogger(component("session")))
	app.Store = store.New(app.API, app.Sessions, store.Options{
		Logger:       component("store"),
		Metrics:      metrics,
		Tracer:       tp.Tracer(),
		PushDebounce: cfg.Cart.PushDebounce,
	})

	flowOpts := []checkout.Option{
		checkout.WithLogger(component("checkout")),
		checkout.WithMetrics(metrics),
		checkout.WithTracer(tp.Tracer()),
	}
	if o.authorizer != nil {
		flowOpts = append(flowOpts, checkout.WithAuthorizer(o.authorizer))
	}
	app.Checkout = checkout.NewFlow(app.API, app.Store, app.Sessions, flowOpts...)

	app.Logger.Info("Storefront client ready", map[string]interface{}{
		"operation":       "startup",
		"base_url":        cfg.Backend.BaseURL,
		"storage":         cfg.Storage.Provider,
		"telemetry":       tp.Enabled(),
		"circuit_breaker": cfg.CircuitBreaker.Enabled,
		"version":         core.Version,
	})
	return app, nil
}

// Start restores the persisted session and runs the first reconciliation.
// Only a storage failure is returned; network problems are reported as
// degradations in the result.
func (a *App) Start(ctx context.Context) (store.ReconcileResult, error) {
	if _, err := a.Sessions.Load(ctx); err != nil {
		return store.ReconcileResult{}, err
	}
	return a.Store.Reconcile(ctx), nil
}

// Refresh re-runs reconciliation
func (a *App) Refresh(ctx context.Context) store.ReconcileResult {
	return a.Store.Reconcile(ctx)
}

// Login signs in and reconciles again so the saved cart is merged
func (a *App) Login(ctx context.Context, email, password string) (*session.Session, store.ReconcileResult, error) {
	sess, err := a.Sessions.Login(ctx, email, password)
	if err != nil {
		return nil, store.ReconcileResult{}, err
	}
	return sess, a.Store.Reconcile(ctx), nil
}

// Signup registers an account. It does not sign in.
func (a *App) Signup(ctx context.Context, username, email, password string) (*api.User, error) {
	return a.Sessions.Signup(ctx, username, email, password)
}

// Logout waits for pending cart writes of the current session, ends the
// session and drops the local cart without touching the server copy.
func (a *App) Logout(ctx context.Context) error {
	if err := a.Store.Flush(ctx); err != nil {
		a.Logger.Warn("Pending cart writes not flushed before logout", map[string]interface{}{
			"operation": "logout",
			"error":     err,
		})
	}
	err := a.Sessions.Logout(ctx)
	a.Store.ResetLocal()
	a.Checkout.Reset()
	return err
}

func (a *App) token(op string) (string, error) {
	sess := a.Sessions.Current()
	if sess == nil || sess.Token == "" {
		return "", core.NewStoreError(op, "auth", core.ErrNotAuthenticated)
	}
	return sess.Token, nil
}

// Addresses lists the signed-in user's delivery addresses
func (a *App) Addresses(ctx context.Context) ([]api.Address, error) {
	token, err := a.token("storefront.Addresses")
	if err != nil {
		return nil, err
	}
	return a.API.Addresses(ctx, token)
}

// AddAddress saves a delivery address
func (a *App) AddAddress(ctx context.Context, in api.AddressInput) (*api.Address, error) {
	token, err := a.token("storefront.AddAddress")
	if err != nil {
		return nil, err
	}
	return a.API.AddAddress(ctx, token, in)
}

// DeleteAddress removes a delivery address
func (a *App) DeleteAddress(ctx context.Context, id string) error {
	token, err := a.token("storefront.DeleteAddress")
	if err != nil {
		return err
	}
	return a.API.DeleteAddress(ctx, token, id)
}

// Orders lists the user's orders and lowers the new-orders indicator
func (a *App) Orders(ctx context.Context) ([]api.Order, error) {
	token, err := a.token("storefront.Orders")
	if err != nil {
		return nil, err
	}
	orders, err := a.API.Orders(ctx, token)
	if err != nil {
		return nil, err
	}
	a.Store.ClearNewOrder()
	return orders, nil
}

// Profile reads the user's profile; found is false when none was saved
func (a *App) Profile(ctx context.Context) (*api.Profile, bool, error) {
	token, err := a.token("storefront.Profile")
	if err != nil {
		return nil, false, err
	}
	return a.API.Profile(ctx, token)
}

// SaveProfile writes the user's profile
func (a *App) SaveProfile(ctx context.Context, p api.Profile) error {
	token, err := a.token("storefront.SaveProfile")
	if err != nil {
		return err
	}
	return a.API.SaveProfile(ctx, token, p)
}

// PlaceOrder checks out the current cart
func (a *App) PlaceOrder(ctx context.Context, req checkout.Request) (*checkout.Result, error) {
	return a.Checkout.PlaceOrder(ctx, req)
}

// BreakerState reports the circuit breaker state, "disabled" without one
func (a *App) BreakerState() string {
	if a.breaker == nil {
		return "disabled"
	}
	return a.breaker.GetState()
}

// Close flushes cart writes, then shuts down telemetry and storage
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		if err := a.Store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cart queue: %w", err))
		}
		errs = append(errs, a.shutdown(ctx))
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func (a *App) shutdown(ctx context.Context) error {
	var errs []error
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	if err := a.closeStorage(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) closeStorage() error {
	if a.closer == nil {
		return nil
	}
	closer := a.closer
	a.closer = nil
	return closer()
}
