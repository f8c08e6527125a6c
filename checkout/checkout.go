// Package checkout places orders from the current cart. A Flow moves from
// Idle to Submitting and ends in Succeeded or Failed; it never retries order
// creation on its own.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/store"
)

// State of a Flow
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// OrderAPI is the slice of the API client checkout needs
type OrderAPI interface {
	PlaceOrder(ctx context.Context, token string, order api.OrderRequest, opts ...api.CallOption) (*api.PlacedOrder, error)
	CreatePayment(ctx context.Context, token string, amount float64, opts ...api.CallOption) (*api.PaymentIntent, error)
}

// Cart is the cart the flow reads and clears
type Cart interface {
	Cart() []store.CartLine
	Clear()
	MarkNewOrder()
}

// PaymentConfirmation is what the payment provider reports after the user
// pays for an intent
type PaymentConfirmation struct {
	PaymentID string
	OrderID   string
	Signature string
}

// PaymentAuthorizer collects an online payment out of band. It returns an
// error wrapping core.ErrPaymentCancelled when the user backs out.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, intent api.PaymentIntent) (PaymentConfirmation, error)
}

// AuthorizerFunc adapts a function to PaymentAuthorizer
type AuthorizerFunc func(ctx context.Context, intent api.PaymentIntent) (PaymentConfirmation, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, intent api.PaymentIntent) (PaymentConfirmation, error) {
	return f(ctx, intent)
}

// Request selects what to check out with
type Request struct {
	AddressID     string
	PaymentMethod string // api.PaymentCashOnDelivery or api.PaymentOnline
}

// Result describes a placed order
type Result struct {
	Order          api.PlacedOrder
	PaymentMethod  string
	PaymentID      string
	IdempotencyKey string
	Total          float64
	Items          int
}

// Flow is the order placement state machine. One submission runs at a time.
type Flow struct {
	mu         sync.Mutex
	state      State
	lastErr    error
	lastResult *Result
	pending    *attempt

	orders     OrderAPI
	cart       Cart
	sessions   store.SessionSource
	authorizer PaymentAuthorizer
	newKey     func() string
	logger     core.Logger
	metrics    core.Metrics
	tracer     trace.Tracer
}

// attempt remembers the key of a failed submission so that re-submitting
// the same order reuses it
type attempt struct {
	fingerprint string
	key         string
}

// Option configures a Flow
type Option func(*Flow)

// WithAuthorizer sets the collaborator used for online payments
func WithAuthorizer(a PaymentAuthorizer) Option {
	return func(f *Flow) { f.authorizer = a }
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(f *Flow) { f.logger = core.LoggerOrNoOp(logger) }
}

// WithMetrics sets the metrics sink
func WithMetrics(m core.Metrics) Option {
	return func(f *Flow) { f.metrics = core.MetricsOrNoOp(m) }
}

// WithTracer sets the tracer used for checkout spans
func WithTracer(t trace.Tracer) Option {
	return func(f *Flow) {
		if t != nil {
			f.tracer = t
		}
	}
}

// WithKeyGenerator replaces the uuid idempotency key generator
func WithKeyGenerator(fn func() string) Option {
	return func(f *Flow) {
		if fn != nil {
			f.newKey = fn
		}
	}
}

// NewFlow creates an idle flow
func NewFlow(orders OrderAPI, cart Cart, sessions store.SessionSource, opts ...Option) *Flow {
	f := &Flow{
		state:    StateIdle,
		orders:   orders,
		cart:     cart,
		sessions: sessions,
		newKey:   func() string { return uuid.New().String() },
		logger:   &core.NoOpLogger{},
		metrics:  &core.NoOpMetrics{},
		tracer:   otel.Tracer("github.com/itsneelabh/storefront/checkout"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastError returns the failure that moved the flow to Failed
func (f *Flow) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// LastResult returns the most recent successful order, nil if none
func (f *Flow) LastResult() *Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastResult == nil {
		return nil
	}
	r := *f.lastResult
	return &r
}

// Reset returns a finished flow to Idle. It does nothing while submitting.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		return
	}
	f.state = StateIdle
	f.lastErr = nil
}

// Validate checks the preconditions for submitting req without changing
// any state
func (f *Flow) Validate(req Request) error {
	_, _, err := f.prepare(req)
	return err
}

func (f *Flow) prepare(req Request) (token string, lines []store.CartLine, err error) {
	const op = "checkout.PlaceOrder"
	sess := f.sessions.Current()
	if sess == nil || sess.Token == "" {
		return "", nil, core.NewStoreError(op, "auth", core.ErrNotAuthenticated)
	}
	lines = f.cart.Cart()
	if len(lines) == 0 {
		return "", nil, core.NewStoreError(op, "precondition", core.ErrEmptyCart)
	}
	if strings.TrimSpace(req.AddressID) == "" {
		return "", nil, core.NewStoreError(op, "precondition", core.ErrNoAddress)
	}
	switch req.PaymentMethod {
	case "":
		return "", nil, core.NewStoreError(op, "precondition", core.ErrNoPaymentMethod)
	case api.PaymentCashOnDelivery:
	case api.PaymentOnline:
		if f.authorizer == nil {
			return "", nil, &core.StoreError{
				Op:      op,
				Kind:    "config",
				Message: "online payment requires a payment authorizer",
				Err:     core.ErrMissingConfiguration,
			}
		}
	default:
		return "", nil, &core.StoreError{
			Op:   op,
			Kind: "validation",
			Err:  fmt.Errorf("%w: unknown payment method %q", core.ErrInvalidInput, req.PaymentMethod),
		}
	}
	return sess.Token, lines, nil
}

// PlaceOrder submits the current cart. Precondition failures leave the state
// unchanged. On success the cart is cleared and the new-order indicator is
// raised; on failure the cart is left as it was so the user can try again.
func (f *Flow) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	if f.state == StateSubmitting {
		f.mu.Unlock()
		return nil, core.NewStoreError("checkout.PlaceOrder", "precondition", core.ErrCheckoutInProgress)
	}
	token, lines, err := f.prepare(req)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	order := buildOrder(req, lines)
	fingerprint := orderFingerprint(order)
	key := ""
	if f.pending != nil && f.pending.fingerprint == fingerprint {
		key = f.pending.key
	} else {
		key = f.newKey()
	}
	order.IdempotencyKey = key
	f.state = StateSubmitting
	f.lastErr = nil
	f.mu.Unlock()

	ctx, span := f.tracer.Start(ctx, "checkout.PlaceOrder", trace.WithAttributes(
		attribute.String("payment_method", req.PaymentMethod),
		attribute.Int("items", len(order.Items)),
		attribute.Float64("total", order.TotalAmount),
	))
	defer span.End()
	start := time.Now()

	result, err := f.submit(ctx, token, order)

	f.mu.Lock()
	if err != nil {
		f.state = StateFailed
		f.lastErr = err
		f.pending = &attempt{fingerprint: fingerprint, key: key}
	} else {
		f.state = StateSucceeded
		f.lastResult = result
		f.pending = nil
	}
	f.mu.Unlock()

	outcome := "success"
	if err != nil {
		outcome = "failure"
		if errors.Is(err, core.ErrPaymentCancelled) {
			outcome = "cancelled"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.logger.Error("Order placement failed", map[string]interface{}{
			"operation":      "checkout",
			"payment_method": req.PaymentMethod,
			"error":          err,
			"duration_ms":    time.Since(start).Milliseconds(),
		})
	} else {
		span.SetAttributes(attribute.String("order_id", result.Order.ID))
		f.logger.Info("Order placed", map[string]interface{}{
			"operation":      "checkout",
			"payment_method": req.PaymentMethod,
			"order_id":       result.Order.ID,
			"total":          result.Total,
			"duration_ms":    time.Since(start).Milliseconds(),
		})
	}
	f.metrics.Counter(ctx, "storefront.checkout", 1, map[string]string{
		"result": outcome,
		"method": req.PaymentMethod,
	})
	f.metrics.Histogram(ctx, "storefront.checkout.duration_ms", float64(time.Since(start).Milliseconds()), nil)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Flow) submit(ctx context.Context, token string, order api.OrderRequest) (*Result, error) {
	const op = "checkout.PlaceOrder"
	result := &Result{
		PaymentMethod:  order.PaymentMethod,
		IdempotencyKey: order.IdempotencyKey,
		Total:          order.TotalAmount,
		Items:          len(order.Items),
	}

	if order.PaymentMethod == api.PaymentOnline {
		intent, err := f.orders.CreatePayment(ctx, token, order.TotalAmount)
		if err != nil {
			return nil, core.NewStoreError(op, "payment", err)
		}
		confirmation, err := f.authorizer.Authorize(ctx, *intent)
		if err != nil {
			if !errors.Is(err, core.ErrPaymentCancelled) && ctx.Err() != nil {
				err = fmt.Errorf("%w: %v", core.ErrPaymentCancelled, err)
			}
			return nil, &core.StoreError{Op: op, Kind: "payment", ID: intent.ID, Err: err}
		}
		if confirmation.PaymentID == "" {
			return nil, &core.StoreError{
				Op:   op,
				Kind: "payment",
				ID:   intent.ID,
				Err:  fmt.Errorf("%w: provider returned no payment id", core.ErrPaymentCancelled),
			}
		}
		order.PaymentID = confirmation.PaymentID
		result.PaymentID = confirmation.PaymentID
	}

	placed, err := f.orders.PlaceOrder(ctx, token, order)
	if err != nil {
		return nil, core.NewStoreError(op, "order", err)
	}
	result.Order = *placed

	f.cart.Clear()
	f.cart.MarkNewOrder()
	return result, nil
}

func buildOrder(req Request, lines []store.CartLine) api.OrderRequest {
	items := make([]api.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, api.OrderItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.Price,
		})
	}
	return api.OrderRequest{
		AddressID:     req.AddressID,
		Items:         items,
		TotalAmount:   store.Total(lines),
		PaymentMethod: req.PaymentMethod,
	}
}

func orderFingerprint(o api.OrderRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%.2f", o.AddressID, o.PaymentMethod, o.TotalAmount)
	for _, it := range o.Items {
		fmt.Fprintf(&b, "|%s:%d:%.2f", it.ProductID, it.Quantity, it.Price)
	}
	return b.String()
}
