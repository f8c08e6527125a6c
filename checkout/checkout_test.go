package checkout

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/internal/mockbackend"
	"github.com/itsneelabh/storefront/resilience"
	"github.com/itsneelabh/storefront/session"
	"github.com/itsneelabh/storefront/store"
)

type staticSessions struct{ s *session.Session }

func (f staticSessions) Current() *session.Session { return f.s }

type fixture struct {
	backend   *mockbackend.Server
	client    *api.Client
	store     *store.Store
	sessions  staticSessions
	userID    string
	addressID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, srv := mockbackend.NewTestServer(t)
	client := api.NewClient(resilience.NewFetchClient(mockbackend.FastFetchConfig()), srv.URL)

	_, err := backend.RegisterUser("asha", "asha@example.com", "secret")
	require.NoError(t, err)
	login, err := client.Login(context.Background(), "asha@example.com", "secret")
	require.NoError(t, err)

	sessions := staticSessions{s: &session.Session{Token: login.Token, User: login.User}}
	s := store.New(client, sessions, store.Options{})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	s.Reconcile(context.Background())

	addr := backend.Store.AddAddress(login.User.ID, mockbackend.Address{
		Label: "Home", FullAddress: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001",
	})
	return &fixture{
		backend:   backend,
		client:    client,
		store:     s,
		sessions:  sessions,
		userID:    login.User.ID,
		addressID: addr.ID,
	}
}

func (fx *fixture) fillCart(t *testing.T) {
	t.Helper()
	apple, ok := fx.store.Product("p-apple")
	require.True(t, ok)
	banana, ok := fx.store.Product("p-banana")
	require.True(t, ok)
	fx.store.AddItem(apple)
	fx.store.AddItem(apple)
	fx.store.AddItem(banana)
}

func (fx *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fx.store.Flush(ctx))
}

func TestPlaceOrder_CashOnDelivery(t *testing.T) {
	fx := newFixture(t)
	fx.fillCart(t)
	flow := NewFlow(fx.client, fx.store, fx.sessions)
	assert.Equal(t, StateIdle, flow.State())

	result, err := flow.PlaceOrder(context.Background(), Request{
		AddressID:     fx.addressID,
		PaymentMethod: api.PaymentCashOnDelivery,
	})
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, flow.State())
	assert.NotEmpty(t, result.Order.ID)
	assert.Len(t, result.Order.ShortID(), 6)
	assert.Equal(t, 25.5, result.Total)
	assert.NotEmpty(t, result.IdempotencyKey)

	orders := fx.backend.Store.Orders(fx.userID)
	require.Len(t, orders, 1)
	assert.Equal(t, result.Order.ID, orders[0].ID)
	assert.Equal(t, api.PaymentCashOnDelivery, orders[0].PaymentMethod)
	assert.Equal(t, result.IdempotencyKey, orders[0].IdempotencyKey)
	assert.Equal(t, []mockbackend.OrderItem{
		{ProductID: "p-apple", Quantity: 2, Price: 10},
		{ProductID: "p-banana", Quantity: 1, Price: 5.5},
	}, orders[0].Items)

	assert.Empty(t, fx.store.Cart())
	assert.True(t, fx.store.HasNewOrders())
	fx.flush(t)
	saved, _ := fx.backend.Store.Cart(fx.userID)
	assert.Empty(t, saved, "server cart is emptied")
	assert.Equal(t, result.Order.ID, flow.LastResult().Order.ID)
}

func TestPlaceOrder_Preconditions(t *testing.T) {
	fx := newFixture(t)
	flow := NewFlow(fx.client, fx.store, fx.sessions)
	ctx := context.Background()

	_, err := flow.PlaceOrder(ctx, Request{AddressID: fx.addressID, PaymentMethod: api.PaymentCashOnDelivery})
	assert.ErrorIs(t, err, core.ErrEmptyCart)

	fx.fillCart(t)
	_, err = flow.PlaceOrder(ctx, Request{PaymentMethod: api.PaymentCashOnDelivery})
	assert.ErrorIs(t, err, core.ErrNoAddress)

	_, err = flow.PlaceOrder(ctx, Request{AddressID: fx.addressID})
	assert.ErrorIs(t, err, core.ErrNoPaymentMethod)
	assert.True(t, core.IsCheckoutPrecondition(err))

	_, err = flow.PlaceOrder(ctx, Request{AddressID: fx.addressID, PaymentMethod: "barter"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = flow.PlaceOrder(ctx, Request{AddressID: fx.addressID, PaymentMethod: api.PaymentOnline})
	assert.ErrorIs(t, err, core.ErrMissingConfiguration)

	guestFlow := NewFlow(fx.client, fx.store, staticSessions{})
	assert.ErrorIs(t, guestFlow.Validate(Request{AddressID: fx.addressID, PaymentMethod: api.PaymentCashOnDelivery}), core.ErrNotAuthenticated)

	assert.Equal(t, StateIdle, flow.State(), "rejected preconditions do not enter submitting")
	assert.Empty(t, fx.backend.Store.Orders(fx.userID))
	assert.Len(t, fx.store.Cart(), 2)
}

func TestPlaceOrder_FailureKeepsCartAndIsNotRetried(t *testing.T) {
	fx := newFixture(t)
	fx.fillCart(t)
	fx.backend.Injector.FailNext(http.MethodPost, "/api/order", http.StatusServiceUnavailable, 1)

	var keys int32
	flow := NewFlow(fx.client, fx.store, fx.sessions, WithKeyGenerator(func() string {
		n := atomic.AddInt32(&keys, 1)
		return "key-" + string(rune('0'+n))
	}))
	req := Request{AddressID: fx.addressID, PaymentMethod: api.PaymentCashOnDelivery}

	_, err := flow.PlaceOrder(context.Background(), req)
	require.Error(t, err)
	assert.True(t, core.IsNetworkError(err))
	assert.Equal(t, StateFailed, flow.State())
	assert.Equal(t, err, flow.LastError())
	assert.Equal(t, 1, fx.backend.Injector.Hits(http.MethodPost, "/api/order"), "order creation is attempted once")
	assert.Len(t, fx.store.Cart(), 2)
	assert.False(t, fx.store.HasNewOrders())

	result, err := flow.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "key-1", result.IdempotencyKey, "re-submitting the same order reuses its key")
	assert.Equal(t, int32(1), atomic.LoadInt32(&keys))
	assert.Equal(t, StateSucceeded, flow.State())
}

func TestPlaceOrder_ChangedCartGetsNewKey(t *testing.T) {
	fx := newFixture(t)
	fx.fillCart(t)
	fx.backend.Injector.FailNext(http.MethodPost, "/api/order", http.StatusServiceUnavailable, 1)

	flow := NewFlow(fx.client, fx.store, fx.sessions)
	req := Request{AddressID: fx.addressID, PaymentMethod: api.PaymentCashOnDelivery}
	_, err := flow.PlaceOrder(context.Background(), req)
	require.Error(t, err)

	fx.store.SetQuantity("p-banana", 4)
	result, err := flow.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 42.0, result.Total)
	require.Len(t, fx.backend.Store.Orders(fx.userID), 1)
}

func TestPlaceOrder_Online(t *testing.T) {
	fx := newFixture(t)
	fx.fillCart(t)

	var seen api.PaymentIntent
	authorizer := AuthorizerFunc(func(ctx context.Context, intent api.PaymentIntent) (PaymentConfirmation, error) {
		seen = intent
		return PaymentConfirmation{PaymentID: "pay_123", OrderID: intent.ID}, nil
	})
	flow := NewFlow(fx.client, fx.store, fx.sessions, WithAuthorizer(authorizer))

	result, err := flow.PlaceOrder(context.Background(), Request{AddressID: fx.addressID, PaymentMethod: api.PaymentOnline})
	require.NoError(t, err)
	assert.Equal(t, "pay_123", result.PaymentID)
	assert.NotEmpty(t, seen.ID)
	assert.Equal(t, 2550.0, seen.Amount, "provider amounts are in minor units")

	orders := fx.backend.Store.Orders(fx.userID)
	require.Len(t, orders, 1)
	assert.Equal(t, api.PaymentOnline, orders[0].PaymentMethod)
	assert.Equal(t, "pay_123", orders[0].PaymentID)
	assert.Empty(t, fx.store.Cart())
}

func TestPlaceOrder_OnlineCancelled(t *testing.T) {
	fx := newFixture(t)
	fx.fillCart(t)

	authorizer := AuthorizerFunc(func(ctx context.Context, intent api.PaymentIntent) (PaymentConfirmation, error) {
		return PaymentConfirmation{}, core.ErrPaymentCancelled
	})
	flow := NewFlow(fx.client, fx.store, fx.sessions, WithAuthorizer(authorizer))

	_, err := flow.PlaceOrder(context.Background(), Request{AddressID: fx.addressID, PaymentMethod: api.PaymentOnline})
	assert.ErrorIs(t, err, core.ErrPaymentCancelled)
	assert.Equal(t, StateFailed, flow.State())
	assert.Empty(t, fx.backend.Store.Orders(fx.userID))
	assert.Len(t, fx.store.Cart(), 2)

	flow.Reset()
	assert.Equal(t, StateIdle, flow.State())
	assert.NoError(t, flow.LastError())
}

func TestPlaceOrder_PaymentIntentFailure(t *testing.T) {
	fx := newFixture(t)
	fx.fillCart(t)
	fx.backend.Injector.FailNext(http.MethodPost, "/api/payment/order", http.StatusBadRequest, 1)

	called := false
	authorizer := AuthorizerFunc(func(ctx context.Context, intent api.PaymentIntent) (PaymentConfirmation, error) {
		called = true
		return PaymentConfirmation{PaymentID: "pay_1"}, nil
	})
	flow := NewFlow(fx.client, fx.store, fx.sessions, WithAuthorizer(authorizer))

	_, err := flow.PlaceOrder(context.Background(), Request{AddressID: fx.addressID, PaymentMethod: api.PaymentOnline})
	require.Error(t, err)
	assert.True(t, core.IsClientError(err))
	assert.False(t, called)
	assert.Equal(t, StateFailed, flow.State())
	assert.Len(t, fx.store.Cart(), 2)
}

func TestPlaceOrder_RejectsConcurrentSubmission(t *testing.T) {
	fx := newFixture(t)
	fx.fillCart(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	authorizer := AuthorizerFunc(func(ctx context.Context, intent api.PaymentIntent) (PaymentConfirmation, error) {
		close(entered)
		<-release
		return PaymentConfirmation{PaymentID: "pay_9"}, nil
	})
	flow := NewFlow(fx.client, fx.store, fx.sessions, WithAuthorizer(authorizer))
	req := Request{AddressID: fx.addressID, PaymentMethod: api.PaymentOnline}

	errc := make(chan error, 1)
	go func() {
		_, err := flow.PlaceOrder(context.Background(), req)
		errc <- err
	}()
	<-entered
	assert.Equal(t, StateSubmitting, flow.State())

	_, err := flow.PlaceOrder(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrCheckoutInProgress)
	flow.Reset()
	assert.Equal(t, StateSubmitting, flow.State(), "reset is ignored while submitting")

	close(release)
	require.NoError(t, <-errc)
	assert.Len(t, fx.backend.Store.Orders(fx.userID), 1)
}

func TestPlaceOrder_AuthorizerContextCancelled(t *testing.T) {
	fx := newFixture(t)
	fx.fillCart(t)

	ctx, cancel := context.WithCancel(context.Background())
	authorizer := AuthorizerFunc(func(ctx context.Context, intent api.PaymentIntent) (PaymentConfirmation, error) {
		cancel()
		return PaymentConfirmation{}, errors.New("sheet dismissed")
	})
	flow := NewFlow(fx.client, fx.store, fx.sessions, WithAuthorizer(authorizer))

	_, err := flow.PlaceOrder(ctx, Request{AddressID: fx.addressID, PaymentMethod: api.PaymentOnline})
	assert.ErrorIs(t, err, core.ErrPaymentCancelled)
}
