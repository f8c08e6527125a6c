package store

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/internal/mockbackend"
	"github.com/itsneelabh/storefront/resilience"
	"github.com/itsneelabh/storefront/session"
)

func TestStore_AgainstMockBackend(t *testing.T) {
	backend, srv := mockbackend.NewTestServer(t)
	client := api.NewClient(resilience.NewFetchClient(mockbackend.FastFetchConfig()), srv.URL)

	_, err := backend.RegisterUser("asha", "asha@example.com", "secret")
	require.NoError(t, err)
	login, err := client.Login(context.Background(), "asha@example.com", "secret")
	require.NoError(t, err)
	userID := login.User.ID

	backend.Store.SaveCart(userID, []mockbackend.CartEntry{
		{ProductID: "p-apple", Quantity: 2},
		{ProductID: "p-ghost", Quantity: 1},
	})
	backend.Injector.FailNext(http.MethodGet, "/api/products", http.StatusServiceUnavailable, 2)

	sessions := &fakeSessions{s: &session.Session{Token: login.Token, User: login.User}}
	s := newTestStore(t, client, sessions)

	var mu sync.Mutex
	sawReconnecting := false
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		sawReconnecting = sawReconnecting || snap.Reconnecting
	})

	result := s.Reconcile(context.Background())
	assert.Equal(t, 1, result.OrphansDropped)
	assert.False(t, s.Snapshot().Reconnecting)
	mu.Lock()
	assert.True(t, sawReconnecting, "retries raise the reconnecting flag")
	mu.Unlock()
	assert.Equal(t, 3, backend.Injector.Hits(http.MethodGet, "/api/products"))

	cart := s.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, "p-apple", cart[0].ProductID)
	assert.Equal(t, 10.0, cart[0].Price)
	assert.Equal(t, srv.URL+"/uploads/products/apple.png", cart[0].Image)

	banana, ok := s.Product("p-banana")
	require.True(t, ok)
	s.AddItem(banana)
	flush(t, s)

	saved, ok := backend.Store.Cart(userID)
	require.True(t, ok)
	assert.Equal(t, []mockbackend.CartEntry{
		{ProductID: "p-apple", Quantity: 2},
		{ProductID: "p-banana", Quantity: 1},
	}, saved)
	assert.Equal(t, 25.5, s.Total())
}
