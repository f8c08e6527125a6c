package store

import (
	"context"
	"errors"
	"sync"

	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/session"
)

var errBackendDown = errors.New("backend down")

type fakeBackend struct {
	mu sync.Mutex

	products    []api.Product
	productsErr error
	categories  []api.Category
	catErr      error
	byCategory  map[string][]api.Product
	byCatErr    error
	cart        []api.CartEntry
	cartErr     error
	saveErr     error
	saveGate    chan struct{} // when set, every save waits for a receive

	// when set, Products signals productsEntered and waits for productsGate
	productsEntered chan struct{}
	productsGate    chan struct{}

	cartCalls     int
	productsCalls int
	saves         [][]api.CartEntry
}

func (f *fakeBackend) Products(ctx context.Context, opts ...api.CallOption) ([]api.Product, error) {
	f.mu.Lock()
	entered, gate := f.productsEntered, f.productsGate
	f.mu.Unlock()
	if gate != nil {
		close(entered)
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.productsCalls++
	if f.productsErr != nil {
		return nil, f.productsErr
	}
	return append([]api.Product{}, f.products...), nil
}

func (f *fakeBackend) Categories(ctx context.Context, opts ...api.CallOption) ([]api.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.categories, f.catErr
}

func (f *fakeBackend) ProductsByCategory(ctx context.Context, id string, opts ...api.CallOption) ([]api.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byCatErr != nil {
		return nil, f.byCatErr
	}
	return f.byCategory[id], nil
}

func (f *fakeBackend) Cart(ctx context.Context, token, userID string, opts ...api.CallOption) ([]api.CartEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartCalls++
	return append([]api.CartEntry{}, f.cart...), f.cartErr
}

func (f *fakeBackend) SaveCart(ctx context.Context, token, userID string, entries []api.CartEntry, opts ...api.CallOption) error {
	f.mu.Lock()
	gate := f.saveGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, append([]api.CartEntry{}, entries...))
	return f.saveErr
}

func (f *fakeBackend) savedCarts() [][]api.CartEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]api.CartEntry(nil), f.saves...)
}

type fakeSessions struct {
	mu sync.Mutex
	s  *session.Session
}

func (f *fakeSessions) Current() *session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.s == nil {
		return nil
	}
	c := *f.s
	return &c
}

func (f *fakeSessions) set(s *session.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s = s
}

func signedIn() *fakeSessions {
	return &fakeSessions{s: &session.Session{Token: "tok", User: api.User{ID: "u1"}}}
}

func guest() *fakeSessions {
	return &fakeSessions{}
}

var (
	apple  = api.Product{ID: "A", Name: "Apple", Price: 10, Image: "https://host/img/a.png"}
	banana = api.Product{ID: "B", Name: "Banana", Price: 5.5, Image: "https://host/img/b.png"}
)

type countingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{counters: make(map[string]int64)}
}

func (m *countingMetrics) Counter(ctx context.Context, name string, value int64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

func (m *countingMetrics) Histogram(ctx context.Context, name string, value float64, labels map[string]string) {
}

func (m *countingMetrics) get(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

var _ core.Metrics = (*countingMetrics)(nil)
