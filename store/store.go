// Package store holds the client's shared catalog and cart model. The
// reconciler rebuilds it from the backend; the mutators change the cart in
// memory at once and persist it through a serialized background queue.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/session"
)

// Backend is the slice of the API client the store uses
type Backend interface {
	Products(ctx context.Context, opts ...api.CallOption) ([]api.Product, error)
	Categories(ctx context.Context, opts ...api.CallOption) ([]api.Category, error)
	ProductsByCategory(ctx context.Context, categoryID string, opts ...api.CallOption) ([]api.Product, error)
	Cart(ctx context.Context, token, userID string, opts ...api.CallOption) ([]api.CartEntry, error)
	SaveCart(ctx context.Context, token, userID string, entries []api.CartEntry, opts ...api.CallOption) error
}

// SessionSource reports the current session, nil for a guest
type SessionSource interface {
	Current() *session.Session
}

// Options configures a Store
type Options struct {
	Logger       core.Logger
	Metrics      core.Metrics
	Tracer       trace.Tracer
	PushDebounce time.Duration
}

// Store is the single owner of the {products, cart} model. Readers use
// Snapshot or Subscribe; the cart changes only through the mutators and
// Reconcile.
type Store struct {
	mu           sync.RWMutex
	products     []api.Product
	cart         []CartLine
	version      uint64
	cartRev      uint64
	reconnecting bool
	hasNewOrders bool
	degradations []Degradation
	lastErr      error

	subMu         sync.Mutex // guards the fields below
	subscribers   map[int]func(Snapshot)
	nextSubID     int
	delivering    bool
	notifyPending bool

	reconcileMu sync.Mutex

	backend  Backend
	sessions SessionSource
	queue    *pushQueue
	logger   core.Logger
	metrics  core.Metrics
	tracer   trace.Tracer
}

// New creates an empty store. Close it to stop the push worker.
func New(backend Backend, sessions SessionSource, opts Options) *Store {
	s := &Store{
		backend:     backend,
		sessions:    sessions,
		subscribers: make(map[int]func(Snapshot)),
		logger:      core.LoggerOrNoOp(opts.Logger),
		metrics:     core.MetricsOrNoOp(opts.Metrics),
		tracer:      opts.Tracer,
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/itsneelabh/storefront/store")
	}
	save := func(ctx context.Context, token, userID string, entries []api.CartEntry) error {
		return backend.SaveCart(ctx, token, userID, entries)
	}
	s.queue = newPushQueue(save, opts.PushDebounce, s.logger, s.metrics)
	return s
}

// Snapshot returns a copy of the current model
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Products:     append([]api.Product{}, s.products...),
		Cart:         append([]CartLine{}, s.cart...),
		Version:      s.version,
		Reconnecting: s.reconnecting,
		HasNewOrders: s.hasNewOrders,
	}
}

// Subscribe registers fn to receive every published snapshot. The returned
// function unregisters it; calling it more than once is safe.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// notify delivers the latest snapshot. One caller at a time runs the
// delivery loop and no lock is held while subscribers run. A notify that
// arrives meanwhile, from another goroutine or from a subscriber calling
// back into the store, only marks a newer snapshot as pending and the
// running loop delivers it next. Subscribers see non-decreasing versions
// and may skip intermediate ones.
func (s *Store) notify() {
	s.subMu.Lock()
	s.notifyPending = true
	if s.delivering {
		s.subMu.Unlock()
		return
	}
	s.delivering = true
	for s.notifyPending {
		s.notifyPending = false
		subs := make([]func(Snapshot), 0, len(s.subscribers))
		for _, fn := range s.subscribers {
			subs = append(subs, fn)
		}
		s.subMu.Unlock()

		snap := s.Snapshot()
		for _, fn := range subs {
			s.deliver(fn, snap)
		}
		s.subMu.Lock()
	}
	s.delivering = false
	s.subMu.Unlock()
}

func (s *Store) deliver(fn func(Snapshot), snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Subscriber panicked", map[string]interface{}{
				"operation": "notify",
				"version":   snap.Version,
				"error":     r,
			})
		}
	}()
	fn(snap)
}

// mutateCart applies fn to the cart under the lock. When fn reports a
// change the new state is published and, for a signed-in user, queued for
// the server.
func (s *Store) mutateCart(op string, fn func(cart []CartLine) ([]CartLine, bool)) {
	sess := s.sessions.Current()

	s.mu.Lock()
	next, changed := fn(s.cart)
	if !changed {
		s.mu.Unlock()
		return
	}
	s.cart = next
	s.version++
	s.cartRev++
	entries := Entries(next)
	version := s.version
	// Enqueue under the lock so queue order matches mutation order.
	if sess != nil && sess.Token != "" && sess.UserID() != "" {
		s.queue.enqueue(sess.Token, sess.UserID(), entries)
	}
	s.mu.Unlock()

	s.logger.Debug("Cart updated", map[string]interface{}{
		"operation": op,
		"version":   version,
		"lines":     len(entries),
	})
	s.notify()
}

// AddItem adds one unit of product, creating the line if needed
func (s *Store) AddItem(product api.Product) {
	if product.ID == "" {
		s.logger.Warn("Ignoring product without id", map[string]interface{}{"operation": "add_item"})
		return
	}
	s.mutateCart("add_item", func(cart []CartLine) ([]CartLine, bool) {
		next := append([]CartLine{}, cart...)
		for i := range next {
			if next[i].ProductID == product.ID {
				next[i].Quantity++
				return next, true
			}
		}
		return append(next, lineFromProduct(product, 1)), true
	})
}

// SetQuantity overwrites a line's quantity. A quantity of zero or less
// removes the line. Unknown ids are ignored.
func (s *Store) SetQuantity(productID string, quantity int) {
	if quantity <= 0 {
		s.RemoveItem(productID)
		return
	}
	s.mutateCart("set_quantity", func(cart []CartLine) ([]CartLine, bool) {
		for i := range cart {
			if cart[i].ProductID != productID {
				continue
			}
			if cart[i].Quantity == quantity {
				return cart, false
			}
			next := append([]CartLine{}, cart...)
			next[i].Quantity = quantity
			return next, true
		}
		return cart, false
	})
}

// RemoveItem deletes the line for productID if present
func (s *Store) RemoveItem(productID string) {
	s.mutateCart("remove_item", func(cart []CartLine) ([]CartLine, bool) {
		next := make([]CartLine, 0, len(cart))
		for _, l := range cart {
			if l.ProductID != productID {
				next = append(next, l)
			}
		}
		return next, len(next) != len(cart)
	})
}

// Clear empties the cart. A signed-in user's server cart is emptied too,
// even when the local cart was already empty.
func (s *Store) Clear() {
	s.mutateCart("clear", func(cart []CartLine) ([]CartLine, bool) {
		return []CartLine{}, true
	})
}

// ResetLocal empties the cart in memory only, without touching the server.
// Used after logout, when the cart belongs to a session that no longer
// exists.
func (s *Store) ResetLocal() {
	s.mu.Lock()
	s.cart = []CartLine{}
	s.version++
	s.cartRev++
	s.hasNewOrders = false
	s.mu.Unlock()
	s.notify()
}

// Total is the current cart total rounded to 2 decimal places
func (s *Store) Total() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Total(s.cart)
}

// Cart returns a copy of the cart lines
func (s *Store) Cart() []CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CartLine{}, s.cart...)
}

// Product looks a product up in the current catalog
func (s *Store) Product(id string) (api.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return api.Product{}, false
}

// Search returns catalog products whose name contains query, ignoring case.
// An empty query matches everything.
func (s *Store) Search(query string) []api.Product {
	query = strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []api.Product{}
	for _, p := range s.products {
		if query == "" || strings.Contains(strings.ToLower(p.Name), query) {
			result = append(result, p)
		}
	}
	return result
}

// MarkNewOrder raises the new-orders indicator
func (s *Store) MarkNewOrder() {
	s.setNewOrders(true)
}

// ClearNewOrder lowers the new-orders indicator
func (s *Store) ClearNewOrder() {
	s.setNewOrders(false)
}

// HasNewOrders reports the new-orders indicator
func (s *Store) HasNewOrders() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasNewOrders
}

func (s *Store) setNewOrders(v bool) {
	s.mu.Lock()
	if s.hasNewOrders == v {
		s.mu.Unlock()
		return
	}
	s.hasNewOrders = v
	s.version++
	s.mu.Unlock()
	s.notify()
}

func (s *Store) setReconnecting(v bool) {
	s.mu.Lock()
	if s.reconnecting == v {
		s.mu.Unlock()
		return
	}
	s.reconnecting = v
	s.version++
	s.mu.Unlock()
	s.notify()
}

// Degradations returns the problems recorded by the most recent
// reconciliation pass
func (s *Store) Degradations() []Degradation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Degradation(nil), s.degradations...)
}

// LastError joins the network failures of the most recent reconciliation
// pass, nil when the pass fetched everything it needed
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Flush waits until every queued cart write has been attempted
func (s *Store) Flush(ctx context.Context) error {
	return s.queue.flush(ctx)
}

// PushStats reports cart write counters
func (s *Store) PushStats() PushStats {
	return s.queue.snapshotStats()
}

// Close flushes pending cart writes and stops the worker
func (s *Store) Close(ctx context.Context) error {
	return s.queue.close(ctx)
}
