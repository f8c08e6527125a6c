package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/core"
)

func newTestStore(t *testing.T, backend Backend, sessions SessionSource) *Store {
	t.Helper()
	s := New(backend, sessions, Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func flush(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

func TestReconcile_DropsOrphanedLines(t *testing.T) {
	backend := &fakeBackend{
		products: []api.Product{apple},
		cart:     []api.CartEntry{{ProductID: "A", Quantity: 2}, {ProductID: "B", Quantity: 1}},
	}
	metrics := newCountingMetrics()
	s := New(backend, signedIn(), Options{Metrics: metrics})
	defer s.Close(context.Background())

	result := s.Reconcile(context.Background())

	cart := s.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, CartLine{ProductID: "A", Name: "Apple", Image: "https://host/img/a.png", Price: 10, Quantity: 2}, cart[0])
	assert.Equal(t, 1, result.OrphansDropped)

	degradations := s.Degradations()
	require.Len(t, degradations, 1)
	assert.Equal(t, PhaseOrphanedLine, degradations[0].Phase)
	assert.Contains(t, degradations[0].Detail, "B")
	assert.Equal(t, int64(1), metrics.get("storefront.cart.orphaned_lines"))
	assert.NoError(t, s.LastError(), "orphans are tracked but are not network failures")
}

func TestReconcile_EditsDuringPassAreMergedWithServerCart(t *testing.T) {
	backend := &fakeBackend{
		products:        []api.Product{apple, banana},
		cart:            []api.CartEntry{{ProductID: "A", Quantity: 5}},
		productsEntered: make(chan struct{}),
		productsGate:    make(chan struct{}),
	}
	s := newTestStore(t, backend, signedIn())

	done := make(chan ReconcileResult, 1)
	go func() { done <- s.Reconcile(context.Background()) }()

	select {
	case <-backend.productsEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("catalog fetch not started")
	}
	s.AddItem(banana)
	close(backend.productsGate)

	var result ReconcileResult
	select {
	case result = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconcile did not finish")
	}

	assert.Equal(t, []api.CartEntry{{ProductID: "A", Quantity: 5}, {ProductID: "B", Quantity: 1}}, Entries(s.Cart()))
	assert.True(t, result.MergedLocalEdits)
	assert.False(t, result.PushedGuest)

	flush(t, s)
	saves := backend.savedCarts()
	require.NotEmpty(t, saves)
	assert.Equal(t, []api.CartEntry{{ProductID: "A", Quantity: 5}, {ProductID: "B", Quantity: 1}}, saves[len(saves)-1])
}

func TestReconcile_UnchangedCartIsNotPushedBack(t *testing.T) {
	backend := &fakeBackend{
		products: []api.Product{apple, banana},
		cart:     []api.CartEntry{{ProductID: "A", Quantity: 5}},
	}
	s := newTestStore(t, backend, signedIn())

	result := s.Reconcile(context.Background())
	flush(t, s)

	assert.False(t, result.MergedLocalEdits)
	assert.Empty(t, backend.savedCarts())
}

func TestApplyLocalEdits(t *testing.T) {
	line := func(id string, q int) CartLine { return CartLine{ProductID: id, Quantity: q} }

	tests := []struct {
		name   string
		merged []CartLine
		before []CartLine
		after  []CartLine
		want   []CartLine
	}{
		{
			name:   "added line is appended after server order",
			merged: []CartLine{line("A", 5)},
			after:  []CartLine{line("B", 1)},
			want:   []CartLine{line("A", 5), line("B", 1)},
		},
		{
			name:   "local quantity wins for a line edited during the pass",
			merged: []CartLine{line("A", 5), line("C", 2)},
			before: []CartLine{line("A", 1)},
			after:  []CartLine{line("A", 3)},
			want:   []CartLine{line("A", 3), line("C", 2)},
		},
		{
			name:   "line removed during the pass is dropped",
			merged: []CartLine{line("A", 5), line("C", 2)},
			before: []CartLine{line("A", 1)},
			after:  []CartLine{},
			want:   []CartLine{line("C", 2)},
		},
		{
			name:   "untouched guest line defers to the server",
			merged: []CartLine{line("A", 5)},
			before: []CartLine{line("A", 1), line("D", 4)},
			after:  []CartLine{line("A", 1), line("D", 4), line("B", 1)},
			want:   []CartLine{line("A", 5), line("B", 1)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, applyLocalEdits(tt.merged, tt.before, tt.after))
		})
	}
}

func TestReconcile_SingleCatalogFetchPerPass(t *testing.T) {
	backend := &fakeBackend{
		products: []api.Product{apple},
		cart:     []api.CartEntry{{ProductID: "A", Quantity: 1}},
	}
	s := newTestStore(t, backend, signedIn())

	s.Reconcile(context.Background())
	assert.Equal(t, 1, backend.cartCalls)
	assert.Equal(t, 1, backend.productsCalls)
}

func TestReconcile_GuestFetchesCatalogOnly(t *testing.T) {
	backend := &fakeBackend{products: []api.Product{apple, banana}}
	s := newTestStore(t, backend, guest())

	result := s.Reconcile(context.Background())
	assert.False(t, result.Authenticated)
	assert.Equal(t, 0, backend.cartCalls)
	assert.Len(t, s.Snapshot().Products, 2)
	assert.Empty(t, s.Cart())
}

func TestReconcile_MergeRules(t *testing.T) {
	backend := &fakeBackend{
		products: []api.Product{apple, banana},
		cart: []api.CartEntry{
			{ProductID: "B", Quantity: 1},
			{ProductID: "A", Quantity: 0},
			{ProductID: "A", Quantity: 2},
			{ProductID: "B", Quantity: 2},
		},
	}
	s := newTestStore(t, backend, signedIn())
	s.AddItem(banana) // replaced by the non-empty server cart
	flush(t, s)

	s.Reconcile(context.Background())

	cart := s.Cart()
	require.Len(t, cart, 2)
	assert.Equal(t, "B", cart[0].ProductID, "server order is kept")
	assert.Equal(t, 3, cart[0].Quantity, "duplicates are summed")
	assert.Equal(t, "A", cart[1].ProductID)
	assert.Equal(t, 2, cart[1].Quantity)
}

func TestReconcile_EmptyServerCartAdoptsGuestCart(t *testing.T) {
	backend := &fakeBackend{products: []api.Product{apple, banana}}
	sessions := guest()
	s := newTestStore(t, backend, sessions)

	s.AddItem(apple)
	s.AddItem(apple)
	flush(t, s)
	require.Empty(t, backend.savedCarts())

	sessions.set(signedIn().s)
	result := s.Reconcile(context.Background())
	flush(t, s)

	assert.True(t, result.PushedGuest)
	require.Len(t, s.Cart(), 1)
	assert.Equal(t, 2, s.Cart()[0].Quantity)
	saves := backend.savedCarts()
	require.Len(t, saves, 1)
	assert.Equal(t, []api.CartEntry{{ProductID: "A", Quantity: 2}}, saves[0])
}

func TestReconcile_CatalogFailureKeepsCachedProducts(t *testing.T) {
	backend := &fakeBackend{products: []api.Product{apple, banana}}
	s := newTestStore(t, backend, guest())
	s.Reconcile(context.Background())

	backend.mu.Lock()
	backend.productsErr = errBackendDown
	backend.mu.Unlock()

	result := s.Reconcile(context.Background())
	assert.True(t, result.Degraded())
	assert.Len(t, s.Snapshot().Products, 2)
	require.Error(t, s.LastError())
	assert.ErrorIs(t, s.LastError(), errBackendDown)
	assert.Equal(t, PhaseCatalogFetch, s.Degradations()[0].Phase)
}

func TestReconcile_ColdStartFailureYieldsEmptyModel(t *testing.T) {
	backend := &fakeBackend{productsErr: errBackendDown, cartErr: errBackendDown}
	s := newTestStore(t, backend, signedIn())

	result := s.Reconcile(context.Background())
	require.Len(t, result.Degradations, 2)
	snap := s.Snapshot()
	assert.NotNil(t, snap.Products)
	assert.Empty(t, snap.Products)
	assert.Empty(t, snap.Cart)
}

func TestReconcile_CartFetchFailureKeepsLocalCart(t *testing.T) {
	backend := &fakeBackend{products: []api.Product{apple}}
	s := newTestStore(t, backend, signedIn())
	s.AddItem(apple)
	flush(t, s)

	backend.mu.Lock()
	backend.cartErr = errBackendDown
	backend.mu.Unlock()

	s.Reconcile(context.Background())
	require.Len(t, s.Cart(), 1)
	assert.Equal(t, PhaseCartFetch, s.Degradations()[0].Phase)
}

func TestReconcile_MergeSkippedWhenCatalogDown(t *testing.T) {
	backend := &fakeBackend{
		productsErr: errBackendDown,
		cart:        []api.CartEntry{{ProductID: "A", Quantity: 1}},
	}
	s := newTestStore(t, backend, signedIn())

	s.Reconcile(context.Background())
	assert.Empty(t, s.Cart(), "server lines are not surfaced without product data")

	phases := []string{}
	for _, d := range s.Degradations() {
		phases = append(phases, d.Phase)
	}
	assert.Equal(t, []string{PhaseCatalogFetch, PhaseMergeSkipped}, phases)
}

func TestReconcile_Snapshot(t *testing.T) {
	backend := &fakeBackend{
		products: []api.Product{apple, banana},
		cart: []api.CartEntry{
			{ProductID: "A", Quantity: 2},
			{ProductID: "B", Quantity: 3},
			{ProductID: "Z", Quantity: 1},
		},
	}
	s := newTestStore(t, backend, signedIn())
	s.Reconcile(context.Background())

	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "reconciled_snapshot", append(data, '\n'))
}

func TestSetQuantity_ZeroRemovesLine(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, guest())
	s.AddItem(apple)
	s.AddItem(banana)

	s.SetQuantity("A", 0)

	cart := s.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, "B", cart[0].ProductID)

	s.SetQuantity("B", -3)
	assert.Empty(t, s.Cart())
}

func TestSetQuantity_Overwrites(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, guest())
	s.AddItem(apple)

	s.SetQuantity("A", 7)
	assert.Equal(t, 7, s.Cart()[0].Quantity)

	before := s.Snapshot().Version
	s.SetQuantity("A", 7)
	s.SetQuantity("missing", 3)
	assert.Equal(t, before, s.Snapshot().Version)
}

func TestRemoveItem_Idempotent(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, guest())
	s.AddItem(apple)
	before := s.Snapshot()

	assert.NotPanics(t, func() {
		s.RemoveItem("X")
		s.RemoveItem("X")
	})
	after := s.Snapshot()
	assert.Equal(t, before.Cart, after.Cart)
	assert.Equal(t, before.Version, after.Version)
}

func TestAddItem_IncrementsExistingLine(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, guest())
	s.AddItem(apple)
	s.AddItem(banana)
	s.AddItem(apple)

	cart := s.Cart()
	require.Len(t, cart, 2)
	assert.Equal(t, "A", cart[0].ProductID, "insertion order is kept")
	assert.Equal(t, 2, cart[0].Quantity)
	assert.Equal(t, 1, cart[1].Quantity)

	s.AddItem(api.Product{Name: "no id"})
	assert.Len(t, s.Cart(), 2)
}

func TestTotal(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, guest())
	s.AddItem(api.Product{ID: "x", Price: 10})
	s.SetQuantity("x", 2)
	s.AddItem(api.Product{ID: "y", Price: 5.50})
	s.SetQuantity("y", 3)

	assert.Equal(t, 36.50, s.Total())
	assert.Equal(t, 36.50, s.Snapshot().Total())
	assert.Equal(t, 5, s.Snapshot().ItemCount())
}

func TestTotal_RoundsToCents(t *testing.T) {
	lines := []CartLine{{Price: 0.1, Quantity: 3}, {Price: 0.2, Quantity: 1}}
	assert.Equal(t, 0.5, Total(lines))
	assert.Equal(t, 0.0, Total(nil))
}

func TestGuestCart_NoServerPush(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestStore(t, backend, guest())

	s.AddItem(apple)
	s.SetQuantity("A", 4)
	s.RemoveItem("A")
	s.Clear()
	flush(t, s)

	assert.Empty(t, backend.savedCarts())
	assert.Equal(t, uint64(0), s.PushStats().Enqueued)
}

func TestSignedInMutationsArePushed(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestStore(t, backend, signedIn())

	s.AddItem(apple)
	flush(t, s)
	s.Clear()
	flush(t, s)

	saves := backend.savedCarts()
	require.Len(t, saves, 2)
	assert.Equal(t, []api.CartEntry{{ProductID: "A", Quantity: 1}}, saves[0])
	assert.Empty(t, saves[1])
}

func TestPushQueue_LastEnqueuedIsLastSent(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{saveGate: gate}
	s := newTestStore(t, backend, signedIn())

	s.AddItem(apple) // first push blocks on the gate
	require.Eventually(t, func() bool {
		return s.PushStats().Enqueued == 1
	}, time.Second, time.Millisecond)

	for i := 0; i < 5; i++ {
		s.AddItem(banana)
	}
	s.SetQuantity("A", 9)

	close(gate)
	flush(t, s)

	saves := backend.savedCarts()
	require.NotEmpty(t, saves)
	assert.LessOrEqual(t, len(saves), 3, "intermediate states are coalesced")
	want := Entries(s.Cart())
	assert.Equal(t, want, saves[len(saves)-1])
	assert.Equal(t, []api.CartEntry{{ProductID: "A", Quantity: 9}, {ProductID: "B", Quantity: 5}}, want)

	stats := s.PushStats()
	assert.Equal(t, uint64(7), stats.Enqueued)
	assert.Equal(t, stats.Enqueued, stats.LastSeq)
}

func TestPushQueue_ConcurrentMutationsConverge(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestStore(t, backend, signedIn())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddItem(apple)
		}()
	}
	wg.Wait()
	flush(t, s)

	saves := backend.savedCarts()
	require.NotEmpty(t, saves)
	assert.Equal(t, []api.CartEntry{{ProductID: "A", Quantity: 20}}, saves[len(saves)-1])
}

func TestPushQueue_Debounce(t *testing.T) {
	backend := &fakeBackend{}
	s := New(backend, signedIn(), Options{PushDebounce: 30 * time.Millisecond})
	defer s.Close(context.Background())

	for i := 0; i < 10; i++ {
		s.AddItem(apple)
	}
	flush(t, s)

	saves := backend.savedCarts()
	require.Len(t, saves, 1)
	assert.Equal(t, 10, saves[0][0].Quantity)
}

func TestPushFailure_NoRollback(t *testing.T) {
	backend := &fakeBackend{saveErr: errBackendDown}
	metrics := newCountingMetrics()
	s := New(backend, signedIn(), Options{Metrics: metrics})
	defer s.Close(context.Background())

	s.AddItem(apple)
	flush(t, s)

	assert.Len(t, s.Cart(), 1)
	assert.Equal(t, uint64(1), s.PushStats().Failed)
	assert.Equal(t, int64(1), metrics.get("storefront.cart.push"))
}

func TestResetLocal_DoesNotPush(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestStore(t, backend, signedIn())
	s.AddItem(apple)
	s.MarkNewOrder()
	flush(t, s)

	s.ResetLocal()
	flush(t, s)
	assert.Empty(t, s.Cart())
	assert.False(t, s.HasNewOrders())
	assert.Len(t, backend.savedCarts(), 1)
}

func TestSubscribe(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, guest())

	var mu sync.Mutex
	var versions []uint64
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		versions = append(versions, snap.Version)
	})

	s.AddItem(apple)
	s.AddItem(apple)
	unsubscribe()
	unsubscribe()
	s.AddItem(apple)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, versions)
}

func TestSubscribe_SubscriberCanCallBackIntoStore(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, guest())

	var mu sync.Mutex
	var last Snapshot
	s.Subscribe(func(snap Snapshot) {
		if snap.HasNewOrders {
			s.ClearNewOrder()
		}
		mu.Lock()
		defer mu.Unlock()
		last = snap
	})

	done := make(chan struct{})
	go func() {
		s.MarkNewOrder()
		s.AddItem(apple)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutator blocked by its own subscriber")
	}

	assert.False(t, s.HasNewOrders())
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, last.HasNewOrders)
	assert.Len(t, last.Cart, 1)
	assert.Equal(t, s.Snapshot().Version, last.Version, "latest state is delivered last")
}

func TestSubscribe_PanickingSubscriberIsContained(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, guest())
	s.Subscribe(func(Snapshot) { panic("boom") })

	var got int
	s.Subscribe(func(snap Snapshot) { got = len(snap.Cart) })

	assert.NotPanics(t, func() { s.AddItem(apple) })
	assert.Equal(t, 1, got)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, guest())
	s.AddItem(apple)

	snap := s.Snapshot()
	snap.Cart[0].Quantity = 99
	assert.Equal(t, 1, s.Cart()[0].Quantity)
}

func TestSearch(t *testing.T) {
	backend := &fakeBackend{products: []api.Product{apple, banana, {ID: "C", Name: "Pineapple Juice"}}}
	s := newTestStore(t, backend, guest())
	s.Reconcile(context.Background())

	names := func(ps []api.Product) []string {
		out := []string{}
		for _, p := range ps {
			out = append(out, p.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Apple", "Pineapple Juice"}, names(s.Search("APPLE")))
	assert.Len(t, s.Search(""), 3)
	assert.Empty(t, s.Search("kiwi"))

	p, ok := s.Product("B")
	assert.True(t, ok)
	assert.Equal(t, "Banana", p.Name)
}

func TestNewOrderIndicator(t *testing.T) {
	s := newTestStore(t, &fakeBackend{}, guest())
	assert.False(t, s.HasNewOrders())

	s.MarkNewOrder()
	assert.True(t, s.HasNewOrders())
	assert.True(t, s.Snapshot().HasNewOrders)

	s.ClearNewOrder()
	assert.False(t, s.HasNewOrders())
}

func TestHomeFeed(t *testing.T) {
	t.Run("first category", func(t *testing.T) {
		backend := &fakeBackend{
			categories: []api.Category{{ID: "c1"}, {ID: "c2"}},
			byCategory: map[string][]api.Product{"c1": {apple}},
			products:   []api.Product{apple, banana},
		}
		s := newTestStore(t, backend, guest())
		feed, err := s.HomeFeed(context.Background())
		require.NoError(t, err)
		assert.Equal(t, FeedSourceCategory, feed.Source)
		assert.Equal(t, []api.Product{apple}, feed.Products)
		assert.Len(t, feed.Categories, 2)
	})

	t.Run("empty category falls back to catalog", func(t *testing.T) {
		backend := &fakeBackend{
			categories: []api.Category{{ID: "c1"}},
			products:   []api.Product{apple, banana},
		}
		s := newTestStore(t, backend, guest())
		feed, err := s.HomeFeed(context.Background())
		require.NoError(t, err)
		assert.Equal(t, FeedSourceCatalog, feed.Source)
		assert.Len(t, feed.Products, 2)
	})

	t.Run("no categories", func(t *testing.T) {
		backend := &fakeBackend{catErr: errBackendDown, products: []api.Product{banana}}
		s := newTestStore(t, backend, guest())
		feed, err := s.HomeFeed(context.Background())
		require.NoError(t, err)
		assert.Equal(t, FeedSourceCatalog, feed.Source)
		assert.Empty(t, feed.Categories)
	})

	t.Run("everything down serves cache", func(t *testing.T) {
		backend := &fakeBackend{products: []api.Product{apple}}
		s := newTestStore(t, backend, guest())
		s.Reconcile(context.Background())

		backend.mu.Lock()
		backend.catErr = errBackendDown
		backend.productsErr = errBackendDown
		backend.mu.Unlock()

		feed, err := s.HomeFeed(context.Background())
		require.NoError(t, err)
		assert.Equal(t, FeedSourceCached, feed.Source)
	})

	t.Run("everything down without cache", func(t *testing.T) {
		backend := &fakeBackend{catErr: errBackendDown, productsErr: errBackendDown}
		s := newTestStore(t, backend, guest())
		_, err := s.HomeFeed(context.Background())
		assert.ErrorIs(t, err, errBackendDown)
	})
}

func TestReconcile_LogsOrphans(t *testing.T) {
	backend := &fakeBackend{
		products: []api.Product{apple},
		cart:     []api.CartEntry{{ProductID: "gone", Quantity: 1}},
	}
	logger := &recordingLogger{}
	s := New(backend, signedIn(), Options{Logger: logger})
	defer s.Close(context.Background())

	s.Reconcile(context.Background())
	assert.Contains(t, logger.warnings(), "Dropping cart line for unknown product")
}

type recordingLogger struct {
	core.NoOpLogger
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Warn(msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}
