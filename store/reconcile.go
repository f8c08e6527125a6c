package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/storefront/api"
)

// Reconcile rebuilds the model from the backend: the signed-in user's saved
// cart is fetched first, then the catalog, then the two are joined and
// published together. Network failures never abort the pass; they are
// recorded as degradations and the previous products or cart are kept.
//
// Merge rules:
//   - a non-empty server cart replaces the local cart; lines whose product
//     is missing from the catalog are dropped and recorded
//   - an empty server cart adopts a non-empty local (guest) cart, which is
//     then pushed to the server
//   - changes made to the cart while the pass was in flight are applied
//     on top of the merged server cart, and the result is pushed
func (s *Store) Reconcile(ctx context.Context) ReconcileResult {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	ctx, span := s.tracer.Start(ctx, "store.Reconcile")
	defer span.End()
	start := time.Now()

	s.mu.RLock()
	startRev := s.cartRev
	startCart := append([]CartLine{}, s.cart...)
	s.mu.RUnlock()

	sess := s.sessions.Current()
	result := ReconcileResult{Authenticated: sess != nil}
	var degradations []Degradation
	degrade := func(phase string, err error, detail string) {
		degradations = append(degradations, Degradation{Phase: phase, Err: err, Detail: detail, At: time.Now()})
		s.metrics.Counter(ctx, "storefront.reconcile.degradations", 1, map[string]string{"phase": phase})
	}

	onRetry := api.OnRetry(func(attempt int, err error) {
		s.setReconnecting(true)
	})
	defer s.setReconnecting(false)

	var serverCart []api.CartEntry
	cartFetched := false
	if sess != nil {
		span.SetAttributes(attribute.String("user_id", sess.UserID()))
		entries, err := s.backend.Cart(ctx, sess.Token, sess.UserID(), onRetry)
		if err != nil {
			s.logger.Warn("Cart fetch failed, keeping local cart", map[string]interface{}{
				"operation": "reconcile",
				"user_id":   sess.UserID(),
				"error":     err,
			})
			degrade(PhaseCartFetch, err, "")
		} else {
			serverCart = entries
			cartFetched = true
		}
	}

	products, err := s.backend.Products(ctx, onRetry)
	catalogOK := err == nil
	if err != nil {
		s.logger.Warn("Catalog fetch failed, keeping cached products", map[string]interface{}{
			"operation": "reconcile",
			"error":     err,
		})
		degrade(PhaseCatalogFetch, err, "")
	}

	s.mu.Lock()
	if !catalogOK {
		products = s.products
	}
	if products == nil {
		products = []api.Product{}
	}

	cart := s.cart
	changed := s.cartRev != startRev
	pushGuest := false
	pushMerged := false
	switch {
	case sess == nil, !cartFetched:
		if catalogOK {
			cart = refreshLines(cart, products)
		}
	case len(serverCart) > 0 && !catalogOK:
		degrade(PhaseMergeSkipped, nil, "catalog unavailable, server cart not merged")
	case len(serverCart) > 0:
		var orphans []string
		cart, orphans = mergeServerCart(serverCart, products)
		for _, id := range orphans {
			s.logger.Warn("Dropping cart line for unknown product", map[string]interface{}{
				"operation":  "reconcile",
				"user_id":    sess.UserID(),
				"product_id": id,
			})
			degrade(PhaseOrphanedLine, nil, "product "+id+" is not in the catalog")
			s.metrics.Counter(ctx, "storefront.cart.orphaned_lines", 1, nil)
		}
		result.OrphansDropped = len(orphans)
		if changed {
			s.logger.Debug("Cart changed during reconciliation, applying local edits", map[string]interface{}{
				"operation": "reconcile",
				"user_id":   sess.UserID(),
			})
			cart = refreshLines(applyLocalEdits(cart, startCart, s.cart), products)
			pushMerged = true
		}
	case changed:
		// Edits made during the pass were already queued with the whole cart.
		if catalogOK {
			cart = refreshLines(cart, products)
		}
	case len(cart) > 0:
		cart = refreshLines(cart, products)
		pushGuest = true
	default:
		cart = []CartLine{}
	}

	s.products = products
	s.cart = cart
	s.version++
	if pushGuest || pushMerged {
		s.queue.enqueue(sess.Token, sess.UserID(), Entries(cart))
	}
	s.degradations = degradations
	s.lastErr = lastFailure(degradations)
	s.mu.Unlock()
	s.notify()

	result.Products = len(products)
	result.CartLines = len(cart)
	result.PushedGuest = pushGuest
	result.MergedLocalEdits = pushMerged
	result.Degradations = degradations

	duration := time.Since(start)
	outcome := "ok"
	if result.Degraded() {
		outcome = "degraded"
		span.SetStatus(codes.Error, "reconciliation degraded")
		for _, d := range degradations {
			span.AddEvent("degradation", trace.WithAttributes(
				attribute.String("phase", d.Phase),
				attribute.String("detail", d.Error()),
			))
		}
	}
	span.SetAttributes(
		attribute.Int("products", result.Products),
		attribute.Int("cart_lines", result.CartLines),
	)
	s.metrics.Counter(ctx, "storefront.reconcile.runs", 1, map[string]string{"result": outcome})
	s.metrics.Histogram(ctx, "storefront.reconcile.duration_ms", float64(duration.Milliseconds()), nil)
	s.logger.Info("Reconciliation complete", map[string]interface{}{
		"operation":     "reconcile",
		"result":        outcome,
		"products":      result.Products,
		"cart_lines":    result.CartLines,
		"orphans":       result.OrphansDropped,
		"pushed_guest":  pushGuest,
		"authenticated": result.Authenticated,
		"duration_ms":   duration.Milliseconds(),
	})
	return result
}

// mergeServerCart joins saved entries with the catalog in server order.
// Entries for the same product are summed; non-positive quantities are
// ignored; ids missing from the catalog are returned as orphans.
func mergeServerCart(entries []api.CartEntry, products []api.Product) ([]CartLine, []string) {
	byID := make(map[string]api.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	cart := make([]CartLine, 0, len(entries))
	index := make(map[string]int, len(entries))
	var orphans []string
	for _, e := range entries {
		if e.Quantity <= 0 {
			continue
		}
		if i, ok := index[e.ProductID]; ok {
			cart[i].Quantity += e.Quantity
			continue
		}
		p, ok := byID[e.ProductID]
		if !ok {
			orphans = append(orphans, e.ProductID)
			continue
		}
		index[e.ProductID] = len(cart)
		cart = append(cart, lineFromProduct(p, e.Quantity))
	}
	return cart, orphans
}

// refreshLines updates the display fields of lines whose product is in the
// catalog. Lines for unknown products are kept unchanged.
func refreshLines(lines []CartLine, products []api.Product) []CartLine {
	if len(lines) == 0 {
		return []CartLine{}
	}
	byID := make(map[string]api.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	out := make([]CartLine, len(lines))
	for i, l := range lines {
		if p, ok := byID[l.ProductID]; ok {
			out[i] = lineFromProduct(p, l.Quantity)
			continue
		}
		out[i] = l
	}
	return out
}

// applyLocalEdits replays on merged the cart edits that happened between
// before and after: changed or added quantities win, removed lines are
// dropped. Server order is kept and lines new to the server are appended.
// Lines untouched since before are left to the server cart.
func applyLocalEdits(merged, before, after []CartLine) []CartLine {
	prev := make(map[string]int, len(before))
	for _, l := range before {
		prev[l.ProductID] = l.Quantity
	}
	now := make(map[string]CartLine, len(after))
	for _, l := range after {
		now[l.ProductID] = l
	}
	edited := func(l CartLine) bool {
		q, ok := prev[l.ProductID]
		return !ok || q != l.Quantity
	}

	out := make([]CartLine, 0, len(merged)+len(after))
	seen := make(map[string]bool, len(merged))
	for _, l := range merged {
		seen[l.ProductID] = true
		local, inAfter := now[l.ProductID]
		_, inBefore := prev[l.ProductID]
		switch {
		case inAfter && edited(local):
			l.Quantity = local.Quantity
		case !inAfter && inBefore:
			continue
		}
		out = append(out, l)
	}
	for _, l := range after {
		if !seen[l.ProductID] && edited(l) {
			out = append(out, l)
		}
	}
	return out
}

func lastFailure(degradations []Degradation) error {
	var errs []error
	for _, d := range degradations {
		if d.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Phase, d.Err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
