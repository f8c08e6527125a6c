package store

import (
	"math"
	"time"

	"github.com/itsneelabh/storefront/api"
)

// CartLine is one product in the cart with a snapshot of the product's
// display fields taken when the line was created or merged.
type CartLine struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Image     string  `json:"image,omitempty"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

func lineFromProduct(p api.Product, quantity int) CartLine {
	return CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		Image:     p.Image,
		Price:     p.Price,
		Quantity:  quantity,
	}
}

// Snapshot is a consistent view of the store. Products and Cart always come
// from the same publication.
type Snapshot struct {
	Products     []api.Product `json:"products"`
	Cart         []CartLine    `json:"cart"`
	Version      uint64        `json:"version"`
	Reconnecting bool          `json:"reconnecting"`
	HasNewOrders bool          `json:"hasNewOrders"`
}

// Total is the sum of price times quantity, rounded to 2 decimal places
func (s Snapshot) Total() float64 {
	return Total(s.Cart)
}

// ItemCount is the number of units in the cart
func (s Snapshot) ItemCount() int {
	n := 0
	for _, l := range s.Cart {
		n += l.Quantity
	}
	return n
}

// Total is the sum of price times quantity over lines, rounded to cents
func Total(lines []CartLine) float64 {
	var sum float64
	for _, l := range lines {
		sum += l.Price * float64(l.Quantity)
	}
	return math.Round(sum*100) / 100
}

// Entries is the wire form of the cart: ids and quantities only
func Entries(lines []CartLine) []api.CartEntry {
	entries := make([]api.CartEntry, 0, len(lines))
	for _, l := range lines {
		entries = append(entries, api.CartEntry{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return entries
}

// Degradation phases
const (
	PhaseCartFetch    = "cart_fetch"
	PhaseCatalogFetch = "catalog_fetch"
	PhaseOrphanedLine = "orphaned_line"
	PhaseMergeSkipped = "merge_skipped"
)

// Degradation records a non-fatal problem of a reconciliation pass
type Degradation struct {
	Phase  string    `json:"phase"`
	Err    error     `json:"-"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Error message of the underlying failure, if any
func (d Degradation) Error() string {
	if d.Err == nil {
		return d.Phase + ": " + d.Detail
	}
	return d.Phase + ": " + d.Err.Error()
}

// ReconcileResult summarizes one reconciliation pass
type ReconcileResult struct {
	Authenticated    bool
	Products         int
	CartLines        int
	OrphansDropped   int
	PushedGuest      bool
	MergedLocalEdits bool // cart edits made during the pass were merged and pushed
	Degradations     []Degradation
}

// Degraded reports whether the pass hit any failure
func (r ReconcileResult) Degraded() bool {
	return len(r.Degradations) > 0
}
