package store

import (
	"context"

	"github.com/itsneelabh/storefront/api"
)

// Home feed sources, in order of preference
const (
	FeedSourceCategory = "category"
	FeedSourceCatalog  = "catalog"
	FeedSourceCached   = "cached"
)

// HomeFeed is what the home screen shows
type HomeFeed struct {
	Categories []api.Category `json:"categories"`
	Products   []api.Product  `json:"products"`
	Source     string         `json:"source"`
}

// HomeFeed loads the categories and the products of the first one. When
// there are no categories, or that category has no products or fails, it
// falls back to the full catalog and finally to the reconciled products.
func (s *Store) HomeFeed(ctx context.Context) (HomeFeed, error) {
	ctx, span := s.tracer.Start(ctx, "store.HomeFeed")
	defer span.End()

	onRetry := api.OnRetry(func(attempt int, err error) {
		s.setReconnecting(true)
	})
	defer s.setReconnecting(false)

	feed := HomeFeed{Categories: []api.Category{}}
	categories, err := s.backend.Categories(ctx, onRetry)
	if err != nil {
		s.logger.Warn("Category fetch failed", map[string]interface{}{
			"operation": "home_feed",
			"error":     err,
		})
	} else {
		feed.Categories = categories
	}

	if len(feed.Categories) > 0 {
		first := feed.Categories[0]
		products, err := s.backend.ProductsByCategory(ctx, first.ID, onRetry)
		if err == nil && len(products) > 0 {
			feed.Products = products
			feed.Source = FeedSourceCategory
			return feed, nil
		}
		s.logger.Debug("First category unusable, falling back to catalog", map[string]interface{}{
			"operation":   "home_feed",
			"category_id": first.ID,
			"error":       err,
		})
	}

	products, err := s.backend.Products(ctx, onRetry)
	if err == nil {
		feed.Products = products
		feed.Source = FeedSourceCatalog
		return feed, nil
	}

	if cached := s.Snapshot().Products; len(cached) > 0 {
		s.logger.Warn("Catalog fetch failed, serving cached products", map[string]interface{}{
			"operation": "home_feed",
			"error":     err,
		})
		feed.Products = cached
		feed.Source = FeedSourceCached
		return feed, nil
	}
	return feed, err
}
