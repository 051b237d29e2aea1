package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/go_checkout/internal/domain"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const maxConcurrentPriceFetches = 4

// PriceSource returns the authoritative server-side price of one item.
type PriceSource interface {
	ItemPrice(ctx context.Context, itemID string) (*domain.ItemPrice, error)
}

// PriceBook caches authoritative per-item prices fetched ahead of submission.
// Concurrent fetches of the same item share one request.
type PriceBook struct {
	source PriceSource
	group  singleflight.Group

	mu     sync.RWMutex
	prices map[string]domain.ItemPrice
}

func NewPriceBook(source PriceSource) *PriceBook {
	return &PriceBook{
		source: source,
		prices: make(map[string]domain.ItemPrice),
	}
}

// Refresh fetches prices for the given items. Items whose fetch fails keep
// their previous entry, if any; the failures are joined into the returned
// error.
func (b *PriceBook) Refresh(ctx context.Context, itemIDs []string) error {
	if b.source == nil || len(itemIDs) == 0 {
		return nil
	}

	var (
		errMu sync.Mutex
		errs  []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPriceFetches)
	for _, id := range itemIDs {
		id := id
		g.Go(func() error {
			if err := b.fetch(gctx, id); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (b *PriceBook) fetch(ctx context.Context, itemID string) error {
	v, err, _ := b.group.Do(itemID, func() (interface{}, error) {
		return b.source.ItemPrice(ctx, itemID)
	})
	if err != nil {
		return fmt.Errorf("failed to fetch price for %s: %w", itemID, err)
	}
	price, ok := v.(*domain.ItemPrice)
	if !ok || price == nil {
		return fmt.Errorf("no price returned for %s", itemID)
	}

	b.mu.Lock()
	b.prices[itemID] = *price
	b.mu.Unlock()
	return nil
}

// Lookup returns the last fetched price for an item.
func (b *PriceBook) Lookup(itemID string) (domain.ItemPrice, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.prices[itemID]
	return p, ok
}

func (b *PriceBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.prices)
}
