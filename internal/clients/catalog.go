package clients

import (
	"context"
	"fmt"

	"github.com/fjod/go_checkout/internal/domain"
)

type CatalogClient struct{ c *Client }

func NewCatalogClient(c *Client) *CatalogClient { return &CatalogClient{c: c} }

func (cc *CatalogClient) ListItems(ctx context.Context) ([]domain.Item, error) {
	var items []domain.Item
	if err := cc.c.getJSON(ctx, "/api/items", nil, &items); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (cc *CatalogClient) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	path, err := apiPath("/api/items", itemID)
	if err != nil {
		return nil, err
	}
	var item domain.Item
	if err := cc.c.getJSON(ctx, path, nil, &item); err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	return &item, nil
}

// ItemPrice returns the authoritative current price of one item.
func (cc *CatalogClient) ItemPrice(ctx context.Context, itemID string) (*domain.ItemPrice, error) {
	path, err := apiPath("/api/items", itemID, "price")
	if err != nil {
		return nil, err
	}
	var price domain.ItemPrice
	if err := cc.c.getJSON(ctx, path, nil, &price); err != nil {
		return nil, fmt.Errorf("get price of %s: %w", itemID, err)
	}
	if price.ItemID == "" {
		price.ItemID = itemID
	}
	return &price, nil
}
