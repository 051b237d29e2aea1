package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fjod/go_checkout/internal/domain"
)

type OrdersClient struct{ c *Client }

func NewOrdersClient(c *Client) *OrdersClient { return &OrdersClient{c: c} }

// Create places an order. NO_BOTS_AVAILABLE comes back as a domain error
// carrying the bots the buyer can befriend.
func (oc *OrdersClient) Create(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	var order domain.Order
	if err := oc.c.sendJSON(ctx, http.MethodPost, "/api/orders", req, &order); err != nil {
		return nil, mapDomainError(fmt.Errorf("create order: %w", err))
	}
	return &order, nil
}

func (oc *OrdersClient) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	path, err := apiPath("/api/orders", id)
	if err != nil {
		return nil, err
	}
	var order domain.Order
	if err := oc.c.getJSON(ctx, path, nil, &order); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &order, nil
}

func (oc *OrdersClient) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	path, err := apiPath("/api/orders/number", number)
	if err != nil {
		return nil, err
	}
	var order domain.Order
	if err := oc.c.getJSON(ctx, path, nil, &order); err != nil {
		return nil, fmt.Errorf("get order %s: %w", number, err)
	}
	return &order, nil
}

func (oc *OrdersClient) Cancel(ctx context.Context, id string) error {
	path, err := apiPath("/api/orders", id, "cancel")
	if err != nil {
		return err
	}
	if err := oc.c.sendJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	return nil
}
