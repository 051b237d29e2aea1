package clients

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fjod/go_checkout/internal/domain"
)

type PaymentMethodsClient struct{ c *Client }

func NewPaymentMethodsClient(c *Client) *PaymentMethodsClient { return &PaymentMethodsClient{c: c} }

func (pc *PaymentMethodsClient) ListActive(ctx context.Context) ([]domain.PaymentMethod, error) {
	var methods []domain.PaymentMethod
	q := url.Values{"active": {"true"}}
	if err := pc.c.getJSON(ctx, "/api/payment-methods", q, &methods); err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return methods, nil
}

type PricingClient struct{ c *Client }

func NewPricingClient(c *Client) *PricingClient { return &PricingClient{c: c} }

func (pc *PricingClient) Quote(ctx context.Context, subtotal int64, methodID string) (*domain.PricingResponse, error) {
	q := url.Values{
		"amount":          {strconv.FormatInt(subtotal, 10)},
		"paymentMethodId": {methodID},
	}
	var resp domain.PricingResponse
	if err := pc.c.getJSON(ctx, "/api/pricing/quote", q, &resp); err != nil {
		return nil, fmt.Errorf("quote %s: %w", methodID, err)
	}
	return &resp, nil
}
