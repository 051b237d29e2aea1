package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fjod/go_checkout/internal/domain"
)

// SettlementClient talks to the crypto payment gateway.
type SettlementClient struct{ c *Client }

func NewSettlementClient(c *Client) *SettlementClient { return &SettlementClient{c: c} }

type invoiceRequest struct {
	OrderID string `json:"order_id"`
}

func (sc *SettlementClient) CreateInvoice(ctx context.Context, orderID string) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := sc.c.sendJSON(ctx, http.MethodPost, "/api/payments/crypto/invoice", invoiceRequest{OrderID: orderID}, &inv); err != nil {
		return nil, fmt.Errorf("create invoice for %s: %w", orderID, err)
	}
	if inv.OrderID == "" {
		inv.OrderID = orderID
	}
	return &inv, nil
}

func (sc *SettlementClient) Status(ctx context.Context, orderID string) (*domain.CryptoPaymentStatus, error) {
	path, err := apiPath("/api/payments/crypto", orderID, "status")
	if err != nil {
		return nil, err
	}
	var st domain.CryptoPaymentStatus
	if err := sc.c.getJSON(ctx, path, nil, &st); err != nil {
		return nil, fmt.Errorf("payment status for %s: %w", orderID, err)
	}
	return &st, nil
}

func (sc *SettlementClient) Regenerate(ctx context.Context, orderID string) (*domain.Invoice, error) {
	path, err := apiPath("/api/payments/crypto", orderID, "regenerate")
	if err != nil {
		return nil, err
	}
	var inv domain.Invoice
	if err := sc.c.sendJSON(ctx, http.MethodPost, path, nil, &inv); err != nil {
		return nil, fmt.Errorf("regenerate payment for %s: %w", orderID, err)
	}
	if inv.OrderID == "" {
		inv.OrderID = orderID
	}
	return &inv, nil
}
