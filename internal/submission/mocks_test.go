package submission

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fjod/go_checkout/internal/domain"
)

type MockOrders struct {
	mu       sync.Mutex
	Order    *domain.Order
	Err      error
	Requests []domain.CreateOrderRequest
}

func (m *MockOrders) Create(_ context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	o := *m.Order
	return &o, nil
}

type MockSettlement struct {
	Invoice *domain.Invoice
	Err     error
	Calls   []string
}

func (m *MockSettlement) CreateInvoice(_ context.Context, orderID string) (*domain.Invoice, error) {
	m.Calls = append(m.Calls, orderID)
	if m.Err != nil {
		return nil, m.Err
	}
	inv := *m.Invoice
	inv.OrderID = orderID
	return &inv, nil
}

type MockPriceSource struct {
	Prices map[string]domain.ItemPrice
	Err    error
	Gate   chan struct{}
	calls  atomic.Int32
}

func (m *MockPriceSource) ItemPrice(ctx context.Context, itemID string) (*domain.ItemPrice, error) {
	m.calls.Add(1)
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.Prices[itemID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type fakeCart struct {
	lines   []domain.CartLine
	cleared bool
}

func (c *fakeCart) Lines() []domain.CartLine { return c.lines }
func (c *fakeCart) Clear() {
	c.lines = nil
	c.cleared = true
}
