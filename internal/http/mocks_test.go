package http

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/proof"
)

var (
	vbucks = domain.Item{ID: "v1", Name: "1000 V-Bucks", Type: "vbucks", UnitPrice: 849}
	card   = domain.PaymentMethod{ID: "m1", Slug: "card", Name: "Card"}
	crypto = domain.PaymentMethod{ID: "m2", Slug: "crypto", Name: "Crypto", SupportsAutomatedSettlement: true}
)

type MockCatalog struct{}

func (MockCatalog) ListItems(context.Context) ([]domain.Item, error) {
	return []domain.Item{vbucks}, nil
}

func (MockCatalog) GetItem(_ context.Context, id string) (*domain.Item, error) {
	if id != vbucks.ID {
		return nil, errors.New("item not found")
	}
	it := vbucks
	return &it, nil
}

type MockIdentity struct{}

func (MockIdentity) SendCode(context.Context, string) error { return nil }

func (MockIdentity) Verify(_ context.Context, _, code string) (*domain.IdentityResult, error) {
	if code != "123456" {
		return &domain.IdentityResult{Verified: false}, nil
	}
	return &domain.IdentityResult{Verified: true, CustomerID: "c1"}, nil
}

type MockMethods struct{}

func (MockMethods) ListActive(context.Context) ([]domain.PaymentMethod, error) {
	return []domain.PaymentMethod{card, crypto}, nil
}

type MockPricing struct{}

func (MockPricing) Quote(_ context.Context, subtotal int64, _ string) (*domain.PricingResponse, error) {
	return &domain.PricingResponse{OriginalAmount: subtotal, FinalAmount: subtotal}, nil
}

type MockOrders struct {
	mu      sync.Mutex
	created int
	order   *domain.Order
}

func (m *MockOrders) Create(_ context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	m.order = &domain.Order{
		ID:          "8d3c2f4e-8f0a-4c55-9a59-3f7c0b1f2a10",
		OrderNumber: "FN-001",
		Status:      domain.OrderStatusPendingPayment,
		TotalAmount: req.Total,
	}
	o := *m.order
	return &o, nil
}

func (m *MockOrders) Cancel(context.Context, string) error { return nil }

func (m *MockOrders) GetByID(context.Context, string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.order == nil {
		return nil, errors.New("order not found")
	}
	o := *m.order
	return &o, nil
}

func (m *MockOrders) GetByNumber(ctx context.Context, _ string) (*domain.Order, error) {
	return m.GetByID(ctx, "")
}

type MockSettlement struct{}

func (MockSettlement) CreateInvoice(_ context.Context, orderID string) (*domain.Invoice, error) {
	return &domain.Invoice{OrderID: orderID, InvoiceID: "inv1", PaymentURL: "https://pay.example/inv1"}, nil
}

func (MockSettlement) Status(context.Context, string) (*domain.CryptoPaymentStatus, error) {
	return &domain.CryptoPaymentStatus{Status: domain.CryptoStatusPending}, nil
}

func (MockSettlement) Regenerate(_ context.Context, orderID string) (*domain.Invoice, error) {
	return &domain.Invoice{OrderID: orderID, PaymentURL: "https://pay.example/inv2"}, nil
}

type MockUploader struct {
	mu      sync.Mutex
	uploads []proof.Upload
}

func (m *MockUploader) Upload(_ context.Context, _ string, u proof.Upload) (*domain.UploadReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, u)
	return &domain.UploadReceipt{ProofID: "p1", Status: domain.OrderStatusPaymentUploaded}, nil
}
