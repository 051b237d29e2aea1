package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/notify"
	"github.com/fjod/go_checkout/internal/proof"
)

type MockIdentity struct {
	Result *domain.IdentityResult
	Err    error
	Sent   []string
}

func (m *MockIdentity) SendCode(_ context.Context, contact string) error {
	m.Sent = append(m.Sent, contact)
	return m.Err
}

func (m *MockIdentity) Verify(context.Context, string, string) (*domain.IdentityResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}

type MockMethods struct {
	Methods []domain.PaymentMethod
	Err     error
}

func (m *MockMethods) ListActive(context.Context) ([]domain.PaymentMethod, error) {
	return m.Methods, m.Err
}

type MockPricingClient struct {
	mu        sync.Mutex
	Responses map[string]*domain.PricingResponse
	Gates     map[string]chan struct{}
	Calls     []string
}

func (m *MockPricingClient) Quote(ctx context.Context, _ int64, methodID string) (*domain.PricingResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, methodID)
	gate := m.Gates[methodID]
	resp := m.Responses[methodID]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if resp == nil {
		return nil, fmt.Errorf("no quote for %s", methodID)
	}
	return resp, nil
}

func (m *MockPricingClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

type MockOrders struct {
	mu        sync.Mutex
	Err       error
	Requests  []domain.CreateOrderRequest
	Cancelled []string
}

func (m *MockOrders) Create(_ context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	n := len(m.Requests)
	exp := time.Now().Add(30 * time.Minute)
	return &domain.Order{
		ID:          fmt.Sprintf("ord-%d", n),
		OrderNumber: fmt.Sprintf("FL-%04d", 1000+n),
		Status:      domain.OrderStatusPendingPayment,
		TotalAmount: req.Total,
		ExpiresAt:   &exp,
	}, nil
}

func (m *MockOrders) Cancel(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, orderID)
	return nil
}

func (m *MockOrders) CreateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

type MockSettlement struct {
	Err   error
	Calls []string
}

func (m *MockSettlement) CreateInvoice(_ context.Context, orderID string) (*domain.Invoice, error) {
	m.Calls = append(m.Calls, orderID)
	if m.Err != nil {
		return nil, m.Err
	}
	return &domain.Invoice{OrderID: orderID, InvoiceID: "inv-" + orderID, PaymentURL: "https://pay.example/" + orderID}, nil
}

type MockUploader struct {
	Receipt *domain.UploadReceipt
	Err     error
	Calls   int
}

func (m *MockUploader) Upload(context.Context, string, proof.Upload) (*domain.UploadReceipt, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Receipt, nil
}

type MockHandOff struct {
	Summaries []domain.HandOffSummary
}

func (m *MockHandOff) Link(s domain.HandOffSummary) (string, error) {
	m.Summaries = append(m.Summaries, s)
	return "https://wa.me/5800000000?text=order", nil
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) Has(t notify.EventType) bool {
	for _, got := range r.Types() {
		if got == t {
			return true
		}
	}
	return false
}
