package session

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/notify"
	"github.com/fjod/go_checkout/internal/submission"
)

type MockIdentity struct{}

func (MockIdentity) SendCode(context.Context, string) error { return nil }

func (MockIdentity) Verify(context.Context, string, string) (*domain.IdentityResult, error) {
	return &domain.IdentityResult{Verified: true, CustomerID: "c1"}, nil
}

type MockMethods struct{}

func (MockMethods) ListActive(context.Context) ([]domain.PaymentMethod, error) {
	return []domain.PaymentMethod{{ID: "m1", Slug: "card", Name: "Card"}}, nil
}

type MockPricing struct{}

func (MockPricing) Quote(_ context.Context, subtotal int64, _ string) (*domain.PricingResponse, error) {
	return &domain.PricingResponse{OriginalAmount: subtotal, FinalAmount: subtotal}, nil
}

type MockSubmitter struct{}

func (MockSubmitter) Submit(context.Context, submission.Cart, domain.PaymentMethod, string) (submission.Result, error) {
	return submission.Result{}, errors.New("not used")
}

func (MockSubmitter) RetryInvoice(context.Context, submission.Cart, *domain.Order) (submission.Result, error) {
	return submission.Result{}, errors.New("not used")
}

type MockOrders struct {
	mu    sync.Mutex
	Order *domain.Order
}

func (m *MockOrders) Cancel(context.Context, string) error { return nil }

func (m *MockOrders) GetByID(context.Context, string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Order == nil {
		return nil, errors.New("order not found")
	}
	o := *m.Order
	return &o, nil
}

func (m *MockOrders) GetByNumber(ctx context.Context, _ string) (*domain.Order, error) {
	return m.GetByID(ctx, "")
}

type MockSettlement struct{}

func (MockSettlement) Status(context.Context, string) (*domain.CryptoPaymentStatus, error) {
	return &domain.CryptoPaymentStatus{Status: domain.CryptoStatusPending}, nil
}

func (MockSettlement) Regenerate(_ context.Context, orderID string) (*domain.Invoice, error) {
	return &domain.Invoice{OrderID: orderID}, nil
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

func (r *recorder) ofType(typ notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
