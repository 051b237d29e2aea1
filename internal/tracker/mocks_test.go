package tracker

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/go_checkout/internal/domain"
)

type reply[T any] struct {
	value *T
	err   error
	gate  chan struct{}
}

// script hands out queued replies in call order, then the fallback.
type script[T any] struct {
	mu       sync.Mutex
	queue    []reply[T]
	fallback *T
	calls    int
}

func (s *script[T]) push(r reply[T]) {
	s.mu.Lock()
	s.queue = append(s.queue, r)
	s.mu.Unlock()
}

func (s *script[T]) setFallback(v *T) {
	s.mu.Lock()
	s.fallback = v
	s.mu.Unlock()
}

func (s *script[T]) next(ctx context.Context) (*T, error) {
	s.mu.Lock()
	s.calls++
	var r reply[T]
	if len(s.queue) > 0 {
		r = s.queue[0]
		s.queue = s.queue[1:]
	} else {
		r = reply[T]{value: s.fallback}
	}
	s.mu.Unlock()

	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.value == nil {
		return nil, nil
	}
	v := *r.value
	return &v, nil
}

func (s *script[T]) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type MockOrders struct {
	byID     script[domain.Order]
	mu       sync.Mutex
	byNumber map[string]*domain.Order
	lookups  []string
}

func (m *MockOrders) GetByID(ctx context.Context, _ string) (*domain.Order, error) {
	return m.byID.next(ctx)
}

func (m *MockOrders) GetByNumber(_ context.Context, number string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups = append(m.lookups, number)
	o, ok := m.byNumber[number]
	if !ok {
		return nil, errors.New("order not found")
	}
	v := *o
	return &v, nil
}

func (m *MockOrders) Lookups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lookups...)
}

type MockSettlement struct {
	status  script[domain.CryptoPaymentStatus]
	Invoice *domain.Invoice
	Err     error
}

func (m *MockSettlement) Status(ctx context.Context, _ string) (*domain.CryptoPaymentStatus, error) {
	return m.status.next(ctx)
}

func (m *MockSettlement) Regenerate(_ context.Context, orderID string) (*domain.Invoice, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	inv := *m.Invoice
	inv.OrderID = orderID
	return &inv, nil
}
