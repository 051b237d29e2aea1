package pricing

import (
	"context"
	"sync"

	"github.com/fjod/go_checkout/internal/domain"
)

// MockPricingClient implements Client for testing. When Gates holds a
// channel for a method, Quote blocks until that channel is closed.
type MockPricingClient struct {
	mu        sync.Mutex
	Responses map[string]*domain.PricingResponse
	Err       error
	Gates     map[string]chan struct{}
	Calls     []string
}

func (m *MockPricingClient) Quote(ctx context.Context, _ int64, methodID string) (*domain.PricingResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, methodID)
	gate := m.Gates[methodID]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Responses[methodID], nil
}
