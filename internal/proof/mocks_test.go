package proof

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
)

type MockUploader struct {
	mu      sync.Mutex
	Receipt *domain.UploadReceipt
	Err     error
	Gate    chan struct{}
	Calls   []Upload
}

func (m *MockUploader) Upload(ctx context.Context, _ string, u Upload) (*domain.UploadReceipt, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, u)
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Receipt, nil
}

func (m *MockUploader) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
