package snapshot

import (
	"context"
	"errors"

	"github.com/fjod/go_checkout/internal/domain"
)

// Store persists cart snapshots keyed by buyer session.
type Store interface {
	Get(ctx context.Context, key string) (*domain.CartSnapshot, error)
	Set(ctx context.Context, key string, snap *domain.CartSnapshot) error
	Delete(ctx context.Context, key string) error
}

var ErrMiss = errors.New("snapshot miss")
