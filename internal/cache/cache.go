package cache

import (
	"context"
	"time"

	"pdv/backend/internal/domain"
)

// CartCache keeps serialized cart snapshots so open carts survive a restart
// and can be read by other processes.
type CartCache interface {
	Get(ctx context.Context, operator string) (*domain.Cart, bool, error)
	Set(ctx context.Context, operator string, cart *domain.Cart, ttl time.Duration) error
	Delete(ctx context.Context, operator string) error
}

type NoopCartCache struct{}

func (NoopCartCache) Get(_ context.Context, _ string) (*domain.Cart, bool, error) {
	return nil, false, nil
}

func (NoopCartCache) Set(_ context.Context, _ string, _ *domain.Cart, _ time.Duration) error {
	return nil
}

func (NoopCartCache) Delete(_ context.Context, _ string) error {
	return nil
}
