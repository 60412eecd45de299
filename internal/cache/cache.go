package cache

import (
	"context"
	"errors"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
)

// CartCache holds fully loaded cart aggregates keyed by cart id. Partial
// projections are never cached.
type CartCache interface {
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
	Set(ctx context.Context, cartID string, cart *domain.Cart) error
	Delete(ctx context.Context, cartID string) error
}

var ErrCacheMiss = errors.New("cache miss")
