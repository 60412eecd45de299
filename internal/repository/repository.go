package repository

import (
	"context"
	"errors"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	// ErrConcurrentModification means the cart changed between load and save.
	// Mutating flows hold the keyed lock so this only fires across instances.
	ErrConcurrentModification = errors.New("cart was modified concurrently")
)

type SearchCriteria struct {
	StoreID    string
	CustomerID string
	Skip       int64
	Take       int64
}

type SearchResult struct {
	TotalCount int64
	Carts      []*domain.Cart
}

// CartRepository defines the interface for cart persistence.
// Consumers define this interface, not the MongoDB implementation.
type CartRepository interface {
	GetByID(ctx context.Context, id string, rg domain.ResponseGroup) (*domain.Cart, error)
	GetByIDs(ctx context.Context, ids []string, rg domain.ResponseGroup) ([]*domain.Cart, error)
	GetByKey(ctx context.Context, key domain.CartKey) (*domain.Cart, error)
	Create(ctx context.Context, cart *domain.Cart) error
	Update(ctx context.Context, cart *domain.Cart) error
	SoftDelete(ctx context.Context, ids []string) error
	Search(ctx context.Context, criteria SearchCriteria) (*SearchResult, error)
}
