package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/afedorov1971/vc-module-cart/internal/builder"
	"github.com/afedorov1971/vc-module-cart/internal/cache"
	"github.com/afedorov1971/vc-module-cart/internal/domain"
	"github.com/afedorov1971/vc-module-cart/internal/keylock"
	"github.com/afedorov1971/vc-module-cart/internal/pricing"
	"github.com/afedorov1971/vc-module-cart/internal/publisher"
	"github.com/afedorov1971/vc-module-cart/internal/repository"
)

// CartService orchestrates cart mutations. Every mutating flow runs inside
// the keyed critical section for its cart: resolve/load, mutate through the
// builder, recompute totals, persist, then notify. Reads take no lock and
// observe whatever snapshot is currently persisted.
type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	locks    *keylock.Manager
	notifier publisher.Notifier
	deps     builder.Evaluators
	taxRate  decimal.Decimal
	sfg      singleflight.Group // Prevents cache stampede
}

func NewCartService(
	repo repository.CartRepository,
	cartCache cache.CartCache,
	locks *keylock.Manager,
	notifier publisher.Notifier,
	deps builder.Evaluators,
	taxRate decimal.Decimal,
) *CartService {
	return &CartService{
		repo:     repo,
		cache:    cartCache,
		locks:    locks,
		notifier: notifier,
		deps:     deps,
		taxRate:  taxRate,
	}
}

// GetOrCreate resolves the business tuple to the current cart, creating an
// empty one when absent. The critical section is keyed on the tuple, not the
// not-yet-known cart id, so concurrent calls for the same tuple produce
// exactly one cart.
func (s *CartService) GetOrCreate(ctx context.Context, key domain.CartKey) (*domain.Cart, error) {
	lockKey := keylock.KeyFor("cart", key.StoreID, key.CustomerID, key.Name, key.Currency, key.CultureName)
	release, err := s.locks.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	cart, err := s.repo.GetByKey(ctx, key)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, repository.ErrCartNotFound) {
		return nil, err
	}

	cart = &domain.Cart{
		ID:          uuid.NewString(),
		StoreID:     key.StoreID,
		CustomerID:  key.CustomerID,
		Name:        key.Name,
		Currency:    key.Currency,
		CultureName: key.CultureName,
		TaxRate:     s.taxRate,
		Items:       []domain.LineItem{},
	}
	pricing.Recalculate(cart)

	if err := s.repo.Create(ctx, cart); err != nil {
		return nil, err
	}
	s.store(cart)
	return cart, nil
}

// GetByID loads a cart without taking the lock. Full loads go through the
// cache with a singleflight guard; partial projections hit the repository
// directly since the cache only holds full aggregates.
func (s *CartService) GetByID(ctx context.Context, cartID string, rg domain.ResponseGroup) (*domain.Cart, error) {
	if rg != domain.Full {
		return s.repo.GetByID(ctx, cartID, rg)
	}

	v, err, _ := s.sfg.Do(cartID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, cartID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		// Readers never populate the cache: only writers do, while holding
		// the cart's lock, so a slow read cannot overwrite a newer snapshot.
		return s.repo.GetByID(ctx, cartID, domain.Full)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

func (s *CartService) GetByIDs(ctx context.Context, ids []string, rg domain.ResponseGroup) ([]*domain.Cart, error) {
	return s.repo.GetByIDs(ctx, ids, rg)
}

func (s *CartService) Search(ctx context.Context, criteria repository.SearchCriteria) (*repository.SearchResult, error) {
	return s.repo.Search(ctx, criteria)
}

// AddItem merges the item into the cart, summing quantities for an existing
// product/variation key.
func (s *CartService) AddItem(ctx context.Context, cartID string, item domain.LineItem) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(b *builder.Builder) error {
		return b.AddItem(item)
	})
}

func (s *CartService) ChangeItemQuantity(ctx context.Context, cartID, lineItemID string, quantity int) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(b *builder.Builder) error {
		b.ChangeItemQuantity(lineItemID, quantity)
		return nil
	})
}

// RemoveItem removes the line if present and returns the resulting item
// count. Removing a missing line succeeds with the count unchanged.
func (s *CartService) RemoveItem(ctx context.Context, cartID, lineItemID string) (int, error) {
	count := 0
	_, err := s.mutate(ctx, cartID, func(b *builder.Builder) error {
		count = b.RemoveItem(lineItemID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *CartService) Clear(ctx context.Context, cartID string) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(b *builder.Builder) error {
		b.Clear()
		return nil
	})
}

func (s *CartService) AddCoupon(ctx context.Context, cartID, code string) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(b *builder.Builder) error {
		return b.AddCoupon(ctx, code)
	})
}

func (s *CartService) RemoveCoupon(ctx context.Context, cartID string) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(b *builder.Builder) error {
		b.RemoveCoupon()
		return nil
	})
}

func (s *CartService) AddOrUpdateShipment(ctx context.Context, cartID string, shipment domain.Shipment) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(b *builder.Builder) error {
		return b.AddOrUpdateShipment(ctx, shipment)
	})
}

func (s *CartService) AddOrUpdatePayment(ctx context.Context, cartID string, payment domain.Payment) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(b *builder.Builder) error {
		return b.AddOrUpdatePayment(ctx, payment)
	})
}

// Merge folds the source cart into the target and tombstones the source.
// Both carts are locked for the duration; keys are acquired in canonical
// order so two opposite merges cannot deadlock.
func (s *CartService) Merge(ctx context.Context, targetID, sourceID string) (*domain.Cart, error) {
	// Equal ids would mean acquiring the same key twice and waiting on
	// ourselves forever.
	if targetID == sourceID {
		return nil, fmt.Errorf("%w: %s", domain.ErrSelfMerge, targetID)
	}

	first, second := keylock.KeyFor("cart", targetID), keylock.KeyFor("cart", sourceID)
	if second < first {
		first, second = second, first
	}

	releaseFirst, err := s.locks.Acquire(ctx, first)
	if err != nil {
		return nil, err
	}
	defer releaseFirst()

	releaseSecond, err := s.locks.Acquire(ctx, second)
	if err != nil {
		return nil, err
	}
	defer releaseSecond()

	source, err := s.repo.GetByID(ctx, sourceID, domain.Full)
	if err != nil {
		return nil, err
	}

	cart, err := s.applyLocked(ctx, targetID, func(b *builder.Builder) error {
		b.MergeWithCart(source)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SoftDelete(ctx, []string{sourceID}); err != nil {
		log.Printf("failed to tombstone merged cart %s: %v", sourceID, err)
	}
	s.invalidate(sourceID)

	return cart, nil
}

// SoftDelete tombstones carts in bulk.
func (s *CartService) SoftDelete(ctx context.Context, ids []string) error {
	if err := s.repo.SoftDelete(ctx, ids); err != nil {
		return err
	}
	for _, id := range ids {
		s.invalidate(id)
	}
	return nil
}

// GetAvailableShippingRates evaluates eligible rates for the cart's current
// contents. Read-only; takes no lock.
func (s *CartService) GetAvailableShippingRates(ctx context.Context, cartID string) ([]domain.ShippingRate, error) {
	cart, err := s.GetByID(ctx, cartID, domain.Full)
	if err != nil {
		return nil, err
	}
	return builder.New(cart, s.deps).GetAvailableShippingRates(ctx)
}

// GetAvailablePaymentMethods evaluates eligible payment methods for the
// cart's current contents. Read-only; takes no lock.
func (s *CartService) GetAvailablePaymentMethods(ctx context.Context, cartID string) ([]domain.PaymentMethod, error) {
	cart, err := s.GetByID(ctx, cartID, domain.Full)
	if err != nil {
		return nil, err
	}
	return builder.New(cart, s.deps).GetAvailablePaymentMethods(ctx)
}

// mutate runs fn inside the cart's critical section. A concurrent
// modification from another instance triggers a single reload-and-reapply
// retry; fn must therefore be idempotent, which all builder mutations are.
func (s *CartService) mutate(ctx context.Context, cartID string, fn func(b *builder.Builder) error) (*domain.Cart, error) {
	lockKey := keylock.KeyFor("cart", cartID)
	release, err := s.locks.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.applyLocked(ctx, cartID, fn)
}

// applyLocked performs load -> mutate -> recompute -> persist -> notify.
// The caller must hold the cart's lock.
func (s *CartService) applyLocked(ctx context.Context, cartID string, fn func(b *builder.Builder) error) (*domain.Cart, error) {
	var cart *domain.Cart
	for attempt := 0; ; attempt++ {
		loaded, err := s.repo.GetByID(ctx, cartID, domain.Full)
		if err != nil {
			return nil, err
		}

		b := builder.New(loaded, s.deps)
		if err := fn(b); err != nil {
			return nil, err
		}

		cart = b.Cart() // recomputes totals

		err = s.repo.Update(ctx, cart)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrConcurrentModification) && attempt == 0 {
			log.Printf("cart %s changed under us, retrying once", cartID)
			continue
		}
		return nil, err
	}

	s.store(cart)
	s.notify(cart)
	return cart, nil
}

// store refreshes the cached copy of a cart. Callers must hold the cart's
// lock so cache writes stay ordered with persistence.
func (s *CartService) store(cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, cart.ID, cart); err != nil {
		log.Printf("cache set error: %v", err)
	}
}

func (s *CartService) invalidate(cartID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, cartID); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}

// notify publishes the cart-changed fact after a successful save. Failures
// are logged, never surfaced: no core state depends on delivery.
func (s *CartService) notify(cart *domain.Cart) {
	event := publisher.EventFrom(cart)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.notifier.CartChanged(ctx, event); err != nil {
			log.Printf("failed to publish cart changed event for %s: %v", event.CartID, err)
		}
	}()
}
