package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
)

const (
	cartKeyPrefix = "vc:cart:"
	cartTTL       = 15 * time.Minute
	// Expiries are spread out so carts warmed in the same burst do not all
	// fall out of the cache at once.
	cartTTLJitter = 5 * time.Minute
)

// RedisCache holds JSON-serialized cart aggregates. Money fields survive the
// round trip because decimal.Decimal marshals to its canonical string form.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	jitter time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    cartTTL,
		jitter: cartTTLJitter,
	}
}

func (r *RedisCache) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(cartID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	cart := new(domain.Cart)
	if err := json.Unmarshal(data, cart); err != nil {
		return nil, fmt.Errorf("decode cached cart %s: %w", cartID, err)
	}
	return cart, nil
}

func (r *RedisCache) Set(ctx context.Context, cartID string, cart *domain.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", cartID, err)
	}
	if err := r.client.Set(ctx, cartKey(cartID), payload, r.expiry()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, cartID string) error {
	if err := r.client.Del(ctx, cartKey(cartID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) expiry() time.Duration {
	return r.ttl + time.Duration(rand.Int63n(int64(r.jitter)))
}

func cartKey(cartID string) string {
	return cartKeyPrefix + cartID
}
