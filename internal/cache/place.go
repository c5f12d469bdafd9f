package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/spotshare/spotshare/internal/model"
)

// Cache key prefixes and TTLs.
const (
	placeKeyPrefix    = "place:"
	negCacheKeySuffix = ":neg"
	fillKeySuffix     = ":fill"

	// DefaultPlaceTTL is the TTL for cached place data.
	DefaultPlaceTTL = 10 * time.Minute

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 30 * time.Second

	// FillLeaseTTL bounds the time between ReserveFill and the write that
	// uses the token.
	FillLeaseTTL = 5 * time.Second
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")

	// ErrFillRevoked means the place was invalidated, or another reader
	// reserved a newer fill, after the token was handed out. The value the
	// caller read may be stale and was not cached.
	ErrFillRevoked = errors.New("cache fill revoked")
)

// GetPlace retrieves a place from cache by ID.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetPlace(ctx context.Context, id string) (*model.Place, error) {
	key := placeKeyPrefix + id

	var cached model.CachedPlace
	res := c.client.HGetAll(ctx, key)
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(res.Val()) == 0 {
		return nil, ErrCacheMiss
	}
	if err := res.Scan(&cached); err != nil {
		return nil, fmt.Errorf("decode cached place: %w", err)
	}

	// A hash without a creator is a partial write; treat it as absent.
	if cached.CreatorID == "" {
		return nil, ErrCacheMiss
	}

	return cached.ToPlace(id), nil
}

// ReserveFill starts a read-through fill for id. Call it before reading the
// store; SetPlace and SetNegativeCache only write while the returned token
// is still the current one. DeletePlace revokes it, so a value read before a
// commit can never land in the cache after that commit's invalidation.
func (c *Cache) ReserveFill(ctx context.Context, id string) (string, error) {
	token := ulid.Make().String()
	if err := c.client.Set(ctx, placeKeyPrefix+id+fillKeySuffix, token, FillLeaseTTL).Err(); err != nil {
		return "", fmt.Errorf("reserve place fill: %w", err)
	}
	return token, nil
}

// SetPlace caches place and clears any negative entry, provided token
// still holds the fill lease. Otherwise it returns ErrFillRevoked.
func (c *Cache) SetPlace(ctx context.Context, place *model.Place, token string) error {
	key := placeKeyPrefix + place.ID
	cached := place.ToCachedPlace()
	return c.fill(ctx, place.ID, token, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, key, key+negCacheKeySuffix)
		pipe.HSet(ctx, key, cached)
		pipe.Expire(ctx, key, DefaultPlaceTTL)
	})
}

// SetNegativeCache marks id as not found under the same lease rules as
// SetPlace.
func (c *Cache) SetNegativeCache(ctx context.Context, id, token string) error {
	key := placeKeyPrefix + id
	return c.fill(ctx, id, token, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, key)
		pipe.Set(ctx, key+negCacheKeySuffix, "", NegativeCacheTTL)
	})
}

// fill runs write in a MULTI guarded by WATCH on the lease key. The lease
// is consumed by the write.
func (c *Cache) fill(ctx context.Context, id, token string, write func(redis.Pipeliner)) error {
	leaseKey := placeKeyPrefix + id + fillKeySuffix

	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, leaseKey).Result()
		if errors.Is(err, redis.Nil) || (err == nil && current != token) {
			return ErrFillRevoked
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe)
			pipe.Del(ctx, leaseKey)
			return nil
		})
		return err
	}, leaseKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFillRevoked), errors.Is(err, redis.TxFailedErr):
		return ErrFillRevoked
	default:
		return fmt.Errorf("fill place cache: %w", err)
	}
}

// DeletePlace removes a place and its negative entry and revokes any
// outstanding fill lease.
func (c *Cache) DeletePlace(ctx context.Context, id string) error {
	key := placeKeyPrefix + id

	if err := c.client.Del(ctx, key, key+negCacheKeySuffix, key+fillKeySuffix).Err(); err != nil {
		return fmt.Errorf("failed to delete place from cache: %w", err)
	}
	return nil
}

// IsNegativelyCached checks if a place ID is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, id string) (bool, error) {
	key := placeKeyPrefix + id + negCacheKeySuffix

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// PlaceKey returns the Redis key holding a cached place.
func PlaceKey(id string) string {
	return placeKeyPrefix + id
}
