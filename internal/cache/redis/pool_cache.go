package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/housefun/internal/domain"
)

const poolTTL = 10 * time.Minute

// addIfCachedLua increments a bucket only when the pool hash already exists,
// so a partial hash is never created on a cache miss.
const addIfCachedLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`

// PoolCache implements domain.PoolCache using one Redis hash per game.
//
// Key schema:
//
//	pool:{gameID} - hash with field "n" (bucket count) and fields "0".."n-1"
type PoolCache struct {
	rdb   redis.UniversalClient
	addSc *redis.Script
}

// NewPoolCache creates a PoolCache backed by the given Client.
func NewPoolCache(c *Client) *PoolCache {
	return &PoolCache{rdb: c.cmd(), addSc: redis.NewScript(addIfCachedLua)}
}

func poolKey(gameID string) string { return "pool:" + gameID }

// Get returns the cached bucket totals. It returns domain.ErrNotFound on a miss.
func (pc *PoolCache) Get(ctx context.Context, gameID string) ([]uint64, error) {
	vals, err := pc.rdb.HGetAll(ctx, poolKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get pool %s: %w", gameID, err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodePool(vals)
}

// Set replaces the cached totals for a game.
func (pc *PoolCache) Set(ctx context.Context, gameID string, totals []uint64) error {
	key := poolKey(gameID)
	fields := make(map[string]any, len(totals)+1)
	fields["n"] = len(totals)
	for i, t := range totals {
		fields[strconv.Itoa(i)] = strconv.FormatUint(t, 10)
	}

	pipe := pc.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, poolTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set pool %s: %w", gameID, err)
	}
	return nil
}

// Add increments one bucket of a cached pool. A miss is left for the next
// reader to rebuild.
func (pc *PoolCache) Add(ctx context.Context, gameID string, bucket domain.Bucket, amount uint64) error {
	err := pc.addSc.Run(ctx, pc.rdb, []string{poolKey(gameID)},
		strconv.Itoa(bucket.Index()), strconv.FormatUint(amount, 10), poolTTL.Milliseconds(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: add to pool %s: %w", gameID, err)
	}
	return nil
}

// Invalidate drops the cached pool, typically after settlement.
func (pc *PoolCache) Invalidate(ctx context.Context, gameID string) error {
	if err := pc.rdb.Del(ctx, poolKey(gameID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate pool %s: %w", gameID, err)
	}
	return nil
}

// decodePool turns a pool hash back into ordered totals.
func decodePool(vals map[string]string) ([]uint64, error) {
	n, err := strconv.Atoi(vals["n"])
	if err != nil || n < 1 || n > domain.MaxBuckets {
		return nil, fmt.Errorf("redis: pool bucket count %q: %w", vals["n"], domain.ErrInvalidBucket)
	}
	totals := make([]uint64, n)
	for i := range totals {
		raw, ok := vals[strconv.Itoa(i)]
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: pool bucket %d: %w", i, err)
		}
		totals[i] = v
	}
	return totals, nil
}

var _ domain.PoolCache = (*PoolCache)(nil)
