package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// PoolCache holds per-bucket stake totals for open games so odds can be
// quoted without re-reading every wager.
type PoolCache interface {
	// Get returns the cached totals, or ErrNotFound on a miss.
	Get(ctx context.Context, gameID string) ([]uint64, error)
	Set(ctx context.Context, gameID string, totals []uint64) error
	// Add increments one bucket if the game is cached and is a no-op on a miss.
	Add(ctx context.Context, gameID string, bucket Bucket, amount uint64) error
	Invalidate(ctx context.Context, gameID string) error
}

// StreamMessage is one replayed stream entry.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub plus capped, replayable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Append(ctx context.Context, stream string, payload []byte) error
	Replay(ctx context.Context, stream, afterID string, count int) ([]StreamMessage, error)
}

// Bus channels.
const (
	ChannelSettlement = "ch:settlement"
	ChannelDealing    = "ch:dealing"
	ChannelFairness   = "ch:fairness"
	StreamSettlement  = "stream:settlement"
)
