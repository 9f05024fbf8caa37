package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/housefun/internal/domain"
)

const (
	// streamMaxLen caps each stream via XADD MAXLEN ~.
	streamMaxLen int64 = 10000
	// subscriberBuffer is the go-redis channel size per subscription.
	subscriberBuffer = 128
	// streamField is the XADD field holding the event payload.
	streamField = "event"
)

// SignalBus implements domain.SignalBus. Live events go out over Pub/Sub;
// settlement events are also appended to a capped stream so a reconnecting
// websocket client can replay what it missed.
type SignalBus struct {
	rdb redis.UniversalClient
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.cmd()}
}

var _ domain.SignalBus = (*SignalBus)(nil)

// Publish sends payload on a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on channel, or on a glob pattern such as "ch:*". The
// returned channel closes when ctx is done or the subscription drops.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := sb.rdb.Subscribe
	if hasPattern(channel) {
		sub = sb.rdb.PSubscribe
	}
	ps := sub(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	in := ps.Channel(redis.WithChannelSize(subscriberBuffer))
	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			var msg *redis.Message
			var ok bool
			select {
			case <-ctx.Done():
				return
			case msg, ok = <-in:
				if !ok {
					return
				}
			}
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func hasPattern(channel string) bool { return strings.ContainsAny(channel, "*?[") }

// Append adds payload to stream, trimming it to about streamMaxLen entries.
func (sb *SignalBus) Append(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: []any{streamField, payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: append %s: %w", stream, err)
	}
	return nil
}

// Replay returns up to count entries strictly after afterID, oldest first.
// An empty afterID starts at the head of the stream.
func (sb *SignalBus) Replay(ctx context.Context, stream, afterID string, count int) ([]domain.StreamMessage, error) {
	start := "-"
	if afterID != "" {
		start = "(" + afterID
	}
	entries, err := sb.rdb.XRangeN(ctx, stream, start, "+", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: replay %s: %w", stream, err)
	}
	out := make([]domain.StreamMessage, 0, len(entries))
	for _, e := range entries {
		if payload, ok := e.Values[streamField].(string); ok {
			out = append(out, domain.StreamMessage{ID: e.ID, Payload: []byte(payload)})
		}
	}
	return out, nil
}
