package redis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/housefun/internal/domain"
)

func TestDecodePool(t *testing.T) {
	totals, err := decodePool(map[string]string{"n": "3", "0": "100", "2": "50"})
	require.NoError(t, err)
	require.Equal(t, []uint64{100, 0, 50}, totals)

	_, err = decodePool(map[string]string{"0": "1"})
	require.ErrorIs(t, err, domain.ErrInvalidBucket)

	_, err = decodePool(map[string]string{"n": "10"})
	require.ErrorIs(t, err, domain.ErrInvalidBucket)

	_, err = decodePool(map[string]string{"n": "2", "1": "-5"})
	require.Error(t, err)
}

func TestKeys(t *testing.T) {
	require.Equal(t, "lock:settle:g1", lockKey("settle:g1"))
	require.Equal(t, "ratelimit:verify:1.2.3.4", rateLimitKey("verify:1.2.3.4"))
	require.Equal(t, "pool:g1", poolKey("g1"))
	require.True(t, hasPattern("ch:*"))
	require.False(t, hasPattern(domain.ChannelSettlement))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	require.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}

func TestClientConfigTopology(t *testing.T) {
	opts := ClientConfig{Addr: "a:6379, b:6379,", PoolSize: 5, TLSEnabled: true}.universal()
	require.Equal(t, []string{"a:6379", "b:6379"}, opts.Addrs)
	require.Equal(t, 5, opts.PoolSize)
	require.NotNil(t, opts.TLSConfig)

	opts = ClientConfig{Addr: "localhost:6379"}.universal()
	require.Equal(t, []string{"localhost:6379"}, opts.Addrs)
	require.Nil(t, opts.TLSConfig)

	require.Empty(t, splitAddrs(" , "))
}
