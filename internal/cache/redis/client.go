// Package redis implements locking, rate limiting, the pool cache and the
// event bus using go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters. Addr is one host:port for a
// single node or a comma-separated list for a cluster; MasterName switches
// to sentinel failover with Addr listing the sentinels.
type ClientConfig struct {
	Addr       string
	MasterName string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

func (c ClientConfig) universal() *redis.UniversalOptions {
	opts := &redis.UniversalOptions{
		Addrs:        splitAddrs(c.Addr),
		MasterName:   c.MasterName,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if c.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

func splitAddrs(addr string) []string {
	var out []string
	for _, a := range strings.Split(addr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Client owns the connection pool shared by every adapter in this package.
type Client struct {
	rdb redis.UniversalClient
}

// New connects and pings. A node, cluster or sentinel client is chosen from
// cfg.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := cfg.universal()
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("redis: no address configured")
	}
	c := &Client{rdb: redis.NewUniversalClient(opts)}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Ping checks the connection; it backs the redis entry of /api/health.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) cmd() redis.UniversalClient { return c.rdb }
