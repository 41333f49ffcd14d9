// Package chain supplies the monotonic block height that patronage accrual is
// measured against.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tokenledger/internal/ledger"
)

// DefaultHeightKey is the Redis key holding the current height.
const DefaultHeightKey = "chain:height"

// HeightSource reports the current block height.
type HeightSource interface {
	Current(ctx context.Context) (ledger.BlockNumber, error)
}

// Advancer moves the height forward.
type Advancer interface {
	HeightSource
	Advance(ctx context.Context, blocks uint64) (ledger.BlockNumber, error)
}

// Counter is an in-process height counter.
type Counter struct {
	mu     sync.Mutex
	height ledger.BlockNumber
}

// NewCounter starts a counter at height.
func NewCounter(height ledger.BlockNumber) *Counter {
	return &Counter{height: height}
}

// Current returns the height.
func (c *Counter) Current(_ context.Context) (ledger.BlockNumber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

// Advance adds blocks to the height and returns the new value.
func (c *Counter) Advance(_ context.Context, blocks uint64) (ledger.BlockNumber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += ledger.BlockNumber(blocks)
	return c.height, nil
}

// RedisHeight keeps the height in a Redis key shared by every process of the host.
type RedisHeight struct {
	client *redis.Client
	key    string
}

// NewRedisHeight builds a Redis-backed height source. An empty key selects DefaultHeightKey.
func NewRedisHeight(client *redis.Client, key string) *RedisHeight {
	if key == "" {
		key = DefaultHeightKey
	}
	return &RedisHeight{client: client, key: key}
}

// Current reads the height; an unset key is height zero.
func (h *RedisHeight) Current(ctx context.Context) (ledger.BlockNumber, error) {
	raw, err := h.client.Get(ctx, h.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read height: %w", err)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse height %q: %w", raw, err)
	}
	return ledger.BlockNumber(v), nil
}

// Advance increments the height atomically.
func (h *RedisHeight) Advance(ctx context.Context, blocks uint64) (ledger.BlockNumber, error) {
	v, err := h.client.IncrBy(ctx, h.key, int64(blocks)).Result()
	if err != nil {
		return 0, fmt.Errorf("advance height: %w", err)
	}
	return ledger.BlockNumber(v), nil
}

// Tick advances src by one block every interval until ctx is done. It stands
// in for block production in development setups.
func Tick(ctx context.Context, src Advancer, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			height, err := src.Advance(ctx, 1)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("advance block height", slog.Any("error", err))
				continue
			}
			logger.Debug("block produced", slog.Uint64("height", uint64(height)))
		}
	}
}
