// Package cache keeps sell-book depth snapshots in Redis so repeated depth
// queries skip the ledger store. Entries are dropped whenever the book of
// their symbol changes and expire after a TTL regardless.
//
// Every invalidation bumps a per-symbol version. A snapshot is only stored
// if the version it was read under is still current, so a depth read that
// races a book change never overwrites the invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efreitasn/brokerledger/internal/domain"
)

const defaultPrefix = "brokerledger:"

// errStaleSnapshot aborts a Set whose depth was read before the latest
// invalidation.
var errStaleSnapshot = errors.New("stale book snapshot")

// BookCache stores depth snapshots per symbol and depth.
type BookCache interface {
	// Get returns the cached depth and whether it was found.
	Get(ctx context.Context, symbol string, levels int) ([]domain.PriceLevel, bool, error)
	// Version returns the symbol's invalidation counter. Read it before
	// reading the depth that will be passed to Set.
	Version(ctx context.Context, symbol string) (int64, error)
	// Set stores depth unless the symbol was invalidated after version was
	// read, in which case the snapshot is silently dropped.
	Set(ctx context.Context, symbol string, levels int, depth []domain.PriceLevel, version int64) error
	// Invalidate drops every cached depth of the given symbols.
	Invalidate(ctx context.Context, symbols ...string) error
}

// RedisBookCache keeps one hash per symbol, with one field per requested
// depth, so a single DEL invalidates all depths of a symbol. The version
// counter lives in its own key, without a TTL.
type RedisBookCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ BookCache = (*RedisBookCache)(nil)

// NewRedisBookCache creates a cache whose entries expire after ttl.
func NewRedisBookCache(client *redis.Client, ttl time.Duration, prefix string) *RedisBookCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisBookCache{client: client, ttl: ttl, prefix: prefix}
}

func (c *RedisBookCache) key(symbol string) string {
	return c.prefix + "book:" + symbol
}

func (c *RedisBookCache) versionKey(symbol string) string {
	return c.prefix + "bookver:" + symbol
}

func (c *RedisBookCache) Version(ctx context.Context, symbol string) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(symbol)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache version %s: %w", symbol, err)
	}
	return v, nil
}

func (c *RedisBookCache) Get(ctx context.Context, symbol string, levels int) ([]domain.PriceLevel, bool, error) {
	raw, err := c.client.HGet(ctx, c.key(symbol), strconv.Itoa(levels)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", symbol, err)
	}
	var depth []domain.PriceLevel
	if err := json.Unmarshal(raw, &depth); err != nil {
		return nil, false, fmt.Errorf("cache decode %s: %w", symbol, err)
	}
	return depth, true, nil
}

func (c *RedisBookCache) Set(ctx context.Context, symbol string, levels int, depth []domain.PriceLevel, version int64) error {
	raw, err := json.Marshal(depth)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", symbol, err)
	}
	key, verKey := c.key(symbol), c.versionKey(symbol)
	err = c.client.Watch(ctx, func(rtx *redis.Tx) error {
		current, err := rtx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleSnapshot
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, strconv.Itoa(levels), raw)
			if c.ttl > 0 {
				pipe.Expire(ctx, key, c.ttl)
			}
			return nil
		})
		return err
	}, verKey)
	if errors.Is(err, errStaleSnapshot) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache set %s: %w", symbol, err)
	}
	return nil
}

func (c *RedisBookCache) Invalidate(ctx context.Context, symbols ...string) error {
	if len(symbols) == 0 {
		return nil
	}
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = c.key(s)
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		for _, s := range symbols {
			pipe.Incr(ctx, c.versionKey(s))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// NopBookCache never stores anything.
type NopBookCache struct{}

func (NopBookCache) Get(context.Context, string, int) ([]domain.PriceLevel, bool, error) {
	return nil, false, nil
}

func (NopBookCache) Version(context.Context, string) (int64, error) { return 0, nil }

func (NopBookCache) Set(context.Context, string, int, []domain.PriceLevel, int64) error { return nil }

func (NopBookCache) Invalidate(context.Context, ...string) error { return nil }
