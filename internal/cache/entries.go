// Package cache keeps assessment entries in Redis in front of the SQL source.
// Only raw entries are cached; aggregation always runs against the live tables so a
// table reload is visible immediately.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hfjohn123/Anthuria-sub001/internal/circuitbreaker"
	"github.com/hfjohn123/Anthuria-sub001/internal/metrics"
	"github.com/hfjohn123/Anthuria-sub001/internal/pdpm"
)

const keyPrefix = "pdpm:entries:"

// Source loads entries when the cache misses
type Source interface {
	ListEntries(ctx context.Context, assessmentID string, domain pdpm.Domain, variant string) ([]pdpm.Entry, error)
}

// EntryCache is a read-through cache. Redis errors are logged and the request falls
// through to the source.
type EntryCache struct {
	rdb     *redis.Client
	source  Source
	ttl     time.Duration
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
}

// New creates a cache in front of source
func New(rdb *redis.Client, source Source, ttl time.Duration, logger *zap.Logger) *EntryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	settings := circuitbreaker.CacheSettings()
	settings.IsFailure = func(err error) bool {
		return !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled)
	}
	return &EntryCache{
		rdb:     rdb,
		source:  source,
		ttl:     ttl,
		breaker: circuitbreaker.New("entry-cache", settings, logger),
		logger:  logger,
	}
}

func entryKey(assessmentID string, domain pdpm.Domain, variant string) string {
	if variant == "" {
		variant = pdpm.DefaultVariant
	}
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, assessmentID, domain, variant)
}

// ListEntries serves entries from Redis or loads and stores them
func (c *EntryCache) ListEntries(ctx context.Context, assessmentID string, domain pdpm.Domain, variant string) ([]pdpm.Entry, error) {
	key := entryKey(assessmentID, domain, variant)

	raw, err := circuitbreaker.Do(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return c.rdb.Get(ctx, key).Bytes()
	})
	switch {
	case err == nil:
		var entries []pdpm.Entry
		jerr := json.Unmarshal(raw, &entries)
		if jerr == nil {
			metrics.AssessmentCacheHits.Inc()
			return entries, nil
		}
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(jerr))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("Entry cache read failed, using database", zap.String("key", key), zap.Error(err))
	}

	metrics.AssessmentCacheMisses.Inc()
	entries, err := c.source.ListEntries(ctx, assessmentID, domain, variant)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, entries)
	return entries, nil
}

func (c *EntryCache) store(ctx context.Context, key string, entries []pdpm.Entry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		c.logger.Warn("Failed to encode entries for cache", zap.String("key", key), zap.Error(err))
		return
	}
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.rdb.Set(ctx, key, raw, c.ttl).Err()
	})
	if err != nil {
		c.logger.Warn("Entry cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every cached table view of an assessment and returns the number
// of keys removed
func (c *EntryCache) Invalidate(ctx context.Context, assessmentID string) (int, error) {
	pattern := keyPrefix + globEscaper.Replace(assessmentID) + ":*"
	removed := 0
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		n, err := c.rdb.Del(ctx, keys...).Result()
		removed = int(n)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("invalidate %s: %w", assessmentID, err)
	}
	return removed, nil
}

// globEscaper quotes the characters SCAN MATCH treats as pattern syntax
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// Ping checks the Redis connection
func (c *EntryCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
