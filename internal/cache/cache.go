// Package cache memoises ranked result lists in Redis. Keys are derived from
// the index fingerprint, the ranking configuration and the analysed query
// terms, so two queries that normalise identically share an entry and a
// rebuilt index never sees stale results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/ranker"
	pkgredis "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/redis"
)

const keyPrefix = "rank:"

// Store is the subset of *pkgredis.Client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type ResultCache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(store Store, ttl time.Duration) *ResultCache {
	return &ResultCache{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "result-cache"),
	}
}

// Key returns the cache key for ranking q against idx with cfg.
func Key(idx *index.InvertedIndex, q corpus.Query, cfg ranker.Config) string {
	terms := idx.Analyzer().Terms(q.Text)
	sort.Strings(terms)
	raw := fmt.Sprintf("%s|model=%s|k1=%g|b=%g|mu=%g|top=%d|%s",
		idx.Analyzer().Fingerprint(), cfg.Model, cfg.K1, cfg.B, cfg.Mu, cfg.TopK, strings.Join(terms, ","))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, idx.Fingerprint(), hash[:16])
}

func (c *ResultCache) get(ctx context.Context, key string) ([]ranker.ScoredResult, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var results []ranker.ScoredResult
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return results, true
}

func (c *ResultCache) set(ctx context.Context, key string, results []ranker.ScoredResult) {
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached results for q or calls compute and stores
// its output. Concurrent callers with the same key share one computation.
// The returned slice is owned by the caller and carries q's id. Cache
// failures are logged and fall through to compute. Queries with blank text
// are never cached: they analyse to the same empty term list as stopword-only
// queries but must reach compute so it can reject them.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	idx *index.InvertedIndex,
	q corpus.Query,
	cfg ranker.Config,
	compute func() ([]ranker.ScoredResult, error),
) ([]ranker.ScoredResult, bool, error) {
	if strings.TrimSpace(q.Text) == "" {
		results, err := compute()
		return results, false, err
	}
	key := Key(idx, q, cfg)
	if results, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		c.logger.Debug("cache hit", "query_id", q.ID, "key", key)
		return withQueryID(results, q.ID), true, nil
	}
	c.misses.Add(1)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return withQueryID(val.([]ranker.ScoredResult), q.ID), false, nil
}

// Invalidate removes every entry stored for the index with the given
// fingerprint.
func (c *ResultCache) Invalidate(ctx context.Context, fingerprint string) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+fingerprint+":*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "fingerprint", fingerprint, "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func withQueryID(results []ranker.ScoredResult, queryID string) []ranker.ScoredResult {
	out := make([]ranker.ScoredResult, len(results))
	copy(out, results)
	for i := range out {
		out[i].QueryID = queryID
	}
	return out
}
