// internal/dimension/bulk.go
package dimension

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"imagedim/internal/models"
)

// ErrTooManyURLs is returned when a batch exceeds the configured maximum.
// The batch is rejected outright rather than truncated.
var ErrTooManyURLs = errors.New("too many URLs")

// BulkLookup resolves batches of URLs behind a short-TTL shared cache so
// many concurrent page views requesting the same URL set pay for one
// resolution pass.
type BulkLookup struct {
	resolver *Resolver
	cache    Cache
	ttl      time.Duration
	maxURLs  int
	log      *zap.Logger
}

func NewBulkLookup(resolver *Resolver, cache Cache, ttl time.Duration, maxURLs int, log *zap.Logger) *BulkLookup {
	if ttl <= 0 {
		ttl = models.DefaultBulkCacheTTL
	}
	if maxURLs <= 0 {
		maxURLs = models.DefaultMaxBulkURLs
	}
	return &BulkLookup{resolver: resolver, cache: cache, ttl: ttl, maxURLs: maxURLs, log: log}
}

// MaxURLs is the configured per-call batch limit.
func (b *BulkLookup) MaxURLs() int { return b.maxURLs }

// DimensionsForURLs resolves every url in the batch, keyed by the requested
// url. Unresolvable urls are omitted, not present as nulls. An empty batch
// returns an empty map without touching the cache; a batch over the limit
// returns ErrTooManyURLs.
func (b *BulkLookup) DimensionsForURLs(ctx context.Context, urls []string) (map[string]*models.ResolvedDimension, error) {
	result := make(map[string]*models.ResolvedDimension)
	if len(urls) == 0 {
		return result, nil
	}
	if len(urls) > b.maxURLs {
		return nil, fmt.Errorf("%w (max %d)", ErrTooManyURLs, b.maxURLs)
	}

	key := cacheKey(urls)

	if data, ok, err := b.cache.Get(ctx, key); err != nil {
		b.log.Warn("bulk cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		if err := json.Unmarshal(data, &result); err == nil {
			return result, nil
		}
		b.log.Warn("discarding malformed bulk cache entry", zap.String("key", key))
		result = make(map[string]*models.ResolvedDimension)
	}

	// One batch read of the record table first; only cache misses go through
	// the full per-URL strategy chain.
	cached, err := b.resolver.store.DimensionsByURLs(ctx, urls)
	if err != nil {
		b.log.Warn("bulk record prefetch failed", zap.Error(err))
		cached = nil
	}

	for _, url := range urls {
		if _, done := result[url]; done {
			continue
		}
		if rec, ok := cached[url]; ok {
			result[url] = models.NewResolvedDimension(url, rec.Width, rec.Height)
			continue
		}
		if dim := b.resolver.Resolve(ctx, url); dim != nil {
			result[url] = dim
		}
	}

	if data, err := json.Marshal(result); err == nil {
		if err := b.cache.Set(ctx, key, data, b.ttl); err != nil {
			b.log.Warn("bulk cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return result, nil
}

// cacheKey hashes the sorted, deduplicated url set so differently ordered
// batches with the same members share one entry.
func cacheKey(urls []string) string {
	uniq := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		uniq = append(uniq, u)
	}
	sort.Strings(uniq)
	sum := md5.Sum([]byte(strings.Join(uniq, ",")))
	return fmt.Sprintf("image_dims:%x", sum)
}
