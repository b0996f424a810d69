package reports

import (
	"context"
	"fmt"
	"time"

	"telegraph/pkg/cache"
)

// Window is the consumer-requested time range, inclusive on both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// DefaultQueryTTL bounds how long a first-page fetch may be replayed from
// memory before the upstream is asked again.
const DefaultQueryTTL = 5 * time.Minute

// cachedPage is what the query cache holds per key: the raw first page of
// one source for one exact query window.
type cachedPage struct {
	Rows         []map[string]any
	NextStartKey string
}

// QueryCache memoizes first-page fetches keyed by the exact query shape.
// Only cursor-less fetches go through it; continuation pages are always
// live because their start keys are session-specific.
type QueryCache struct {
	inner *cache.Cache
}

// NewQueryCache builds a query cache with the given TTL (DefaultQueryTTL
// when zero) and entry cap.
func NewQueryCache(ttl time.Duration, maxEntries int, hooks cache.MetricsHooks) *QueryCache {
	if ttl == 0 {
		ttl = DefaultQueryTTL
	}
	return &QueryCache{
		inner: cache.New(cache.Options{TTL: ttl, MaxEntries: maxEntries}, hooks),
	}
}

// queryKey identifies one cacheable fetch. Two queries share an entry only
// when kind, tenant, and both window bounds match exactly.
func queryKey(kind Kind, tenant string, w Window) string {
	return fmt.Sprintf("%s|%s|%d|%d", kind, tenant, w.Start.Unix(), w.End.Unix())
}

// FirstPage returns the cached first page for the query, loading it through
// fetch on a miss. Rows are copied on the way out so callers can mutate
// them without corrupting the cached copy.
func (c *QueryCache) FirstPage(
	ctx context.Context,
	kind Kind,
	tenant string,
	w Window,
	fetch func(ctx context.Context) ([]map[string]any, string, error),
) ([]map[string]any, string, error) {
	key := queryKey(kind, tenant, w)

	val, ok, err := c.inner.Get(ctx, key, func(ctx context.Context, _ string) (interface{}, bool, error) {
		rows, nextKey, err := fetch(ctx)
		if err != nil {
			return nil, false, err
		}
		return &cachedPage{Rows: rows, NextStartKey: nextKey}, true, nil
	})
	if err != nil || !ok {
		return nil, "", err
	}

	page := val.(*cachedPage)
	return copyRows(page.Rows), page.NextStartKey, nil
}

// Invalidate drops the cached first page for one query shape.
func (c *QueryCache) Invalidate(kind Kind, tenant string, w Window) {
	c.inner.Delete(queryKey(kind, tenant, w))
}

// Len reports the number of cached first pages.
func (c *QueryCache) Len() int {
	return c.inner.Len()
}

// copyRows shallow-copies each row map. Normalization only reads nested
// values, so one level of copying is enough isolation.
func copyRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		dup := make(map[string]any, len(row))
		for k, v := range row {
			dup[k] = v
		}
		out[i] = dup
	}
	return out
}
