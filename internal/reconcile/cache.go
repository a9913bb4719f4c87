package reconcile

import (
	"github.com/couchcryptid/inflation-map/internal/domain"
	"github.com/couchcryptid/inflation-map/internal/lru"
	"github.com/couchcryptid/inflation-map/internal/observability"
)

// Aggregator computes region records over a year range.
type Aggregator interface {
	Aggregate(table *domain.RegionTable, start, end int) ([]domain.RegionRecord, error)
}

type aggregateKey struct {
	table      *domain.RegionTable
	start, end int
}

// CachedAggregator memoises aggregation results per table and range. It is
// only correct for tables that are never modified after loading.
type CachedAggregator struct {
	next    Aggregator
	cache   *lru.Cache[aggregateKey, []domain.RegionRecord]
	metrics *observability.Metrics
}

// NewCachedAggregator wraps next with an LRU holding up to size results.
func NewCachedAggregator(next Aggregator, size int, metrics *observability.Metrics) *CachedAggregator {
	return &CachedAggregator{
		next:    next,
		cache:   lru.New[aggregateKey, []domain.RegionRecord](size),
		metrics: metrics,
	}
}

// Aggregate implements Aggregator. Errors are not cached.
func (c *CachedAggregator) Aggregate(table *domain.RegionTable, start, end int) ([]domain.RegionRecord, error) {
	key := aggregateKey{table: table, start: start, end: end}
	if records, ok := c.cache.Get(key); ok {
		c.metrics.AggregateCache.WithLabelValues("hit").Inc()
		return cloneRecords(records), nil
	}
	c.metrics.AggregateCache.WithLabelValues("miss").Inc()

	records, err := c.next.Aggregate(table, start, end)
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, cloneRecords(records))
	return records, nil
}

func cloneRecords(in []domain.RegionRecord) []domain.RegionRecord {
	out := make([]domain.RegionRecord, len(in))
	copy(out, in)
	return out
}
