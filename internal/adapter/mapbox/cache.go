package mapbox

import (
	"context"
	"strings"

	"github.com/couchcryptid/inflation-map/internal/domain"
	"github.com/couchcryptid/inflation-map/internal/lru"
	"github.com/couchcryptid/inflation-map/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed by
// normalised postcode.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, domain.GeocodingResult]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   lru.New[string, domain.GeocodingResult](maxEntries),
		metrics: metrics,
	}
}

// ForwardGeocode implements domain.Geocoder.
func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, postcode, area string) (domain.GeocodingResult, error) {
	key := cacheKey(postcode, area)
	if result, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	result, err := c.inner.ForwardGeocode(ctx, postcode, area)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if result.FormattedAddress != "" {
		c.cache.Put(key, result)
	}
	return result, nil
}

func cacheKey(postcode, area string) string {
	normalize := func(s string) string {
		return strings.ToUpper(strings.Join(strings.Fields(s), " "))
	}
	return normalize(postcode) + "|" + normalize(area)
}
