package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/inflation-map/internal/domain"
	"github.com/couchcryptid/inflation-map/internal/observability"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Client implements domain.Geocoder for UK postcodes using the Mapbox
// Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// ForwardGeocode resolves a postcode to coordinates. The postcode area is
// only used to reject matches from a different area.
func (c *Client) ForwardGeocode(ctx context.Context, postcode, area string) (domain.GeocodingResult, error) {
	query := strings.TrimSpace(postcode)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"postcode"},
		"country":      {"gb"},
	}

	result, err := c.doRequest(ctx, u+"?"+params.Encode())
	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return result, err
	case result.FormattedAddress == "":
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return result, nil
	case !inArea(result.FormattedAddress, area):
		c.logger.Debug("geocode match outside postcode area",
			"postcode", postcode,
			"area", area,
			"match", result.FormattedAddress,
		)
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return domain.GeocodingResult{}, nil
	}
	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.Observe(c.clock.Since(start).Seconds())
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("forward geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		return domain.GeocodingResult{}, nil
	}

	f := mapboxResp.Features[0]
	result := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		result.Lon = f.Center[0]
		result.Lat = f.Center[1]
	}
	return result, nil
}

// inArea reports whether the outward code of a matched place name belongs to
// the postcode area. "SW1" covers "SW1A" and "SW1" but not "SW10"; a
// letters-only area such as "SW" covers any district that follows it.
func inArea(placeName, area string) bool {
	area = strings.ToUpper(strings.TrimSpace(area))
	if area == "" {
		return true
	}
	fields := strings.Fields(strings.ToUpper(placeName))
	if len(fields) == 0 {
		return false
	}
	outward := strings.TrimRight(fields[0], ",")
	rest, ok := strings.CutPrefix(outward, area)
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}
	areaEndsInDigit := unicode.IsDigit(rune(area[len(area)-1]))
	nextIsDigit := unicode.IsDigit(rune(rest[0]))
	return areaEndsInDigit != nextIsDigit
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Relevance float64   `json:"relevance"`
}
