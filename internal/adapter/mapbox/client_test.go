package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/inflation-map/internal/observability"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		clock:      clockwork.NewFakeClock(),
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func postcodeServer(t *testing.T, placeName string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "SW1A 1AA")
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "postcode", r.URL.Query().Get("types"))
		assert.Equal(t, "gb", r.URL.Query().Get("country"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))

		resp := response{
			Features: []feature{
				{
					Center:    []float64{-0.1416, 51.5010},
					PlaceName: placeName,
					Relevance: 0.95,
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestClient_ForwardGeocode_Success(t *testing.T) {
	srv := postcodeServer(t, "SW1A 1AA, London, Greater London, England, United Kingdom")
	defer srv.Close()

	c := testClient(srv.URL)
	result, err := c.ForwardGeocode(context.Background(), "SW1A 1AA", "SW1")
	require.NoError(t, err)

	assert.Equal(t, 51.5010, result.Lat)
	assert.Equal(t, -0.1416, result.Lon)
	assert.Equal(t, "SW1A 1AA, London, Greater London, England, United Kingdom", result.FormattedAddress)
	assert.Equal(t, 0.95, result.Confidence)
}

func TestClient_ForwardGeocode_OutsideAreaIsEmpty(t *testing.T) {
	srv := postcodeServer(t, "SW10 9AA, London, England, United Kingdom")
	defer srv.Close()

	c := testClient(srv.URL)
	result, err := c.ForwardGeocode(context.Background(), "SW1A 1AA", "SW1")
	require.NoError(t, err)
	assert.Zero(t, result.Lat)
	assert.Empty(t, result.FormattedAddress)
}

func TestClient_ForwardGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{}}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	result, err := c.ForwardGeocode(context.Background(), "ZZ9 9ZZ", "ZZ9")
	require.NoError(t, err)
	assert.Equal(t, float64(0), result.Lat)
	assert.Empty(t, result.FormattedAddress)
}

func TestClient_ForwardGeocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c := &Client{
		token:      "bad-token",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    srv.URL,
		clock:      clockwork.NewFakeClock(),
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	_, err := c.ForwardGeocode(context.Background(), "SW1A 1AA", "SW1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_ForwardGeocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 50 * time.Millisecond},
		baseURL:    srv.URL,
		clock:      clockwork.NewFakeClock(),
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	_, err := c.ForwardGeocode(context.Background(), "SW1A 1AA", "SW1")
	require.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(testToken, 3*time.Second, clockwork.NewFakeClock(), testMetrics(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
}

func TestInArea(t *testing.T) {
	tests := []struct {
		place, area string
		want        bool
	}{
		{"SW1A 1AA, London", "SW1", true},
		{"SW1 1AA, London", "SW1", true},
		{"SW10 9AA, London", "SW1", false},
		{"SW10 9AA, London", "SW", true},
		{"SE1 7PB, London", "SW", false},
		{"E1 6AN, London", "E1", true},
		{"E14 5AB, London", "E1", false},
		{"anything", "", true},
		{"", "SW1", false},
	}
	for _, tc := range tests {
		t.Run(tc.place+"/"+tc.area, func(t *testing.T) {
			assert.Equal(t, tc.want, inArea(tc.place, tc.area))
		})
	}
}

func TestForwardGeocode_ObservesAPIDurationFromClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		clock.Advance(250 * time.Millisecond)
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.clock = clock

	_, err := c.ForwardGeocode(context.Background(), "SW1A 1AA", "SW1")
	require.NoError(t, err)

	var m dto.Metric
	require.NoError(t, c.metrics.GeocodeAPIDuration.Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
	assert.InDelta(t, 0.25, m.GetHistogram().GetSampleSum(), 1e-9)
}
