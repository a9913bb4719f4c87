package http_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/inflation-map/internal/adapter/http"
	"github.com/couchcryptid/inflation-map/internal/dataset"
	"github.com/couchcryptid/inflation-map/internal/domain"
	"github.com/couchcryptid/inflation-map/internal/observability"
	"github.com/couchcryptid/inflation-map/internal/pipeline"
	"github.com/couchcryptid/inflation-map/internal/reconcile"
)

var testClock = clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC))

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegions() *domain.RegionTable {
	return &domain.RegionTable{
		YearColumns: []int{2000, 2001},
		Rows: []domain.RegionRow{
			{RegionID: "SW1", Latitude: 51.497, Longitude: -0.137, Values: []string{"0.04", "0.06"}},
			{RegionID: "E1", Latitude: 51.517, Longitude: -0.059, Values: []string{"0.02", ""}},
		},
	}
}

func testProperties() *domain.PropertyTable {
	return &domain.PropertyTable{Records: []domain.PropertyRecord{
		{RegionID: "SW1", Postcode: "SW1A 1AA", Street: "MALL", Flat: "1", InflationRate: 0.05,
			EarliestDate: "01/02/2000", MostRecentDate: "03/04/2001", MostRecentPrice: 725000,
			Latitude: 51.501, Longitude: -0.141},
		{RegionID: "E1", Postcode: "E1 6AN", Street: "BRICK LANE", InflationRate: 0.03,
			EarliestDate: "2000-01-01", MostRecentDate: "01/01/2001", Latitude: 51.52, Longitude: -0.07},
	}}
}

func newReconciler(t *testing.T, regions *domain.RegionTable, initialize bool) *reconcile.Reconciler {
	t.Helper()
	ds, err := dataset.New(regions, testProperties())
	require.NoError(t, err)

	r := reconcile.New(ds, domain.NewPeriodAggregator(discardLogger()), testClock, discardLogger(),
		observability.NewMetricsForTesting(), reconcile.Options{
			Center:           domain.Geo{Lat: 51.5, Lon: -0.1},
			BaseZoom:         12,
			DetailZoom:       15,
			MaxDetailMarkers: 100,
			InitialRange:     domain.YearRange{Start: 2000, End: 2001},
		})
	if initialize {
		require.NoError(t, r.Init(context.Background(), nil))
	}
	return r
}

func newTestServer(t *testing.T, view httpadapter.MapView) *httpadapter.Server {
	t.Helper()
	page := httpadapter.PageConfig{Title: "House price inflation", YearMin: 1995, YearMax: 2024, PollInterval: 2000}
	decoder := pipeline.NewDecoder(domain.YearRange{Start: 1995, End: 2024})
	return httpadapter.NewServer(":0", view, decoder, page, testClock, discardLogger())
}

func do(srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	srv.ServeHTTP(rec, req)
	return rec
}

type viewBody struct {
	Center     domain.Geo        `json:"center"`
	Zoom       int               `json:"zoom"`
	Status     string            `json:"status"`
	YearRange  domain.YearRange  `json:"year_range"`
	Generation int               `json:"generation"`
	Identities []domain.Identity `json:"identities"`
	Markers    json.RawMessage   `json:"markers"`
}

func getView(t *testing.T, srv http.Handler) (viewBody, *geojson.FeatureCollection) {
	t.Helper()
	rec := do(srv, http.MethodGet, "/api/view", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body viewBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	fc, err := geojson.UnmarshalFeatureCollection(body.Markers)
	require.NoError(t, err)
	return body, fc
}

func decodeCycle(t *testing.T, rec *httptest.ResponseRecorder) httpadapter.CycleResponse {
	t.Helper()
	var body httpadapter.CycleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	rec := do(srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200AfterInitialRender(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	rec := do(srv, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503BeforeInitialRender(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), false))

	rec := do(srv, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	rec := do(srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPageRendersCurrentRange(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	rec := do(srv, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "<title>House price inflation</title>")
	assert.Contains(t, body, `min="1995"`)
	assert.Contains(t, body, `value="2000"`)
	assert.Contains(t, body, `value="2001"`)
	assert.Contains(t, body, "leaflet")
}

func TestUnknownPathIs404(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	rec := do(srv, http.MethodGet, "/nope", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewReturnsGeoJSONMarkers(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	view, fc := getView(t, srv)

	assert.Equal(t, domain.Geo{Lat: 51.5, Lon: -0.1}, view.Center)
	assert.Equal(t, 12, view.Zoom)
	assert.Equal(t, domain.YearRange{Start: 2000, End: 2001}, view.YearRange)
	assert.Equal(t, []domain.Identity{
		{Kind: domain.KindRegion, Key: "SW1"},
		{Kind: domain.KindRegion, Key: "E1"},
	}, view.Identities)

	require.Len(t, fc.Features, 2)
	sw1 := fc.Features[0]
	assert.Equal(t, "region:SW1", sw1.ID)
	assert.Equal(t, []float64{-0.137, 51.497}, sw1.Geometry.Point)
	key, err := sw1.PropertyString("key")
	require.NoError(t, err)
	assert.Equal(t, "SW1", key)
	radius, err := sw1.PropertyFloat64("radius")
	require.NoError(t, err)
	assert.Equal(t, float64(domain.RegionRadius), radius)
	rate, err := sw1.PropertyFloat64("rate")
	require.NoError(t, err)
	assert.Equal(t, 5.0, rate)
}

func TestRecompute(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	rec := do(srv, http.MethodPost, "/api/recompute", `{"start_year":2001,"end_year":2001}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cycle := decodeCycle(t, rec)
	assert.Equal(t, reconcile.TransitionRecompute, cycle.Transition)
	assert.Equal(t, reconcile.StatusUpdated, cycle.Status)
	require.Len(t, cycle.Commands, 3)
	assert.Equal(t, reconcile.CommandRenderMarkers, cycle.Commands[0].Kind)

	view, fc := getView(t, srv)
	assert.Equal(t, 1, view.Generation)
	assert.Equal(t, domain.YearRange{Start: 2001, End: 2001}, view.YearRange)
	assert.Equal(t, "region:SW1_1", fc.Features[0].ID)
}

func TestRecomputeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{{{`},
		{name: "unknown field", body: `{"start_year":2000,"end_year":2001,"zoom":3}`},
		{name: "missing end year", body: `{"start_year":2000}`},
		{name: "inverted range", body: `{"start_year":2001,"end_year":2000}`},
		{name: "before slider minimum", body: `{"start_year":1990,"end_year":2000}`},
		{name: "after slider maximum", body: `{"start_year":2000,"end_year":2030}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, newReconciler(t, testRegions(), true))

			rec := do(srv, http.MethodPost, "/api/recompute", tc.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			_, fc := getView(t, srv)
			assert.Equal(t, "region:SW1", fc.Features[0].ID, "view must be unchanged")
		})
	}
}

func TestRecomputeNonNumericCellIs422(t *testing.T) {
	regions := testRegions()
	srv := newTestServer(t, newReconciler(t, regions, true))
	regions.Rows[1].Values[1] = "abc"

	rec := do(srv, http.MethodPost, "/api/recompute", `{"start_year":2000,"end_year":2001}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "abc")
}

func TestRecomputeInfiniteCellIs422(t *testing.T) {
	regions := testRegions()
	srv := newTestServer(t, newReconciler(t, regions, true))
	regions.Rows[0].Values[1] = "inf"

	rec := do(srv, http.MethodPost, "/api/recompute", `{"start_year":2000,"end_year":2001}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "not finite")
}

func TestActivateRegion(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	rec := do(srv, http.MethodPost, "/api/activate", `{"kind":"region","key":"SW1"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cycle := decodeCycle(t, rec)
	assert.Equal(t, reconcile.TransitionDrilldown, cycle.Transition)
	assert.Equal(t, "SW1", cycle.RegionID)
	assert.Equal(t, 1, cycle.Added)
	assert.Equal(t, "Added 1 markers for region SW1.", cycle.Status)

	view, fc := getView(t, srv)
	assert.Equal(t, 15, view.Zoom)
	assert.Equal(t, domain.Geo{Lat: 51.497, Lon: -0.137}, view.Center)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "property:SW1A 1AA-MALL-1", fc.Features[2].ID)
}

func TestActivateUnknownRegionIsNoOp(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	rec := do(srv, http.MethodPost, "/api/activate", `{"kind":"region","key":"ZZ9"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	cycle := decodeCycle(t, rec)
	assert.Equal(t, reconcile.TransitionNoOp, cycle.Transition)
	assert.Empty(t, cycle.Commands)
}

func TestActivateRejectsBadIdentity(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	assert.Equal(t, http.StatusBadRequest, do(srv, http.MethodPost, "/api/activate", `{"kind":"street","key":"MALL"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(srv, http.MethodPost, "/api/activate", `{"kind":"region"}`).Code)
}

func TestActivateMalformedDateIs422(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	rec := do(srv, http.MethodPost, "/api/activate", `{"kind":"region","key":"E1"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "earliest_date")
}

func TestMarkerCollectionSkipsUnplacedMarkers(t *testing.T) {
	fc := httpadapter.MarkerCollection([]domain.Marker{
		{Identity: domain.Identity{Kind: domain.KindGroup, Key: "SW1A 1AA"}, Position: domain.Geo{Lat: 51.5, Lon: -0.1}},
		{Identity: domain.Identity{Kind: domain.KindGroup, Key: "SW1A 2BB"}, Position: domain.Geo{Lat: math.NaN(), Lon: -0.1}},
	})

	require.Len(t, fc.Features, 1)
	assert.Equal(t, "group:SW1A 1AA", fc.Features[0].ID)
}

func TestActivateUsesRequestedRange(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	rec := do(srv, http.MethodPost, "/api/activate", `{"kind":"region","key":"SW1","start_year":2001,"end_year":2001}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cycle := decodeCycle(t, rec)
	assert.Equal(t, reconcile.TransitionDrilldownEmpty, cycle.Transition)
	assert.Equal(t, "SW1", cycle.RegionID)
	assert.Zero(t, cycle.Added)
}

func TestPageSendsSelectedRangeOnRegionClick(t *testing.T) {
	srv := newTestServer(t, newReconciler(t, testRegions(), true))

	body := do(srv, http.MethodGet, "/", "").Body.String()

	assert.Contains(t, body, `post("/api/activate", Object.assign({ kind: p.kind, key: p.key }, selectedRange()))`)
	assert.Contains(t, body, `post("/api/recompute", selectedRange())`)
}

// staticView serves a fixed snapshot.
type staticView struct {
	state reconcile.ViewState
}

func (v staticView) Apply(context.Context, []reconcile.Event, reconcile.Surface) (reconcile.Outcome, error) {
	return reconcile.Outcome{Transition: reconcile.TransitionNoOp}, nil
}

func (v staticView) Snapshot() reconcile.ViewState { return v.state }

func (v staticView) CheckReadiness(context.Context) error { return nil }

func TestViewWithUnencodableRateIs500(t *testing.T) {
	srv := newTestServer(t, staticView{state: reconcile.ViewState{
		Markers: []domain.Marker{{
			Identity: domain.Identity{Kind: domain.KindRegion, Key: "SW1"},
			Position: domain.Geo{Lat: 51.497, Lon: -0.137},
			Rate:     math.NaN(),
		}},
	}})

	rec := do(srv, http.MethodGet, "/api/view", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "encode response")
}
