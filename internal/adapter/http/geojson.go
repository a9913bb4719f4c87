package http

import (
	"math"

	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/inflation-map/internal/domain"
	"github.com/couchcryptid/inflation-map/internal/reconcile"
)

// NewViewResponse converts a view state snapshot into its JSON form.
func NewViewResponse(state reconcile.ViewState) ViewResponse {
	identities := state.CurrentIdentities
	if identities == nil {
		identities = []domain.Identity{}
	}
	return ViewResponse{
		Center:     state.Center,
		Zoom:       state.Zoom,
		Status:     state.Status,
		YearRange:  state.YearRange,
		Generation: state.Generation,
		Identities: identities,
		UpdatedAt:  state.UpdatedAt,
		Markers:    MarkerCollection(state.Markers),
	}
}

// MarkerCollection renders markers as GeoJSON point features in order. The
// identity becomes the feature id; styling and overlay travel as properties.
// Markers without a finite position are left out.
func MarkerCollection(markers []domain.Marker) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range markers {
		if !finite(m.Position.Lat) || !finite(m.Position.Lon) {
			continue
		}
		f := geojson.NewPointFeature([]float64{m.Position.Lon, m.Position.Lat})
		f.ID = m.Identity.String()
		f.SetProperty("kind", string(m.Identity.Kind))
		f.SetProperty("key", m.Identity.Key)
		f.SetProperty("color", m.Color)
		f.SetProperty("radius", m.Radius)
		f.SetProperty("fill_opacity", domain.FillOpacity)
		f.SetProperty("rate", m.Rate)
		f.SetProperty("overlay", m.Overlay)
		fc.AddFeature(f)
	}
	return fc
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
