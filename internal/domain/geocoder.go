package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves coordinates for properties the source could not place.
type Geocoder interface {
	// ForwardGeocode converts a postcode, qualified by its postcode area, to
	// coordinates. A zero result with a nil error means nothing was found.
	ForwardGeocode(ctx context.Context, postcode, area string) (GeocodingResult, error)
}
