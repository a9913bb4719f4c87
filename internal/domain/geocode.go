package domain

import (
	"context"
	"log/slog"
)

// LocateProperties fills in coordinates for records the source left unplaced
// by geocoding their postcode. Records that already have a location are
// returned untouched. Geocoding failures are logged and the record stays
// unplaced, so it is later dropped from drilldowns rather than failing them.
// The input slice is not modified.
func LocateProperties(ctx context.Context, records []PropertyRecord, geocoder Geocoder, logger *slog.Logger) []PropertyRecord {
	if geocoder == nil {
		return records
	}

	out := make([]PropertyRecord, len(records))
	copy(out, records)

	located, failed := 0, 0
	for i := range out {
		if out[i].HasLocation() || out[i].Postcode == "" {
			continue
		}
		result, err := geocoder.ForwardGeocode(ctx, out[i].Postcode, out[i].RegionID)
		if err != nil {
			logger.Warn("property geocoding failed",
				"postcode", out[i].Postcode,
				"region_id", out[i].RegionID,
				"error", err,
			)
			failed++
			continue
		}
		if result.Lat == 0 && result.Lon == 0 {
			continue
		}
		out[i].Latitude = result.Lat
		out[i].Longitude = result.Lon
		located++
	}

	if located > 0 || failed > 0 {
		logger.Info("property geocoding complete", "located", located, "failed", failed)
	}
	return out
}
