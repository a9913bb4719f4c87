// Package dataset provides the read-only region and property tables the map
// is rendered from. Tables are loaded once at startup from CSV files or
// PostgreSQL and never modified afterwards.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/inflation-map/internal/domain"
)

// ErrUnknownRegion is returned when a region id is not present in the region table.
var ErrUnknownRegion = errors.New("unknown region")

// Loader reads the raw tables from a backing store.
type Loader interface {
	LoadRegions(ctx context.Context) (*domain.RegionTable, error)
	LoadProperties(ctx context.Context) (*domain.PropertyTable, error)
}

// Dataset is the immutable pair of tables plus a region location index.
type Dataset struct {
	regions    *domain.RegionTable
	properties *domain.PropertyTable
	locations  map[string]domain.Geo
}

// New validates the tables and builds a Dataset over them.
func New(regions *domain.RegionTable, properties *domain.PropertyTable) (*Dataset, error) {
	if regions == nil {
		regions = &domain.RegionTable{}
	}
	if properties == nil {
		properties = &domain.PropertyTable{}
	}

	locations := make(map[string]domain.Geo, len(regions.Rows))
	for i, row := range regions.Rows {
		if err := domain.ValidateRegionID(row.RegionID); err != nil {
			return nil, fmt.Errorf("region row %d: %w", i+1, err)
		}
		if _, dup := locations[row.RegionID]; dup {
			return nil, fmt.Errorf("region row %d: duplicate region id %q", i+1, row.RegionID)
		}
		if len(row.Values) != len(regions.YearColumns) {
			return nil, fmt.Errorf("region %s: %d values for %d year columns", row.RegionID, len(row.Values), len(regions.YearColumns))
		}
		locations[row.RegionID] = domain.Geo{Lat: row.Latitude, Lon: row.Longitude}
	}

	return &Dataset{regions: regions, properties: properties, locations: locations}, nil
}

// Load reads both tables through the loader, geocodes unplaced properties when
// a geocoder is given, and returns the resulting Dataset.
func Load(ctx context.Context, loader Loader, geocoder domain.Geocoder, logger *slog.Logger) (*Dataset, error) {
	regions, err := loader.LoadRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}
	properties, err := loader.LoadProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("load properties: %w", err)
	}

	if geocoder != nil {
		properties = &domain.PropertyTable{
			Records: domain.LocateProperties(ctx, properties.Records, geocoder, logger),
		}
	}

	ds, err := New(regions, properties)
	if err != nil {
		return nil, err
	}
	logger.Info("dataset loaded",
		"regions", len(regions.Rows),
		"year_columns", len(regions.YearColumns),
		"properties", len(properties.Records),
	)
	return ds, nil
}

// Regions returns the region table. Callers must not modify it.
func (d *Dataset) Regions() *domain.RegionTable { return d.regions }

// Properties returns the property table. Callers must not modify it.
func (d *Dataset) Properties() *domain.PropertyTable { return d.properties }

// RegionLocation returns the stored coordinates of a region.
func (d *Dataset) RegionLocation(regionID string) (domain.Geo, error) {
	g, ok := d.locations[regionID]
	if !ok {
		return domain.Geo{}, fmt.Errorf("region %q: %w", regionID, ErrUnknownRegion)
	}
	return g, nil
}

// RegionIDs returns the region ids in table order.
func (d *Dataset) RegionIDs() []string {
	ids := make([]string, 0, len(d.regions.Rows))
	for _, r := range d.regions.Rows {
		ids = append(ids, r.RegionID)
	}
	return ids
}
