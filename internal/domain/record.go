package domain

import (
	"math"
	"strings"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// YearRange is an inclusive range of calendar years.
type YearRange struct {
	Start int `json:"start_year"`
	End   int `json:"end_year"`
}

// Valid reports whether Start <= End.
func (r YearRange) Valid() bool { return r.Start <= r.End }

// Within reports whether r is valid and lies inside bounds.
func (r YearRange) Within(bounds YearRange) bool {
	return r.Valid() && r.Start >= bounds.Start && r.End <= bounds.End
}

// RegionRow is one raw row of the region table. Values is aligned with
// RegionTable.YearColumns and holds the cells exactly as read.
type RegionRow struct {
	RegionID  string
	Latitude  float64
	Longitude float64
	Values    []string
}

// RegionTable is the wide per-year region table. YearColumns lists the year
// headers present in the source, in source order.
type RegionTable struct {
	YearColumns []int
	Rows        []RegionRow
}

// RegionRecord is the aggregated view of one region over a year range.
type RegionRecord struct {
	RegionID        string  `json:"region_id"`
	Latitude        float64 `json:"lat"`
	Longitude       float64 `json:"lon"`
	PeriodRate      float64 `json:"period_rate"`
	PeriodRateLabel string  `json:"period_rate_label"`
}

// PropertyRecord is one flat with its repeat-sale history. Dates stay in the
// source's day/month/year text form. Latitude and Longitude are NaN when the
// source had no coordinates.
type PropertyRecord struct {
	RegionID        string  `json:"region_id"`
	Postcode        string  `json:"postcode"`
	Street          string  `json:"street"`
	Flat            string  `json:"flat"`
	InflationRate   float64 `json:"inflation_rate"`
	EarliestDate    string  `json:"earliest_date"`
	MostRecentDate  string  `json:"most_recent_date"`
	MostRecentPrice float64 `json:"most_recent_price"`
	Latitude        float64 `json:"lat"`
	Longitude       float64 `json:"lon"`
}

// HasLocation reports whether the record can be placed on the map.
func (p PropertyRecord) HasLocation() bool {
	return !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude)
}

// PropertyTable is the read-only property-level table.
type PropertyTable struct {
	Records []PropertyRecord
}

// InRegion returns the records belonging to a region, in table order.
func (t *PropertyTable) InRegion(regionID string) []PropertyRecord {
	var out []PropertyRecord
	for _, p := range t.Records {
		if p.RegionID == regionID {
			out = append(out, p)
		}
	}
	return out
}

// isMissingCell reports whether a raw cell denotes an absent observation.
func isMissingCell(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "na", "null":
		return true
	}
	return false
}
