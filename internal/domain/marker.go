package domain

import (
	"fmt"
	"strconv"
)

// Marker radii and fill opacity used by the map surface.
const (
	RegionRadius = 10
	DetailRadius = 5
	FillOpacity  = 0.6
)

// OverlayKind selects how the surface presents a marker's overlay.
type OverlayKind string

const (
	// OverlayTooltip is a hover tooltip of text lines.
	OverlayTooltip OverlayKind = "tooltip"
	// OverlayTable is a click popup holding a scrollable detail table.
	OverlayTable OverlayKind = "table"
)

// DetailColumns are the headers of a postcode group's detail table.
var DetailColumns = []string{"Postcode", "Street", "Flat", "Inflation rate", "From", "To", "Most recent sale"}

// Overlay is the content attached to a marker. The core only builds it; the
// surface decides how to draw it.
type Overlay struct {
	Kind    OverlayKind `json:"kind"`
	Lines   []string    `json:"lines,omitempty"`
	Headers []string    `json:"headers,omitempty"`
	Rows    [][]string  `json:"rows,omitempty"`
}

// Marker is one declarative circle on the map surface.
type Marker struct {
	Identity Identity `json:"identity"`
	Position Geo      `json:"position"`
	Color    string   `json:"color"`
	Radius   int      `json:"radius"`
	Rate     float64  `json:"rate"`
	Overlay  Overlay  `json:"overlay"`
}

// RegionMarkers builds one region marker per record, stamped with the given
// render generation.
func RegionMarkers(records []RegionRecord, generation int) []Marker {
	markers := make([]Marker, 0, len(records))
	for _, r := range records {
		markers = append(markers, Marker{
			Identity: RegionIdentity(r.RegionID, generation),
			Position: Geo{Lat: r.Latitude, Lon: r.Longitude},
			Color:    ColorFor(r.PeriodRate),
			Radius:   RegionRadius,
			Rate:     r.PeriodRate,
			Overlay: Overlay{
				Kind: OverlayTooltip,
				Lines: []string{
					"Postcode area: " + r.RegionID,
					"Average Inflation Rate: " + FormatPercent(r.PeriodRate),
				},
			},
		})
	}
	return markers
}

// DetailMarkers builds the fine-grained markers of a selection: a property
// marker for every single-record postcode and a group marker with a detail
// table for every postcode holding several records.
func DetailMarkers(sel Selection) []Marker {
	markers := make([]Marker, 0, len(sel.Groups))
	for _, g := range sel.Groups {
		if g.IsAggregate() {
			markers = append(markers, groupMarker(g))
			continue
		}
		markers = append(markers, propertyMarker(g.Records[0]))
	}
	return markers
}

func propertyMarker(p PropertyRecord) Marker {
	rate := round2(p.InflationRate * 100)
	return Marker{
		Identity: PropertyIdentity(p),
		Position: Geo{Lat: p.Latitude, Lon: p.Longitude},
		Color:    ColorFor(rate),
		Radius:   DetailRadius,
		Rate:     rate,
		Overlay: Overlay{
			Kind: OverlayTooltip,
			Lines: []string{
				"Postcode: " + p.Postcode,
				"Street: " + p.Street,
				"Flat: " + p.Flat,
				"Inflation rate: " + strconv.FormatFloat(rate, 'f', -1, 64) + "%",
				"From: " + p.EarliestDate,
				"To: " + p.MostRecentDate,
				"Most recent sale: " + formatThousands(p.MostRecentPrice),
			},
		},
	}
}

func groupMarker(g PostcodeGroup) Marker {
	rate := g.MeanRate()
	anchor := g.Records[0]
	rows := make([][]string, 0, len(g.Records))
	for _, p := range g.Records {
		rows = append(rows, []string{
			p.Postcode,
			p.Street,
			p.Flat,
			FormatPercent(p.InflationRate * 100),
			p.EarliestDate,
			p.MostRecentDate,
			formatThousands(p.MostRecentPrice),
		})
	}
	return Marker{
		Identity: GroupIdentity(g.Postcode),
		Position: Geo{Lat: anchor.Latitude, Lon: anchor.Longitude},
		Color:    ColorFor(rate),
		Radius:   DetailRadius,
		Rate:     rate,
		Overlay: Overlay{
			Kind:    OverlayTable,
			Headers: DetailColumns,
			Rows:    rows,
		},
	}
}

// formatThousands renders a price in thousands with one decimal, e.g. 725000 -> "725.0K".
func formatThousands(price float64) string {
	return fmt.Sprintf("%.1fK", price/1000)
}
