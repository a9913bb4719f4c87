package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionMarkers(t *testing.T) {
	records := []RegionRecord{
		{RegionID: "SW1", Latitude: 51.497, Longitude: -0.137, PeriodRate: 5, PeriodRateLabel: "5.00%"},
		{RegionID: "E1", Latitude: 51.517, Longitude: -0.059, PeriodRate: 25, PeriodRateLabel: "25.00%"},
	}

	markers := RegionMarkers(records, 3)
	require.Len(t, markers, 2)

	sw1 := markers[0]
	assert.Equal(t, RegionIdentity("SW1", 3), sw1.Identity)
	assert.Equal(t, Geo{Lat: 51.497, Lon: -0.137}, sw1.Position)
	assert.Equal(t, ColorFor(5), sw1.Color)
	assert.Equal(t, RegionRadius, sw1.Radius)
	assert.Equal(t, OverlayTooltip, sw1.Overlay.Kind)
	assert.Equal(t, []string{"Postcode area: SW1", "Average Inflation Rate: 5.00%"}, sw1.Overlay.Lines)

	assert.Equal(t, HighColor, markers[1].Color)
}

func TestDetailMarkers_SingleAndGroup(t *testing.T) {
	sel, err := Select(YearRange{Start: 2000, End: 2005}, testPropertyTable(), "SW1", OverlapWide)
	require.NoError(t, err)

	markers := DetailMarkers(sel)
	require.Len(t, markers, 2)

	single := markers[0]
	assert.Equal(t, Identity{Kind: KindProperty, Key: "SW1A 2BB-ABBEY-1"}, single.Identity)
	assert.Equal(t, DetailRadius, single.Radius)
	assert.Equal(t, OverlayTooltip, single.Overlay.Kind)
	assert.Contains(t, single.Overlay.Lines, "Inflation rate: 3.1%")
	assert.Contains(t, single.Overlay.Lines, "Most recent sale: 350.0K")
	assert.Contains(t, single.Overlay.Lines, "From: 10/10/1998")

	group := markers[1]
	assert.Equal(t, GroupIdentity("SW1A 1AA"), group.Identity)
	assert.Equal(t, OverlayTable, group.Overlay.Kind)
	assert.Equal(t, DetailColumns, group.Overlay.Headers)
	require.Len(t, group.Overlay.Rows, 2)
	assert.Equal(t, []string{"SW1A 1AA", "MALL", "FLAT 1", "7.00%", "01/01/2002", "31/12/2004", "610.0K"}, group.Overlay.Rows[0])
	assert.Equal(t, 6.0, group.Rate)
	assert.Equal(t, ColorFor(6), group.Color)
}

func TestDetailMarkers_GroupSitsAtFirstRecord(t *testing.T) {
	sel := Selection{RegionID: "SW1", Groups: []PostcodeGroup{{
		Postcode: "SW1A 1AA",
		Records: []PropertyRecord{
			{Postcode: "SW1A 1AA", Street: "MALL", Flat: "1", InflationRate: 0.05, Latitude: 51.501, Longitude: -0.141},
			{Postcode: "SW1A 1AA", Street: "MALL", Flat: "2", InflationRate: 0.07, Latitude: 51.502, Longitude: -0.142},
		},
	}}}

	markers := DetailMarkers(sel)

	require.Len(t, markers, 1)
	assert.Equal(t, Geo{Lat: 51.501, Lon: -0.141}, markers[0].Position)
}

func TestDetailMarkers_SizeOneGroupsNeverUseTables(t *testing.T) {
	table := testPropertyTable()
	for _, mode := range []OverlapMode{OverlapWide, OverlapNarrow} {
		sel, err := Select(YearRange{Start: 1995, End: 2010}, table, "SW1", mode)
		require.NoError(t, err)

		markers := DetailMarkers(sel)
		require.Len(t, markers, len(sel.Groups))
		for i, g := range sel.Groups {
			if len(g.Records) == 1 {
				assert.Equal(t, KindProperty, markers[i].Identity.Kind)
				assert.NotEqual(t, OverlayTable, markers[i].Overlay.Kind)
			} else {
				assert.Equal(t, KindGroup, markers[i].Identity.Kind)
				assert.Len(t, markers[i].Overlay.Rows, len(g.Records))
			}
		}
	}
}

func TestDetailMarkers_Empty(t *testing.T) {
	assert.Empty(t, DetailMarkers(Selection{}))
}
