package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SaleDateLayout is the day/month/year layout of property sale dates.
const SaleDateLayout = "02/01/2006"

// OverlapMode decides when a property's active interval counts as inside a
// queried year range.
type OverlapMode int

const (
	// OverlapWide keeps properties whose active interval intersects the range.
	OverlapWide OverlapMode = iota
	// OverlapNarrow keeps properties whose active interval lies inside the range.
	OverlapNarrow
)

func (m OverlapMode) String() string {
	if m == OverlapNarrow {
		return "narrow"
	}
	return "wide"
}

// DateError reports a sale date that does not parse as day/month/year.
type DateError struct {
	Postcode string
	Field    string
	Value    string
	Err      error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("property %s: malformed %s %q: %v", e.Postcode, e.Field, e.Value, e.Err)
}

func (e *DateError) Unwrap() error { return e.Err }

// PostcodeGroup is the set of selected properties sharing one postcode.
type PostcodeGroup struct {
	Postcode string
	Records  []PropertyRecord
}

// IsAggregate reports whether the group renders as one multi-row marker.
func (g PostcodeGroup) IsAggregate() bool { return len(g.Records) > 1 }

// MeanRate is the group's mean inflation rate as a percentage rounded to two
// decimals.
func (g PostcodeGroup) MeanRate() float64 {
	if len(g.Records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range g.Records {
		sum += r.InflationRate
	}
	return round2(sum / float64(len(g.Records)) * 100)
}

// Selection is the outcome of a drilldown query. An empty selection is a
// valid result.
type Selection struct {
	RegionID string
	Range    YearRange
	Mode     OverlapMode
	Groups   []PostcodeGroup
}

// Empty reports whether no property survived the filters.
func (s Selection) Empty() bool { return len(s.Groups) == 0 }

// Len is the number of selected properties across all groups.
func (s Selection) Len() int {
	n := 0
	for _, g := range s.Groups {
		n += len(g.Records)
	}
	return n
}

// Select returns the located properties of a region whose sale history fits
// the year range under the given overlap mode, sorted by street and flat and
// grouped by postcode in first-appearance order.
func Select(rng YearRange, table *PropertyTable, regionID string, mode OverlapMode) (Selection, error) {
	sel := Selection{RegionID: regionID, Range: rng, Mode: mode}
	if !rng.Valid() {
		return sel, fmt.Errorf("select %s %d-%d: %w", regionID, rng.Start, rng.End, ErrInvalidYearRange)
	}

	rangeStart := time.Date(rng.Start, time.January, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(rng.End, time.December, 31, 0, 0, 0, 0, time.UTC)

	var kept []PropertyRecord
	for _, p := range table.InRegion(regionID) {
		earliest, err := parseSaleDate(p, "earliest_date", p.EarliestDate)
		if err != nil {
			return sel, err
		}
		mostRecent, err := parseSaleDate(p, "most_recent_date", p.MostRecentDate)
		if err != nil {
			return sel, err
		}
		if !overlaps(mode, earliest, mostRecent, rangeStart, rangeEnd) {
			continue
		}
		if !p.HasLocation() {
			continue
		}
		kept = append(kept, p)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Street != kept[j].Street {
			return kept[i].Street < kept[j].Street
		}
		return kept[i].Flat < kept[j].Flat
	})

	sel.Groups = groupByPostcode(kept)
	return sel, nil
}

func overlaps(mode OverlapMode, earliest, mostRecent, rangeStart, rangeEnd time.Time) bool {
	if mode == OverlapNarrow {
		return !earliest.Before(rangeStart) && !mostRecent.After(rangeEnd)
	}
	return !mostRecent.Before(rangeStart) && !earliest.After(rangeEnd)
}

func parseSaleDate(p PropertyRecord, field, value string) (time.Time, error) {
	t, err := time.Parse(SaleDateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, &DateError{Postcode: p.Postcode, Field: field, Value: value, Err: err}
	}
	return t, nil
}

func groupByPostcode(records []PropertyRecord) []PostcodeGroup {
	index := make(map[string]int)
	var groups []PostcodeGroup
	for _, r := range records {
		i, ok := index[r.Postcode]
		if !ok {
			i = len(groups)
			index[r.Postcode] = i
			groups = append(groups, PostcodeGroup{Postcode: r.Postcode})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}
