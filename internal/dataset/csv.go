package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/inflation-map/internal/domain"
)

// Header names shared by the CSV and PostgreSQL sources.
const (
	ColRegionID       = "region_id"
	ColPostcodeArea   = "postcode_area"
	ColLat            = "lat"
	ColLong           = "long"
	ColPostcode       = "postcode"
	ColStreet         = "street"
	ColFlat           = "flat"
	ColInflationRate  = "inflation_rate"
	ColEarliestDate   = "earliest_date"
	ColMostRecentDate = "most_recent_date"
	ColMostRecentSale = "most_recent_price"
)

// PropertyColumns is the property table header in canonical order.
var PropertyColumns = []string{
	ColPostcodeArea, ColPostcode, ColStreet, ColFlat, ColLat, ColLong,
	ColInflationRate, ColEarliestDate, ColMostRecentDate, ColMostRecentSale,
}

// CSVLoader reads the tables from two CSV files.
type CSVLoader struct {
	RegionPath   string
	PropertyPath string
}

// NewCSVLoader creates a CSVLoader for the given file paths.
func NewCSVLoader(regionPath, propertyPath string) *CSVLoader {
	return &CSVLoader{RegionPath: regionPath, PropertyPath: propertyPath}
}

// LoadRegions implements Loader.
func (l *CSVLoader) LoadRegions(_ context.Context) (*domain.RegionTable, error) {
	f, err := os.Open(l.RegionPath)
	if err != nil {
		return nil, fmt.Errorf("open region csv: %w", err)
	}
	defer f.Close()
	return ParseRegionCSV(f)
}

// LoadProperties implements Loader.
func (l *CSVLoader) LoadProperties(_ context.Context) (*domain.PropertyTable, error) {
	f, err := os.Open(l.PropertyPath)
	if err != nil {
		return nil, fmt.Errorf("open property csv: %w", err)
	}
	defer f.Close()
	return ParsePropertyCSV(f)
}

// ParseRegionCSV reads a wide region table. The header must name the region
// column (region_id or postcode_area), lat and long; every header that is a
// four-digit year becomes a year column. Other columns are ignored.
func ParseRegionCSV(r io.Reader) (*domain.RegionTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read region header: %w", err)
	}
	header = normalizeHeader(header)

	layout := RegionLayout(header)
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	table := &domain.RegionTable{YearColumns: layout.Years}
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("region csv line %d: %w", line, err)
		}
		row, err := layout.Row(func(i int) string { return field(rec, i) })
		if err != nil {
			return nil, fmt.Errorf("region csv line %d: %w", line, err)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// ParsePropertyCSV reads the property table. Blank coordinates become NaN so
// the record is kept but never placed on the map.
func ParsePropertyCSV(r io.Reader) (*domain.PropertyTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read property header: %w", err)
	}
	header = normalizeHeader(header)

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	if _, ok := idx[ColPostcodeArea]; !ok {
		if i, ok := idx[ColRegionID]; ok {
			idx[ColPostcodeArea] = i
		}
	}
	for _, col := range PropertyColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("property csv: missing column %q", col)
		}
	}

	table := &domain.PropertyTable{}
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("property csv line %d: %w", line, err)
		}
		get := func(col string) string { return field(rec, idx[col]) }

		p, err := parseProperty(get)
		if err != nil {
			return nil, fmt.Errorf("property csv line %d: %w", line, err)
		}
		table.Records = append(table.Records, p)
	}
	return table, nil
}

func parseProperty(get func(col string) string) (domain.PropertyRecord, error) {
	p := domain.PropertyRecord{
		RegionID:       get(ColPostcodeArea),
		Postcode:       get(ColPostcode),
		Street:         get(ColStreet),
		Flat:           get(ColFlat),
		EarliestDate:   get(ColEarliestDate),
		MostRecentDate: get(ColMostRecentDate),
	}

	var err error
	if p.Latitude, err = optionalFloat(get(ColLat)); err != nil {
		return p, fmt.Errorf("%s: %w", ColLat, err)
	}
	if p.Longitude, err = optionalFloat(get(ColLong)); err != nil {
		return p, fmt.Errorf("%s: %w", ColLong, err)
	}
	if p.InflationRate, err = finiteFloat(get(ColInflationRate)); err != nil {
		return p, fmt.Errorf("%s: %w", ColInflationRate, err)
	}
	if s := get(ColMostRecentSale); s != "" {
		if p.MostRecentPrice, err = finiteFloat(s); err != nil {
			return p, fmt.Errorf("%s: %w", ColMostRecentSale, err)
		}
	}
	return p, nil
}

// Layout maps the columns of a wide region header.
type Layout struct {
	IDIndex   int
	LatIndex  int
	LongIndex int
	Years     []int
	YearIndex []int
}

// RegionLayout locates the region columns in a normalised header.
func RegionLayout(header []string) Layout {
	l := Layout{IDIndex: -1, LatIndex: -1, LongIndex: -1}
	for i, h := range header {
		switch h {
		case ColRegionID:
			l.IDIndex = i
		case ColPostcodeArea:
			if l.IDIndex < 0 {
				l.IDIndex = i
			}
		case ColLat:
			l.LatIndex = i
		case ColLong, "lon":
			l.LongIndex = i
		default:
			if year, ok := parseYearHeader(h); ok {
				l.Years = append(l.Years, year)
				l.YearIndex = append(l.YearIndex, i)
			}
		}
	}
	return l
}

// Validate reports a header that lacks a required column.
func (l Layout) Validate() error {
	switch {
	case l.IDIndex < 0:
		return fmt.Errorf("region table: missing %q or %q column", ColRegionID, ColPostcodeArea)
	case l.LatIndex < 0:
		return fmt.Errorf("region table: missing %q column", ColLat)
	case l.LongIndex < 0:
		return fmt.Errorf("region table: missing %q column", ColLong)
	}
	return nil
}

// Row builds a region row from a cell accessor indexed by header position.
func (l Layout) Row(cell func(i int) string) (domain.RegionRow, error) {
	row := domain.RegionRow{RegionID: cell(l.IDIndex)}
	var err error
	if row.Latitude, err = finiteFloat(cell(l.LatIndex)); err != nil {
		return row, fmt.Errorf("region %s %s: %w", row.RegionID, ColLat, err)
	}
	if row.Longitude, err = finiteFloat(cell(l.LongIndex)); err != nil {
		return row, fmt.Errorf("region %s %s: %w", row.RegionID, ColLong, err)
	}
	row.Values = make([]string, len(l.YearIndex))
	for j, i := range l.YearIndex {
		row.Values[j] = cell(i)
	}
	return row, nil
}

func parseYearHeader(h string) (int, bool) {
	if len(h) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(h)
	if err != nil || year < 1000 {
		return 0, false
	}
	return year, true
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func optionalFloat(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "", "nan", "na", "null":
		return math.NaN(), nil
	}
	return finiteFloat(s)
}

// finiteFloat parses s and rejects NaN and the infinities.
func finiteFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q: %w", s, domain.ErrNotFinite)
	}
	return v, nil
}
