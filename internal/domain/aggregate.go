package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidYearRange is returned when a range starts after it ends.
var ErrInvalidYearRange = errors.New("invalid year range: start year is after end year")

// ErrNotFinite marks a numeric field that parsed to an infinity or NaN.
var ErrNotFinite = errors.New("value is not finite")

// CellError reports a region table cell that is neither missing nor numeric.
type CellError struct {
	RegionID string
	Year     int
	Value    string
	Err      error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("region %s year %d: non-numeric cell %q: %v", e.RegionID, e.Year, e.Value, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// PeriodAggregator reduces the wide region table to one period rate per region.
type PeriodAggregator struct {
	logger *slog.Logger
}

// NewPeriodAggregator creates a PeriodAggregator that reports missing year
// columns on the given logger.
func NewPeriodAggregator(logger *slog.Logger) *PeriodAggregator {
	return &PeriodAggregator{logger: logger}
}

// Aggregate computes the period rate of every region over [start, end].
// Years without a column in the table are logged and left out of the mean.
// The returned records carry no per-year data.
func (a *PeriodAggregator) Aggregate(table *RegionTable, start, end int) ([]RegionRecord, error) {
	if start > end {
		return nil, fmt.Errorf("aggregate %d-%d: %w", start, end, ErrInvalidYearRange)
	}

	if missing := MissingYearColumns(table, start, end); len(missing) > 0 {
		a.logger.Warn("year columns missing from region table",
			"start_year", start,
			"end_year", end,
			"missing_years", missing,
		)
	}

	cols := yearColumnIndexes(table, start, end)
	records := make([]RegionRecord, 0, len(table.Rows))
	for _, row := range table.Rows {
		rate, err := periodRate(row, table.YearColumns, cols)
		if err != nil {
			return nil, fmt.Errorf("aggregate %d-%d: %w", start, end, err)
		}
		records = append(records, RegionRecord{
			RegionID:        row.RegionID,
			Latitude:        row.Latitude,
			Longitude:       row.Longitude,
			PeriodRate:      rate,
			PeriodRateLabel: FormatPercent(rate),
		})
	}
	return records, nil
}

// MissingYearColumns lists the years in [start, end] that have no column in
// the table, in ascending order.
func MissingYearColumns(table *RegionTable, start, end int) []int {
	present := make(map[int]bool, len(table.YearColumns))
	for _, y := range table.YearColumns {
		present[y] = true
	}
	var missing []int
	for y := start; y <= end; y++ {
		if !present[y] {
			missing = append(missing, y)
		}
	}
	return missing
}

// FormatPercent renders a percentage with two decimals, e.g. 4.1 -> "4.10%".
func FormatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

// yearColumnIndexes returns the positions in table.YearColumns of years inside
// [start, end].
func yearColumnIndexes(table *RegionTable, start, end int) []int {
	var idx []int
	for i, y := range table.YearColumns {
		if y >= start && y <= end {
			idx = append(idx, i)
		}
	}
	return idx
}

// periodRate is the skip-missing mean of the selected cells, as a percentage
// rounded to two decimals. No observations yields 0.
func periodRate(row RegionRow, years []int, cols []int) (float64, error) {
	var sum float64
	var n int
	for _, i := range cols {
		if i >= len(row.Values) || isMissingCell(row.Values[i]) {
			continue
		}
		raw := strings.TrimSpace(row.Values[i])
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, &CellError{RegionID: row.RegionID, Year: years[i], Value: raw, Err: err}
		}
		if math.IsNaN(v) {
			continue
		}
		if math.IsInf(v, 0) {
			return 0, &CellError{RegionID: row.RegionID, Year: years[i], Value: raw, Err: ErrNotFinite}
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return round2(sum / float64(n) * 100), nil
}

// round2 rounds half to even at two decimals.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
