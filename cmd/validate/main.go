// Command validate performs data integrity checks on the configured region and
// property tables before the map service loads them. It reads the same
// environment as the service (DATA_SOURCE, REGION_CSV, PROPERTY_CSV,
// DATABASE_URL, YEAR_MIN, YEAR_MAX) and verifies identifiers, coordinates,
// numeric cells, sale dates, and drilldown consistency.
//
// Usage:
//
//	REGION_CSV=data/properties_small_area.csv \
//	PROPERTY_CSV=data/properties_small_detailed.csv \
//	go run ./cmd/validate
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/inflation-map/internal/config"
	"github.com/couchcryptid/inflation-map/internal/dataset"
	"github.com/couchcryptid/inflation-map/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	if code := run(context.Background(), cfg); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, cfg *config.Config) int {
	fmt.Println("=== Inflation Map Data Validation ===")
	fmt.Println()

	loader, release, err := dataset.OpenLoader(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open %s source: %v\n", cfg.DataSource, err)
		return 1
	}
	defer release()

	regions, err := loader.LoadRegions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load regions: %v\n", err)
		return 1
	}
	properties, err := loader.LoadProperties(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load properties: %v\n", err)
		return 1
	}

	bounds := domain.YearRange{Start: cfg.YearMin, End: cfg.YearMax}

	// ── Run validation phases ──
	phases := []*phase{
		validateRegions(regions, bounds),
		validateProperties(properties, regions),
		validateAggregation(regions, bounds),
		validateDrilldown(properties, regions, bounds),
	}

	// ── Report results ──
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d regions, %d year columns, %d properties\n",
		len(regions.Rows), len(regions.YearColumns), len(properties.Records))

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: region table ──

func validateRegions(regions *domain.RegionTable, bounds domain.YearRange) *phase {
	p := &phase{name: "Region table integrity"}

	if len(regions.Rows) == 0 {
		p.errorf("region table has no rows")
	}
	if _, err := dataset.New(regions, nil); err != nil {
		p.errorf("dataset: %v", err)
	}

	if missing := domain.MissingYearColumns(regions, bounds.Start, bounds.End); len(missing) > 0 {
		p.errorf("year columns missing inside %d-%d: %v", bounds.Start, bounds.End, missing)
	}

	for _, row := range regions.Rows {
		if !validLatLon(row.Latitude, row.Longitude) {
			p.errorf("region %s: coordinates (%g, %g) out of range", row.RegionID, row.Latitude, row.Longitude)
		}
	}
	return p
}

// ── Phase 2: property table ──

func validateProperties(properties *domain.PropertyTable, regions *domain.RegionTable) *phase {
	p := &phase{name: "Property table integrity"}

	known := make(map[string]bool, len(regions.Rows))
	for _, row := range regions.Rows {
		known[row.RegionID] = true
	}

	unplaced := 0
	for i, rec := range properties.Records {
		label := fmt.Sprintf("property %d (%s)", i+1, rec.Postcode)
		if !known[rec.RegionID] {
			p.errorf("%s: region %q not in region table", label, rec.RegionID)
		}
		if strings.TrimSpace(rec.Postcode) == "" {
			p.errorf("%s: empty postcode", label)
		}
		if math.IsNaN(rec.InflationRate) || math.IsInf(rec.InflationRate, 0) {
			p.errorf("%s: inflation rate is not finite", label)
		}

		earliest, errE := time.Parse(domain.SaleDateLayout, strings.TrimSpace(rec.EarliestDate))
		mostRecent, errM := time.Parse(domain.SaleDateLayout, strings.TrimSpace(rec.MostRecentDate))
		switch {
		case errE != nil:
			p.errorf("%s: earliest_date %q: %v", label, rec.EarliestDate, errE)
		case errM != nil:
			p.errorf("%s: most_recent_date %q: %v", label, rec.MostRecentDate, errM)
		case mostRecent.Before(earliest):
			p.errorf("%s: most_recent_date %s before earliest_date %s", label, rec.MostRecentDate, rec.EarliestDate)
		}

		if !rec.HasLocation() {
			unplaced++
		} else if !validLatLon(rec.Latitude, rec.Longitude) {
			p.errorf("%s: coordinates (%g, %g) out of range", label, rec.Latitude, rec.Longitude)
		}
	}

	if unplaced > 0 {
		fmt.Printf("  note: %d properties have no coordinates and will not be drawn\n", unplaced)
	}
	return p
}

// ── Phase 3: aggregation ──

func validateAggregation(regions *domain.RegionTable, bounds domain.YearRange) *phase {
	p := &phase{name: "Period aggregation"}
	agg := domain.NewPeriodAggregator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	records, err := agg.Aggregate(regions, bounds.Start, bounds.End)
	if err != nil {
		var cellErr *domain.CellError
		if errors.As(err, &cellErr) {
			p.errorf("region %s year %d: non-numeric cell %q", cellErr.RegionID, cellErr.Year, cellErr.Value)
		} else {
			p.errorf("aggregate %d-%d: %v", bounds.Start, bounds.End, err)
		}
		return p
	}

	if len(records) != len(regions.Rows) {
		p.errorf("aggregate produced %d records for %d regions", len(records), len(regions.Rows))
	}
	for _, r := range records {
		scaled := r.PeriodRate * 100
		if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			p.errorf("region %s: period rate %v not rounded to two decimals", r.RegionID, r.PeriodRate)
		}
	}
	return p
}

// ── Phase 4: drilldown ──

func validateDrilldown(properties *domain.PropertyTable, regions *domain.RegionTable, bounds domain.YearRange) *phase {
	p := &phase{name: "Drilldown consistency"}

	for _, row := range regions.Rows {
		narrow, err := domain.Select(bounds, properties, row.RegionID, domain.OverlapNarrow)
		if err != nil {
			p.errorf("region %s narrow: %v", row.RegionID, err)
			continue
		}
		wide, err := domain.Select(bounds, properties, row.RegionID, domain.OverlapWide)
		if err != nil {
			p.errorf("region %s wide: %v", row.RegionID, err)
			continue
		}

		if narrow.Len() > wide.Len() {
			p.errorf("region %s: narrow selection (%d) larger than wide (%d)", row.RegionID, narrow.Len(), wide.Len())
		}

		markers := domain.DetailMarkers(narrow)
		if len(markers) != len(narrow.Groups) {
			p.errorf("region %s: %d markers for %d postcode groups", row.RegionID, len(markers), len(narrow.Groups))
			continue
		}
		for i, g := range narrow.Groups {
			isTable := markers[i].Overlay.Kind == domain.OverlayTable
			if isTable != g.IsAggregate() {
				p.errorf("region %s postcode %s: %d records rendered as %s", row.RegionID, g.Postcode, len(g.Records), markers[i].Overlay.Kind)
			}
		}
	}
	return p
}

func validLatLon(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
