// Command genmock writes synthetic region and property CSV fixtures for local
// runs and tests. The generated files are read back through the dataset
// package so the printed stats match what the service will load.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -region-out data/properties_small_area.csv \
//	  -property-out data/properties_small_detailed.csv \
//	  -per-region 40
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/inflation-map/internal/dataset"
	"github.com/couchcryptid/inflation-map/internal/domain"
)

// area is a postcode area with an approximate centroid.
type area struct {
	id       string
	lat, lon float64
	sectors  []string
}

var areas = []area{
	{id: "SW1", lat: 51.4975, lon: -0.1357, sectors: []string{"SW1A", "SW1E", "SW1P", "SW1V"}},
	{id: "E1", lat: 51.5175, lon: -0.0590, sectors: []string{"E1 6", "E1 7", "E1W 1"}},
	{id: "N1", lat: 51.5380, lon: -0.0990, sectors: []string{"N1 0", "N1 2", "N1 7"}},
	{id: "W1", lat: 51.5145, lon: -0.1450, sectors: []string{"W1F", "W1G", "W1K"}},
	{id: "SE1", lat: 51.5010, lon: -0.0920, sectors: []string{"SE1 1", "SE1 7", "SE1 9"}},
	{id: "EC1", lat: 51.5235, lon: -0.1010, sectors: []string{"EC1M", "EC1R", "EC1V"}},
	{id: "NW1", lat: 51.5340, lon: -0.1420, sectors: []string{"NW1 0", "NW1 4", "NW1 7"}},
}

var streets = []string{"HIGH STREET", "CHURCH ROAD", "MILL LANE", "PARK AVENUE", "STATION ROAD", "VICTORIA STREET"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	regionOut := flag.String("region-out", "", "output path for the region CSV")
	propertyOut := flag.String("property-out", "", "output path for the property CSV")
	perRegion := flag.Int("per-region", 40, "properties generated per region")
	yearMin := flag.Int("year-min", 1995, "first year column")
	yearMax := flag.Int("year-max", 2024, "last year column")
	seed := flag.Uint64("seed", 1, "random seed for reproducible fixtures")
	flag.Parse()

	if *regionOut == "" || *propertyOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -region-out, -property-out")
	}
	if *yearMin > *yearMax {
		return fmt.Errorf("year-min %d is after year-max %d", *yearMin, *yearMax)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	if err := writeCSV(*regionOut, regionRows(rng, *yearMin, *yearMax)); err != nil {
		return fmt.Errorf("writing region csv: %w", err)
	}
	log.Printf("wrote region csv: %s", *regionOut)

	if err := writeCSV(*propertyOut, propertyRows(rng, *perRegion, *yearMin, *yearMax)); err != nil {
		return fmt.Errorf("writing property csv: %w", err)
	}
	log.Printf("wrote property csv: %s", *propertyOut)

	return printStats(*regionOut, *propertyOut, *yearMin, *yearMax)
}

func regionRows(rng *rand.Rand, yearMin, yearMax int) [][]string {
	header := []string{dataset.ColPostcodeArea, dataset.ColLat, dataset.ColLong}
	for y := yearMin; y <= yearMax; y++ {
		header = append(header, strconv.Itoa(y))
	}

	rows := [][]string{header}
	for _, a := range areas {
		row := []string{a.id, formatFloat(a.lat), formatFloat(a.lon)}
		for y := yearMin; y <= yearMax; y++ {
			// Roughly one cell in ten is missing, as in real sales data.
			if rng.IntN(10) == 0 {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(rng.Float64()*0.15-0.02, 'f', 4, 64))
		}
		rows = append(rows, row)
	}
	return rows
}

func propertyRows(rng *rand.Rand, perRegion, yearMin, yearMax int) [][]string {
	rows := [][]string{dataset.PropertyColumns}
	for _, a := range areas {
		for i := 0; i < perRegion; i++ {
			sector := a.sectors[rng.IntN(len(a.sectors))]
			postcode := fmt.Sprintf("%s %d%c%c", sector, rng.IntN(9)+1, 'A'+rune(rng.IntN(6)), 'A'+rune(rng.IntN(6)))

			flat := ""
			if rng.IntN(2) == 0 {
				flat = "FLAT " + strconv.Itoa(rng.IntN(20)+1)
			}

			first := yearMin + rng.IntN(yearMax-yearMin+1)
			last := first + rng.IntN(yearMax-first+1)
			earliest := randomDate(rng, first)
			mostRecent := randomDate(rng, last)
			if mostRecent.Before(earliest) {
				earliest, mostRecent = mostRecent, earliest
			}

			rows = append(rows, []string{
				a.id,
				postcode,
				streets[rng.IntN(len(streets))],
				flat,
				formatFloat(a.lat + (rng.Float64()-0.5)*0.02),
				formatFloat(a.lon + (rng.Float64()-0.5)*0.03),
				strconv.FormatFloat(rng.Float64()*0.12, 'f', 4, 64),
				earliest.Format(domain.SaleDateLayout),
				mostRecent.Format(domain.SaleDateLayout),
				strconv.Itoa((200 + rng.IntN(1800)) * 1000),
			})
		}
	}
	return rows
}

func randomDate(rng *rand.Rand, year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, rng.IntN(365))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printStats loads the written fixtures and prints the numbers tests assert on.
func printStats(regionPath, propertyPath string, yearMin, yearMax int) error {
	loader := dataset.NewCSVLoader(regionPath, propertyPath)
	regions, err := loader.LoadRegions(context.Background())
	if err != nil {
		return err
	}
	properties, err := loader.LoadProperties(context.Background())
	if err != nil {
		return err
	}

	agg := domain.NewPeriodAggregator(slog.New(slog.NewTextHandler(io.Discard, nil)))
	records, err := agg.Aggregate(regions, yearMin, yearMax)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].PeriodRate > records[j].PeriodRate })

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Regions: %d, year columns: %d\n", len(regions.Rows), len(regions.YearColumns))
	fmt.Printf("Properties: %d\n", len(properties.Records))
	fmt.Printf("\nPeriod rate %d-%d:\n", yearMin, yearMax)
	for _, r := range records {
		fmt.Printf("  %-4s %s\n", r.RegionID, r.PeriodRateLabel)
	}

	fmt.Println("\nDrilldown over the full range:")
	full := domain.YearRange{Start: yearMin, End: yearMax}
	for _, a := range areas {
		narrow, err := domain.Select(full, properties, a.id, domain.OverlapNarrow)
		if err != nil {
			return fmt.Errorf("select %s: %w", a.id, err)
		}
		fmt.Printf("  %-4s properties=%d markers=%d\n", a.id, narrow.Len(), len(domain.DetailMarkers(narrow)))
	}
	return nil
}
