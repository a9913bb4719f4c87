package dataset

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/inflation-map/internal/domain"
)

// PostgresLoader reads the tables from PostgreSQL. The region table is wide:
// one column per year, named by the year.
type PostgresLoader struct {
	db            *pgxpool.Pool
	regionTable   string
	propertyTable string
}

// NewPostgresLoader creates a PostgresLoader over the named tables.
func NewPostgresLoader(db *pgxpool.Pool, regionTable, propertyTable string) *PostgresLoader {
	return &PostgresLoader{db: db, regionTable: regionTable, propertyTable: propertyTable}
}

// LoadRegions implements Loader.
func (l *PostgresLoader) LoadRegions(ctx context.Context) (*domain.RegionTable, error) {
	sql := "SELECT * FROM " + pgx.Identifier(strings.Split(l.regionTable, ".")).Sanitize()

	rows, err := l.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to query region table: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	header := make([]string, len(fields))
	for i, fd := range fields {
		header[i] = fd.Name
	}
	layout := RegionLayout(normalizeHeader(header))
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	table := &domain.RegionTable{YearColumns: layout.Years}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("dataset: failed to read region row: %w", err)
		}
		row, err := layout.Row(func(i int) string { return cellString(values[i]) })
		if err != nil {
			return nil, fmt.Errorf("dataset: %w", err)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dataset: error iterating region rows: %w", err)
	}
	return table, nil
}

// LoadProperties implements Loader.
func (l *PostgresLoader) LoadProperties(ctx context.Context) (*domain.PropertyTable, error) {
	sql := `
		SELECT
			postcode_area,
			postcode,
			street,
			COALESCE(flat::text, ''),
			lat::float8,
			long::float8,
			inflation_rate::float8,
			earliest_date::text,
			most_recent_date::text,
			most_recent_price::float8
		FROM ` + pgx.Identifier(strings.Split(l.propertyTable, ".")).Sanitize() + `
		ORDER BY postcode_area, postcode`

	rows, err := l.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to query property table: %w", err)
	}
	defer rows.Close()

	table := &domain.PropertyTable{}
	for rows.Next() {
		var (
			p         domain.PropertyRecord
			lat, long *float64
			price     *float64
		)
		err := rows.Scan(
			&p.RegionID,
			&p.Postcode,
			&p.Street,
			&p.Flat,
			&lat,
			&long,
			&p.InflationRate,
			&p.EarliestDate,
			&p.MostRecentDate,
			&price,
		)
		if err != nil {
			return nil, fmt.Errorf("dataset: failed to scan property: %w", err)
		}
		p.Latitude, p.Longitude = nullFloat(lat), nullFloat(long)
		if price != nil {
			p.MostRecentPrice = *price
		}
		if err := finiteProperty(p); err != nil {
			return nil, fmt.Errorf("dataset: property %s: %w", p.Postcode, err)
		}
		table.Records = append(table.Records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dataset: error iterating property rows: %w", err)
	}
	return table, nil
}

// finiteProperty applies the CSV source's numeric rules to a scanned row. A
// NaN coordinate is kept as the missing marker.
func finiteProperty(p domain.PropertyRecord) error {
	switch {
	case math.IsInf(p.Latitude, 0):
		return fmt.Errorf("%s: %w", ColLat, domain.ErrNotFinite)
	case math.IsInf(p.Longitude, 0):
		return fmt.Errorf("%s: %w", ColLong, domain.ErrNotFinite)
	case math.IsNaN(p.InflationRate) || math.IsInf(p.InflationRate, 0):
		return fmt.Errorf("%s: %w", ColInflationRate, domain.ErrNotFinite)
	case math.IsNaN(p.MostRecentPrice) || math.IsInf(p.MostRecentPrice, 0):
		return fmt.Errorf("%s: %w", ColMostRecentSale, domain.ErrNotFinite)
	}
	return nil
}

func nullFloat(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// cellString renders a dynamically typed column value the way the CSV source
// would have spelled it, so both sources feed the aggregator the same text.
func cellString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case pgtype.Numeric:
		if !v.Valid || v.NaN {
			return ""
		}
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return ""
		}
		return strconv.FormatFloat(f.Float64, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
