package dataset

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/inflation-map/internal/config"
)

// OpenLoader returns the loader selected by DATA_SOURCE and a release func for
// its resources. The release func is never nil.
func OpenLoader(ctx context.Context, cfg *config.Config) (Loader, func(), error) {
	switch cfg.DataSource {
	case config.DataSourcePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, func() {}, fmt.Errorf("ping postgres: %w", err)
		}
		return NewPostgresLoader(pool, cfg.RegionTable, cfg.PropertyTable), pool.Close, nil
	case config.DataSourceCSV:
		return NewCSVLoader(cfg.RegionCSV, cfg.PropertyCSV), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}
}
