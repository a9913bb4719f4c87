package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Data source backends.
const (
	DataSourceCSV      = "csv"
	DataSourcePostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Dataset configuration.
	DataSource    string
	RegionCSV     string
	PropertyCSV   string
	DatabaseURL   string
	RegionTable   string
	PropertyTable string

	// Map configuration.
	YearMin            int
	YearMax            int
	CenterLat          float64
	CenterLon          float64
	BaseZoom           int
	DetailZoom         int
	MaxDetailMarkers   int
	AggregateCacheSize int

	// Kafka event pipeline configuration.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s"))
	if err != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataSource:    strings.ToLower(sharedcfg.EnvOrDefault("DATA_SOURCE", DataSourceCSV)),
		RegionCSV:     sharedcfg.EnvOrDefault("REGION_CSV", "data/properties_small_area.csv"),
		PropertyCSV:   sharedcfg.EnvOrDefault("PROPERTY_CSV", "data/properties_small_detailed.csv"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RegionTable:   sharedcfg.EnvOrDefault("REGION_TABLE", "area_inflation"),
		PropertyTable: sharedcfg.EnvOrDefault("PROPERTY_TABLE", "property_inflation"),

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "map-ui-events"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "map-surface-commands"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "inflation-map"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parsePositiveInt("MAPBOX_CACHE_SIZE", 1000),
	}
	for _, v := range []struct {
		key string
		def int
		dst *int
	}{
		{"YEAR_MIN", 1995, &cfg.YearMin},
		{"YEAR_MAX", 2024, &cfg.YearMax},
		{"BASE_ZOOM", 12, &cfg.BaseZoom},
		{"DETAIL_ZOOM", 15, &cfg.DetailZoom},
		{"MAX_DETAIL_MARKERS", 2000, &cfg.MaxDetailMarkers},
		{"AGGREGATE_CACHE_SIZE", 64, &cfg.AggregateCacheSize},
	} {
		n, err := parseInt(v.key, v.def)
		if err != nil {
			return nil, err
		}
		*v.dst = n
	}

	if cfg.CenterLat, err = parseFloat("MAP_CENTER_LAT", 51.5); err != nil {
		return nil, err
	}
	if cfg.CenterLon, err = parseFloat("MAP_CENTER_LON", -0.10); err != nil {
		return nil, err
	}

	cfg.MapboxToken = os.Getenv("MAPBOX_TOKEN")
	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		cfg.MapboxEnabled = v == "true"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DataSource {
	case DataSourceCSV:
		if c.RegionCSV == "" || c.PropertyCSV == "" {
			return errors.New("REGION_CSV and PROPERTY_CSV are required when DATA_SOURCE=csv")
		}
	case DataSourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when DATA_SOURCE=postgres")
		}
	default:
		return fmt.Errorf("invalid DATA_SOURCE %q: want csv or postgres", c.DataSource)
	}
	if c.YearMin > c.YearMax {
		return errors.New("YEAR_MIN must not exceed YEAR_MAX")
	}
	if c.CenterLat < -90 || c.CenterLat > 90 {
		return errors.New("MAP_CENTER_LAT out of range [-90, 90]")
	}
	if c.CenterLon < -180 || c.CenterLon > 180 {
		return errors.New("MAP_CENTER_LON out of range [-180, 180]")
	}
	if c.MaxDetailMarkers <= 0 {
		return errors.New("MAX_DETAIL_MARKERS must be positive")
	}
	if c.AggregateCacheSize <= 0 {
		return errors.New("AGGREGATE_CACHE_SIZE must be positive")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if c.KafkaSinkTopic == "" {
			return errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s: %q is not finite", key, s)
	}
	return f, nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
