package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/inflation-map/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/inflation-map/internal/adapter/kafka"
	"github.com/couchcryptid/inflation-map/internal/adapter/mapbox"
	"github.com/couchcryptid/inflation-map/internal/config"
	"github.com/couchcryptid/inflation-map/internal/dataset"
	"github.com/couchcryptid/inflation-map/internal/domain"
	"github.com/couchcryptid/inflation-map/internal/observability"
	"github.com/couchcryptid/inflation-map/internal/pipeline"
	"github.com/couchcryptid/inflation-map/internal/reconcile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, clock, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	loader, release, err := dataset.OpenLoader(ctx, cfg)
	if err != nil {
		return err
	}
	ds, err := dataset.Load(ctx, loader, geocoder, logger)
	release()
	if err != nil {
		return err
	}

	bounds := domain.YearRange{Start: cfg.YearMin, End: cfg.YearMax}
	aggregator := reconcile.NewCachedAggregator(domain.NewPeriodAggregator(logger), cfg.AggregateCacheSize, metrics)
	rec := reconcile.New(ds, aggregator, clock, logger, metrics, reconcile.Options{
		Center:           domain.Geo{Lat: cfg.CenterLat, Lon: cfg.CenterLon},
		BaseZoom:         cfg.BaseZoom,
		DetailZoom:       cfg.DetailZoom,
		MaxDetailMarkers: cfg.MaxDetailMarkers,
		InitialRange:     bounds,
	})
	if err := rec.Init(ctx, nil); err != nil {
		return err
	}

	decoder := pipeline.NewDecoder(bounds)
	srv := httpadapter.NewServer(cfg.HTTPAddr, rec, decoder, httpadapter.PageConfig{
		Title:        "House price inflation",
		YearMin:      cfg.YearMin,
		YearMax:      cfg.YearMax,
		PollInterval: 2000,
	}, clock, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the event pipeline when Kafka is enabled.
	var reader *kafkaadapter.Reader
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, clock, logger)
		p := pipeline.New(reader, decoder, rec, writer, logger, metrics, cfg.BatchSize)
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		logger.Info("kafka event pipeline disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
