package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/madddiyarn/regulus/internal/api"
	"github.com/madddiyarn/regulus/internal/config"
	"github.com/madddiyarn/regulus/internal/conjunction"
	rerrors "github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/health"
	"github.com/madddiyarn/regulus/internal/metrics"
	"github.com/madddiyarn/regulus/internal/propagation"
	"github.com/madddiyarn/regulus/internal/store"
	"github.com/madddiyarn/regulus/internal/tle"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	loader, err := config.NewLoader(os.Getenv("REGULUS_CONFIG"), logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	logger.Info("config loaded",
		"addr", cfg.Server.Addr,
		"spool_dir", cfg.Catalog.SpoolDir,
		"db_path", cfg.Store.Path,
		"workers", cfg.Detection.Workers,
		"samples", cfg.Detection.Samples,
	)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, err := store.Open(ctx, cfg.Store.Path, logger)
	if err != nil {
		logger.Error("failed to open conjunction store", "error", err)
		os.Exit(1)
	}
	defer events.Close()

	catalog := tle.NewCatalog()
	spool := tle.NewSpool(cfg.Catalog.SpoolDir)
	sgp4 := propagation.NewSGP4()
	reloadCatalog(logger, spool, catalog, sgp4)
	prometheus.MustRegister(metrics.CatalogCollectors(catalog)...)

	detector, err := conjunction.NewDetector(cfg.Conjunction(), catalog, sgp4, events, logger,
		conjunction.WithRecorder(metrics.Detection{}))
	if err != nil {
		logger.Error("invalid detection configuration", "error", err)
		os.Exit(1)
	}

	loader.OnChange(func(c *config.Config) {
		if err := detector.Reconfigure(c.Conjunction()); err != nil {
			logger.Warn("detection config rejected, keeping previous settings", "error", err)
		}
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		logger.Warn("config hot reload disabled", "error", err)
	} else {
		defer stopWatch()
	}

	readiness := health.NewReadiness(2 * time.Second)
	readiness.Add("catalog", func(context.Context) error {
		if catalog.Len() == 0 {
			return rerrors.Unavailablef("no element sets loaded from %s", spool.Dir())
		}
		return nil
	})
	readiness.Add("store", events.Ping)

	srv := api.NewServer(api.Config{
		Addr:          cfg.Server.Addr,
		TrustProxy:    cfg.Server.TrustProxy,
		DetectTimeout: cfg.Server.DetectTimeout,

		MaxDetections:          cfg.Server.MaxDetections,
		MaxDetectionsPerClient: cfg.Server.MaxDetectionsPerClient,
	}, logger, api.Deps{
		Detector:   detector,
		Events:     events,
		Catalog:    catalog,
		Readiness:  readiness,
		StaleAfter: func() time.Duration { return detector.Config().StaleAfter },
	})

	// Pick up new spool snapshots.
	go func() {
		ticker := time.NewTicker(cfg.Catalog.ReloadInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				reloadCatalog(logger, spool, catalog, sgp4)
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfg.Store.ExpireAfter > 0 {
		go sweepExpired(ctx, logger, events, cfg.Store.SweepInterval, cfg.Store.ExpireAfter)
	}

	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr, "catalog_objects", catalog.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("REGULUS_LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// reloadCatalog loads the newest spool snapshot when it is newer than the
// one being served. Failures keep the current catalog.
func reloadCatalog(logger *slog.Logger, spool *tle.Spool, catalog *tle.Catalog, sgp4 *propagation.SGP4) {
	latest, err := spool.LatestTimestamp()
	if err != nil {
		logger.Warn("failed to list catalog spool", "dir", spool.Dir(), "error", err)
		return
	}
	if latest.IsZero() {
		if catalog.Len() == 0 {
			logger.Info("catalog spool is empty, starting without element sets", "dir", spool.Dir())
		}
		return
	}
	if cur := catalog.Dataset(); cur != nil && !latest.After(cur.LoadedAt) {
		return
	}

	ds, err := spool.LoadLatest(logger)
	if err != nil {
		logger.Warn("failed to load catalog snapshot", "dir", spool.Dir(), "error", err)
		return
	}
	catalog.Set(ds)
	sgp4.Forget()
	logger.Info("catalog loaded",
		"source", ds.Source,
		"objects", catalog.Len(),
		"epoch_min", ds.EpochRange.Min.Format(time.RFC3339),
		"epoch_max", ds.EpochRange.Max.Format(time.RFC3339),
	)
}

func sweepExpired(ctx context.Context, logger *slog.Logger, events *store.Store, every, keep time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := events.ExpireBefore(ctx, time.Now().Add(-keep)); err != nil {
				logger.Warn("expiry sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
