package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"Pierrot/internal/catalog"
	"Pierrot/internal/config"
	"Pierrot/internal/feed"
	"Pierrot/internal/report"
	"Pierrot/pkg/kit"
)

const service = "catalog"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := kit.NewLogger(service, false)
		boot.Fatal("invalid config", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.Debug)
	defer func() { _ = log.Sync() }()

	src, closeSrc, err := feed.Open(feed.Options{
		URL:     cfg.Feed.URL,
		DSN:     cfg.Feed.DSN,
		Table:   cfg.Feed.Table,
		Timeout: cfg.Feed.Timeout,
	})
	if err != nil {
		log.Fatal("feed open failed", zap.Error(err))
	}
	defer func() { _ = closeSrc() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := catalog.NewStore(catalog.StoreDeps{
		Source:        src,
		Normalizer:    catalog.Normalizer{ImageBaseURL: cfg.Images.BaseURL},
		Reporter:      report.NewHandler(log, cfg.Debug),
		Metrics:       catalog.NewMetrics(reg),
		CacheDuration: cfg.Catalog.CacheDuration,
		MaxRetries:    cfg.Feed.MaxRetries,
		BaseDelay:     cfg.Feed.RetryBaseDelay,
		PageSize:      cfg.Catalog.PageSize,
	})

	s := &catalog.Server{
		Store:            store,
		Log:              log,
		FallbackImageURL: cfg.Images.FallbackURL,
		DebugFor:         cfg.DebugFor,
	}

	h := catalog.NewHandler(s, catalog.HTTPDeps{
		Log:                log,
		Service:            service,
		Registry:           reg,
		MetricsEnabled:     cfg.Metrics.Enabled,
		MetricsToken:       cfg.Metrics.Token,
		RateLimitPerMinute: cfg.RateLimit.PerMinute,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting",
		zap.String("app", cfg.AppName),
		zap.Bool("postgres_feed", cfg.Feed.DSN != ""),
		zap.Duration("cache_duration", cfg.Catalog.CacheDuration),
		zap.Duration("refresh_interval", cfg.Feed.RefreshInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Warm the cache so /readyz passes before the first shopper arrives.
		store.Load(gctx)
		return catalog.Refresher{Store: store, Interval: cfg.Feed.RefreshInterval}.Run(gctx)
	})
	g.Go(func() error {
		return kit.RunHTTPServer(gctx, ":"+cfg.Port, h, log)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}
