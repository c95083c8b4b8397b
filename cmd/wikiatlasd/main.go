// Command wikiatlasd serves the wikiatlas HTTP API: map-oriented Wikipedia
// search backed by the response/detail caches and the durable geographic
// coverage cache.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mkorolev/wikiatlas/cache"
	"github.com/mkorolev/wikiatlas/geocache"
	"github.com/mkorolev/wikiatlas/internal/config"
	"github.com/mkorolev/wikiatlas/internal/server"
	"github.com/mkorolev/wikiatlas/metrics/prom"
	"github.com/mkorolev/wikiatlas/policy/twoq"
	"github.com/mkorolev/wikiatlas/wiki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Error().Err(err).Msg("configuration error")
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	// Both in-memory caches live for the process lifetime and are closed
	// on shutdown, which also stops their periodic sweeps.
	//
	// The response cache uses 2Q: rapid map panning produces scan-like
	// bursts of one-shot keys that plain LRU lets pollute the cache.
	// Single shard, so the 2Q queue sizes apply to the whole capacity.
	respCache := cache.New[string, []wiki.Article](cache.Options[string, []wiki.Article]{
		Capacity: cfg.Cache.ResponseCapacity,
		Shards:   1,
		Policy: twoq.New[string, []wiki.Article](
			cfg.Cache.ResponseCapacity/4,
			cfg.Cache.ResponseCapacity/2,
		),
		DefaultTTL:    cfg.Cache.ResponseTTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Metrics:       prom.New(prometheus.DefaultRegisterer, "wikiatlas", "response_cache", nil),
	})
	defer respCache.Close()

	// Single shard so eviction tracks the least-recently-used batch across
	// the whole cache, not per shard.
	detailCache := cache.New[string, []wiki.Article](cache.Options[string, []wiki.Article]{
		Capacity:      cfg.Cache.DetailCapacity,
		Shards:        1,
		DefaultTTL:    cfg.Cache.DetailTTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Metrics:       prom.New(prometheus.DefaultRegisterer, "wikiatlas", "detail_cache", nil),
	})
	defer detailCache.Close()

	var store geocache.BlobStore = geocache.Null{}
	if cfg.Cache.GeoStorePath != "" {
		store = geocache.NewFileStore(cfg.Cache.GeoStorePath)
	}
	coverage := geocache.New[wiki.Article](store, geocache.Options{
		TTL:        cfg.Cache.GeoTTL,
		MaxEntries: cfg.Cache.GeoMaxEntries,
	}, wiki.ArticleLocation, log)

	client := wiki.NewClient(wiki.Config{
		BaseURL:     cfg.Wikipedia.BaseURL,
		UserAgent:   cfg.Wikipedia.UserAgent,
		Timeout:     cfg.Wikipedia.Timeout,
		MaxAttempts: cfg.Wikipedia.MaxAttempts,
		RateLimit:   rate.Limit(cfg.Wikipedia.RateLimit),
		RateBurst:   cfg.Wikipedia.RateBurst,
		Logger:      log,
	})

	svc := wiki.NewService(client, respCache, detailCache, coverage, log)

	srv := server.New(svc, respCache, detailCache, coverage, log, server.Options{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
	})

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("wikiatlas listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out = os.Stderr
	logger := zerolog.New(out)
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
