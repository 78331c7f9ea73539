package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alorle/guide-resolver/internal/adapter/driven"
	"github.com/alorle/guide-resolver/internal/adapter/driver"
	"github.com/alorle/guide-resolver/internal/application"
	"github.com/alorle/guide-resolver/internal/cache"
	"github.com/alorle/guide-resolver/internal/config"
	"github.com/alorle/guide-resolver/internal/guide"
	"github.com/alorle/guide-resolver/internal/logging"
	port "github.com/alorle/guide-resolver/internal/port/driven"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.etcd.io/bbolt"
)

func main() {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, logCloser := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	logger.Info("starting guide-resolver",
		"address", cfg.HTTP.Address,
		"port", cfg.HTTP.Port,
		"upstream", cfg.Upstream.BaseURL,
		"cache_backend", cfg.Cache.Backend,
		"cache_ttl", cfg.Cache.TTL,
		"log_level", cfg.Log.Level,
		"countries", cfg.CountryTable().Len(),
		"write_timeout", cfg.WriteTimeout(),
	)

	store, storeCloser, err := openCacheStore(cfg)
	if err != nil {
		log.Fatalf("failed to open cache store: %v", err)
	}
	defer func() {
		if err := storeCloser.Close(); err != nil {
			logger.Error("error closing cache store", "error", err)
		}
	}()

	// Create driven adapters
	fetcher, err := driven.NewGuideJSONFetcher(driven.GuideJSONFetcherConfig{
		BaseURL:       cfg.Upstream.BaseURL,
		Countries:     cfg.CountryTable(),
		Client:        &http.Client{Timeout: cfg.Upstream.Timeout},
		RatePerSecond: cfg.Upstream.RatePerSecond,
		Burst:         cfg.Upstream.Burst,
		Breaker:       cfg.Resilience.BreakerConfig(),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to create guide fetcher: %v", err)
	}

	// Create application services
	guides := cache.New[[]guide.ChannelGuide](cache.Config{
		TTL:    cfg.Cache.TTL,
		Store:  store,
		Logger: logger,
	})
	resolver := application.NewGuideResolver(fetcher, guides, application.ResolverConfig{
		FetchTimeout: cfg.Resolver.FetchTimeout,
		Concurrency:  cfg.Resolver.Concurrency,
		Fallback:     guide.NewSynthesizer(cfg.Fallback.Slots, cfg.Fallback.SlotDuration),
	}, logger)
	healthService := application.NewHealthService(store)

	// Create HTTP handlers
	doc, err := driver.LoadOpenAPI()
	if err != nil {
		log.Fatalf("failed to load API description: %v", err)
	}
	validate := driver.NewRequestValidator(doc)
	guideHandler := validate(driver.NewGuideHTTPHandler(resolver))
	healthHandler := driver.NewHealthHTTPHandler(healthService)

	rootMux := http.NewServeMux()
	rootMux.Handle("/api/guides", guideHandler)
	rootMux.Handle("/api/guides/", guideHandler)
	rootMux.Handle("/api/health", healthHandler)
	rootMux.Handle("/api/openapi.json", driver.NewDocumentationHandler(doc))
	rootMux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:      rootMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// openCacheStore returns the configured persistence backend. The memory
// backend has no store; the cache then lives only in process.
func openCacheStore(cfg *config.Config) (port.CacheStore, io.Closer, error) {
	switch cfg.Cache.Backend {
	case config.BackendBolt:
		db, err := bbolt.Open(cfg.Cache.BoltPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
		if err != nil {
			return nil, nil, err
		}
		store, err := driven.NewCacheBoltDBStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db, nil
	case config.BackendRedis:
		store, err := driven.NewCacheRedisStore(cfg.Cache.RedisURL, cfg.Cache.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nopCloser{}, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
