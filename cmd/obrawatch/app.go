package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"obrawatch/internal/config"
	"obrawatch/internal/engine"
	"obrawatch/internal/history"
	"obrawatch/internal/logging"
	"obrawatch/internal/publish"
	"obrawatch/internal/sources"
	"obrawatch/internal/storage"
	"obrawatch/internal/telemetry"
	"obrawatch/internal/unified"
)

// app holds everything built from one config.
type app struct {
	cfg       *config.Manager
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	engine    *engine.Engine
	store     storage.Store
	publisher *publish.Publisher
	redis     *redis.Client
}

func loadManager(path string) (*config.Manager, error) {
	if path == "" {
		return config.NewStaticManager(config.DefaultConfig()), nil
	}
	mgr, err := config.NewManager(config.ResolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return mgr, nil
}

// newApp wires sources, cache, engine and, with withSideEffects, storage and
// publishing.
func newApp(mgr *config.Manager, withSideEffects bool, logger *slog.Logger) (*app, error) {
	cfg := mgr.Get()
	metrics := telemetry.New()
	a := &app{cfg: mgr, logger: logger, metrics: metrics}

	src := sources.New(cfg.Sources, logging.Component(logger, "sources"), metrics)

	var cache unified.Cache
	switch strings.ToLower(cfg.Unified.CacheBackend) {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = unified.NewRedisCache(a.redis, cfg.Redis.KeyPrefix, cfg.Unified.CacheTTL)
		logger.Info("unified cache backend", "backend", "redis", "addr", cfg.Redis.Addr)
	default:
		cache = unified.NewMemoryCache()
	}
	svc := unified.NewService(src.Alerts, src.Works, unified.Options{
		TTL:     cfg.Unified.CacheTTL,
		Cache:   cache,
		Logger:  logging.Component(logger, "unified"),
		Metrics: metrics,
	})
	detector := history.NewDetector(src.History, logging.Component(logger, "history"), metrics)

	deps := engine.Deps{
		Unified:  svc,
		Detector: detector,
		Logger:   logging.Component(logger, "engine"),
		Metrics:  metrics,
	}
	if withSideEffects {
		store, err := storage.NewStore(cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.store = store
		deps.Store = store
		writer := publish.NewKafkaWriter(cfg.Publish, logging.Component(logger, "publish"))
		a.publisher = publish.NewPublisher(writer, publish.NewFeed(0), cfg.Publish.DedupeWindow, logging.Component(logger, "publish"), metrics)
		deps.Publisher = a.publisher
	}
	a.engine = engine.NewEngine(cfg, deps)
	return a, nil
}

func (a *app) Init(ctx context.Context) error {
	return a.engine.Init(ctx)
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("close publisher", "err", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close storage", "err", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
