package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hfjohn123/Anthuria-sub001/internal/auth"
	"github.com/hfjohn123/Anthuria-sub001/internal/cache"
	"github.com/hfjohn123/Anthuria-sub001/internal/config"
	"github.com/hfjohn123/Anthuria-sub001/internal/db"
	"github.com/hfjohn123/Anthuria-sub001/internal/health"
	"github.com/hfjohn123/Anthuria-sub001/internal/httpapi"
	"github.com/hfjohn123/Anthuria-sub001/internal/pdpm"
	"github.com/hfjohn123/Anthuria-sub001/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to pdpm.yaml (defaults to $CONFIG_PATH)")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(conf.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Initialize(ctx, conf.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing disabled after initialization failure", zap.Error(err))
	}

	// Built-in tables are validated here; a broken embedded table set panics.
	store := pdpm.NewStore(pdpm.DefaultRegistry(), logger)

	var cfgMgr *config.Manager
	if conf.Tables.Watch {
		cfgMgr = startTableWatcher(ctx, conf, store, logger)
	} else if _, statErr := os.Stat(conf.TablesPath()); statErr == nil {
		reg, err := pdpm.LoadFile(conf.TablesPath())
		if err != nil {
			logger.Fatal("Invalid category table overrides", zap.String("path", conf.TablesPath()), zap.Error(err))
		}
		store.Swap(reg)
	}

	hm := health.NewManager(logger)
	_ = hm.RegisterChecker(health.NewTablesChecker(store))

	var entries httpapi.EntrySource
	var invalidator httpapi.Invalidator
	if conf.Database.Enabled {
		dbClient, err := db.NewClient(ctx, db.Config{
			Driver:         conf.Database.Driver,
			Host:           conf.Database.Host,
			Port:           conf.Database.Port,
			User:           conf.Database.User,
			Password:       conf.Database.Password,
			Database:       conf.Database.Name,
			SSLMode:        conf.Database.SSLMode,
			Path:           conf.Database.Path,
			MaxConnections: conf.Database.MaxConnections,
			MaxLifetime:    conf.Database.MaxLifetime,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize database client", zap.Error(err))
		}
		defer dbClient.Close()
		if conf.Database.Driver == "sqlite3" {
			if err := dbClient.EnsureSchema(ctx); err != nil {
				logger.Fatal("Failed to create sqlite schema", zap.Error(err))
			}
		}
		_ = hm.RegisterChecker(health.NewPingChecker("database", dbClient, true))
		entries = dbClient

		if conf.Redis.Enabled {
			rdb := redis.NewClient(&redis.Options{
				Addr:     conf.Redis.Addr,
				Password: conf.Redis.Password,
				DB:       conf.Redis.DB,
			})
			defer rdb.Close()
			entryCache := cache.New(rdb, dbClient, conf.Redis.TTL, logger)
			_ = hm.RegisterChecker(health.NewPingChecker("entry_cache", entryCache, false))
			entries = entryCache
			invalidator = entryCache
		}
	}

	var limiter *httpapi.RateLimiter
	if conf.RateLimit.RequestsPerSecond > 0 {
		limiter = httpapi.NewRateLimiter(conf.RateLimit.RequestsPerSecond, conf.RateLimit.Burst, logger)
	}
	var tokens *auth.TokenManager
	if conf.Auth.Enabled {
		tokens = auth.NewTokenManager(conf.Auth.SigningKey, conf.Auth.Issuer)
	}

	mux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	httpapi.NewServer(httpapi.Options{
		Tables:    store,
		Entries:   entries,
		Cache:     invalidator,
		Auth:      auth.NewMiddleware(tokens, !conf.Auth.Enabled, logger),
		RateLimit: limiter,
		Logger:    logger,
	}).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(conf.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  conf.HTTP.ReadTimeout,
		WriteTimeout: conf.HTTP.WriteTimeout,
		IdleTimeout:  conf.HTTP.IdleTimeout,
	}
	go func() {
		logger.Info("HTTP server listening",
			zap.Int("port", conf.HTTP.Port),
			zap.String("environment", conf.Environment),
			zap.Bool("auth", conf.Auth.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if cfgMgr != nil {
		_ = cfgMgr.Stop()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

func newLogger(c config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	if strings.EqualFold(c.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// startTableWatcher loads the override file through the config manager and keeps the
// store in sync with it. An invalid file at startup is fatal; later invalid edits are
// rejected by the validator and the live tables stay in place.
func startTableWatcher(ctx context.Context, conf *config.Config, store *pdpm.Store, logger *zap.Logger) *config.Manager {
	mgr, err := config.NewManager(conf.Tables.Dir, logger)
	if err != nil {
		logger.Fatal("Failed to create table watcher", zap.Error(err))
	}
	file := conf.Tables.File
	mgr.RegisterValidator(file, pdpm.ValidateMap)
	mgr.RegisterHandler(file, func(ev config.ChangeEvent) error {
		if ev.Action == config.ActionDelete {
			store.Reset()
			return nil
		}
		return store.Reload(ev.File, ev.Config)
	})
	if conf.Tables.PollInterval > 0 {
		mgr.EnablePolling(conf.Tables.PollInterval)
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := mgr.Start(startCtx); err != nil {
		logger.Fatal("Invalid category table overrides", zap.String("path", conf.TablesPath()), zap.Error(err))
	}
	return mgr
}
