// Command searchd serves the gazette-announcement search API over the
// prebuilt row store and index files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tradegazette/gsearch/internal/docstore"
	"github.com/tradegazette/gsearch/internal/index"
	"github.com/tradegazette/gsearch/internal/lookup"
	"github.com/tradegazette/gsearch/internal/search"
	"github.com/tradegazette/gsearch/internal/server"
	"github.com/tradegazette/gsearch/pkg/config"
	"github.com/tradegazette/gsearch/pkg/health"
	"github.com/tradegazette/gsearch/pkg/logger"
	"github.com/tradegazette/gsearch/pkg/metrics"
	"github.com/tradegazette/gsearch/pkg/middleware"
	pkgredis "github.com/tradegazette/gsearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("searchd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	// The row store opens lazily on first use; a missing file at boot is a
	// 503 on the search path, not a crash.
	docs := docstore.NewProvider(cfg.Paths.DocmetaBin)
	defer docs.Close()
	idx := index.NewStore(cfg.Paths.ShardsRoot, cfg.Paths.IndexRoot, cfg.Search.MonoCacheSize)
	planner := search.NewPlanner(docs, idx, cfg.Search, m)

	table, err := lookup.Load(cfg.Paths.LookupRoot)
	if err != nil {
		log.Error("loading lookup tables", "error", err)
		os.Exit(1)
	}

	var cache *server.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, serving without result cache", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer redisClient.Close()
			cache = server.NewQueryCache(redisClient, cfg.Redis, m)
		}
	}

	checker := health.NewChecker()
	checker.Register("docstore", func(ctx context.Context) health.ComponentHealth {
		if _, err := docs.Store(); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d rows", docs.RowCount())}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				// The cache is optional, so a dead Redis only degrades.
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	handler := server.NewHandler(planner, cache, table, cfg.Paths.LookupRoot, m)
	mux := http.NewServeMux()
	handler.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var root http.Handler = mux
	root = middleware.Timeout(cfg.Server.WriteTimeout)(root)
	if m != nil {
		root = middleware.Metrics(m)(root)
	}
	root = middleware.RequestID(root)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			"addr", srv.Addr,
			"docmeta", cfg.Paths.DocmetaBin,
			"shards", cfg.Paths.ShardsRoot,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}
	if metricsShutdown != nil {
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown", "error", err)
		}
	}
	log.Info("server stopped")
}
