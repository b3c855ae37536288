// Package main provides the game server binary serving the REST API and the
// realtime websocket endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rpssl/gameserver/internal/config"
	"github.com/rpssl/gameserver/internal/game/lobby"
	"github.com/rpssl/gameserver/internal/game/play"
	"github.com/rpssl/gameserver/internal/game/random"
	"github.com/rpssl/gameserver/internal/game/store"
	"github.com/rpssl/gameserver/internal/observability"
	"github.com/rpssl/gameserver/internal/server"
	"github.com/rpssl/gameserver/internal/storage/postgres"
	"github.com/rpssl/gameserver/internal/transport/httpserver"
	"github.com/rpssl/gameserver/internal/transport/ws"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	lifecycle := server.NewLifecycle(logger)

	var sessionStore store.Store
	switch cfg.Game.Backend {
	case config.BackendPostgres:
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		sessionStore = postgres.NewStore(pool.DB())

		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				for {
					time.Sleep(30 * time.Second)
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			},
			StopFn: func() {
				pool.Close()
			},
		})
	default:
		sessionStore = store.NewMemoryStore()
		logger.Info("using in-memory session store")
	}

	randomClient := random.NewClient(random.Config{
		BaseURL:    cfg.Random.BaseURL,
		Timeout:    cfg.Random.Timeout,
		MaxRetries: cfg.Random.MaxRetries,
	}, logger)

	hub := ws.NewHub(metrics, logger)
	games := play.NewManager(sessionStore, hub, randomClient, metrics, logger)
	coordinator := lobby.NewCoordinator(
		sessionStore, games, hub, metrics, logger,
		cfg.Game.DisconnectGracePeriod,
	)
	handler := ws.NewHandler(coordinator, games, hub, logger)
	hub.Bind(handler, coordinator)

	httpSrv := httpserver.NewServer(cfg, hub, coordinator, games, registry, logger)
	lifecycle.Add("http", httpSrv)

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("backend", cfg.Game.Backend),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
