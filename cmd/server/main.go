package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/core/services"
	"github.com/davshaw/gengate/internal/gateway"
	"github.com/davshaw/gengate/internal/httpclient"
	"github.com/davshaw/gengate/internal/platform/logger"
	"github.com/davshaw/gengate/internal/platform/otel"
	"github.com/davshaw/gengate/internal/providers"
	"github.com/davshaw/gengate/internal/server"
	"github.com/davshaw/gengate/internal/storage"
	"github.com/davshaw/gengate/internal/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	logger.Initialize(logger.DefaultConfig())
	defer logger.Sync()
	log := logger.Get()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	shutdownTracer, err := otel.InitTracer("gengate", log, os.Stdout)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	repo, err := sqlite.NewSQLiteStorage(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}

	client := httpclient.New(60 * time.Second)
	resolver := storage.NewResolver(cfg.Storage, client)

	routerService := services.NewRouterService(repo)
	ledger := services.NewLedgerService(repo)
	videoService := providers.NewService(routerService, ledger, resolver, cfg.Providers, client)

	commander := gateway.NewCommander(cfg.Gateway, client)
	correlator := gateway.NewCorrelator(repo, resolver, commander)
	pool := gateway.NewPool(repo, cfg.Gateway, correlator)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The video path works without the pool, so a cold start with no
	// connectable accounts is not fatal.
	if err := pool.Initialize(ctx); err != nil {
		log.Warn("Gateway pool started without connections", zap.Error(err))
	}

	taskService := gateway.NewTaskService(repo, pool, commander)

	srv := server.New(cfg, log, repo, videoService, taskService, pool)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}

	pool.Shutdown()

	if err := repo.Close(); err != nil {
		log.Error("Database close failed", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("Tracer shutdown failed", zap.Error(err))
	}
}
