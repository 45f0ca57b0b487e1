package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iklevente/crewdo-backend-sub001/internal/app/registry"
	"github.com/iklevente/crewdo-backend-sub001/internal/app/server"
	"github.com/iklevente/crewdo-backend-sub001/internal/app/worker"
	"github.com/iklevente/crewdo-backend-sub001/internal/config"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/services"
	"github.com/iklevente/crewdo-backend-sub001/internal/platform/logger"
	"github.com/iklevente/crewdo-backend-sub001/internal/platform/telemetry"
	"github.com/iklevente/crewdo-backend-sub001/internal/plugins/postgres"
	redisPlugin "github.com/iklevente/crewdo-backend-sub001/internal/plugins/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	// Infra
	var pdb *sql.DB
	if pdb, err = postgres.New(ctx, *cfg.Postgres); err != nil {
		log.Error("postgres connection failed", "err", err)
		return
	}
	log.Info("postgres connected")
	var rdb *redis.Client
	if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL)
		return
	}
	log.Info("redis connected")

	// Adapters
	memberRepo := postgres.NewMembershipRepo(pdb)
	presenceRepo := postgres.NewPresenceRepo(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	notifRepo := postgres.NewNotificationRepo(pdb)
	txManager := postgres.NewTxManager(pdb)
	roster := redisPlugin.NewRedisChannelRoster(rdb, cfg.Hub.RosterWindow)
	msgQueue := redisPlugin.NewRedisMessageQueue(log, rdb)

	// Core services
	hub := registry.New()
	pending := services.NewPendingBuffer(cfg.Hub.PendingBufferCap)
	dispatcher := services.NewDispatcher(log, hub, pending)
	tokenSvc := services.NewTokenService(cfg.SecretToken, cfg.Service.Name, cfg.Hub.TokenTTL)
	presenceSvc := services.NewPresenceService(log, presenceRepo, hub, dispatcher, roster)
	roomSvc := services.NewRoomService(log, hub, dispatcher, memberRepo, roster, cfg.Hub.RosterTTL)
	msgSvc := services.NewMessageService(log, msgQueue, hub, dispatcher, msgRepo, memberRepo, notifRepo, txManager)
	callSvc := services.NewCallService(log, hub, dispatcher)
	managerSvc := services.NewManagerService(log, hub, dispatcher, presenceSvc, roomSvc, callSvc, msgSvc, roster)

	wrkr := worker.NewChannelWorker(log, msgQueue, msgSvc, cfg.Worker.MessageGroup)
	hub.RunWorker(wrkr.Run)

	// Server: the dispatcher becomes ready once the transport is wired,
	// flushing dispatches captured during bootstrap.
	srv := server.NewServer(log, *cfg, managerSvc, tokenSvc)
	dispatcher.SetReady(ctx)
	if err := srv.Start(); err != nil {
		log.Error("server stopped", "err", err)
	}
}
