package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/focusroom/presence-service/config"
	"github.com/focusroom/presence-service/internal/postgres"
	"github.com/focusroom/presence-service/internal/queue"
	"github.com/focusroom/presence-service/internal/reconcile"
	"github.com/focusroom/presence-service/internal/rtstore"
	"github.com/focusroom/presence-service/internal/service"
	grpcx "github.com/focusroom/presence-service/internal/transport/grpc"
	httpx "github.com/focusroom/presence-service/internal/transport/http"
	"github.com/focusroom/presence-service/internal/transport/ws"
	"github.com/focusroom/presence-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting presence-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres (durable store) ---
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	taskRepo := postgres.NewTaskRepository(db.Pool)
	historyRepo := postgres.NewHistoryRepository(db.Pool)
	statsRepo := postgres.NewStatsRepository(db.Pool)

	// --- shared mutable store ---
	// redis.url пуст — однопроцессный in-memory режим (dev, тесты)
	var store rtstore.Store
	if cfg.Redis.URL != "" {
		rs, err := rtstore.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatalf("redis store: %v", err)
		}
		store = rs
	} else {
		store = rtstore.NewMemory()
	}
	defer func() { _ = store.Close() }()

	// --- queue (reconciliation) ---
	var jobClient queue.Client
	var jobServer queue.Server
	var memQueue *queue.Memory
	if cfg.Redis.URL != "" {
		ac, err := queue.NewAsynqClient(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("queue client: %v", err)
		}
		as, err := queue.NewAsynqServer(cfg.Redis.URL, 4)
		if err != nil {
			log.Fatalf("queue server: %v", err)
		}
		jobClient, jobServer = ac, as
		defer func() { _ = ac.Close() }()
	} else {
		memQueue = queue.NewMemory()
		jobClient, jobServer = memQueue, memQueue
	}

	// --- services ---
	sessions := rtstore.NewSessionRegistry()
	presenceSvc := service.NewPresenceService(store)
	broadcastSvc := service.NewBroadcastService(store, cfg.EventTTL(), cfg.FlyingMessageTTL())
	taskSvc := service.NewTaskService(store, broadcastSvc, jobClient, cfg.HeartbeatInterval())

	// --- reconciliation worker ---
	aggregates := reconcile.NewAggregates()
	durable := reconcile.NewPostgresDurable(taskRepo, historyRepo, statsRepo)
	worker := reconcile.NewWorker(durable, aggregates, broadcastSvc)
	worker.Register(jobServer)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	go func() {
		if err := jobServer.Run(workerCtx); err != nil {
			slog.Error("queue server stopped", "err", err)
		}
	}()

	// --- WS Hub & Server ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, store, presenceSvc, sessions)

	// --- HTTP ---
	handler := httpx.NewHandler(presenceSvc, taskSvc, broadcastSvc, historyRepo, statsRepo, aggregates, sessions)
	router := httpx.NewRouter(handler, presenceSvc, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- gRPC (health) ---
	grpcSrv := grpcx.NewServer(cfg.GRPCRequestTimeout())

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		grpcSrv.SetServing(true)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcSrv.GracefulStop()
	_ = httpSrv.Shutdown(ctxShutdown)
	workerCancel()
	if memQueue != nil {
		_ = memQueue.Close()
	}
	slog.Info("stopped")
}
