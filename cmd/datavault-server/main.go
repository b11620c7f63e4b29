package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BrandonDHaskell/datavault/server/internal/config"
	"github.com/BrandonDHaskell/datavault/server/internal/db"
	"github.com/BrandonDHaskell/datavault/server/internal/grpcapi"
	"github.com/BrandonDHaskell/datavault/server/internal/httpapi"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/notify"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/service"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/store"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/store/memory"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/store/sqlite"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

func main() {
	cfg, errs := config.Load(os.Getenv(config.FileEnvVar))
	errs = append(errs, cfg.Validate()...)

	logger := newLogger(cfg)
	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("config error", "err", err)
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if cfg.Env == "prod" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", "datavault-server")
}

// ledgerBackend is the store plus the cursor table the relay needs.
type ledgerBackend interface {
	store.LedgerStore
	store.CursorStore
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// Store
	var st ledgerBackend
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store; ledger is lost on restart")
		st = memory.NewLedgerStore()
	default:
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return err
		}
		defer conn.Close()

		writer := db.NewWorker(conn)
		defer writer.Close()

		st = sqlite.NewLedgerStore(conn, writer)
		logger.Info("sqlite store opened", "path", cfg.DBPath)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(reg)

	// Live notifications
	hub := notify.NewHub(logger, nil)

	ledger, err := service.NewLedger(ctx, cfg.Authority, service.Dependencies{
		Store:   st,
		Sink:    notify.Fanout{notify.LogSink{Logger: logger}, hub},
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	logger.Info("ledger ready", "authority", ledger.Authority())

	// Durable relay to brokers
	publishers, err := newPublishers(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, p := range publishers {
			if err := p.Close(); err != nil {
				logger.Warn("publisher close failed", "publisher", p.Name(), "err", err)
			}
		}
	}()

	relay := service.NewRelay(st, st, publishers, service.RelayConfig{Interval: cfg.RelayInterval}, logger, metrics)
	relay.Start(ctx)
	defer relay.Stop()

	// gRPC health
	var hooks []func(types.ChainReport)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcSrv := grpcapi.NewServer(logger)
		hooks = append(hooks, grpcSrv.SetChainStatus)
		go func() {
			logger.Info("grpc listening", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc server error", "err", err)
			}
		}()
		defer grpcSrv.Stop()
	}

	auditor := service.NewChainAuditor(ledger, cfg.ChainVerifyInterval, logger, hooks...)
	if cfg.ChainVerifyInterval > 0 {
		auditor.Start(ctx)
		defer auditor.Stop()
	} else if _, err := auditor.Check(ctx); err != nil {
		logger.Warn("startup chain verification failed", "err", err)
	}

	// HTTP
	auth := httpapi.NewAuthenticator(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		logger.Warn("no jwt secret configured; trusting principal header", "header", httpapi.PrincipalHeader)
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:  logger,
		Addr:    cfg.HTTPAddr,
		Ledger:  ledger,
		Auth:    auth,
		Stream:  hub,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newPublishers(cfg config.Config) ([]notify.Publisher, error) {
	var out []notify.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		p, err := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if cfg.RedisURL != "" {
		client, err := notify.ConnectRedis(cfg.RedisURL)
		if err != nil {
			for _, p := range out {
				_ = p.Close()
			}
			return nil, err
		}
		out = append(out, notify.NewRedisPublisher(client, cfg.RedisStream, cfg.RedisStreamMax))
	}
	return out, nil
}
