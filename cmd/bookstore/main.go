// Package main запускает HTTP-сервер книжного магазина.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bookstore/internal/config"
	"github.com/mmeshcher/bookstore/internal/events"
	"github.com/mmeshcher/bookstore/internal/handler"
	"github.com/mmeshcher/bookstore/internal/metrics"
	"github.com/mmeshcher/bookstore/internal/middleware"
	"github.com/mmeshcher/bookstore/internal/repository"
	"github.com/mmeshcher/bookstore/internal/service"
)

const relayInterval = time.Second

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	// События о покупках копятся в outbox, только если есть куда их отправлять.
	outbox := repository.WithOutbox(len(cfg.KafkaBrokers) > 0)

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI, outbox)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pg
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		repo = repository.NewMemoryRepository(outbox)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []service.Option{
		service.WithAdmins(cfg.AdminUsers...),
		service.WithMetrics(m),
	}

	var svc *service.Service
	if pub := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic); pub != nil {
		defer pub.Close()
		svc = service.NewService(repo, pub, logger, opts...)
	} else {
		svc = service.NewService(repo, nil, logger, opts...)
	}
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret, cfg.TokenTTL)
	h := handler.NewHandler(svc, logger, authMiddleware, m)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Перенос событий о покупках из outbox в Kafka
	g.Go(func() error {
		svc.RunEventRelay(ctx, relayInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting bookstore server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}
