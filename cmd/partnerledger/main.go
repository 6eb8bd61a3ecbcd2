// Package main запускает HTTP-сервер сервиса партнёрского учёта.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/partner-ledger/internal/cache"
	"github.com/mmeshcher/partner-ledger/internal/catalog"
	"github.com/mmeshcher/partner-ledger/internal/config"
	"github.com/mmeshcher/partner-ledger/internal/gateway"
	"github.com/mmeshcher/partner-ledger/internal/gateway/blackcat"
	"github.com/mmeshcher/partner-ledger/internal/gateway/buckpay"
	"github.com/mmeshcher/partner-ledger/internal/handler"
	"github.com/mmeshcher/partner-ledger/internal/middleware"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/repository"
	"github.com/mmeshcher/partner-ledger/internal/service"
)

// store служит хранилищем и резервным источником каталога.
type store interface {
	service.Repository
	catalog.Source
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo store
	if cfg.MemoryStore {
		sugar.Warn("using in-memory store, data is lost on restart")
		repo = repository.NewMemoryRepository()
	} else {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pg
	}

	sources := []catalog.Source{}
	if cfg.CatalogAddress != "" {
		sources = append(sources, catalog.NewClient(cfg.CatalogAddress))
	}
	sources = append(sources, repo)
	snapshot := catalog.NewSnapshot(logger.Named("catalog"), sources...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := service.Options{
		OffsetMinutes: cfg.OffsetMinutes,
		Rate:          cfg.CommissionRate,
		Logger:        logger.Named("service"),
	}
	if cfg.RedisAddress != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddress)
		if err != nil {
			sugar.Warnw("report cache disabled", "error", err.Error())
		} else {
			rc := cache.New(client, cfg.ReportCacheTTL)
			defer rc.Close()
			opts.Cache = rc
		}
	}

	registry := gateway.NewRegistry(buckpay.New(), blackcat.New())
	svc := service.NewService(repo, registry, snapshot, opts)
	defer svc.Close()

	secrets := handler.WebhookSecrets{
		model.GatewayBuckpay:  middleware.NewWebhookSecret(cfg.SecretHeader, cfg.BuckpaySecret),
		model.GatewayBlackcat: middleware.NewWebhookSecret(cfg.SecretHeader, cfg.BlackcatSecret),
	}
	for g, s := range secrets {
		if !s.Enabled() {
			sugar.Warnw("webhook secret not configured", "gateway", string(g))
		}
	}

	h := handler.NewHandler(svc, logger, secrets)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Фоновое обновление каталога сайтов
	g.Go(func() error {
		if err := snapshot.Refresh(ctx); err != nil {
			sugar.Warnw("initial catalog load failed", "error", err.Error())
		}
		snapshot.Run(ctx, cfg.CatalogRefreshInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting partner ledger server",
			"addr", cfg.RunAddress,
			"tz_offset_minutes", cfg.OffsetMinutes,
			"commission_rate", cfg.CommissionRate.String(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
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
