// Package main запускает HTTP-сервер мастера бронирования уборки.
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

	"github.com/mmeshcher/cleanbook/internal/analytics"
	"github.com/mmeshcher/cleanbook/internal/bookingapi"
	"github.com/mmeshcher/cleanbook/internal/catalog"
	"github.com/mmeshcher/cleanbook/internal/config"
	"github.com/mmeshcher/cleanbook/internal/handler"
	"github.com/mmeshcher/cleanbook/internal/middleware"
	"github.com/mmeshcher/cleanbook/internal/repository"
	"github.com/mmeshcher/cleanbook/internal/service"
	"github.com/mmeshcher/cleanbook/internal/session"
	"github.com/mmeshcher/cleanbook/internal/wizard"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalogs := catalog.NewProvider(catalog.FileLoader(cfg.CatalogPath))
	if _, err := catalogs.Get(ctx); err != nil {
		// Мастер отдаст 503 с предложением повторить, пока каталог не загрузится.
		sugar.Warnw("catalog not loaded at startup", "path", cfg.CatalogPath, "error", err.Error())
	}

	var (
		creator wizard.BookingCreator
		opts    []service.Option
	)
	if cfg.BookingAPIAddress != "" {
		creator = bookingapi.NewClient(cfg.BookingAPIAddress)
		sugar.Infow("using remote booking API", "addr", cfg.BookingAPIAddress)
	} else {
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		creator = repo
		opts = append(opts, service.WithBookingReader(repo))
	}

	var persister session.Persister
	if cfg.RedisAddress != "" {
		client, err := session.NewRedisClient(ctx, cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer client.Close()
		persister = session.NewRedisPersister(client, cfg.SessionTTL)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sink := analytics.Multi(analytics.NewPrometheusSink(registry), analytics.NewLogSink(logger))

	sessions := session.NewManager(cfg.SessionTTL, persister, logger)

	opts = append(opts, service.WithAnalytics(sink), service.WithLogger(logger))
	svc := service.NewService(catalogs, sessions, creator, opts...)
	defer svc.Close()

	cookies := middleware.NewSessionCookies(cfg.SessionSecret, cfg.SessionTTL, cfg.SecureCookies)
	limiter := middleware.NewRateLimiter(cfg.SubmitRatePerMinute, logger)
	h := handler.NewHandler(svc, logger, cookies, limiter, registry)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фонового удаления брошенных черновиков
	g.Go(func() error {
		sessions.StartJanitor(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting cleanbook server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
