// Package main запускает HTTP-сервер сервиса clientbook.
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

	"github.com/mmeshcher/clientbook/internal/archive"
	"github.com/mmeshcher/clientbook/internal/config"
	"github.com/mmeshcher/clientbook/internal/dashboard"
	"github.com/mmeshcher/clientbook/internal/handler"
	"github.com/mmeshcher/clientbook/internal/metrics"
	"github.com/mmeshcher/clientbook/internal/middleware"
	"github.com/mmeshcher/clientbook/internal/repository"
	"github.com/mmeshcher/clientbook/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(cfg)
	if err != nil {
		sugar.Fatalw("storage initialization error", "backend", cfg.Backend(), "error", err.Error())
	}
	sugar.Infow("storage ready", "backend", cfg.Backend())

	recorder := metrics.NewRecorder()
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(recorder),
	}

	if cfg.DashboardURL != "" {
		client := dashboard.NewClient(cfg.DashboardURL,
			dashboard.WithToken(cfg.DashboardToken),
			dashboard.WithLogger(logger),
		)
		opts = append(opts, service.WithDashboard(client))
	}

	switch {
	case cfg.ExportBucket != "":
		arch, err := archive.NewS3Archiver(ctx, archive.S3Config{
			Bucket:   cfg.ExportBucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			sugar.Fatalw("export archive initialization error", "bucket", cfg.ExportBucket, "error", err.Error())
		}
		opts = append(opts, service.WithArchiver(arch))
	case cfg.ExportDir != "":
		opts = append(opts, service.WithArchiver(archive.NewDirArchiver(cfg.ExportDir)))
	}

	svc := service.NewService(repo, opts...)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.APIToken)
	if !authMiddleware.Enabled() {
		sugar.Warn("API_TOKEN is not set, /api is open")
	}
	h := handler.NewHandler(svc, logger, authMiddleware, handler.WithMetrics(recorder.Handler(), recorder.Middleware))

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая отправка данных во внешнюю панель
	g.Go(func() error {
		svc.StartDashboardSync(ctx, cfg.DashboardInterval)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting clientbook server", "addr", cfg.RunAddress)
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
		sugar.Errorw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func openRepository(cfg *config.Config) (service.Repository, error) {
	switch cfg.Backend() {
	case config.BackendPostgres:
		return repository.NewPostgresRepository(cfg.DatabaseURI)
	case config.BackendSQLite:
		return repository.NewSQLiteRepository(cfg.SQLitePath)
	default:
		return repository.NewMemoryRepository(), nil
	}
}
