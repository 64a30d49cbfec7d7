package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/devdocs-retriever/internal/adapters/worker"
	"github.com/kirillkom/devdocs-retriever/internal/bootstrap"
	"github.com/kirillkom/devdocs-retriever/internal/config"
	"github.com/kirillkom/devdocs-retriever/internal/observability/logging"
	"github.com/kirillkom/devdocs-retriever/internal/observability/metrics"
)

const serviceName = "retriever-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    serviceName,
		Logger:     logger,
		Registerer: workerMetrics.Registerer(),
		WithQueue:  true,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()

	handler := worker.NewRetrievalHandler(serviceName, app.Retriever, workerMetrics, logger)
	if err := app.Queue.Serve(ctx, handler.Handle); err != nil {
		logger.Error("worker_serve_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker_metrics_shutdown_failed", "error", err)
	}
}
