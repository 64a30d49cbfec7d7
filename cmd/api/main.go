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

	httpadapter "github.com/kirillkom/devdocs-retriever/internal/adapters/http"
	"github.com/kirillkom/devdocs-retriever/internal/bootstrap"
	"github.com/kirillkom/devdocs-retriever/internal/config"
	"github.com/kirillkom/devdocs-retriever/internal/observability/logging"
	"github.com/kirillkom/devdocs-retriever/internal/observability/metrics"
)

const serviceName = "retriever-api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    serviceName,
		Logger:     logger,
		Registerer: httpMetrics.Registerer(),
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, app.Retriever, httpMetrics).WithReadiness(app.Readiness).Handler()
	writeTimeout := cfg.RetrievalTimeout + 10*time.Second
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
