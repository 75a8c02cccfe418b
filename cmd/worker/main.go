package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nadmax/wordsprint/internal/app"
	"github.com/nadmax/wordsprint/internal/clock"
	"github.com/nadmax/wordsprint/internal/config"
	"github.com/nadmax/wordsprint/internal/httputil"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	cfg.BindFlags(pflag.CommandLine)
	pflag.Parse()

	logger := config.MustInitLogger(cfg.Env, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	a, err := app.New(cfg, clock.Real(), logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close worker resources", zap.Error(err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.SetupRecurring(ctx); err != nil {
		logger.Fatal("failed to set up recurring tasks", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newOpsRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener stopped", zap.Error(err))
		}
	}()

	logger.Info("worker starting",
		zap.String("worker_id", cfg.WorkerID),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.String("port", cfg.Port),
	)

	done := make(chan struct{})
	go func() {
		a.Scheduler.Start(ctx)
		close(done)
	}()

	<-ctx.Done()
	logger.Info("shutting down worker")
	a.Scheduler.Stop()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newOpsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
