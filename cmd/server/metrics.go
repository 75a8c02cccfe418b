package main

import (
	"context"
	"time"

	"github.com/nadmax/wordsprint/internal/clock"
	"github.com/nadmax/wordsprint/internal/metrics"
	"github.com/nadmax/wordsprint/internal/repository"
	"go.uber.org/zap"
)

const metricsInterval = 10 * time.Second

// startMetricsCollector refreshes the pending task gauges this process
// exports. The worker updates its own copy after every poll.
func startMetricsCollector(ctx context.Context, store repository.TaskRepository, clk clock.Clock, logger *zap.Logger) {
	ticker := clk.NewTicker(metricsInterval)
	defer ticker.Stop()

	updateTaskMetrics(ctx, store, clk, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateTaskMetrics(ctx, store, clk, logger)
		}
	}
}

func updateTaskMetrics(ctx context.Context, store repository.TaskRepository, clk clock.Clock, logger *zap.Logger) {
	stats, err := store.TaskStats(ctx, clock.Unix(clk))
	if err != nil {
		logger.Warn("failed to get task stats for metrics", zap.Error(err))
		return
	}

	metrics.UpdateTaskGauges(stats)
}
