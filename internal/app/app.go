// Package app wires the store, lock, notifier, scheduler and services
// from a Config. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/nadmax/wordsprint/internal/alert"
	"github.com/nadmax/wordsprint/internal/clock"
	"github.com/nadmax/wordsprint/internal/config"
	"github.com/nadmax/wordsprint/internal/goal"
	"github.com/nadmax/wordsprint/internal/lock"
	"github.com/nadmax/wordsprint/internal/notify"
	"github.com/nadmax/wordsprint/internal/queue"
	"github.com/nadmax/wordsprint/internal/repository"
	"github.com/nadmax/wordsprint/internal/scheduler"
	"github.com/nadmax/wordsprint/internal/sprint"
	"github.com/nadmax/wordsprint/internal/task"
	"go.uber.org/zap"
)

type App struct {
	Config    *config.Config
	Store     repository.Store
	Scheduler *scheduler.Scheduler
	Sprints   *sprint.Service
	Goals     *goal.Service
	Clock     clock.Clock
	Logger    *zap.Logger

	outbox *queue.Queue
}

// New connects to the configured backends. The caller owns the returned
// App and must Close it.
func New(cfg *config.Config, clk clock.Clock, logger *zap.Logger) (*App, error) {
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Store: store, Clock: clk, Logger: logger}

	var (
		locker   lock.Locker = lock.NewLocal()
		notifier notify.Notifier
	)
	if cfg.RedisAddr != "" {
		q, err := queue.NewQueue(cfg.RedisAddr, cfg.AnnounceList)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.outbox = q
		locker = lock.NewRedis(q.Client(), cfg.LockTTL)
		notifier = notify.Multi{q, notify.NewLog(logger)}
		logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr), zap.String("list", cfg.AnnounceList))
	} else {
		notifier = notify.NewLog(logger)
	}

	a.Scheduler = scheduler.New(cfg.WorkerID, store, clk, logger)
	a.Scheduler.SetPollInterval(cfg.PollInterval)
	if cfg.AlertsEnabled() {
		a.Scheduler.SetAlerter(alert.NewEmail(alert.EmailConfig{
			APIKey:   cfg.SendgridKey,
			FromName: cfg.AlertFromName,
			From:     cfg.AlertFrom,
			To:       cfg.AlertTo,
			Cooldown: cfg.AlertCooldown,
		}, logger))
	}

	a.Goals = goal.NewService(store, clk, logger)
	a.Sprints = sprint.NewService(store, a.Scheduler, notifier, locker, clk, logger)
	a.Sprints.SetGoals(a.Goals)
	a.Sprints.SetRetention(cfg.RCRetention)

	a.Scheduler.RegisterSprintJobs(a.Sprints)
	a.Scheduler.RegisterGoalJobs(a.Goals)

	return a, nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store, data will not survive a restart")
		return repository.NewMemoryStore(), nil
	case config.StorePostgres:
		pg, err := repository.NewPostgresStore(cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := pg.Migrate(); err != nil {
				_ = pg.Close()
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// SetupRecurring replaces the goal reset and stale sprint collection
// tasks so that each exists exactly once with the configured interval.
func (a *App) SetupRecurring(ctx context.Context) error {
	now := a.Clock.Now()
	if err := a.Scheduler.SetupRecurring(ctx, task.GoalReset{}, a.Config.GoalInterval, now.Unix()); err != nil {
		return err
	}
	return a.Scheduler.SetupRecurring(ctx, task.SprintRubbishCollection{}, a.Config.RCInterval, now.Add(a.Config.RCInterval).Unix())
}

func (a *App) Close() error {
	var errs []error
	if a.outbox != nil {
		if err := a.outbox.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis client: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	return errors.Join(errs...)
}
