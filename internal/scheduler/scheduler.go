// Package scheduler drives persisted tasks: it upserts them by key, polls
// for due rows on a fixed interval and runs each one to completion before
// the next.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nadmax/wordsprint/internal/alert"
	"github.com/nadmax/wordsprint/internal/clock"
	"github.com/nadmax/wordsprint/internal/metrics"
	"github.com/nadmax/wordsprint/internal/repository"
	"github.com/nadmax/wordsprint/internal/task"
	"go.uber.org/zap"
)

const DefaultPollInterval = 5 * time.Second

// SprintJobs handles the sprint job kinds. Each returns true when the job
// is done and false, or an error, to have it retried on a later poll.
type SprintJobs interface {
	StartSprint(ctx context.Context, sprintID int64) (bool, error)
	EndSprint(ctx context.Context, sprintID int64) (bool, error)
	CompleteSprint(ctx context.Context, sprintID int64) (bool, error)
	CollectRubbish(ctx context.Context) (bool, error)
}

type GoalJobs interface {
	ResetDue(ctx context.Context) (bool, error)
}

type Scheduler struct {
	id           string
	store        repository.TaskRepository
	sprints      SprintJobs
	goals        GoalJobs
	alerter      alert.Alerter
	clock        clock.Clock
	logger       *zap.Logger
	pollInterval time.Duration

	mu       sync.Mutex
	failures map[int64]int
	stop     chan struct{}
	stopOnce sync.Once
}

func New(id string, store repository.TaskRepository, clk clock.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		id:           id,
		store:        store,
		alerter:      alert.Nop{},
		clock:        clk,
		logger:       logger.With(zap.String("worker_id", id)),
		pollInterval: DefaultPollInterval,
		failures:     make(map[int64]int),
		stop:         make(chan struct{}),
	}
}

func (s *Scheduler) RegisterSprintJobs(j SprintJobs) {
	s.sprints = j
}

func (s *Scheduler) RegisterGoalJobs(j GoalJobs) {
	s.goals = j
}

func (s *Scheduler) SetAlerter(a alert.Alerter) {
	s.alerter = a
}

func (s *Scheduler) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// Schedule creates the task for job, or moves an existing task with the
// same key to at.
func (s *Scheduler) Schedule(ctx context.Context, job task.Job, at int64) error {
	key := job.Key()

	existing, err := s.store.FindTask(ctx, key)
	switch {
	case err == nil:
		return s.store.SetTaskTime(ctx, existing.ID, at)
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("failed to look up task %s: %w", key, err)
	}

	if _, err := s.store.InsertTask(ctx, task.New(job, at)); err != nil {
		return fmt.Errorf("failed to schedule task %s: %w", key, err)
	}

	s.logger.Debug("task scheduled", zap.Stringer("key", key), zap.Int64("time", at))
	return nil
}

// Cancel deletes every pending task for the object.
func (s *Scheduler) Cancel(ctx context.Context, object task.Object, objectID int64) error {
	n, err := s.store.DeleteTasks(ctx, object, &objectID)
	if err != nil {
		return fmt.Errorf("failed to cancel tasks for %s %d: %w", object, objectID, err)
	}
	if n > 0 {
		s.logger.Debug("tasks cancelled", zap.String("object", string(object)), zap.Int64("object_id", objectID), zap.Int64("count", n))
	}
	return nil
}

// Unschedule deletes the task for job if there is one.
func (s *Scheduler) Unschedule(ctx context.Context, job task.Job) error {
	if _, err := s.store.DeleteTasksByKey(ctx, job.Key()); err != nil {
		return fmt.Errorf("failed to unschedule task %s: %w", job.Key(), err)
	}
	return nil
}

// SetupRecurring replaces any task for job with a fresh recurring one
// that first runs at first.
func (s *Scheduler) SetupRecurring(ctx context.Context, job task.Job, interval time.Duration, first int64) error {
	if _, err := s.store.DeleteTasksByKey(ctx, job.Key()); err != nil {
		return fmt.Errorf("failed to clear recurring task %s: %w", job.Key(), err)
	}

	t := task.NewRecurring(job, first, int64(interval.Seconds()))
	if _, err := s.store.InsertTask(ctx, t); err != nil {
		return fmt.Errorf("failed to create recurring task %s: %w", job.Key(), err)
	}

	s.logger.Info("recurring task set up", zap.Stringer("key", job.Key()), zap.Duration("interval", interval))
	return nil
}

// Start polls until Stop is called or ctx is done. It blocks. Claims
// left behind by a worker that died mid-task are released first, so only
// one worker may run against a store.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", zap.Duration("poll_interval", s.pollInterval))

	if err := s.ReleaseClaims(ctx); err != nil {
		s.logger.Error("failed to release stale task claims", zap.Error(err))
	}

	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.Poll(ctx)
	for {
		select {
		case <-s.stop:
			s.logger.Info("scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// ReleaseClaims clears the processing flag on every task.
func (s *Scheduler) ReleaseClaims(ctx context.Context) error {
	n, err := s.store.ReleaseAllTasks(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Warn("released stale task claims", zap.Int64("count", n))
	}
	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Poll runs every due task once, oldest first.
func (s *Scheduler) Poll(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.RecordPoll(time.Since(start)) }()

	now := clock.Unix(s.clock)
	tasks, err := s.store.DueTasks(ctx, now)
	if err != nil {
		s.logger.Error("failed to load due tasks", zap.Error(err))
		return
	}

	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		if err := s.Run(ctx, t); err != nil {
			s.logger.Error("task run failed", zap.Int64("task_id", t.ID), zap.Stringer("key", t.Key()), zap.Error(err))
		}
	}

	if stats, err := s.store.TaskStats(ctx, clock.Unix(s.clock)); err == nil {
		metrics.UpdateTaskGauges(stats)
	}
}

// Run executes one task. A task already marked processing is skipped.
// The returned error only reports bookkeeping failures; handler failures
// leave the task in place for the next poll.
func (s *Scheduler) Run(ctx context.Context, t *task.Task) error {
	object, taskType := string(t.Object), string(t.Type)
	if t.Processing {
		metrics.RecordTaskSkipped(object, taskType)
		return nil
	}

	claimed, err := s.store.ClaimTask(ctx, t.ID)
	if err != nil {
		return err
	}
	if !claimed {
		metrics.RecordTaskSkipped(object, taskType)
		return nil
	}
	t.Processing = true

	logger := s.logger.With(zap.Int64("task_id", t.ID), zap.String("object", object), zap.String("type", taskType))
	logger.Info("running task")

	started := s.clock.Now()
	metrics.RecordTaskLag(object, taskType, started.Sub(time.Unix(t.Time, 0)))

	done, runErr := s.runHandler(ctx, t)
	if runErr != nil {
		done = false
	}

	outcome := metrics.OutcomeDone
	switch {
	case t.Recurring:
		outcome = metrics.OutcomeRecurred
	case !done:
		outcome = metrics.OutcomeRetry
	}
	var unknown *task.UnknownJobError
	if errors.As(runErr, &unknown) {
		outcome = metrics.OutcomeUnknown
	}
	metrics.RecordTaskRun(object, taskType, outcome, s.clock.Now().Sub(started))

	if done {
		s.clearFailures(t.ID)
		logger.Info("task completed")
	} else {
		s.failed(ctx, logger, t, runErr)
	}

	return s.finish(ctx, t, done)
}

// runHandler turns a handler panic into an error so the task is still
// released.
func (s *Scheduler) runHandler(ctx context.Context, t *task.Task) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			done, err = false, fmt.Errorf("task handler panicked: %v", r)
		}
	}()
	return s.dispatch(ctx, t)
}

func (s *Scheduler) dispatch(ctx context.Context, t *task.Task) (bool, error) {
	job, err := task.Decode(t)
	if err != nil {
		return false, err
	}

	switch j := job.(type) {
	case task.SprintStart:
		if s.sprints == nil {
			break
		}
		return s.sprints.StartSprint(ctx, j.SprintID)
	case task.SprintEnd:
		if s.sprints == nil {
			break
		}
		return s.sprints.EndSprint(ctx, j.SprintID)
	case task.SprintComplete:
		if s.sprints == nil {
			break
		}
		return s.sprints.CompleteSprint(ctx, j.SprintID)
	case task.SprintRubbishCollection:
		if s.sprints == nil {
			break
		}
		return s.sprints.CollectRubbish(ctx)
	case task.GoalReset:
		if s.goals == nil {
			break
		}
		return s.goals.ResetDue(ctx)
	}

	return false, fmt.Errorf("no handler registered for task %s", job.Key())
}

// finish deletes a done one-off task and releases everything else.
// Recurring tasks move forward by their interval whatever the outcome.
func (s *Scheduler) finish(ctx context.Context, t *task.Task, done bool) error {
	if t.Recurring {
		next := t.NextRun(clock.Unix(s.clock))
		if err := s.store.SetTaskTime(ctx, t.ID, next); err != nil {
			return err
		}
		t.Time = next
	} else if done {
		return s.store.DeleteTask(ctx, t.ID)
	}

	if err := s.store.ReleaseTask(ctx, t.ID); err != nil {
		return err
	}
	t.Processing = false
	return nil
}

func (s *Scheduler) failed(ctx context.Context, logger *zap.Logger, t *task.Task, err error) {
	s.mu.Lock()
	s.failures[t.ID]++
	attempt := s.failures[t.ID]
	s.mu.Unlock()

	if err == nil {
		err = errors.New("handler reported not done")
	}
	logger.Error("task failed, will retry", zap.Int("attempt", attempt), zap.Error(err))

	s.alerter.TaskFailed(ctx, alert.Failure{
		Task:    t.Key().String(),
		TaskID:  t.ID,
		Err:     err,
		At:      s.clock.Now(),
		Attempt: attempt,
	})
}

func (s *Scheduler) clearFailures(id int64) {
	s.mu.Lock()
	delete(s.failures, id)
	s.mu.Unlock()
}
