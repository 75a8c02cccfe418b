package sprint

import (
	"context"
	"errors"

	"github.com/nadmax/wordsprint/internal/metrics"
	"github.com/nadmax/wordsprint/internal/repository"
	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/nadmax/wordsprint/internal/task"
	"go.uber.org/zap"
)

// lockSprint loads a sprint by id and takes its guild lock. It returns a
// nil sprint when the row is gone, in which case there is nothing to
// unlock.
func (s *Service) lockSprint(ctx context.Context, id int64) (*models.Sprint, func(), error) {
	sp, err := s.store.GetSprint(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	unlock, err := s.lockGuild(ctx, sp.Guild)
	if err != nil {
		return nil, nil, err
	}

	// Reload under the lock; a command may have changed it meanwhile.
	sp, err = s.store.GetSprint(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		unlock()
		return nil, nil, nil
	}
	if err != nil {
		unlock()
		return nil, nil, err
	}

	return sp, unlock, nil
}

// StartSprint announces a delayed sprint and schedules its end.
func (s *Service) StartSprint(ctx context.Context, id int64) (bool, error) {
	sp, unlock, err := s.lockSprint(ctx, id)
	if err != nil || sp == nil {
		return err == nil, err
	}
	defer unlock()

	now := s.now()
	switch Derive(sp, now) {
	case AwaitingDeclarations, Completed:
		s.logger.Info("sprint no longer startable", zap.Int64("sprint_id", id))
		return true, nil
	case Scheduled, Active:
	}

	pings, err := s.mentions(ctx, sp.ID)
	if err != nil {
		return false, err
	}

	if err := s.scheduler.Schedule(ctx, task.SprintEnd{SprintID: sp.ID}, sp.End); err != nil {
		return false, err
	}

	metrics.RecordSprintEvent(metrics.SprintStarted)
	s.announce(ctx, sp, "**Sprint has started**\nGet writing, you have **"+plural(int64(sp.Length), "minute")+"**!\n"+joinMentions(pings))
	return true, nil
}

// EndSprint closes the writing window when the sprint runs out of time.
func (s *Service) EndSprint(ctx context.Context, id int64) (bool, error) {
	sp, unlock, err := s.lockSprint(ctx, id)
	if err != nil || sp == nil {
		return err == nil, err
	}
	defer unlock()

	if sp.Completed > 0 {
		s.logger.Info("sprint already completed", zap.Int64("sprint_id", id))
		return true, nil
	}

	now := s.now()
	if sp.End == 0 {
		// An earlier pass closed the window but may have stopped before
		// the complete task was scheduled.
		pings, err := s.mentions(ctx, sp.ID)
		if err != nil {
			return false, err
		}
		delay, scheduled, err := s.ensureComplete(ctx, sp, now)
		if err != nil {
			return false, err
		}
		if !scheduled {
			s.logger.Info("sprint already ended", zap.Int64("sprint_id", id))
			return true, nil
		}
		if err := s.unscheduleWindow(ctx, sp.ID); err != nil {
			return false, err
		}
		s.logger.Warn("resumed ended sprint without a complete task", zap.Int64("sprint_id", id))
		s.announce(ctx, sp, timeUpText(delay, pings))
		return true, nil
	}

	text, results, err := s.end(ctx, sp, now)
	if err != nil {
		return false, err
	}

	s.announce(ctx, sp, text)
	s.announce(ctx, sp, results)
	return true, nil
}

// ensureComplete schedules the complete task of an ended sprint unless
// one is already pending. It reports the declaration window it used and
// whether it had to schedule anything.
func (s *Service) ensureComplete(ctx context.Context, sp *models.Sprint, now int64) (int64, bool, error) {
	_, err := s.store.FindTask(ctx, task.SprintComplete{SprintID: sp.ID}.Key())
	if err == nil {
		return 0, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return 0, false, err
	}

	delay, err := s.postDelay(ctx, sp.Guild)
	if err != nil {
		return 0, false, err
	}
	if err := s.scheduler.Schedule(ctx, task.SprintComplete{SprintID: sp.ID}, now+delay*60); err != nil {
		return 0, false, err
	}
	return delay, true, nil
}

// CompleteSprint posts the results once the declaration window closes.
func (s *Service) CompleteSprint(ctx context.Context, id int64) (bool, error) {
	sp, unlock, err := s.lockSprint(ctx, id)
	if err != nil || sp == nil {
		return err == nil, err
	}
	defer unlock()

	if sp.Completed > 0 {
		return true, nil
	}

	results, err := s.complete(ctx, sp, s.now())
	if err != nil {
		return false, err
	}

	s.announce(ctx, sp, results)
	return true, nil
}

// CollectRubbish deletes sprints that never completed and whose writing
// window closed longer ago than the retention period.
func (s *Service) CollectRubbish(ctx context.Context) (bool, error) {
	before := s.now() - int64(s.retention.Seconds())

	stale, err := s.store.StaleSprints(ctx, before)
	if err != nil {
		return false, err
	}

	removed := 0
	for _, candidate := range stale {
		ok, err := s.collect(ctx, candidate.ID, before)
		if err != nil {
			return false, err
		}
		if ok {
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("collected stale sprints", zap.Int("count", removed))
	}
	return true, nil
}

func (s *Service) collect(ctx context.Context, id, before int64) (bool, error) {
	sp, unlock, err := s.lockSprint(ctx, id)
	if err != nil || sp == nil {
		return false, err
	}
	defer unlock()

	if sp.Completed > 0 || sp.EndReference >= before {
		return false, nil
	}

	if err := s.store.DeleteSprint(ctx, sp.ID); err != nil {
		return false, err
	}
	if err := s.scheduler.Cancel(ctx, task.ObjectSprint, sp.ID); err != nil {
		return false, err
	}

	metrics.RecordSprintEvent(metrics.SprintCollected)
	return true, nil
}
