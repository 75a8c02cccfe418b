// Package goal tracks personal word count goals and rolls them over at
// the end of each period.
package goal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nadmax/wordsprint/internal/clock"
	"github.com/nadmax/wordsprint/internal/experience"
	"github.com/nadmax/wordsprint/internal/metrics"
	"github.com/nadmax/wordsprint/internal/repository"
	"github.com/nadmax/wordsprint/internal/repository/models"
	"go.uber.org/zap"
)

// SettingOffset holds the user's offset from UTC in minutes. It lives in
// the global (guild "") settings scope.
const SettingOffset = "datetime"

var ErrInvalidType = errors.New("invalid goal type")

type Store interface {
	repository.GoalRepository
	UserSetting(ctx context.Context, user, guild, name string) (string, error)
	SetUserSetting(ctx context.Context, user, guild, name, value string) error
	AddXP(ctx context.Context, user string, xp int64) (int64, error)
}

type Service struct {
	store  Store
	clock  clock.Clock
	logger *zap.Logger
}

func NewService(store Store, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{store: store, clock: clk, logger: logger}
}

// Offset returns the user's UTC offset in minutes, 0 when unset.
func (s *Service) Offset(ctx context.Context, user string) (int, error) {
	v, err := s.store.UserSetting(ctx, user, "", SettingOffset)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	mins, convErr := strconv.Atoi(v)
	if convErr != nil {
		s.logger.Warn("invalid time offset setting", zap.String("user", user), zap.String("value", v))
		return 0, nil
	}
	return mins, nil
}

// SetOffset stores a new UTC offset and moves every goal's next reset to
// match it.
func (s *Service) SetOffset(ctx context.Context, user string, minutes int) error {
	if err := s.store.SetUserSetting(ctx, user, "", SettingOffset, strconv.Itoa(minutes)); err != nil {
		return err
	}

	goals, err := s.store.UserGoals(ctx, user)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	for _, g := range goals {
		g.Reset, err = NextReset(Type(g.Type), now, minutes)
		if err != nil {
			return err
		}
		if err := s.store.UpdateGoal(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Goals(ctx context.Context, user string) ([]*models.Goal, error) {
	return s.store.UserGoals(ctx, user)
}

// Set creates the user's goal of type t or changes its target. Progress
// in the current period is kept.
func (s *Service) Set(ctx context.Context, user string, t Type, words int) (*models.Goal, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	if words < 0 {
		words = 0
	}

	goals, err := s.store.UserGoals(ctx, user)
	if err != nil {
		return nil, err
	}
	for _, g := range goals {
		if Type(g.Type) != t {
			continue
		}
		g.Goal = words
		if err := s.store.UpdateGoal(ctx, g); err != nil {
			return nil, err
		}
		return g, nil
	}

	offset, err := s.Offset(ctx, user)
	if err != nil {
		return nil, err
	}
	reset, err := NextReset(t, s.clock.Now(), offset)
	if err != nil {
		return nil, err
	}

	g := &models.Goal{User: user, Type: string(t), Goal: words, Reset: reset}
	if _, err := s.store.InsertGoal(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// AddProgress adds words to every goal the user has. A goal crossing its
// target in this call is marked completed and earns its XP.
func (s *Service) AddProgress(ctx context.Context, user string, words int) error {
	goals, err := s.store.UserGoals(ctx, user)
	if err != nil {
		return err
	}

	for _, g := range goals {
		g.Current += words
		if !g.Completed && g.Goal > 0 && g.Current >= g.Goal {
			g.Completed = true
			xp := experience.CompleteGoal[g.Type]
			if _, err := s.store.AddXP(ctx, user, xp); err != nil {
				return err
			}
			metrics.RecordXP("goal", xp)
			s.logger.Info("goal completed", zap.String("user", user), zap.String("type", g.Type), zap.Int("goal", g.Goal))
		}
		if err := s.store.UpdateGoal(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// ResetDue archives and resets every goal whose period has ended. A goal
// that fails is left due and picked up by the next run.
func (s *Service) ResetDue(ctx context.Context) (bool, error) {
	now := s.clock.Now()

	due, err := s.store.DueGoals(ctx, now.Unix())
	if err != nil {
		return false, err
	}

	var errs []error
	reset := 0
	for _, g := range due {
		if err := s.reset(ctx, g, now); err != nil {
			s.logger.Error("failed to reset goal", zap.Int64("goal_id", g.ID), zap.String("user", g.User), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		reset++
	}

	s.logger.Info("goal reset run finished", zap.Int("reset", reset), zap.Int("due", len(due)))
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}
	return true, nil
}

func (s *Service) reset(ctx context.Context, g *models.Goal, now time.Time) error {
	offset, err := s.Offset(ctx, g.User)
	if err != nil {
		return err
	}

	t := Type(g.Type)
	next, err := NextReset(t, now, offset)
	if err != nil {
		return err
	}

	history := &models.GoalHistory{
		User:      g.User,
		Type:      g.Type,
		Date:      PeriodLabel(t, g.Reset, offset),
		Goal:      g.Goal,
		Result:    g.Current,
		Completed: g.Completed,
	}
	if _, err := s.store.InsertGoalHistory(ctx, history); err != nil {
		return err
	}

	g.Current = 0
	g.Completed = false
	g.Reset = next
	if err := s.store.UpdateGoal(ctx, g); err != nil {
		return err
	}

	metrics.RecordGoalReset(g.Type)
	return nil
}
