// Package sprint implements the group writing sprint: its derived
// lifecycle, the user commands that drive it and the scheduled jobs that
// move it between phases.
package sprint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nadmax/wordsprint/internal/clock"
	"github.com/nadmax/wordsprint/internal/lock"
	"github.com/nadmax/wordsprint/internal/metrics"
	"github.com/nadmax/wordsprint/internal/notify"
	"github.com/nadmax/wordsprint/internal/repository"
	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/nadmax/wordsprint/internal/task"
	"go.uber.org/zap"
)

const (
	DefaultPostDelay = 2
	DefaultLength    = 20
	MaxLength        = 60
	DefaultInMins    = 2
	MaxInMins        = 1440
	DefaultMaxWPM    = 150

	DefaultRetention = 24 * time.Hour
)

const (
	statStarted    = "sprints_started"
	statCompleted  = "sprints_completed"
	statWords      = "sprints_words_written"
	statTotalWords = "total_words_written"

	recordWPM = "wpm"

	settingMaxWPM = "maxwpm"
	settingNotify = "sprint_notify"
	settingDelay  = "sprint_delay_end"
)

// Caller identifies who issued a command and where.
type Caller struct {
	Guild     string `json:"guild"`
	Channel   string `json:"channel"`
	User      string `json:"user"`
	CanManage bool   `json:"can_manage"`
}

// Reply is the user-facing outcome of a command. FollowUp carries a
// second message when the command also finished or cancelled the sprint.
type Reply struct {
	Text     string `json:"text"`
	FollowUp string `json:"follow_up,omitempty"`
}

// Scheduler persists phase transition jobs for a sprint.
type Scheduler interface {
	Schedule(ctx context.Context, job task.Job, at int64) error
	Unschedule(ctx context.Context, job task.Job) error
	Cancel(ctx context.Context, object task.Object, objectID int64) error
}

// GoalProgress receives the words a user wrote in a completed sprint.
type GoalProgress interface {
	AddProgress(ctx context.Context, user string, words int) error
}

type Service struct {
	store     repository.Store
	scheduler Scheduler
	notifier  notify.Notifier
	locker    lock.Locker
	goals     GoalProgress
	clock     clock.Clock
	retention time.Duration
	logger    *zap.Logger
}

func NewService(store repository.Store, scheduler Scheduler, notifier notify.Notifier, locker lock.Locker, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		scheduler: scheduler,
		notifier:  notifier,
		locker:    locker,
		clock:     clk,
		retention: DefaultRetention,
		logger:    logger,
	}
}

func (s *Service) SetGoals(g GoalProgress) {
	s.goals = g
}

func (s *Service) SetRetention(d time.Duration) {
	s.retention = d
}

func (s *Service) now() int64 {
	return clock.Unix(s.clock)
}

func (s *Service) lockGuild(ctx context.Context, guild string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, lock.Guild(guild))
	if err != nil {
		return nil, fmt.Errorf("failed to lock guild %s: %w", guild, err)
	}
	return unlock, nil
}

// active loads the guild's running sprint, or nil when there is none.
func (s *Service) active(ctx context.Context, guild string) (*models.Sprint, error) {
	sp, err := s.store.ActiveSprint(ctx, guild)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return sp, err
}

func (s *Service) participant(ctx context.Context, sprintID int64, user string) (*models.Participant, error) {
	p, err := s.store.GetParticipant(ctx, sprintID, user)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *Service) allDeclared(ctx context.Context, sprintID int64) (bool, error) {
	n, err := s.store.CountUndeclared(ctx, sprintID)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (s *Service) announce(ctx context.Context, sp *models.Sprint, message string) {
	if message == "" {
		return
	}
	err := s.notifier.Say(ctx, notify.Announcement{Guild: sp.Guild, Channel: sp.Channel, Message: message})
	if err != nil {
		metrics.RecordAnnouncementFailure()
		s.logger.Warn("failed to deliver announcement",
			zap.Int64("sprint_id", sp.ID),
			zap.String("guild", sp.Guild),
			zap.Error(err),
		)
	}
}

func (s *Service) mentions(ctx context.Context, sprintID int64) ([]string, error) {
	participants, err := s.store.Participants(ctx, sprintID)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(participants))
	for i, p := range participants {
		out[i] = mention(p.User)
	}
	return out, nil
}

// postDelay is how long participants get to declare once time is up.
func (s *Service) postDelay(ctx context.Context, guild string) (int64, error) {
	v, err := s.store.GuildSetting(ctx, guild, settingDelay)
	if errors.Is(err, repository.ErrNotFound) {
		return DefaultPostDelay, nil
	}
	if err != nil {
		return 0, err
	}

	mins, convErr := strconv.ParseInt(v, 10, 64)
	if convErr != nil || mins < 0 {
		s.logger.Warn("invalid sprint delay setting", zap.String("guild", guild), zap.String("value", v))
		return DefaultPostDelay, nil
	}
	return mins, nil
}

func (s *Service) maxWPM(ctx context.Context, user string) (int, error) {
	v, err := s.store.UserSetting(ctx, user, "", settingMaxWPM)
	if errors.Is(err, repository.ErrNotFound) {
		return DefaultMaxWPM, nil
	}
	if err != nil {
		return 0, err
	}

	limit, convErr := strconv.Atoi(v)
	if convErr != nil || limit <= 0 {
		return DefaultMaxWPM, nil
	}
	return limit, nil
}

func mention(user string) string {
	return "<@" + user + ">"
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func joinMentions(m []string) string {
	return strings.Join(m, ", ")
}
