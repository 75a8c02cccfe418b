package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/nadmax/wordsprint/internal/task"
)

var ErrNotFound = errors.New("not found")

// OpError wraps a persistence failure with the operation and resource
// it happened on.
type OpError struct {
	Op       string
	Resource string
	ID       int64
	Err      error
}

func (e *OpError) Error() string {
	if e == nil {
		return ""
	}
	if e.ID > 0 {
		return fmt.Sprintf("%s %s %d: %v", e.Op, e.Resource, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func wrapErr(op, resource string, id int64, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Resource: resource, ID: id, Err: err}
}

type TaskRepository interface {
	DueTasks(ctx context.Context, now int64) ([]*task.Task, error)
	ListTasks(ctx context.Context) ([]*task.Task, error)
	TaskStats(ctx context.Context, now int64) ([]models.TaskStats, error)
	FindTask(ctx context.Context, key task.Key) (*task.Task, error)
	InsertTask(ctx context.Context, t *task.Task) (int64, error)
	SetTaskTime(ctx context.Context, id, time int64) error
	// ClaimTask flips processing from false to true. It reports false
	// if another runner already holds the task.
	ClaimTask(ctx context.Context, id int64) (bool, error)
	ReleaseTask(ctx context.Context, id int64) error
	// ReleaseAllTasks clears every processing flag and returns how many
	// were set. It is only safe while no runner is active.
	ReleaseAllTasks(ctx context.Context) (int64, error)
	DeleteTask(ctx context.Context, id int64) error
	DeleteTasks(ctx context.Context, object task.Object, objectID *int64) (int64, error)
	DeleteTasksByKey(ctx context.Context, key task.Key) (int64, error)
}

type SprintRepository interface {
	ActiveSprint(ctx context.Context, guild string) (*models.Sprint, error)
	GetSprint(ctx context.Context, id int64) (*models.Sprint, error)
	InsertSprint(ctx context.Context, s *models.Sprint) (int64, error)
	UpdateSprint(ctx context.Context, s *models.Sprint) error
	// MarkSprintCompleted sets completed on a sprint that has not been
	// completed yet. It reports false if the sprint was already completed
	// or is gone.
	MarkSprintCompleted(ctx context.Context, id, at int64) (bool, error)
	// DeleteSprint removes the sprint and every participant row.
	DeleteSprint(ctx context.Context, id int64) error
	StaleSprints(ctx context.Context, before int64) ([]*models.Sprint, error)

	Participants(ctx context.Context, sprintID int64) ([]*models.Participant, error)
	GetParticipant(ctx context.Context, sprintID int64, user string) (*models.Participant, error)
	InsertParticipant(ctx context.Context, p *models.Participant) (int64, error)
	UpdateParticipant(ctx context.Context, p *models.Participant) error
	DeleteParticipant(ctx context.Context, sprintID int64, user string) (int64, error)
	CountUndeclared(ctx context.Context, sprintID int64) (int, error)
	LastParticipation(ctx context.Context, guild, user string, excludeSprint int64) (*models.Participant, error)
}

type UserRepository interface {
	GetStat(ctx context.Context, user, name string) (int64, error)
	AddStat(ctx context.Context, user, name string, delta int64) error
	GetXP(ctx context.Context, user string) (int64, error)
	AddXP(ctx context.Context, user string, xp int64) (int64, error)
	// UserSetting looks up a per-guild setting; guild "" is the global scope.
	UserSetting(ctx context.Context, user, guild, name string) (string, error)
	SetUserSetting(ctx context.Context, user, guild, name, value string) error
	UsersWithSetting(ctx context.Context, guild, name, value string) ([]string, error)
	GuildSetting(ctx context.Context, guild, name string) (string, error)
	GetRecord(ctx context.Context, user, name string) (int64, error)
	SetRecord(ctx context.Context, user, name string, value int64) error
}

type GoalRepository interface {
	DueGoals(ctx context.Context, now int64) ([]*models.Goal, error)
	UserGoals(ctx context.Context, user string) ([]*models.Goal, error)
	InsertGoal(ctx context.Context, g *models.Goal) (int64, error)
	UpdateGoal(ctx context.Context, g *models.Goal) error
	InsertGoalHistory(ctx context.Context, h *models.GoalHistory) (int64, error)
}

type ProjectRepository interface {
	ProjectByShortname(ctx context.Context, user, shortname string) (*models.Project, error)
	AddProjectWords(ctx context.Context, id int64, words int) error
}

type Store interface {
	TaskRepository
	SprintRepository
	UserRepository
	GoalRepository
	ProjectRepository
	Close() error
}
