package repository

import (
	"context"

	"github.com/nadmax/wordsprint/internal/repository/models"
)

var goalColumns = []string{"id", "user", "type", "goal", "current", "completed", "reset"}

func scanGoal(row scanner) (*models.Goal, error) {
	var g models.Goal
	if err := row.Scan(&g.ID, &g.User, &g.Type, &g.Goal, &g.Current, &g.Completed, &g.Reset); err != nil {
		return nil, err
	}
	return &g, nil
}

func goalFields(g *models.Goal) Fields {
	return Fields{
		{"user", g.User},
		{"type", g.Type},
		{"goal", g.Goal},
		{"current", g.Current},
		{"completed", g.Completed},
		{"reset", g.Reset},
	}
}

func (s *PostgresStore) queryGoals(ctx context.Context, query string, args ...any) ([]*models.Goal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(rows)

	var goals []*models.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}

	return goals, rows.Err()
}

func (s *PostgresStore) DueGoals(ctx context.Context, now int64) ([]*models.Goal, error) {
	query := `
		SELECT id, "user", type, goal, current, completed, reset
		FROM user_goals
		WHERE reset <= $1
		ORDER BY id ASC
	`
	goals, err := s.queryGoals(ctx, query, now)
	return goals, wrapErr("list due", "goals", 0, err)
}

func (s *PostgresStore) UserGoals(ctx context.Context, user string) ([]*models.Goal, error) {
	query, args := buildSelect(tableGoals, Filter{"user": user}, goalColumns, []string{"id ASC"}, 0)
	goals, err := s.queryGoals(ctx, query, args...)
	return goals, wrapErr("list", "goals", 0, err)
}

func (s *PostgresStore) InsertGoal(ctx context.Context, g *models.Goal) (int64, error) {
	id, err := s.insert(ctx, tableGoals, goalFields(g))
	if err != nil {
		return 0, wrapErr("insert", "goal", 0, err)
	}

	g.ID = id
	return id, nil
}

func (s *PostgresStore) UpdateGoal(ctx context.Context, g *models.Goal) error {
	_, err := s.update(ctx, tableGoals, goalFields(g), Filter{"id": g.ID})
	return wrapErr("update", "goal", g.ID, err)
}

func (s *PostgresStore) InsertGoalHistory(ctx context.Context, h *models.GoalHistory) (int64, error) {
	id, err := s.insert(ctx, tableGoalHistory, Fields{
		{"user", h.User},
		{"type", h.Type},
		{"date", h.Date},
		{"goal", h.Goal},
		{"result", h.Result},
		{"completed", h.Completed},
	})
	if err != nil {
		return 0, wrapErr("insert", "goal history", 0, err)
	}

	h.ID = id
	return id, nil
}

func (s *PostgresStore) ProjectByShortname(ctx context.Context, user, shortname string) (*models.Project, error) {
	query, args := buildSelect(tableProjects, Filter{"user": user, "shortname": shortname},
		[]string{"id", "user", "name", "shortname", "words"}, nil, 1)

	var p models.Project
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.User, &p.Name, &p.Shortname, &p.Words)
	if err != nil {
		err = notFound(err)
		if err != ErrNotFound {
			return nil, wrapErr("load", "project", 0, err)
		}
		return nil, err
	}

	return &p, nil
}

func (s *PostgresStore) AddProjectWords(ctx context.Context, id int64, words int) error {
	_, err := s.exec(ctx, `UPDATE projects SET words = words + $1 WHERE id = $2`, words, id)
	return wrapErr("add words", "project", id, err)
}
