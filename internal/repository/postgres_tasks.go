package repository

import (
	"context"
	"database/sql"

	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/nadmax/wordsprint/internal/task"
)

var taskColumns = []string{"id", "time", "type", "object", "objectid", "processing", "recurring", "runeveryseconds"}

func scanTask(row scanner) (*task.Task, error) {
	var t task.Task
	var objectID sql.NullInt64

	if err := row.Scan(
		&t.ID,
		&t.Time,
		&t.Type,
		&t.Object,
		&objectID,
		&t.Processing,
		&t.Recurring,
		&t.RunEverySeconds,
	); err != nil {
		return nil, err
	}

	if objectID.Valid {
		t.ObjectID = &objectID.Int64
	}

	return &t, nil
}

func (s *PostgresStore) queryTasks(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(rows)

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

func (s *PostgresStore) DueTasks(ctx context.Context, now int64) ([]*task.Task, error) {
	query := `
		SELECT id, time, type, object, objectid, processing, recurring, runeveryseconds
		FROM tasks
		WHERE time <= $1
		ORDER BY id ASC
	`
	tasks, err := s.queryTasks(ctx, query, now)
	return tasks, wrapErr("list due", "tasks", 0, err)
}

func (s *PostgresStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	query, args := buildSelect(tableTasks, nil, taskColumns, []string{"time ASC", "id ASC"}, 0)
	tasks, err := s.queryTasks(ctx, query, args...)
	return tasks, wrapErr("list", "tasks", 0, err)
}

func (s *PostgresStore) TaskStats(ctx context.Context, now int64) ([]models.TaskStats, error) {
	query := `
		SELECT
			object, type, COUNT(*) AS count,
			COUNT(*) FILTER (WHERE processing) AS processing,
			COUNT(*) FILTER (WHERE time <= $1) AS overdue
		FROM tasks
		GROUP BY object, type
		ORDER BY object, type
	`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, wrapErr("stats", "tasks", 0, err)
	}
	defer s.closeRows(rows)

	var stats []models.TaskStats
	for rows.Next() {
		var st models.TaskStats
		if err := rows.Scan(&st.Object, &st.Type, &st.Count, &st.Processing, &st.Overdue); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

func (s *PostgresStore) FindTask(ctx context.Context, key task.Key) (*task.Task, error) {
	filter := Filter{"type": string(key.Type), "object": string(key.Object), "objectid": key.ObjectID}
	query, args := buildSelect(tableTasks, filter, taskColumns, []string{"id ASC"}, 1)

	t, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}

	return t, nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, t *task.Task) (int64, error) {
	id, err := s.insert(ctx, tableTasks, Fields{
		{"time", t.Time},
		{"type", string(t.Type)},
		{"object", string(t.Object)},
		{"objectid", t.ObjectID},
		{"processing", t.Processing},
		{"recurring", t.Recurring},
		{"runeveryseconds", t.RunEverySeconds},
	})
	if err != nil {
		return 0, wrapErr("insert", "task", 0, err)
	}

	t.ID = id
	return id, nil
}

func (s *PostgresStore) SetTaskTime(ctx context.Context, id, time int64) error {
	_, err := s.update(ctx, tableTasks, Fields{{"time", time}}, Filter{"id": id})
	return wrapErr("reschedule", "task", id, err)
}

func (s *PostgresStore) ClaimTask(ctx context.Context, id int64) (bool, error) {
	n, err := s.exec(ctx, `UPDATE tasks SET processing = TRUE WHERE id = $1 AND processing = FALSE`, id)
	if err != nil {
		return false, wrapErr("claim", "task", id, err)
	}

	return n == 1, nil
}

func (s *PostgresStore) ReleaseTask(ctx context.Context, id int64) error {
	_, err := s.update(ctx, tableTasks, Fields{{"processing", false}}, Filter{"id": id})
	return wrapErr("release", "task", id, err)
}

func (s *PostgresStore) ReleaseAllTasks(ctx context.Context) (int64, error) {
	n, err := s.exec(ctx, `UPDATE tasks SET processing = FALSE WHERE processing = TRUE`)
	if err != nil {
		return 0, wrapErr("release", "tasks", 0, err)
	}

	return n, nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id int64) error {
	_, err := s.delete(ctx, tableTasks, Filter{"id": id})
	return wrapErr("delete", "task", id, err)
}

func (s *PostgresStore) DeleteTasks(ctx context.Context, object task.Object, objectID *int64) (int64, error) {
	n, err := s.delete(ctx, tableTasks, Filter{"object": string(object), "objectid": objectID})
	return n, wrapErr("delete", "tasks", 0, err)
}

func (s *PostgresStore) DeleteTasksByKey(ctx context.Context, key task.Key) (int64, error) {
	n, err := s.delete(ctx, tableTasks, Filter{"type": string(key.Type), "object": string(key.Object), "objectid": key.ObjectID})
	return n, wrapErr("delete", "tasks", 0, err)
}
