// Package repository provides the persistence gateway for tasks, sprints,
// participants and the user-side records sprint completion writes to.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	tableTasks        = "tasks"
	tableSprints      = "sprints"
	tableParticipants = "sprint_users"
	tableGoals        = "user_goals"
	tableGoalHistory  = "user_goals_history"
	tableProjects     = "projects"
)

type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

type scanner interface {
	Scan(dest ...any) error
}

func NewPostgresStore(connectionString string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db, logger: logger}, nil
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		s.logger.Warn("failed to close rows", zap.Error(err))
	}
}

func (s *PostgresStore) insert(ctx context.Context, table string, fields Fields) (int64, error) {
	query, args := buildInsert(table, fields)

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (s *PostgresStore) update(ctx context.Context, table string, fields Fields, filter Filter) (int64, error) {
	query, args := buildUpdate(table, fields, filter)
	return s.exec(ctx, query, args...)
}

func (s *PostgresStore) delete(ctx context.Context, table string, filter Filter) (int64, error) {
	query, args := buildDelete(table, filter)
	return s.exec(ctx, query, args...)
}

func (s *PostgresStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// notFound maps sql.ErrNoRows onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
