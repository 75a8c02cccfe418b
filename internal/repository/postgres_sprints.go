package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nadmax/wordsprint/internal/repository/models"
)

var sprintColumns = []string{"id", "guild", "channel", "start", "end", "end_reference", "length", "createdby", "created", "completed"}

var participantColumns = []string{"id", "sprint", "user", "starting_wc", "current_wc", "ending_wc", "timejoined", "sprint_type", "project"}

func scanSprint(row scanner) (*models.Sprint, error) {
	var sp models.Sprint
	if err := row.Scan(
		&sp.ID,
		&sp.Guild,
		&sp.Channel,
		&sp.Start,
		&sp.End,
		&sp.EndReference,
		&sp.Length,
		&sp.CreatedBy,
		&sp.Created,
		&sp.Completed,
	); err != nil {
		return nil, err
	}

	return &sp, nil
}

func scanParticipant(row scanner) (*models.Participant, error) {
	var p models.Participant
	var sprintType sql.NullString
	var project sql.NullInt64

	if err := row.Scan(
		&p.ID,
		&p.Sprint,
		&p.User,
		&p.StartingWC,
		&p.CurrentWC,
		&p.EndingWC,
		&p.TimeJoined,
		&sprintType,
		&project,
	); err != nil {
		return nil, err
	}

	if sprintType.Valid {
		p.Type = models.ParticipantType(sprintType.String)
	}
	if project.Valid {
		p.Project = &project.Int64
	}

	return &p, nil
}

func participantFields(p *models.Participant) Fields {
	return Fields{
		{"sprint", p.Sprint},
		{"user", p.User},
		{"starting_wc", p.StartingWC},
		{"current_wc", p.CurrentWC},
		{"ending_wc", p.EndingWC},
		{"timejoined", p.TimeJoined},
		{"sprint_type", nullString(string(p.Type))},
		{"project", p.Project},
	}
}

func sprintFields(sp *models.Sprint) Fields {
	return Fields{
		{"guild", sp.Guild},
		{"channel", sp.Channel},
		{"start", sp.Start},
		{"end", sp.End},
		{"end_reference", sp.EndReference},
		{"length", sp.Length},
		{"createdby", sp.CreatedBy},
		{"created", sp.Created},
		{"completed", sp.Completed},
	}
}

func (s *PostgresStore) getSprint(ctx context.Context, filter Filter) (*models.Sprint, error) {
	query, args := buildSelect(tableSprints, filter, sprintColumns, []string{"id DESC"}, 1)

	sp, err := scanSprint(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}

	return sp, nil
}

func (s *PostgresStore) ActiveSprint(ctx context.Context, guild string) (*models.Sprint, error) {
	sp, err := s.getSprint(ctx, Filter{"guild": guild, "completed": int64(0)})
	if err != nil && err != ErrNotFound {
		return nil, wrapErr("load active", "sprint", 0, err)
	}
	return sp, err
}

func (s *PostgresStore) GetSprint(ctx context.Context, id int64) (*models.Sprint, error) {
	sp, err := s.getSprint(ctx, Filter{"id": id})
	if err != nil && err != ErrNotFound {
		return nil, wrapErr("load", "sprint", id, err)
	}
	return sp, err
}

func (s *PostgresStore) InsertSprint(ctx context.Context, sp *models.Sprint) (int64, error) {
	id, err := s.insert(ctx, tableSprints, sprintFields(sp))
	if err != nil {
		return 0, wrapErr("insert", "sprint", 0, err)
	}

	sp.ID = id
	return id, nil
}

func (s *PostgresStore) UpdateSprint(ctx context.Context, sp *models.Sprint) error {
	_, err := s.update(ctx, tableSprints, sprintFields(sp), Filter{"id": sp.ID})
	return wrapErr("update", "sprint", sp.ID, err)
}

func (s *PostgresStore) MarkSprintCompleted(ctx context.Context, id, at int64) (bool, error) {
	n, err := s.exec(ctx, `UPDATE sprints SET completed = $2 WHERE id = $1 AND completed = 0`, id, at)
	if err != nil {
		return false, wrapErr("complete", "sprint", id, err)
	}

	return n == 1, nil
}

func (s *PostgresStore) DeleteSprint(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("delete", "sprint", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sprint_users WHERE sprint = $1`, id); err != nil {
		_ = tx.Rollback()
		return wrapErr("delete", "sprint", id, fmt.Errorf("failed to delete participants: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sprints WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return wrapErr("delete", "sprint", id, err)
	}

	return wrapErr("delete", "sprint", id, tx.Commit())
}

func (s *PostgresStore) StaleSprints(ctx context.Context, before int64) ([]*models.Sprint, error) {
	query := `
		SELECT id, guild, channel, start, "end", end_reference, length, createdby, created, completed
		FROM sprints
		WHERE completed = 0 AND end_reference < $1
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, wrapErr("list stale", "sprints", 0, err)
	}
	defer s.closeRows(rows)

	var sprints []*models.Sprint
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		sprints = append(sprints, sp)
	}

	return sprints, rows.Err()
}

func (s *PostgresStore) Participants(ctx context.Context, sprintID int64) ([]*models.Participant, error) {
	query, args := buildSelect(tableParticipants, Filter{"sprint": sprintID}, participantColumns, []string{"id ASC"}, 0)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list", "participants", sprintID, err)
	}
	defer s.closeRows(rows)

	var participants []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func (s *PostgresStore) GetParticipant(ctx context.Context, sprintID int64, user string) (*models.Participant, error) {
	query, args := buildSelect(tableParticipants, Filter{"sprint": sprintID, "user": user}, participantColumns, nil, 1)

	p, err := scanParticipant(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		err = notFound(err)
		if err != ErrNotFound {
			return nil, wrapErr("load", "participant", sprintID, err)
		}
		return nil, err
	}

	return p, nil
}

func (s *PostgresStore) InsertParticipant(ctx context.Context, p *models.Participant) (int64, error) {
	id, err := s.insert(ctx, tableParticipants, participantFields(p))
	if err != nil {
		return 0, wrapErr("insert", "participant", p.Sprint, err)
	}

	p.ID = id
	return id, nil
}

func (s *PostgresStore) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	_, err := s.update(ctx, tableParticipants, participantFields(p), Filter{"id": p.ID})
	return wrapErr("update", "participant", p.ID, err)
}

func (s *PostgresStore) DeleteParticipant(ctx context.Context, sprintID int64, user string) (int64, error) {
	n, err := s.delete(ctx, tableParticipants, Filter{"sprint": sprintID, "user": user})
	return n, wrapErr("delete", "participant", sprintID, err)
}

func (s *PostgresStore) CountUndeclared(ctx context.Context, sprintID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM sprint_users
		WHERE sprint = $1 AND ending_wc = 0 AND (sprint_type IS NULL OR sprint_type != $2)
	`
	var n int
	if err := s.db.QueryRowContext(ctx, query, sprintID, string(models.TypeNoWordcount)).Scan(&n); err != nil {
		return 0, wrapErr("count undeclared", "participants", sprintID, err)
	}

	return n, nil
}

func (s *PostgresStore) LastParticipation(ctx context.Context, guild, user string, excludeSprint int64) (*models.Participant, error) {
	query := `
		SELECT su.id, su.sprint, su."user", su.starting_wc, su.current_wc, su.ending_wc,
		       su.timejoined, su.sprint_type, su.project
		FROM sprint_users su
		JOIN sprints s ON s.id = su.sprint
		WHERE s.guild = $1 AND su."user" = $2 AND su.sprint != $3
		ORDER BY su.sprint DESC
		LIMIT 1
	`
	p, err := scanParticipant(s.db.QueryRowContext(ctx, query, guild, user, excludeSprint))
	if err != nil {
		err = notFound(err)
		if err != ErrNotFound {
			return nil, wrapErr("load last", "participant", excludeSprint, err)
		}
		return nil, err
	}

	return p, nil
}
