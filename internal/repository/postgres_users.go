package repository

import (
	"context"
)

func (s *PostgresStore) GetStat(ctx context.Context, user, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM user_stats WHERE "user" = $1 AND name = $2`, user, name).Scan(&value)
	if err = notFound(err); err == ErrNotFound {
		return 0, nil
	}
	return value, wrapErr("load", "stat", 0, err)
}

func (s *PostgresStore) AddStat(ctx context.Context, user, name string, delta int64) error {
	query := `
		INSERT INTO user_stats ("user", name, value) VALUES ($1, $2, $3)
		ON CONFLICT ("user", name) DO UPDATE SET value = user_stats.value + EXCLUDED.value
	`
	_, err := s.exec(ctx, query, user, name, delta)
	return wrapErr("add", "stat", 0, err)
}

func (s *PostgresStore) GetXP(ctx context.Context, user string) (int64, error) {
	var xp int64
	err := s.db.QueryRowContext(ctx, `SELECT xp FROM user_xp WHERE "user" = $1`, user).Scan(&xp)
	if err = notFound(err); err == ErrNotFound {
		return 0, nil
	}
	return xp, wrapErr("load", "xp", 0, err)
}

func (s *PostgresStore) AddXP(ctx context.Context, user string, xp int64) (int64, error) {
	query := `
		INSERT INTO user_xp ("user", xp) VALUES ($1, $2)
		ON CONFLICT ("user") DO UPDATE SET xp = user_xp.xp + EXCLUDED.xp
		RETURNING xp
	`
	var total int64
	if err := s.db.QueryRowContext(ctx, query, user, xp).Scan(&total); err != nil {
		return 0, wrapErr("add", "xp", 0, err)
	}

	return total, nil
}

func (s *PostgresStore) UserSetting(ctx context.Context, user, guild, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM user_settings WHERE "user" = $1 AND guild = $2 AND setting = $3`,
		user, guild, name,
	).Scan(&value)
	if err = notFound(err); err != nil && err != ErrNotFound {
		return "", wrapErr("load", "user setting", 0, err)
	}
	return value, err
}

func (s *PostgresStore) SetUserSetting(ctx context.Context, user, guild, name, value string) error {
	query := `
		INSERT INTO user_settings ("user", guild, setting, value) VALUES ($1, $2, $3, $4)
		ON CONFLICT ("user", guild, setting) DO UPDATE SET value = EXCLUDED.value
	`
	_, err := s.exec(ctx, query, user, guild, name, value)
	return wrapErr("save", "user setting", 0, err)
}

func (s *PostgresStore) UsersWithSetting(ctx context.Context, guild, name, value string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT "user" FROM user_settings WHERE guild = $1 AND setting = $2 AND value = $3 ORDER BY "user"`,
		guild, name, value,
	)
	if err != nil {
		return nil, wrapErr("list", "user settings", 0, err)
	}
	defer s.closeRows(rows)

	var users []string
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func (s *PostgresStore) GuildSetting(ctx context.Context, guild, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM guild_settings WHERE guild = $1 AND setting = $2`, guild, name,
	).Scan(&value)
	if err = notFound(err); err != nil && err != ErrNotFound {
		return "", wrapErr("load", "guild setting", 0, err)
	}
	return value, err
}

func (s *PostgresStore) GetRecord(ctx context.Context, user, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM user_records WHERE "user" = $1 AND record = $2`, user, name,
	).Scan(&value)
	if err = notFound(err); err != nil && err != ErrNotFound {
		return 0, wrapErr("load", "record", 0, err)
	}
	return value, err
}

func (s *PostgresStore) SetRecord(ctx context.Context, user, name string, value int64) error {
	query := `
		INSERT INTO user_records ("user", record, value) VALUES ($1, $2, $3)
		ON CONFLICT ("user", record) DO UPDATE SET value = EXCLUDED.value
	`
	_, err := s.exec(ctx, query, user, name, value)
	return wrapErr("save", "record", 0, err)
}
