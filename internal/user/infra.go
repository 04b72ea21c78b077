package user

import (
	"context"
	"database/sql"
	"errors"
)

type infra struct {
	db *sql.DB
}

func NewInfra(db *sql.DB) Infra {
	return &infra{db: db}
}

func (i *infra) Migrate(ctx context.Context) error {
	_, err := i.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			language TEXT NOT NULL DEFAULT 'en',
			voice    TEXT NOT NULL DEFAULT 'orig',
			is_admin BOOLEAN NOT NULL DEFAULT FALSE
		)
	`)
	return err
}

func (i *infra) Get(ctx context.Context, username string) (*User, error) {
	var u User
	err := i.db.QueryRowContext(ctx, `
		SELECT username, language, voice, is_admin
		FROM users
		WHERE username = $1
	`, username).Scan(&u.Username, &u.Language, &u.Voice, &u.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Insert adds the row only when absent and reports whether it did.
func (i *infra) Insert(ctx context.Context, u User) (bool, error) {
	res, err := i.db.ExecContext(ctx, `
		INSERT INTO users (username, language, voice, is_admin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO NOTHING
	`, u.Username, u.Language, u.Voice, u.IsAdmin)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (i *infra) Replace(ctx context.Context, u User) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO users (username, language, voice, is_admin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE
		SET language = EXCLUDED.language,
		    voice    = EXCLUDED.voice,
		    is_admin = EXCLUDED.is_admin
	`, u.Username, u.Language, u.Voice, u.IsAdmin)
	return err
}

func (i *infra) SetLanguage(ctx context.Context, username string, lang Language) error {
	_, err := i.db.ExecContext(ctx, `
		UPDATE users SET language = $1 WHERE username = $2
	`, lang, username)
	return err
}

func (i *infra) SetVoice(ctx context.Context, username string, voice VoiceMode) error {
	_, err := i.db.ExecContext(ctx, `
		UPDATE users SET voice = $1 WHERE username = $2
	`, voice, username)
	return err
}

func (i *infra) Delete(ctx context.Context, username string) error {
	res, err := i.db.ExecContext(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (i *infra) List(ctx context.Context) ([]User, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT username, language, voice, is_admin
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Username, &u.Language, &u.Voice, &u.IsAdmin); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
