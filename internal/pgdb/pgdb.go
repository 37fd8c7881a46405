package pgdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres with the pool settings shared by every repository.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS questions (
	id             BIGSERIAL PRIMARY KEY,
	title          TEXT NOT NULL,
	option_a       TEXT NOT NULL,
	option_b       TEXT NOT NULL,
	option_c       TEXT NOT NULL,
	option_d       TEXT NOT NULL,
	correct_option TEXT NOT NULL,
	category       TEXT
);
CREATE INDEX IF NOT EXISTS questions_category_idx ON questions (category);

CREATE TABLE IF NOT EXISTS matches (
	id          BIGSERIAL PRIMARY KEY,
	match_key   TEXT NOT NULL UNIQUE,
	session_id  TEXT NOT NULL,
	player1     TEXT NOT NULL,
	player2     TEXT NOT NULL,
	score1      INTEGER NOT NULL DEFAULT 0,
	score2      INTEGER NOT NULL DEFAULT 0,
	winner      TEXT,
	started_at  TIMESTAMPTZ,
	played_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS matches_player1_idx ON matches (player1);
CREATE INDEX IF NOT EXISTS matches_player2_idx ON matches (player2);
`

// EnsureSchema creates the questions and matches tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
