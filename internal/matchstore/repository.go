package matchstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveMatch(ctx context.Context, m *Match) (int64, error) {
	if m == nil {
		return 0, fmt.Errorf("nil match payload")
	}
	playedAt := m.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now()
	}
	var startedAt sql.NullTime
	if !m.StartedAt.IsZero() {
		startedAt = sql.NullTime{Time: m.StartedAt, Valid: true}
	}
	var winner sql.NullString
	if m.Winner != nil {
		winner = sql.NullString{String: *m.Winner, Valid: true}
	}

	const query = `
		INSERT INTO matches (
			match_key,
			session_id,
			player1,
			player2,
			score1,
			score2,
			winner,
			started_at,
			played_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (match_key) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err := r.db.QueryRowContext(
		ctx,
		query,
		m.MatchKey,
		m.SessionID,
		m.Player1,
		m.Player2,
		m.Score1,
		m.Score2,
		winner,
		startedAt,
		playedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateMatch
	}
	if err != nil {
		return 0, fmt.Errorf("insert match: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) RecentMatches(ctx context.Context, player string, limit int) ([]*Match, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, match_key, session_id, player1, player2, score1, score2, winner, started_at, played_at
		FROM matches
		WHERE player1 = $1 OR player2 = $1
		ORDER BY played_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, player, limit)
	if err != nil {
		return nil, fmt.Errorf("select matches: %w", err)
	}
	defer rows.Close()

	out := make([]*Match, 0, limit)
	for rows.Next() {
		var (
			m         Match
			winner    sql.NullString
			startedAt sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.MatchKey, &m.SessionID, &m.Player1, &m.Player2, &m.Score1, &m.Score2, &winner, &startedAt, &m.PlayedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if winner.Valid {
			w := winner.String
			m.Winner = &w
		}
		if startedAt.Valid {
			m.StartedAt = startedAt.Time
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}
