package questions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Repository reads and writes the questions table.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Random(ctx context.Context, n int) ([]Question, error) {
	if n <= 0 {
		return nil, nil
	}
	const query = `
		SELECT id, title, option_a, option_b, option_c, option_d, correct_option, COALESCE(category, '')
		FROM questions
		ORDER BY random()
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("select random questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0, n)
	for rows.Next() {
		var (
			q          Question
			a, b, c, d string
		)
		if err := rows.Scan(&q.ID, &q.Title, &a, &b, &c, &d, &q.CorrectOption, &q.Category); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Options = map[string]string{"A": a, "B": b, "C": c, "D": d}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func (r *Repository) CorrectOption(ctx context.Context, id int64) (string, bool, error) {
	var opt string
	err := r.db.QueryRowContext(ctx, `SELECT correct_option FROM questions WHERE id = $1`, id).Scan(&opt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select correct option %d: %w", id, err)
	}
	return strings.TrimSpace(opt), true, nil
}

// InsertBatch writes questions in one transaction and returns how many were inserted.
// Invalid questions are skipped.
func (r *Repository) InsertBatch(ctx context.Context, qs []Question) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO questions (title, option_a, option_b, option_c, option_d, correct_option, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, q := range qs {
		q.Normalize()
		if q.Validate() != nil {
			continue
		}
		if _, err := stmt.ExecContext(ctx, q.Title, q.Options["A"], q.Options["B"], q.Options["C"], q.Options["D"], q.CorrectOption, q.Category); err != nil {
			return 0, fmt.Errorf("insert question: %w", err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}
