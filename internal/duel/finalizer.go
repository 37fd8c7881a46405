package duel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/quizduel/internal/matchstore"
	"github.com/park285/quizduel/internal/obslog"
	"github.com/park285/quizduel/internal/session"
	"github.com/park285/quizduel/internal/sessionid"
)

// Finalizer turns a fully finished session into one durable match record.
type Finalizer struct {
	sessions Sessions
	matches  matchstore.Repository
	now      func() time.Time
}

func NewFinalizer(s Sessions, repo matchstore.Repository) *Finalizer {
	return &Finalizer{sessions: s, matches: repo, now: time.Now}
}

// Finalize persists the result for id and evicts the session. When persisting fails the
// session is kept and queued for retry; the returned error is the persist error.
func (f *Finalizer) Finalize(ctx context.Context, id string) error {
	p1, p2, err := sessionid.Resolve(id)
	if err != nil {
		return err
	}
	meta, err := f.sessions.Meta(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		obslog.L().Warn("duel_finalize_session_gone", zap.String("game_id", id))
		// leftover guard or finished set would block the next pairing
		_ = f.sessions.Evict(ctx, id)
		_ = f.sessions.ClearRetry(ctx, id)
		return err
	}
	if err != nil {
		return f.fail(ctx, id, err)
	}
	scores, err := f.sessions.Scores(ctx, id)
	if err != nil {
		return f.fail(ctx, id, err)
	}

	match := &matchstore.Match{
		MatchKey:  meta.MatchKey,
		SessionID: id,
		Player1:   p1,
		Player2:   p2,
		Score1:    scores[p1],
		Score2:    scores[p2],
		Winner:    matchstore.Winner(p1, scores[p1], p2, scores[p2]),
		StartedAt: meta.CreatedAt,
		PlayedAt:  f.now().UTC(),
	}
	if _, err := f.matches.SaveMatch(ctx, match); err != nil && !errors.Is(err, matchstore.ErrDuplicateMatch) {
		return f.fail(ctx, id, err)
	}

	if err := f.sessions.Evict(ctx, id); err != nil {
		obslog.L().Warn("duel_evict_error", zap.String("game_id", id), zap.Error(err))
	}
	if err := f.sessions.ClearRetry(ctx, id); err != nil {
		obslog.L().Warn("duel_retry_clear_error", zap.String("game_id", id), zap.Error(err))
	}

	winner := ""
	if match.Winner != nil {
		winner = *match.Winner
	}
	obslog.L().Info("duel_match_finalized",
		zap.String("game_id", id),
		zap.String("player1", p1),
		zap.Int("score1", match.Score1),
		zap.String("player2", p2),
		zap.Int("score2", match.Score2),
		zap.String("winner", winner),
	)
	return nil
}

func (f *Finalizer) fail(ctx context.Context, id string, cause error) error {
	obslog.L().Error("duel_finalize_error", zap.String("game_id", id), zap.Error(cause))
	if err := f.sessions.MarkRetry(ctx, id); err != nil {
		obslog.L().Error("duel_finalize_retry_mark_error", zap.String("game_id", id), zap.Error(err))
	}
	return fmt.Errorf("finalize %s: %w", id, cause)
}
