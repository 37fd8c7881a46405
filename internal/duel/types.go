package duel

import (
	"context"
	"errors"
	"time"

	"github.com/park285/quizduel/internal/matchqueue"
	"github.com/park285/quizduel/internal/registry"
	"github.com/park285/quizduel/internal/session"
)

var ErrInvalidPlayer = errors.New("invalid player identity")

// State is the lifecycle of a single connection.
type State int32

const (
	StateConnecting State = iota
	StateQueued
	StateWaiting
	// StatePairing: popped from the queue, game not started yet.
	StatePairing
	StateInGame
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateQueued:
		return "queued"
	case StateWaiting:
		return "waiting"
	case StatePairing:
		return "pairing"
	case StateInGame:
		return "in_game"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Transport is one client connection. Read blocks for the next text frame and returns an
// error once the peer is gone. WriteJSON must be safe for concurrent callers.
type Transport interface {
	registry.Conn
	Read(ctx context.Context) ([]byte, error)
}

// Queue is the pairing queue.
type Queue interface {
	Enqueue(ctx context.Context, player string) (matchqueue.MatchResult, error)
	Remove(ctx context.Context, player string) (bool, error)
}

// Sessions is the live per-session state.
type Sessions interface {
	Create(ctx context.Context, id, p1, p2 string) (*session.Meta, error)
	Meta(ctx context.Context, id string) (*session.Meta, error)
	AddScoreOnce(ctx context.Context, id, player string, questionID int64, delta int) (int, bool, error)
	Scores(ctx context.Context, id string) (map[string]int, error)
	MarkFinished(ctx context.Context, id, player string) (session.FinishResult, error)
	Evict(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string) error
	PendingRetries(ctx context.Context, limit int64) ([]string, error)
	ClearRetry(ctx context.Context, id string) error
}

// Texts supplies client-facing status strings.
type Texts interface {
	Text(key, fallback string) string
}

type Options struct {
	QuestionCount    int
	TimerPerQuestion int
	PointsPerAnswer  int
	// FinalizeTimeout bounds a finalize triggered from a connection that may be closing.
	FinalizeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.QuestionCount <= 0 {
		o.QuestionCount = 10
	}
	if o.TimerPerQuestion <= 0 {
		o.TimerPerQuestion = 15
	}
	if o.PointsPerAnswer <= 0 {
		o.PointsPerAnswer = 10
	}
	if o.FinalizeTimeout <= 0 {
		o.FinalizeTimeout = 10 * time.Second
	}
	return o
}

const (
	textFinding     = "status.finding"
	textWaiting     = "status.waiting"
	textCancelled   = "status.cancelled"
	textPairing     = "status.pairing"
	textMatchFailed = "status.match_failed"
)

var fallbackTexts = map[string]string{
	textFinding:     "Finding match...",
	textWaiting:     "Waiting for opponent...",
	textCancelled:   "Search Canceled.",
	textPairing:     "Opponent found. Starting match...",
	textMatchFailed: "Could not start the match. Please search again.",
}
