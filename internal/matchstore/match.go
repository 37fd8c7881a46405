package matchstore

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateMatch is returned when a match with the same key was already recorded.
var ErrDuplicateMatch = errors.New("match already recorded")

// Match is the durable record of a finished duel.
type Match struct {
	ID        int64
	MatchKey  string
	SessionID string
	Player1   string
	Player2   string
	Score1    int
	Score2    int
	Winner    *string
	StartedAt time.Time
	PlayedAt  time.Time
}

type Repository interface {
	SaveMatch(ctx context.Context, m *Match) (int64, error)
	RecentMatches(ctx context.Context, player string, limit int) ([]*Match, error)
}

// Winner returns the player with the strictly higher score, or nil on a draw.
func Winner(p1 string, s1 int, p2 string, s2 int) *string {
	switch {
	case s1 > s2:
		return &p1
	case s2 > s1:
		return &p2
	default:
		return nil
	}
}
