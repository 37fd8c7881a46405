package matchqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/park285/quizduel/internal/sessionid"
)

const defaultKey = "matchmaking_queue"

type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusMatchFound Status = "MATCH_FOUND"
)

var ErrInvalidPlayer = errors.New("invalid player identity")

// MatchResult is WAITING, or MATCH_FOUND with the two oldest players in FIFO order.
type MatchResult struct {
	Status    Status
	SessionID string
	Players   [2]string
}

// enqueueScript runs remove → push → length check → pair pop as one server-side step,
// so two concurrent enqueues can never both see len ≥ 2 and pop overlapping entries.
var enqueueScript = redis.NewScript(`
local key = KEYS[1]
local player = ARGV[1]
redis.call('LREM', key, 0, player)
redis.call('RPUSH', key, player)
if redis.call('LLEN', key) < 2 then
  return {}
end
local p1 = redis.call('LPOP', key)
local p2 = redis.call('LPOP', key)
if p1 == p2 then
  redis.call('LPUSH', key, p1)
  return {}
end
return {p1, p2}
`)

// Queue is the Redis list backed FIFO waiting list. One entry per player at any time.
type Queue struct {
	rdb *redis.Client
	key string
}

func New(rdb *redis.Client) *Queue { return &Queue{rdb: rdb, key: defaultKey} }

// WithKey returns a queue on a different list key, e.g. for isolated test namespaces.
func (q *Queue) WithKey(key string) *Queue {
	if strings.TrimSpace(key) == "" {
		return q
	}
	return &Queue{rdb: q.rdb, key: key}
}

// Enqueue inserts player (moving any existing entry to the tail) and pairs the two oldest
// entries when at least two are waiting.
func (q *Queue) Enqueue(ctx context.Context, player string) (MatchResult, error) {
	if strings.TrimSpace(player) == "" {
		return MatchResult{}, ErrInvalidPlayer
	}
	pair, err := enqueueScript.Run(ctx, q.rdb, []string{q.key}, player).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return MatchResult{}, fmt.Errorf("enqueue %s: %w", player, err)
	}
	if len(pair) != 2 {
		return MatchResult{Status: StatusWaiting}, nil
	}
	return MatchResult{
		Status:    StatusMatchFound,
		SessionID: sessionid.New(pair[0], pair[1]),
		Players:   [2]string{pair[0], pair[1]},
	}, nil
}

// Remove deletes every entry for player and reports whether anything was removed.
func (q *Queue) Remove(ctx context.Context, player string) (bool, error) {
	n, err := q.rdb.LRem(ctx, q.key, 0, player).Result()
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", player, err)
	}
	return n > 0, nil
}

// Waiting returns a snapshot of the queue, oldest first.
func (q *Queue) Waiting(ctx context.Context) ([]string, error) {
	return q.rdb.LRange(ctx, q.key, 0, -1).Result()
}
