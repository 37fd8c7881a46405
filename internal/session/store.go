package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/park285/quizduel/internal/sessionid"
)

const defaultTTL = 2 * time.Hour

var (
	ErrNotFound       = errors.New("session not found")
	ErrNotParticipant = errors.New("player is not part of session")
	ErrPlayerFinished = errors.New("player already finished")
	// ErrPendingFinalize means an earlier duel under the same id finished but is not yet
	// persisted. Finalize it before pairing the two players again.
	ErrPendingFinalize = errors.New("previous session awaiting finalize")
)

// Meta is written once at pairing time.
type Meta struct {
	ID        string
	Player1   string
	Player2   string
	MatchKey  string
	CreatedAt time.Time
}

// FinishResult reports the finished count after MarkFinished. Tripped is true for exactly
// one call per session: the one that completed the finish barrier.
type FinishResult struct {
	Count   int
	Tripped bool
}

// Store keeps live duel state in Redis. Every mutating call is a single server-side step.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func keyMeta(id string) string     { return "session:" + id }
func keyScore(id string) string    { return "score:" + id }
func keyFinished(id string) string { return "finished:" + id }
func keyAnswered(id string) string { return "answered:" + id }
func keyFinalize(id string) string { return "finalize:" + id }
func keyRetry() string             { return "finalize:retry" }

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[5]) == 1 or redis.call('ZSCORE', KEYS[6], ARGV[6]) then return 0 end
redis.call('DEL', KEYS[1], KEYS[2], KEYS[3], KEYS[4])
redis.call('HSET', KEYS[1], 'player1', ARGV[1], 'player2', ARGV[2], 'match_key', ARGV[3], 'created_at', ARGV[4])
redis.call('HSET', KEYS[2], ARGV[1], 0, ARGV[2], 0)
redis.call('EXPIRE', KEYS[1], ARGV[5])
redis.call('EXPIRE', KEYS[2], ARGV[5])
return 1
`)

// Create materializes a session for a fresh pairing, clearing anything left by an earlier
// duel between the same two players. It returns ErrPendingFinalize while that earlier duel
// holds the finalize guard or sits in the retry set.
func (s *Store) Create(ctx context.Context, id, p1, p2 string) (*Meta, error) {
	if !sessionid.Has(id, p1) || !sessionid.Has(id, p2) || p1 == p2 {
		return nil, ErrNotParticipant
	}
	meta := &Meta{ID: id, Player1: p1, Player2: p2, MatchKey: uuid.NewString(), CreatedAt: time.Now().UTC()}

	keys := []string{keyMeta(id), keyScore(id), keyFinished(id), keyAnswered(id), keyFinalize(id), keyRetry()}
	ok, err := createScript.Run(ctx, s.rdb, keys,
		p1, p2, meta.MatchKey, meta.CreatedAt.UnixMilli(), int(s.ttl.Seconds()), id,
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}
	if ok == 0 {
		return nil, ErrPendingFinalize
	}
	return meta, nil
}

// Meta loads the pairing record, or ErrNotFound once evicted or expired.
func (s *Store) Meta(ctx context.Context, id string) (*Meta, error) {
	vals, err := s.rdb.HGetAll(ctx, keyMeta(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	m := &Meta{ID: id, Player1: vals["player1"], Player2: vals["player2"], MatchKey: vals["match_key"]}
	if ms, err := strconv.ParseInt(vals["created_at"], 10, 64); err == nil {
		m.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return m, nil
}

var addScoreScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('SISMEMBER', KEYS[3], ARGV[1]) == 1 then return -2 end
return redis.call('HINCRBY', KEYS[2], ARGV[1], ARGV[2])
`)

// AddScore atomically adds delta to player's total and returns the new total.
func (s *Store) AddScore(ctx context.Context, id, player string, delta int) (int, error) {
	if !sessionid.Has(id, player) {
		return 0, ErrNotParticipant
	}
	n, err := addScoreScript.Run(ctx, s.rdb, []string{keyMeta(id), keyScore(id), keyFinished(id)}, player, delta).Int64()
	if err != nil {
		return 0, fmt.Errorf("add score %s/%s: %w", id, player, err)
	}
	return scriptStatus(n)
}

var addScoreOnceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return {-1, 0} end
if redis.call('SISMEMBER', KEYS[3], ARGV[1]) == 1 then return {-2, 0} end
if redis.call('SADD', KEYS[4], ARGV[3]) == 0 then
  local cur = redis.call('HGET', KEYS[2], ARGV[1]) or '0'
  return {tonumber(cur), 0}
end
redis.call('EXPIRE', KEYS[4], ARGV[4])
return {redis.call('HINCRBY', KEYS[2], ARGV[1], ARGV[2]), 1}
`)

// AddScoreOnce scores questionID for player only the first time it is credited in this
// session. applied is false when the question was already credited; total is then unchanged.
func (s *Store) AddScoreOnce(ctx context.Context, id, player string, questionID int64, delta int) (total int, applied bool, err error) {
	if !sessionid.Has(id, player) {
		return 0, false, ErrNotParticipant
	}
	member := strconv.FormatInt(questionID, 10) + ":" + player
	keys := []string{keyMeta(id), keyScore(id), keyFinished(id), keyAnswered(id)}
	res, err := addScoreOnceScript.Run(ctx, s.rdb, keys, player, delta, member, int(s.ttl.Seconds())).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("add score %s/%s: %w", id, player, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("add score %s/%s: unexpected reply %v", id, player, res)
	}
	total, err = scriptStatus(res[0])
	return total, err == nil && res[1] == 1, err
}

// Scores returns a snapshot with both players present (0 when never scored).
func (s *Store) Scores(ctx context.Context, id string) (map[string]int, error) {
	p1, p2, err := sessionid.Resolve(id)
	if err != nil {
		return nil, err
	}
	vals, err := s.rdb.HGetAll(ctx, keyScore(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load scores %s: %w", id, err)
	}
	out := map[string]int{p1: 0, p2: 0}
	for k, v := range vals {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			return nil, fmt.Errorf("score %s/%s: %w", id, k, perr)
		}
		out[k] = n
	}
	return out, nil
}

var markFinishedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return {-1, 0} end
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('EXPIRE', KEYS[2], ARGV[2])
local n = redis.call('SCARD', KEYS[2])
local tripped = 0
if n >= 2 and redis.call('SET', KEYS[3], '1', 'NX', 'EX', ARGV[2]) then
  tripped = 1
end
return {n, tripped}
`)

// MarkFinished adds player to the finished set. The call whose insert completes the set
// wins the finalize guard; every other call, including repeats, sees Tripped=false.
func (s *Store) MarkFinished(ctx context.Context, id, player string) (FinishResult, error) {
	if !sessionid.Has(id, player) {
		return FinishResult{}, ErrNotParticipant
	}
	keys := []string{keyMeta(id), keyFinished(id), keyFinalize(id)}
	res, err := markFinishedScript.Run(ctx, s.rdb, keys, player, int(s.ttl.Seconds())).Int64Slice()
	if err != nil {
		return FinishResult{}, fmt.Errorf("mark finished %s/%s: %w", id, player, err)
	}
	if len(res) != 2 {
		return FinishResult{}, fmt.Errorf("mark finished %s/%s: unexpected reply %v", id, player, res)
	}
	if res[0] < 0 {
		return FinishResult{}, ErrNotFound
	}
	return FinishResult{Count: int(res[0]), Tripped: res[1] == 1}, nil
}

// Evict drops all live state for the session.
func (s *Store) Evict(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, keyMeta(id), keyScore(id), keyFinished(id), keyAnswered(id), keyFinalize(id)).Err(); err != nil {
		return fmt.Errorf("evict %s: %w", id, err)
	}
	return nil
}

// MarkRetry records a session whose finalization must be retried.
func (s *Store) MarkRetry(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.ZAddNX(ctx, keyRetry(), redis.Z{Score: float64(time.Now().Unix()), Member: id})
	// 재시도 대기 중에는 세션이 만료되면 안 됨
	pipe.Persist(ctx, keyMeta(id))
	pipe.Persist(ctx, keyScore(id))
	pipe.Persist(ctx, keyFinished(id))
	pipe.Persist(ctx, keyFinalize(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark retry %s: %w", id, err)
	}
	return nil
}

// PendingRetries lists sessions awaiting finalize retry, oldest first.
func (s *Store) PendingRetries(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.rdb.ZRange(ctx, keyRetry(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list retries: %w", err)
	}
	return ids, nil
}

func (s *Store) ClearRetry(ctx context.Context, id string) error {
	if err := s.rdb.ZRem(ctx, keyRetry(), id).Err(); err != nil {
		return fmt.Errorf("clear retry %s: %w", id, err)
	}
	return nil
}

func scriptStatus(n int64) (int, error) {
	switch n {
	case -1:
		return 0, ErrNotFound
	case -2:
		return 0, ErrPlayerFinished
	}
	return int(n), nil
}
