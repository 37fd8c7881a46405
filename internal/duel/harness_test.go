package duel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/park285/quizduel/internal/matchqueue"
	"github.com/park285/quizduel/internal/matchstore"
	"github.com/park285/quizduel/internal/questions"
	"github.com/park285/quizduel/internal/registry"
	"github.com/park285/quizduel/internal/session"
)

const waitTimeout = 2 * time.Second

// fakeConn is an in-memory Transport. Tests push client frames with send and read server
// frames with next/expect.
type fakeConn struct {
	id     string
	in     chan []byte
	out    chan map[string]any
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		id:     uuid.NewString(),
		in:     make(chan []byte, 16),
		out:    make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-f.in:
		return b, nil
	case <-f.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) WriteJSON(_ context.Context, v any) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	f.out <- m
	return nil
}

func (f *fakeConn) close() { f.once.Do(func() { close(f.closed) }) }

func (f *fakeConn) send(t *testing.T, v any) {
	t.Helper()
	var raw []byte
	switch x := v.(type) {
	case string:
		raw = []byte(x)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		raw = b
	}
	f.in <- raw
}

func (f *fakeConn) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case m := <-f.out:
		return m
	case <-time.After(waitTimeout):
		t.Fatalf("%s: no message within %s", f.id, waitTimeout)
		return nil
	}
}

// expect returns the next message and fails unless it has the given type.
func (f *fakeConn) expect(t *testing.T, typ string) map[string]any {
	t.Helper()
	m := f.next(t)
	if m["type"] != typ {
		t.Fatalf("%s: got %v, want type %s", f.id, m, typ)
	}
	return m
}

func (f *fakeConn) expectStatus(t *testing.T, msg string) {
	t.Helper()
	m := f.expect(t, "status")
	if m["msg"] != msg {
		t.Fatalf("%s: status %q, want %q", f.id, m["msg"], msg)
	}
}

func (f *fakeConn) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case m := <-f.out:
		t.Fatalf("%s: unexpected message %v", f.id, m)
	case <-time.After(d):
	}
}

type harness struct {
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	queue   *matchqueue.Queue
	store   *session.Store
	repo    *flakyRepo
	bank    *questions.Bank
	fin     *Finalizer
	manager *Manager
	wg      sync.WaitGroup
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bank, err := questions.NewBank([]questions.Question{
		{ID: 1, Title: "q1", Options: map[string]string{"A": "a1", "B": "b1", "C": "c1", "D": "d1"}, CorrectOption: "A"},
		{ID: 2, Title: "q2", Options: map[string]string{"A": "a2", "B": "b2", "C": "c2", "D": "d2"}, CorrectOption: "B"},
		{ID: 3, Title: "q3", Options: map[string]string{"A": "a3", "B": "b3", "C": "c3", "D": "d3"}, CorrectOption: "C"},
	})
	if err != nil {
		t.Fatalf("bank: %v", err)
	}

	h := &harness{
		mr:    mr,
		rdb:   rdb,
		queue: matchqueue.New(rdb),
		store: session.NewStore(rdb, time.Hour),
		repo:  &flakyRepo{Repository: matchstore.NewMemoryRepository()},
		bank:  bank,
	}
	h.fin = NewFinalizer(h.store, h.repo)
	h.useSource(bank)
	t.Cleanup(h.wg.Wait)
	return h
}

func (h *harness) useSource(src questions.Source) {
	h.manager = NewManager(h.queue, h.store, registry.New(), src, h.fin, nil, Options{QuestionCount: 3, TimerPerQuestion: 20})
}

func (h *harness) connect(t *testing.T, player string) *fakeConn {
	t.Helper()
	c := newFakeConn()
	t.Cleanup(c.close)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = h.manager.Serve(context.Background(), player, c)
	}()
	return c
}

// pair connects two players and consumes everything up to both GAME_START messages.
func (h *harness) pair(t *testing.T, a, b string) (*fakeConn, *fakeConn, string) {
	t.Helper()
	ca := h.connect(t, a)
	ca.expectStatus(t, "Finding match...")
	ca.expectStatus(t, "Waiting for opponent...")
	cb := h.connect(t, b)
	cb.expectStatus(t, "Finding match...")
	sa := ca.expect(t, "GAME_START")
	sb := cb.expect(t, "GAME_START")
	if sa["game_id"] != sb["game_id"] {
		t.Fatalf("game ids differ: %v vs %v", sa["game_id"], sb["game_id"])
	}
	return ca, cb, sa["game_id"].(string)
}

// flakyRepo fails SaveMatch while failing is set.
type flakyRepo struct {
	matchstore.Repository
	failing atomic.Bool
	calls   atomic.Int32
}

func (r *flakyRepo) SaveMatch(ctx context.Context, m *matchstore.Match) (int64, error) {
	r.calls.Add(1)
	if r.failing.Load() {
		return 0, errors.New("db unavailable")
	}
	return r.Repository.SaveMatch(ctx, m)
}

func (r *flakyRepo) all(t *testing.T, player string) []*matchstore.Match {
	t.Helper()
	ms, err := r.RecentMatches(context.Background(), player, 0)
	if err != nil {
		t.Fatalf("RecentMatches: %v", err)
	}
	return ms
}

// gatedSource holds Random until release is closed and signals entered when a caller blocks.
type gatedSource struct {
	questions.Source
	entered chan struct{}
	release chan struct{}
}

func newGatedSource(src questions.Source) *gatedSource {
	return &gatedSource{Source: src, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedSource) Random(ctx context.Context, n int) ([]questions.Question, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Source.Random(ctx, n)
}
