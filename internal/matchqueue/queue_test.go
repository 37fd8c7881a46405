package matchqueue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/quizduel/internal/sessionid"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb)
}

func TestEnqueueSoloWaits(t *testing.T) {
	q := newTestQueue(t)
	res, err := q.Enqueue(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if res.Status != StatusWaiting {
		t.Fatalf("status = %s, want WAITING", res.Status)
	}
}

func TestEnqueuePairsInFIFOOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, "alice"); err != nil {
		t.Fatalf("Enqueue alice: %v", err)
	}
	res, err := q.Enqueue(ctx, "bob")
	if err != nil {
		t.Fatalf("Enqueue bob: %v", err)
	}
	if res.Status != StatusMatchFound {
		t.Fatalf("status = %s, want MATCH_FOUND", res.Status)
	}
	if res.Players != [2]string{"alice", "bob"} {
		t.Fatalf("players = %v", res.Players)
	}
	if res.SessionID != sessionid.New("bob", "alice") {
		t.Fatalf("session id %q not order independent", res.SessionID)
	}
	left, _ := q.Waiting(ctx)
	if len(left) != 0 {
		t.Fatalf("queue should be empty after pairing, got %v", left)
	}
}

func TestReenqueueDoesNotSelfMatch(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := q.Enqueue(ctx, "alice")
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if res.Status != StatusWaiting {
			t.Fatalf("re-enqueue #%d paired alice with herself: %+v", i, res)
		}
	}
	left, _ := q.Waiting(ctx)
	if len(left) != 1 {
		t.Fatalf("expected single entry, got %v", left)
	}
}

func TestReenqueueMovesToTail(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	// a, then a again: still one entry. b pairs with a.
	_, _ = q.Enqueue(ctx, "a")
	_, _ = q.Enqueue(ctx, "a")
	res, err := q.Enqueue(ctx, "b")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if res.Players != [2]string{"a", "b"} {
		t.Fatalf("players = %v", res.Players)
	}
}

func TestCancelThenSoloEnqueueWaits(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, "alice")
	removed, err := q.Remove(ctx, "alice")
	if err != nil || !removed {
		t.Fatalf("Remove: removed=%v err=%v", removed, err)
	}
	res, err := q.Enqueue(ctx, "bob")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if res.Status != StatusWaiting {
		t.Fatalf("bob paired with cancelled player: %+v", res)
	}
	removed, _ = q.Remove(ctx, "carol")
	if removed {
		t.Fatalf("Remove of absent player reported true")
	}
}

func TestEnqueueRejectsBlankPlayer(t *testing.T) {
	q := newTestQueue(t)
	if _, err := q.Enqueue(context.Background(), "  "); err != ErrInvalidPlayer {
		t.Fatalf("err = %v, want ErrInvalidPlayer", err)
	}
}

func TestConcurrentEnqueueNeverDuplicatesOrOverlaps(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	const players = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		matched = map[string]int{}
	)
	for i := 0; i < players; i++ {
		for rep := 0; rep < 2; rep++ {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				res, err := q.Enqueue(ctx, name)
				if err != nil {
					t.Errorf("Enqueue %s: %v", name, err)
					return
				}
				if res.Status != StatusMatchFound {
					return
				}
				if res.Players[0] == res.Players[1] {
					t.Errorf("self match: %v", res.Players)
				}
				mu.Lock()
				matched[res.Players[0]]++
				matched[res.Players[1]]++
				mu.Unlock()
			}(fmt.Sprintf("p%02d", i))
		}
	}
	wg.Wait()

	waiting, err := q.Waiting(ctx)
	if err != nil {
		t.Fatalf("Waiting: %v", err)
	}
	seen := map[string]bool{}
	for _, p := range waiting {
		if seen[p] {
			t.Fatalf("duplicate queue entry for %s: %v", p, waiting)
		}
		seen[p] = true
	}
	// Pairing fires whenever two are waiting, so at most one player can be left over.
	if len(waiting) > 1 {
		t.Fatalf("queue left with %d entries: %v", len(waiting), waiting)
	}
	for p, n := range matched {
		if seen[p] && n > 1 {
			t.Fatalf("%s matched %d times and still queued", p, n)
		}
	}
}
