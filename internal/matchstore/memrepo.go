package matchstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memrepo keeps matches in process memory. Used when no DB is configured and in tests.
type memrepo struct {
	mu sync.RWMutex

	nextID  int64
	byKey   map[string]*Match
	byMatch []*Match
}

func NewMemoryRepository() Repository {
	return &memrepo{byKey: make(map[string]*Match)}
}

func (m *memrepo) SaveMatch(_ context.Context, match *Match) (int64, error) {
	if match == nil {
		return 0, ErrDuplicateMatch
	}
	key := strings.TrimSpace(match.MatchKey)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byKey[key]; exists {
		return 0, ErrDuplicateMatch
	}
	m.nextID++
	cp := *match
	cp.ID = m.nextID
	if cp.PlayedAt.IsZero() {
		cp.PlayedAt = time.Now()
	}
	m.byKey[key] = &cp
	m.byMatch = append(m.byMatch, &cp)
	return cp.ID, nil
}

func (m *memrepo) RecentMatches(_ context.Context, player string, limit int) ([]*Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*Match, 0)
	for _, x := range m.byMatch {
		if x.Player1 == player || x.Player2 == player {
			cp := *x
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].PlayedAt.Equal(items[j].PlayedAt) {
			return items[i].PlayedAt.After(items[j].PlayedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
