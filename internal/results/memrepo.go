package results

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// memrepo keeps records in process memory, used when no database is configured.
type memrepo struct {
	mu    sync.RWMutex
	games map[string]Record
	max   int
}

// NewMemoryRepository keeps at most max records (0 = 1000), dropping the oldest.
func NewMemoryRepository(max int) Repository {
	if max <= 0 {
		max = 1000
	}
	return &memrepo{games: make(map[string]Record), max: max}
}

func (m *memrepo) Save(_ context.Context, rec Record) error {
	rec.Moves = append([]string(nil), rec.Moves...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[rec.GameID] = rec
	for len(m.games) > m.max {
		oldest := ""
		for id, g := range m.games {
			if oldest == "" || g.EndedAt.Before(m.games[oldest].EndedAt) {
				oldest = id
			}
		}
		delete(m.games, oldest)
	}
	return nil
}

func (m *memrepo) Recent(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	items := make([]Record, 0, len(m.games))
	for _, g := range m.games {
		items = append(items, g)
	}
	m.mu.RUnlock()
	// EndedAt desc, then id desc
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].GameID > items[j].GameID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) Get(_ context.Context, gameID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[strings.TrimSpace(gameID)]
	if !ok {
		return nil, nil
	}
	cp := g
	cp.Moves = append([]string(nil), g.Moves...)
	return &cp, nil
}

func (m *memrepo) Close() error { return nil }
