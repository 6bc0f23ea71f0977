package analytics

import (
	"context"
	"sort"
	"sync"
	"time"
)

type rowKey struct {
	apiKeyID string
	day      time.Time
}

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[rowKey]*Counter
	now  func() time.Time
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[rowKey]*Counter),
		now:  time.Now,
	}
}

// Increment implements Store.
func (m *MemoryStore) Increment(_ context.Context, apiKeyID, ownerID string, day time.Time, field Field) error {
	if err := checkField(field); err != nil {
		return err
	}
	day = Day(day)

	m.mu.Lock()
	defer m.mu.Unlock()

	k := rowKey{apiKeyID: apiKeyID, day: day}
	row, ok := m.rows[k]
	if !ok {
		row = &Counter{APIKeyID: apiKeyID, OwnerID: ownerID, Date: day}
		m.rows[k] = row
	}
	row.add(field)
	row.LastUpdated = m.now()
	return nil
}

// Range implements Store.
func (m *MemoryStore) Range(_ context.Context, keyIDs []string, since time.Time) ([]Counter, error) {
	wanted := make(map[string]bool, len(keyIDs))
	for _, id := range keyIDs {
		wanted[id] = true
	}
	since = Day(since)

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Counter, 0)
	for k, row := range m.rows {
		if wanted[k.apiKeyID] && !k.day.Before(since) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].APIKeyID < out[j].APIKeyID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}
