package keys

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps key records in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// Ensure MemoryRepository implements Repository interface
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// Lookup returns a copy of the record for keyID.
func (m *MemoryRepository) Lookup(_ context.Context, keyID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return cloneRecord(rec), nil
}

// Insert stores rec; the key id must be new.
func (m *MemoryRepository) Insert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.KeyID]; ok {
		return ErrKeyExists
	}
	m.records[rec.KeyID] = *cloneRecord(*rec)
	return nil
}

// UpdateSecret replaces the secret hash and reactivates the key.
func (m *MemoryRepository) UpdateSecret(_ context.Context, keyID, secretHash string, rotatedAt time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	rec.SecretHash = secretHash
	rec.Status = StatusActive
	rec.RotatedAt = &rotatedAt
	rec.UpdatedAt = m.now()
	m.records[keyID] = rec
	return cloneRecord(rec), nil
}

// UpdateStatus sets the status of keyID.
func (m *MemoryRepository) UpdateStatus(_ context.Context, keyID string, status Status) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	rec.Status = status
	rec.UpdatedAt = m.now()
	m.records[keyID] = rec
	return cloneRecord(rec), nil
}

// ListByOwner returns the owner's keys, newest first.
func (m *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0)
	for _, rec := range m.records {
		if rec.OwnerID == ownerID {
			out = append(out, *cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].KeyID < out[j].KeyID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func cloneRecord(rec Record) *Record {
	rec.Scopes = append([]string(nil), rec.Scopes...)
	if rec.RotatedAt != nil {
		t := *rec.RotatedAt
		rec.RotatedAt = &t
	}
	return &rec
}
