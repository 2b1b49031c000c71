package repo

import (
	"context"
	"sync"

	"chatgate/internal/domain"
)

// MemoryStore is a process-local UserStore for development runs and tests.
// Its state does not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]domain.UserRecord
	// FailWrites makes every Save/Put fail with domain.ErrStoreIO.
	FailWrites bool
}

// NewMemoryStore seeds a MemoryStore with the given records.
func NewMemoryStore(seed ...domain.UserRecord) *MemoryStore {
	s := &MemoryStore{records: map[string]domain.UserRecord{}}
	for _, rec := range seed {
		s.records[rec.UserID] = rec.Clone()
	}
	return s
}

func (s *MemoryStore) Load(ctx context.Context) (map[string]domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.UserRecord, len(s.records))
	for id, rec := range s.records {
		out[id] = rec.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, records map[string]domain.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return domain.ErrStoreIO
	}
	s.records = make(map[string]domain.UserRecord, len(records))
	for id, rec := range records {
		s.records[id] = rec.Clone()
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := rec.Clone()
	return &out, nil
}

func (s *MemoryStore) Put(ctx context.Context, record domain.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return domain.ErrStoreIO
	}
	s.records[record.UserID] = record.Clone()
	return nil
}

var _ domain.UserStore = (*MemoryStore)(nil)
