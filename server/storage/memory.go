package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
)

// memoryStore keeps the newest records in process, dropping the oldest
// beyond its limit.
type memoryStore struct {
	mu    sync.RWMutex
	buf   []models.EventRecord
	ids   map[string]bool
	limit int
}

func NewMemory(limit int) Store {
	if limit <= 0 {
		limit = 1000
	}
	return &memoryStore{ids: make(map[string]bool), limit: limit}
}

func (s *memoryStore) Init(context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) SaveEvent(_ context.Context, rec models.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids[rec.EventID] {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, rec.EventID)
	}
	s.ids[rec.EventID] = true

	if len(s.buf) < s.limit {
		s.buf = append(s.buf, rec)
		return nil
	}
	delete(s.ids, s.buf[0].EventID)
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = rec
	return nil
}

func (s *memoryStore) ListEvents(_ context.Context, limit int) ([]models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = clampLimit(limit)
	out := make([]models.EventRecord, 0, limit)
	for i := len(s.buf) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.buf[i])
	}
	return out, nil
}
