package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/amiskov/authgate/pkg/session"
)

// MemoryRepo keeps records in process; sessions survive store eviction but
// not a restart.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]session.Record
	now     func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		records: make(map[string]session.Record),
		now:     time.Now,
	}
}

func (m *MemoryRepo) Save(_ context.Context, rec *session.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = *rec
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, sessionID string) (*session.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sessionID]
	if !ok || rec.Expired(m.now()) {
		return nil, session.ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryRepo) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	return nil
}

func (m *MemoryRepo) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for id, rec := range m.records {
		if rec.Expired(now) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}
