package recorder

import (
	"context"
	"sort"
	"sync"
	"time"

	"StageSentinel/internal/model"
)

// MemoryStore keeps alerts in process memory. Used when no database is
// configured and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	alerts []model.Alert
	keys   map[string]struct{}
	nextID int64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]struct{}), now: time.Now}
}

func (m *MemoryStore) Insert(_ context.Context, a *model.Alert) (*model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.IdempotencyKey != "" {
		if _, ok := m.keys[a.IdempotencyKey]; ok {
			return nil, ErrDuplicate
		}
		m.keys[a.IdempotencyKey] = struct{}{}
	}
	m.nextID++
	stored := *a
	stored.ID = m.nextID
	stored.Sent = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now()
	}
	m.alerts = append(m.alerts, stored)
	return &stored, nil
}

func (m *MemoryStore) FindRecent(_ context.Context, f Filter) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Alert
	for i := range m.alerts {
		if f.match(&m.alerts[i]) {
			out = append(out, m.alerts[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkSent(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range m.alerts {
		if _, ok := set[m.alerts[i].ID]; ok {
			m.alerts[i].Sent = true
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
