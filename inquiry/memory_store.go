package inquiry

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local Store. It backs tests and the CLI when no
// database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]Inquiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]Inquiry)}
}

func copyInquiry(inq Inquiry) Inquiry {
	inq.Status = CloneStatus(inq.Status)
	return inq
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (Inquiry, error) {
	if err := ctx.Err(); err != nil {
		return Inquiry{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	inq, ok := m.rows[id]
	if !ok {
		return Inquiry{}, NotFound(id)
	}
	return copyInquiry(inq), nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, label Label) ([]Inquiry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Inquiry
	for _, inq := range m.rows {
		if inq.Status.Label() == label {
			out = append(out, copyInquiry(inq))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Create(ctx context.Context, details Details, status Status) (Inquiry, error) {
	if err := ctx.Err(); err != nil {
		return Inquiry{}, err
	}
	if status == nil {
		return Inquiry{}, errorf(ErrInvalidStatus, "nil status")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	inq := Inquiry{ID: m.nextID, Details: details, Status: CloneStatus(status), Version: 1}
	m.rows[inq.ID] = inq
	return copyInquiry(inq), nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, id, expectedVersion int64, next Status) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if next == nil {
		return 0, errorf(ErrInvalidStatus, "nil status")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.rows[id]
	if !ok {
		return 0, NotFound(id)
	}
	if inq.Version != expectedVersion {
		return 0, VersionConflict(id, expectedVersion)
	}
	inq.Status = CloneStatus(next)
	inq.Version++
	m.rows[id] = inq
	return inq.Version, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.rows[id]
	if !ok {
		return NotFound(id)
	}
	if inq.Version != expectedVersion {
		return VersionConflict(id, expectedVersion)
	}
	delete(m.rows, id)
	return nil
}
