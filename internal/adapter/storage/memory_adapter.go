package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/batch-allocation/internal/core/domain"
)

// MemoryAdapter is an in-process BatchRepository. It stores copies so callers
// cannot mutate stored state behind its back.
type MemoryAdapter struct {
	mu      sync.RWMutex
	batches map[string]*domain.Batch
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{batches: make(map[string]*domain.Batch)}
}

func (m *MemoryAdapter) Add(_ context.Context, batch *domain.Batch) error {
	stored, err := clone(batch)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batch.Reference] = stored
	return nil
}

func (m *MemoryAdapter) Get(_ context.Context, reference string) (*domain.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[reference]
	if !ok {
		return nil, nil
	}
	return clone(b)
}

// List returns the stored batches ordered by reference.
func (m *MemoryAdapter) List(_ context.Context) ([]*domain.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	batches := make([]*domain.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		c, err := clone(b)
		if err != nil {
			return nil, err
		}
		batches = append(batches, c)
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].Reference < batches[j].Reference
	})
	return batches, nil
}

func clone(b *domain.Batch) (*domain.Batch, error) {
	return domain.RestoreBatch(b.Reference, b.SKU, b.Qty(), b.ETA(), b.OrderLines())
}
