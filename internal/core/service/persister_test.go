package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/batch-allocation/internal/core/domain"
)

// Mock BatchRepository
type mockRepo struct {
	mu      sync.Mutex
	batches map[string]*domain.Batch
	failAdd error
}

func newMockRepo() *mockRepo {
	return &mockRepo{batches: make(map[string]*domain.Batch)}
}

func (m *mockRepo) Add(ctx context.Context, batch *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdd != nil {
		return m.failAdd
	}
	m.batches[batch.Reference] = batch
	return nil
}

func (m *mockRepo) Get(ctx context.Context, reference string) (*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches[reference], nil
}

func (m *mockRepo) List(ctx context.Context) ([]*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b)
	}
	return out, nil
}

func TestPersister_SavesAllocatedBatch(t *testing.T) {
	engine := NewAllocationService()
	batch := newBatch(t, "batch-001", "small-red", 10, &tomorrow)
	engine.Notify(batch)
	cache := newMockCache()
	repo := newMockRepo()

	svc := NewOrderService(engine, cache, 10, nil)
	persister := NewPersister(engine, repo, cache, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		persister.Run(context.Background(), 0, svc.GetAllocationQueue())
	}()

	line := newLine(t, "order-1", "small-red", 3)
	_, err := svc.Allocate(context.Background(), line)
	require.NoError(t, err)

	svc.Close()
	wg.Wait()

	saved, err := repo.Get(context.Background(), "batch-001")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.NotSame(t, batch, saved)
	assert.Equal(t, []domain.OrderLine{line}, saved.OrderLines())

	available, err := cache.GetAvailable(context.Background(), "small-red")
	require.NoError(t, err)
	assert.Equal(t, 7, available["batch-001"])
}

func TestPersister_RollsBackOnSaveFailure(t *testing.T) {
	engine := NewAllocationService()
	batch := newBatch(t, "batch-001", "small-red", 5, nil)
	engine.Notify(batch)
	cache := newMockCache()
	repo := newMockRepo()
	repo.failAdd = errors.New("mysql down")

	line := newLine(t, "order-1", "small-red", 5)
	require.True(t, engine.PutOrder(line))
	require.Len(t, engine.Exhausted("small-red"), 1)
	_, err := cache.SetIdempotency(context.Background(), IdempotencyKey(line))
	require.NoError(t, err)

	err = NewPersister(engine, repo, cache, nil).Persist(context.Background(),
		domain.NewAllocation(line, "batch-001", domain.AllocationStatusPending))

	assert.ErrorIs(t, err, repo.failAdd)
	assert.Equal(t, 5, batch.AvailableQty())
	assert.Empty(t, engine.Exhausted("small-red"))
	assert.Len(t, engine.Available("small-red"), 1)
	assert.False(t, cache.hasKey(IdempotencyKey(line)))
}

func TestPersister_ReleasedAllocationIsNotRolledBack(t *testing.T) {
	engine := NewAllocationService()
	batch := newBatch(t, "batch-001", "small-red", 5, nil)
	engine.Notify(batch)
	repo := newMockRepo()
	repo.failAdd = errors.New("mysql down")

	line := newLine(t, "order-1", "small-red", 2)
	require.True(t, engine.PutOrder(line))
	require.True(t, engine.Release(batch, line))

	err := NewPersister(engine, repo, newMockCache(), nil).Persist(context.Background(),
		domain.NewAllocation(line, "batch-001", domain.AllocationStatusReleased))

	assert.Error(t, err)
	assert.Equal(t, 5, batch.AvailableQty())
}

func TestPersister_UnknownBatch(t *testing.T) {
	engine := NewAllocationService()
	line := newLine(t, "order-1", "small-red", 2)

	err := NewPersister(engine, newMockRepo(), newMockCache(), nil).Persist(context.Background(),
		domain.NewAllocation(line, "ghost", domain.AllocationStatusPending))

	assert.ErrorIs(t, err, ErrUnknownBatch)
}
