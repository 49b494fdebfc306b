package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/batch-allocation/internal/core/domain"
	"github.com/rl1809/batch-allocation/internal/port"
	"github.com/rl1809/batch-allocation/pkg/logger"
)

const persistTimeout = 5 * time.Second

// Persister saves the batches touched by queued allocations. A pending
// allocation whose batch cannot be saved is rolled back on the engine.
type Persister struct {
	engine *AllocationService
	repo   port.BatchRepository
	cache  port.AllocationCache
	log    *logger.Logger

	// saving holds one mutex per batch reference; snapshot and save run under it.
	saving sync.Map
}

func NewPersister(engine *AllocationService, repo port.BatchRepository, cache port.AllocationCache, log *logger.Logger) *Persister {
	if log == nil {
		log = logger.Nop()
	}
	return &Persister{
		engine: engine,
		repo:   repo,
		cache:  cache,
		log:    log.WithComponent("persister"),
	}
}

// Run consumes queue until it is closed.
func (p *Persister) Run(ctx context.Context, id int, queue <-chan domain.Allocation) {
	log := p.log.With("worker", id)
	for allocation := range queue {
		if err := p.Persist(ctx, allocation); err != nil {
			log.Errorw("failed to persist allocation", "allocation", allocation.ID, "error", err)
			continue
		}
		log.Debugw("saved allocation", "allocation", allocation.ID, "batch", allocation.BatchReference)
	}
}

func (p *Persister) Persist(ctx context.Context, allocation domain.Allocation) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	batch := p.engine.Lookup(allocation.SKU, allocation.BatchReference)
	if batch == nil {
		return fmt.Errorf("%w: %s", ErrUnknownBatch, allocation.BatchReference)
	}

	mu := p.batchLock(batch.Reference)
	mu.Lock()
	defer mu.Unlock()

	snapshot, err := p.engine.Snapshot(batch)
	if err != nil {
		return fmt.Errorf("snapshot batch %s: %w", batch.Reference, err)
	}

	if err := p.repo.Add(ctx, snapshot); err != nil {
		if allocation.Status == domain.AllocationStatusPending {
			p.rollback(ctx, batch, allocation)
		}
		return fmt.Errorf("save batch %s: %w", batch.Reference, err)
	}

	if err := p.cache.SetAvailable(ctx, snapshot.SKU, snapshot.Reference, snapshot.AvailableQty()); err != nil {
		p.log.Warnw("failed to refresh availability", "batch", snapshot.Reference, "error", err)
	}
	return nil
}

func (p *Persister) batchLock(ref string) *sync.Mutex {
	mu, _ := p.saving.LoadOrStore(ref, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (p *Persister) rollback(ctx context.Context, batch *domain.Batch, allocation domain.Allocation) {
	line := allocation.Line()
	if !p.engine.Release(batch, line) {
		p.log.Errorw("CRITICAL rollback failed, line no longer on batch",
			"allocation", allocation.ID, "batch", batch.Reference, "order", line.OrderReference)
		return
	}
	if err := p.cache.ReleaseIdempotency(ctx, IdempotencyKey(line)); err != nil {
		p.log.Warnw("failed to release idempotency key", "order", line.OrderReference, "error", err)
	}
	p.log.Infow("rolled back allocation", "allocation", allocation.ID, "batch", batch.Reference)
}
