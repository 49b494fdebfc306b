package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/batch-allocation/internal/core/domain"
	"github.com/rl1809/batch-allocation/internal/port"
	"github.com/rl1809/batch-allocation/pkg/logger"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrNoCandidate      = errors.New("no batch available for sku")
	ErrNotAllocated     = errors.New("order line not allocated")
	ErrUnknownBatch     = errors.New("unknown batch")
)

// OrderService drives the allocation engine for incoming order lines and
// queues every placement for persistence.
type OrderService struct {
	engine *AllocationService
	cache  port.AllocationCache
	queue  chan domain.Allocation
	log    *logger.Logger
}

func NewOrderService(engine *AllocationService, cache port.AllocationCache, queueSize int, log *logger.Logger) *OrderService {
	if log == nil {
		log = logger.Nop()
	}
	return &OrderService{
		engine: engine,
		cache:  cache,
		queue:  make(chan domain.Allocation, queueSize),
		log:    log.WithComponent("order_service"),
	}
}

func IdempotencyKey(line domain.OrderLine) string {
	return fmt.Sprintf("allocation:%s:%s", line.OrderReference, line.SKU)
}

func (s *OrderService) Allocate(ctx context.Context, line domain.OrderLine) (domain.Allocation, error) {
	if line.Qty <= 0 {
		return domain.Allocation{}, fmt.Errorf("%w: got %d", domain.ErrInvalidQuantity, line.Qty)
	}

	key := IdempotencyKey(line)
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return domain.Allocation{}, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return domain.Allocation{}, ErrDuplicateRequest
	}

	placement := s.engine.Place(line)
	if !placement.Allocated() {
		s.releaseKey(ctx, key)
		if placement.Outcome == OutcomeNoCandidate {
			return domain.Allocation{}, fmt.Errorf("%w: %s", ErrNoCandidate, line.SKU)
		}
		return domain.Allocation{}, fmt.Errorf("%w: batch %s refused %d", ErrNotAllocated, placement.Batch.Reference, line.Qty)
	}

	allocation := domain.NewAllocation(line, placement.Batch.Reference, domain.AllocationStatusPending)
	if err := s.enqueue(ctx, allocation); err != nil {
		s.engine.Release(placement.Batch, line)
		s.releaseKey(ctx, key)
		return domain.Allocation{}, err
	}

	s.log.Debugw("order line allocated",
		"order", line.OrderReference, "sku", line.SKU, "batch", allocation.BatchReference, "outcome", placement.Outcome)
	return allocation, nil
}

// Deallocate removes line from the batch it was placed on.
func (s *OrderService) Deallocate(ctx context.Context, line domain.OrderLine, batchRef string) (domain.Allocation, error) {
	batch := s.engine.Lookup(line.SKU, batchRef)
	if batch == nil {
		return domain.Allocation{}, fmt.Errorf("%w: %s", ErrUnknownBatch, batchRef)
	}
	if !s.engine.Release(batch, line) {
		return domain.Allocation{}, fmt.Errorf("%w: %s on batch %s", ErrNotAllocated, line.OrderReference, batchRef)
	}
	if err := s.cache.ReleaseIdempotency(ctx, IdempotencyKey(line)); err != nil {
		s.log.Warnw("failed to release idempotency key", "order", line.OrderReference, "error", err)
	}

	allocation := domain.NewAllocation(line, batchRef, domain.AllocationStatusReleased)
	if err := s.enqueue(ctx, allocation); err != nil {
		return domain.Allocation{}, err
	}
	return allocation, nil
}

// Availability returns the last persisted available quantity per batch of sku.
func (s *OrderService) Availability(ctx context.Context, sku string) (map[string]int, error) {
	available, err := s.cache.GetAvailable(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("read availability: %w", err)
	}
	return available, nil
}

func (s *OrderService) GetAllocationQueue() <-chan domain.Allocation {
	return s.queue
}

func (s *OrderService) Close() {
	close(s.queue)
}

func (s *OrderService) enqueue(ctx context.Context, allocation domain.Allocation) error {
	select {
	case s.queue <- allocation:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue allocation: %w", ctx.Err())
	}
}

func (s *OrderService) releaseKey(ctx context.Context, key string) {
	if err := s.cache.ReleaseIdempotency(ctx, key); err != nil {
		s.log.Warnw("failed to release idempotency key", "key", key, "error", err)
	}
}
