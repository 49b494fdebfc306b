package service

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/rl1809/batch-allocation/internal/core/domain"
	"github.com/rl1809/batch-allocation/pkg/logger"
)

// Outcome is the result of placing one order line.
type Outcome int

const (
	// OutcomeNoCandidate means the SKU has no batch in its pool.
	OutcomeNoCandidate Outcome = iota
	// OutcomeRejected means the best batch refused the line; it stays queued.
	OutcomeRejected
	// OutcomeExhausted means the line was placed and the batch has no capacity left.
	OutcomeExhausted
	// OutcomeRequeued means the line was placed and the batch went back to the pool.
	OutcomeRequeued
)

func (o Outcome) Allocated() bool {
	return o == OutcomeExhausted || o == OutcomeRequeued
}

func (o Outcome) String() string {
	switch o {
	case OutcomeNoCandidate:
		return "no_candidate"
	case OutcomeRejected:
		return "rejected"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeRequeued:
		return "requeued"
	default:
		return "unknown"
	}
}

// Placement reports what Place did. Batch is nil for OutcomeNoCandidate.
type Placement struct {
	Outcome Outcome
	Batch   *domain.Batch
}

func (p Placement) Allocated() bool {
	return p.Outcome.Allocated()
}

// AllocationService picks, per SKU, the best batch for each order line:
// warehouse stock first, then shipments by earliest ETA.
type AllocationService struct {
	mu     sync.RWMutex
	stocks map[string]*skuStock
	log    *logger.Logger
}

type Option func(*AllocationService)

func WithLogger(log *logger.Logger) Option {
	return func(s *AllocationService) {
		s.log = log
	}
}

func NewAllocationService(opts ...Option) *AllocationService {
	s := &AllocationService{
		stocks: make(map[string]*skuStock),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("allocation")
	return s
}

// Notify registers batch as a candidate for its SKU. Batches without
// capacity are filed as exhausted; batches already exhausted are ignored,
// as is a second instance carrying the reference of a known batch.
func (s *AllocationService) Notify(batch *domain.Batch) {
	stock := s.stockFor(batch.SKU, true)

	stock.mu.Lock()
	defer stock.mu.Unlock()

	if !stock.owns(batch) {
		s.log.Warnw("ignoring notify for another instance of a known batch", "batch", batch.Reference, "sku", batch.SKU)
		return
	}
	if _, ok := stock.exhausted[batch.Reference]; ok {
		s.log.Debugw("ignoring notify for exhausted batch", "batch", batch.Reference, "sku", batch.SKU)
		return
	}
	stock.file(batch)
}

// PutOrder allocates line against the best batch for its SKU.
func (s *AllocationService) PutOrder(line domain.OrderLine) bool {
	return s.Place(line).Allocated()
}

// Place pops the best-ranked batch for the line's SKU, tries to allocate the
// line on it and files the batch back into the pool or the exhausted set.
func (s *AllocationService) Place(line domain.OrderLine) Placement {
	stock := s.stockFor(line.SKU, false)
	if stock == nil {
		return Placement{Outcome: OutcomeNoCandidate}
	}

	stock.mu.Lock()
	defer stock.mu.Unlock()

	batch := stock.pop()
	if batch == nil {
		return Placement{Outcome: OutcomeNoCandidate}
	}

	if !batch.Allocate(line) {
		stock.file(batch)
		s.log.Debugw("batch rejected line",
			"batch", batch.Reference, "order", line.OrderReference, "qty", line.Qty, "available", batch.AvailableQty())
		return Placement{Outcome: OutcomeRejected, Batch: batch}
	}

	if batch.AvailableQty() == 0 {
		stock.exhausted[batch.Reference] = batch
		s.log.Debugw("batch exhausted", "batch", batch.Reference, "sku", batch.SKU)
		return Placement{Outcome: OutcomeExhausted, Batch: batch}
	}

	stock.push(batch)
	return Placement{Outcome: OutcomeRequeued, Batch: batch}
}

// Release deallocates line from batch. An exhausted batch that regains
// capacity goes back into the pool. Instances other than the one the
// engine holds for the reference are refused.
func (s *AllocationService) Release(batch *domain.Batch, line domain.OrderLine) bool {
	stock := s.stockFor(batch.SKU, true)

	stock.mu.Lock()
	defer stock.mu.Unlock()

	if !stock.owns(batch) || !batch.Deallocate(line) {
		return false
	}

	if _, ok := stock.exhausted[batch.Reference]; ok && batch.AvailableQty() > 0 {
		delete(stock.exhausted, batch.Reference)
		stock.push(batch)
	}
	return true
}

// Available returns the pooled batches for sku in rank order.
func (s *AllocationService) Available(sku string) []*domain.Batch {
	stock := s.stockFor(sku, false)
	if stock == nil {
		return nil
	}

	stock.mu.Lock()
	defer stock.mu.Unlock()

	entries := make([]*poolEntry, len(stock.pool))
	copy(entries, stock.pool)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].less(entries[j])
	})

	seen := make(map[string]struct{}, len(entries))
	batches := make([]*domain.Batch, 0, len(entries))
	for _, e := range entries {
		if _, ok := stock.exhausted[e.batch.Reference]; ok {
			continue
		}
		if _, ok := seen[e.batch.Reference]; ok {
			continue
		}
		seen[e.batch.Reference] = struct{}{}
		batches = append(batches, e.batch)
	}
	return batches
}

// Exhausted returns the exhausted batches for sku ordered by reference.
func (s *AllocationService) Exhausted(sku string) []*domain.Batch {
	stock := s.stockFor(sku, false)
	if stock == nil {
		return nil
	}

	stock.mu.Lock()
	defer stock.mu.Unlock()

	batches := make([]*domain.Batch, 0, len(stock.exhausted))
	for _, b := range stock.exhausted {
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].Reference < batches[j].Reference
	})
	return batches
}

// Lookup returns the batch with reference ref known for sku, or nil.
func (s *AllocationService) Lookup(sku, ref string) *domain.Batch {
	stock := s.stockFor(sku, false)
	if stock == nil {
		return nil
	}

	stock.mu.Lock()
	defer stock.mu.Unlock()
	return stock.index[ref]
}

// Snapshot copies batch while no placement for its SKU is in flight.
func (s *AllocationService) Snapshot(batch *domain.Batch) (*domain.Batch, error) {
	stock := s.stockFor(batch.SKU, true)

	stock.mu.Lock()
	defer stock.mu.Unlock()
	return domain.RestoreBatch(batch.Reference, batch.SKU, batch.Qty(), batch.ETA(), batch.OrderLines())
}

func (s *AllocationService) stockFor(sku string, create bool) *skuStock {
	s.mu.RLock()
	stock, ok := s.stocks[sku]
	s.mu.RUnlock()
	if ok || !create {
		return stock
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if stock, ok = s.stocks[sku]; !ok {
		stock = &skuStock{
			exhausted: make(map[string]*domain.Batch),
			index:     make(map[string]*domain.Batch),
			order:     make(map[string]uint64),
		}
		s.stocks[sku] = stock
	}
	return stock
}

// skuStock is the pool and exhausted set of one SKU; mu guards both.
type skuStock struct {
	mu        sync.Mutex
	pool      batchPool
	exhausted map[string]*domain.Batch
	index     map[string]*domain.Batch
	order     map[string]uint64 // tie-break sequence, fixed when a reference is first filed
	seq       uint64
}

// owns reports whether batch is the instance held for its reference, or
// the reference is new.
func (st *skuStock) owns(batch *domain.Batch) bool {
	known, ok := st.index[batch.Reference]
	return !ok || known == batch
}

func (st *skuStock) file(batch *domain.Batch) {
	st.index[batch.Reference] = batch
	if batch.AvailableQty() == 0 {
		st.exhausted[batch.Reference] = batch
		return
	}
	st.push(batch)
}

func (st *skuStock) push(batch *domain.Batch) {
	seq, ok := st.order[batch.Reference]
	if !ok {
		st.seq++
		seq = st.seq
		st.order[batch.Reference] = seq
	}
	heap.Push(&st.pool, newPoolEntry(batch, seq))
}

// pop returns the best live batch, discarding entries of exhausted batches.
func (st *skuStock) pop() *domain.Batch {
	for st.pool.Len() > 0 {
		e := heap.Pop(&st.pool).(*poolEntry)
		if _, ok := st.exhausted[e.batch.Reference]; ok {
			continue
		}
		return e.batch
	}
	return nil
}
