package service

import "github.com/rl1809/batch-allocation/internal/core/domain"

// poolEntry ranks a batch by (hasETA, eta); seq breaks ties in the order
// references were first filed.
type poolEntry struct {
	batch  *domain.Batch
	hasETA bool
	eta    int64
	seq    uint64
}

func newPoolEntry(batch *domain.Batch, seq uint64) *poolEntry {
	e := &poolEntry{batch: batch, seq: seq}
	if eta := batch.ETA(); eta != nil {
		e.hasETA = true
		e.eta = eta.Unix()
	}
	return e
}

func (e *poolEntry) less(other *poolEntry) bool {
	if e.hasETA != other.hasETA {
		return !e.hasETA
	}
	if e.eta != other.eta {
		return e.eta < other.eta
	}
	return e.seq < other.seq
}

// batchPool implements heap.Interface.
type batchPool []*poolEntry

func (p batchPool) Len() int           { return len(p) }
func (p batchPool) Less(i, j int) bool { return p[i].less(p[j]) }
func (p batchPool) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

func (p *batchPool) Push(x any) {
	*p = append(*p, x.(*poolEntry))
}

func (p *batchPool) Pop() any {
	old := *p
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*p = old[:n-1]
	return e
}
