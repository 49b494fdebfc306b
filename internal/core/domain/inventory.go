package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrNegativeQuantity  = errors.New("batch quantity must not be negative")
	ErrInconsistentBatch = errors.New("batch order lines violate its capacity or sku")
)

// Batch is a fixed quantity of one SKU, either in the warehouse (no ETA) or
// arriving on ETA. Identity is the reference alone. Quantity and ETA are
// fixed at construction.
type Batch struct {
	Reference string
	SKU       string

	qty int
	eta *time.Time // calendar date, nil for warehouse stock

	lines map[OrderLine]struct{}
}

func NewBatch(reference, sku string, qty int, eta *time.Time) (*Batch, error) {
	if qty < 0 {
		return nil, fmt.Errorf("%w: batch %s got %d", ErrNegativeQuantity, reference, qty)
	}
	return &Batch{
		Reference: reference,
		SKU:       sku,
		qty:       qty,
		eta:       normalizeDate(eta),
		lines:     make(map[OrderLine]struct{}),
	}, nil
}

// RestoreBatch rebuilds a persisted batch together with its allocated lines.
func RestoreBatch(reference, sku string, qty int, eta *time.Time, lines []OrderLine) (*Batch, error) {
	b, err := NewBatch(reference, sku, qty, eta)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if line.Qty <= 0 {
			return nil, fmt.Errorf("%w: line %s", ErrInvalidQuantity, line.OrderReference)
		}
		if line.SKU != sku {
			return nil, fmt.Errorf("%w: line %s has sku %s", ErrInconsistentBatch, line.OrderReference, line.SKU)
		}
		b.lines[line] = struct{}{}
	}
	if b.AllocatedQty() > b.qty {
		return nil, fmt.Errorf("%w: batch %s allocated %d of %d", ErrInconsistentBatch, reference, b.AllocatedQty(), b.qty)
	}
	return b, nil
}

// Date returns the calendar date y-m-d as a UTC midnight time.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := Date(t.Date())
	return &d
}

func (b *Batch) ID() string {
	return b.Reference
}

// Equal reports whether both values denote the same batch.
func (b *Batch) Equal(other *Batch) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.Reference == other.Reference
}

// Qty is the purchased quantity of the batch.
func (b *Batch) Qty() int {
	return b.qty
}

// ETA returns a copy of the arrival date, nil for warehouse stock.
func (b *Batch) ETA() *time.Time {
	if b.eta == nil {
		return nil
	}
	eta := *b.eta
	return &eta
}

func (b *Batch) HasETA() bool {
	return b.eta != nil
}

func (b *Batch) Allocate(line OrderLine) bool {
	if !b.CanAllocate(line) {
		return false
	}
	if b.lines == nil {
		b.lines = make(map[OrderLine]struct{})
	}
	b.lines[line] = struct{}{}
	return true
}

func (b *Batch) Deallocate(line OrderLine) bool {
	if !b.CanDeallocate(line) {
		return false
	}
	delete(b.lines, line)
	return true
}

func (b *Batch) CanAllocate(line OrderLine) bool {
	if line.Qty <= 0 {
		return false
	}
	if line.SKU != b.SKU {
		return false
	}
	if line.Qty > b.AvailableQty() {
		return false
	}
	_, held := b.lines[line]
	return !held
}

func (b *Batch) CanDeallocate(line OrderLine) bool {
	_, held := b.lines[line]
	return held
}

func (b *Batch) AllocatedQty() int {
	total := 0
	for line := range b.lines {
		total += line.Qty
	}
	return total
}

func (b *Batch) AvailableQty() int {
	return b.qty - b.AllocatedQty()
}

// OrderLines returns a copy of the allocated lines ordered by order reference.
func (b *Batch) OrderLines() []OrderLine {
	lines := make([]OrderLine, 0, len(b.lines))
	for line := range b.lines {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].OrderReference != lines[j].OrderReference {
			return lines[i].OrderReference < lines[j].OrderReference
		}
		return lines[i].Qty < lines[j].Qty
	})
	return lines
}
