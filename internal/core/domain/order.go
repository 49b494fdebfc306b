package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidQuantity = errors.New("order line quantity must be positive")

// OrderLine is a request to allocate Qty units of SKU for an order.
// Lines are compared by value and used as set keys.
type OrderLine struct {
	OrderReference string
	SKU            string
	Qty            int
}

func NewOrderLine(orderReference, sku string, qty int) (OrderLine, error) {
	if qty <= 0 {
		return OrderLine{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	return OrderLine{OrderReference: orderReference, SKU: sku, Qty: qty}, nil
}

type AllocationStatus string

const (
	AllocationStatusPending  AllocationStatus = "pending"
	AllocationStatusReleased AllocationStatus = "released"
)

// Allocation records that an order line was placed on (or released from) a batch.
type Allocation struct {
	ID             string
	OrderReference string
	SKU            string
	Qty            int
	BatchReference string
	Status         AllocationStatus
	CreatedAt      time.Time
}

func NewAllocation(line OrderLine, batchReference string, status AllocationStatus) Allocation {
	return Allocation{
		ID:             uuid.NewString(),
		OrderReference: line.OrderReference,
		SKU:            line.SKU,
		Qty:            line.Qty,
		BatchReference: batchReference,
		Status:         status,
		CreatedAt:      time.Now(),
	}
}

// Line returns the order line the allocation was made for.
func (a Allocation) Line() OrderLine {
	return OrderLine{OrderReference: a.OrderReference, SKU: a.SKU, Qty: a.Qty}
}
