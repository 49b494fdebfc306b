package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBatchAndLine(t *testing.T, sku string, batchQty, lineQty int) (*Batch, OrderLine) {
	t.Helper()

	batch, err := NewBatch("batch-001", sku, batchQty, nil)
	require.NoError(t, err)

	line, err := NewOrderLine("order-001", sku, lineQty)
	require.NoError(t, err)

	return batch, line
}

func TestAllocate_ReducesAvailableQuantity(t *testing.T) {
	batch, line := makeBatchAndLine(t, "small-red-table", 20, 5)

	assert.True(t, batch.CanAllocate(line))
	assert.True(t, batch.Allocate(line))
	assert.Equal(t, 15, batch.AvailableQty())
	assert.Equal(t, 5, batch.AllocatedQty())
}

func TestCanAllocate_Capacity(t *testing.T) {
	cases := []struct {
		name     string
		batchQty int
		lineQty  int
		want     bool
	}{
		{"available greater than required", 10, 5, true},
		{"available equal to required", 5, 5, true},
		{"available smaller than required", 5, 9, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			batch, line := makeBatchAndLine(t, "small-red-table", tc.batchQty, tc.lineQty)
			assert.Equal(t, tc.want, batch.CanAllocate(line))
		})
	}
}

func TestAllocate_InsufficientCapacityDoesNotMutate(t *testing.T) {
	batch, line := makeBatchAndLine(t, "small-red", 5, 9)

	assert.False(t, batch.Allocate(line))
	assert.Equal(t, 5, batch.AvailableQty())
	assert.Empty(t, batch.OrderLines())
}

func TestAllocate_SameLineOnlyOnce(t *testing.T) {
	batch, line := makeBatchAndLine(t, "small-red", 10, 2)

	require.True(t, batch.Allocate(line))

	assert.False(t, batch.CanAllocate(line))
	assert.False(t, batch.Allocate(line))
	assert.Equal(t, 8, batch.AvailableQty())
}

func TestAllocate_RejectsDifferentSKU(t *testing.T) {
	batch, err := NewBatch("batch-001", "small-red", 10, nil)
	require.NoError(t, err)

	for _, qty := range []int{1, 2, 10, 100} {
		line, err := NewOrderLine("order-002", "small-blue", qty)
		require.NoError(t, err)

		assert.False(t, batch.CanAllocate(line))
		assert.False(t, batch.Allocate(line))
	}
	assert.Equal(t, 10, batch.AvailableQty())
}

func TestDeallocate(t *testing.T) {
	batch, line := makeBatchAndLine(t, "small-red", 10, 2)

	assert.False(t, batch.CanDeallocate(line))
	assert.False(t, batch.Deallocate(line))
	assert.Equal(t, 10, batch.AvailableQty())

	require.True(t, batch.Allocate(line))
	assert.True(t, batch.CanDeallocate(line))

	assert.True(t, batch.Deallocate(line))
	assert.Equal(t, 10, batch.AvailableQty())
	assert.False(t, batch.CanDeallocate(line))
}

func TestAllocate_ZeroValueBatch(t *testing.T) {
	batch := &Batch{Reference: "literal", SKU: "lamp", qty: 3}

	assert.True(t, batch.Allocate(OrderLine{OrderReference: "o1", SKU: "lamp", Qty: 3}))
	assert.Equal(t, 0, batch.AvailableQty())
}

func TestNewBatch_RejectsNegativeQuantity(t *testing.T) {
	_, err := NewBatch("batch-001", "small-red", -1, nil)
	assert.ErrorIs(t, err, ErrNegativeQuantity)

	batch, err := NewBatch("batch-002", "small-red", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.AvailableQty())
}

func TestNewOrderLine_RejectsNonPositiveQuantity(t *testing.T) {
	for _, qty := range []int{0, -3} {
		_, err := NewOrderLine("order-001", "small-red", qty)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestAllocate_RejectsNonPositiveLine(t *testing.T) {
	batch, err := NewBatch("batch-001", "small-red", 5, nil)
	require.NoError(t, err)

	for _, qty := range []int{0, -5} {
		line := OrderLine{OrderReference: "order-001", SKU: "small-red", Qty: qty}
		assert.False(t, batch.CanAllocate(line))
		assert.False(t, batch.Allocate(line))
	}
	assert.Equal(t, 5, batch.AvailableQty())
	assert.Empty(t, batch.OrderLines())
}

func TestBatch_ETAIsCopied(t *testing.T) {
	eta := Date(2026, time.March, 4)
	batch, err := NewBatch("batch-001", "small-red", 1, &eta)
	require.NoError(t, err)

	eta = eta.AddDate(0, 1, 0)
	got := batch.ETA()
	*got = got.AddDate(1, 0, 0)

	assert.Equal(t, Date(2026, time.March, 4), *batch.ETA())
	assert.Equal(t, 1, batch.Qty())
}

func TestNewBatch_NormalizesETAToDate(t *testing.T) {
	eta := time.Date(2026, time.March, 4, 17, 30, 0, 0, time.UTC)

	batch, err := NewBatch("batch-001", "small-red", 1, &eta)
	require.NoError(t, err)

	require.True(t, batch.HasETA())
	assert.Equal(t, Date(2026, time.March, 4), *batch.ETA())
}

func TestBatch_EqualByReference(t *testing.T) {
	eta := Date(2026, time.January, 2)
	a, err := NewBatch("batch-001", "small-red", 10, nil)
	require.NoError(t, err)
	b, err := NewBatch("batch-001", "big-blue", 50, &eta)
	require.NoError(t, err)
	c, err := NewBatch("batch-002", "small-red", 10, nil)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
	assert.Equal(t, "batch-001", a.ID())
}

func TestRestoreBatch_RoundTrip(t *testing.T) {
	eta := Date(2026, time.May, 1)
	original, err := NewBatch("batch-001", "small-red", 50, &eta)
	require.NoError(t, err)
	require.True(t, original.Allocate(OrderLine{OrderReference: "order-2", SKU: "small-red", Qty: 7}))
	require.True(t, original.Allocate(OrderLine{OrderReference: "order-1", SKU: "small-red", Qty: 5}))

	restored, err := RestoreBatch(original.Reference, original.SKU, original.Qty(), original.ETA(), original.OrderLines())
	require.NoError(t, err)

	assert.True(t, restored.Equal(original))
	assert.Equal(t, original.OrderLines(), restored.OrderLines())
	assert.Equal(t, original.SKU, restored.SKU)
	assert.Equal(t, *original.ETA(), *restored.ETA())
	assert.Equal(t, 38, restored.AvailableQty())
}

func TestRestoreBatch_RejectsInconsistentLines(t *testing.T) {
	_, err := RestoreBatch("batch-001", "small-red", 5, nil, []OrderLine{
		{OrderReference: "order-1", SKU: "small-red", Qty: 6},
	})
	assert.ErrorIs(t, err, ErrInconsistentBatch)

	_, err = RestoreBatch("batch-001", "small-red", 5, nil, []OrderLine{
		{OrderReference: "order-1", SKU: "small-blue", Qty: 1},
	})
	assert.ErrorIs(t, err, ErrInconsistentBatch)

	_, err = RestoreBatch("batch-001", "small-red", 5, nil, []OrderLine{
		{OrderReference: "order-1", SKU: "small-red", Qty: 0},
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestNewAllocation(t *testing.T) {
	line := OrderLine{OrderReference: "order-1", SKU: "small-red", Qty: 3}

	a := NewAllocation(line, "batch-001", AllocationStatusPending)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, line, a.Line())
	assert.Equal(t, "batch-001", a.BatchReference)
	assert.Equal(t, AllocationStatusPending, a.Status)
	assert.False(t, a.CreatedAt.IsZero())
}
