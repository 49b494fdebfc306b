package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/batch-allocation/internal/core/domain"
	"github.com/rl1809/batch-allocation/internal/core/service"
	"github.com/rl1809/batch-allocation/pkg/logger"
)

const (
	sku           = "stress-sku"
	totalRequests = 500
	maxLineQty    = 3
)

func main() {
	log := logger.Default().WithComponent("stress_test")

	tomorrow := domain.Date(time.Now().AddDate(0, 0, 1).Date())
	later := tomorrow.AddDate(0, 0, 7)

	specs := []struct {
		ref string
		qty int
		eta *time.Time
	}{
		{"warehouse-1", 40, nil},
		{"warehouse-2", 35, nil},
		{"shipment-1", 60, &tomorrow},
		{"shipment-2", 50, &later},
	}

	engine := service.NewAllocationService()
	batches := make([]*domain.Batch, 0, len(specs))
	capacity := 0
	for _, s := range specs {
		b, err := domain.NewBatch(s.ref, sku, s.qty, s.eta)
		if err != nil {
			log.Fatalw("failed to create batch", "batch", s.ref, "error", err)
		}
		engine.Notify(b)
		batches = append(batches, b)
		capacity += s.qty
	}

	var successCount, failCount, allocatedQty atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			qty := n%maxLineQty + 1
			line, err := domain.NewOrderLine(uuid.NewString(), sku, qty)
			if err != nil {
				failCount.Add(1)
				return
			}
			if engine.PutOrder(line) {
				successCount.Add(1)
				allocatedQty.Add(int64(qty))
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Capacity:   %d\n", capacity)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Allocated Units:  %d\n", allocatedQty.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	ok := true
	held := 0
	for _, b := range batches {
		fmt.Printf("%-12s qty=%-3d allocated=%-3d available=%d\n", b.Reference, b.Qty(), b.AllocatedQty(), b.AvailableQty())
		if b.AllocatedQty() > b.Qty() {
			fmt.Printf("FAIL: %s over-allocated\n", b.Reference)
			ok = false
		}
		held += b.AllocatedQty()
	}

	if int64(held) != allocatedQty.Load() {
		fmt.Printf("FAIL: batches hold %d units, callers were told %d\n", held, allocatedQty.Load())
		ok = false
	}
	if held > capacity {
		fmt.Printf("FAIL: allocated %d exceeds capacity %d\n", held, capacity)
		ok = false
	}

	if !ok {
		os.Exit(1)
	}
	fmt.Println("PASS: no batch over-allocated")
}
