package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/batch-allocation/internal/adapter/storage"
	"github.com/rl1809/batch-allocation/internal/core/domain"
	"github.com/rl1809/batch-allocation/internal/core/service"
	"github.com/rl1809/batch-allocation/pkg/logger"
)

func main() {
	ordersPath := flag.String("orders", "", "CSV file of order lines: order_reference,sku,qty")
	batchesPath := flag.String("batches", "", "optional CSV file of batches to store first: reference,sku,qty,eta")
	flag.Parse()

	cfg := loadConfig()

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Development, OutputPaths: cfg.LogOutput})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *ordersPath == "" {
		log.Fatal("-orders is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalw("failed to connect mysql", "error", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.WorkerCount * 2)
	db.SetMaxIdleConns(cfg.WorkerCount)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalw("failed to ping mysql", "error", err)
	}
	log.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.WorkerCount * 4,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalw("failed to connect redis", "error", err)
	}
	log.Info("connected to redis")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
		log.Fatalw("failed to apply schema", "error", err)
	}

	if *batchesPath != "" {
		if err := importBatches(ctx, *batchesPath, mysqlAdapter); err != nil {
			log.Fatalw("failed to import batches", "error", err)
		}
	}

	engine := service.NewAllocationService(service.WithLogger(log))
	loaded, err := service.NewLoader(engine, mysqlAdapter, redisAdapter, log).Load(ctx)
	if err != nil {
		log.Fatalw("failed to load batches", "error", err)
	}

	orderService := service.NewOrderService(engine, redisAdapter, cfg.QueueSize, log)
	persister := service.NewPersister(engine, mysqlAdapter, redisAdapter, log)

	// Start worker pool. Workers drain the queue after ctx is cancelled.
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			persister.Run(context.WithoutCancel(ctx), id, orderService.GetAllocationQueue())
		}(i)
	}
	log.Infow("started workers", "count", cfg.WorkerCount, "batches", loaded)

	lines, err := readOrderFile(*ordersPath)
	if err != nil {
		log.Fatalw("failed to read orders", "error", err)
	}

	summary := allocateAll(ctx, orderService, lines, log)

	orderService.Close()
	wg.Wait()
	log.Info("workers stopped")

	log.Infow("allocation finished",
		"orders", len(lines),
		"allocated", summary.allocated,
		"no_candidate", summary.noCandidate,
		"rejected", summary.rejected,
		"duplicate", summary.duplicate,
		"failed", summary.failed,
	)
}

type allocationSummary struct {
	allocated, noCandidate, rejected, duplicate, failed int
}

func allocateAll(ctx context.Context, svc *service.OrderService, lines []domain.OrderLine, log *logger.Logger) allocationSummary {
	var summary allocationSummary
	for _, line := range lines {
		if ctx.Err() != nil {
			log.Warn("interrupted, stopping allocation")
			break
		}

		allocation, err := svc.Allocate(ctx, line)
		switch {
		case err == nil:
			summary.allocated++
			log.Infow("allocated", "order", line.OrderReference, "sku", line.SKU, "qty", line.Qty, "batch", allocation.BatchReference)
		case errors.Is(err, service.ErrNoCandidate):
			summary.noCandidate++
			log.Infow("out of stock", "order", line.OrderReference, "sku", line.SKU)
		case errors.Is(err, service.ErrNotAllocated):
			summary.rejected++
			log.Infow("not allocated", "order", line.OrderReference, "sku", line.SKU, "reason", err)
		case errors.Is(err, service.ErrDuplicateRequest):
			summary.duplicate++
			log.Infow("duplicate order line", "order", line.OrderReference, "sku", line.SKU)
		default:
			summary.failed++
			log.Errorw("allocation failed", "order", line.OrderReference, "error", err)
		}
	}
	return summary
}

func readOrderFile(path string) ([]domain.OrderLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readOrderLines(f)
}

func importBatches(ctx context.Context, path string, repo *storage.MySQLAdapter) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	batches, err := readBatches(f)
	if err != nil {
		return err
	}
	for _, b := range batches {
		existing, err := repo.Get(ctx, b.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := repo.Add(ctx, b); err != nil {
			return fmt.Errorf("store batch %s: %w", b.Reference, err)
		}
	}
	return nil
}
