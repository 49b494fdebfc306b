package service

import (
	"context"
	"fmt"

	"github.com/rl1809/batch-allocation/internal/port"
	"github.com/rl1809/batch-allocation/pkg/logger"
)

// Loader registers persisted batches with the engine.
type Loader struct {
	engine *AllocationService
	repo   port.BatchLister
	cache  port.AllocationCache
	log    *logger.Logger
}

func NewLoader(engine *AllocationService, repo port.BatchLister, cache port.AllocationCache, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{engine: engine, repo: repo, cache: cache, log: log.WithComponent("loader")}
}

// Load notifies every stored batch and returns how many were loaded.
func (l *Loader) Load(ctx context.Context) (int, error) {
	batches, err := l.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list batches: %w", err)
	}

	for _, b := range batches {
		l.engine.Notify(b)
		if err := l.cache.SetAvailable(ctx, b.SKU, b.Reference, b.AvailableQty()); err != nil {
			return 0, fmt.Errorf("cache availability of %s: %w", b.Reference, err)
		}
	}

	l.log.Infow("batches loaded", "count", len(batches))
	return len(batches), nil
}
