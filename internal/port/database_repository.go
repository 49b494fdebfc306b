package port

import (
	"context"

	"github.com/rl1809/batch-allocation/internal/core/domain"
)

type BatchSource interface {
	// Get reconstructs a batch with its allocated lines, nil if unknown
	Get(ctx context.Context, reference string) (*domain.Batch, error)
}

type BatchLister interface {
	// List returns every stored batch with its allocated lines
	List(ctx context.Context) ([]*domain.Batch, error)
}

type BatchRepository interface {
	BatchSource
	BatchLister

	// Add persists a new batch or replaces a stored one, including its lines
	Add(ctx context.Context, batch *domain.Batch) error
}
