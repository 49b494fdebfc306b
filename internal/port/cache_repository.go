package port

import "context"

type AllocationCache interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops the key so the request may be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// SetAvailable records the available quantity of a batch for its sku
	SetAvailable(ctx context.Context, sku, batchRef string, qty int) error

	// GetAvailable returns batch reference to available quantity for a sku
	GetAvailable(ctx context.Context, sku string) (map[string]int, error)
}
