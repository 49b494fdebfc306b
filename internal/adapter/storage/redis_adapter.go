package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	availableKeyPrefix = "available:"
	idempotencyKeyTTL  = 24 * time.Hour
)

var ErrNegativeAvailable = errors.New("available quantity must not be negative")

var setAvailableScript = redis.NewScript(`
local key = KEYS[1]
local field = ARGV[1]
local quantity = tonumber(ARGV[2])

if quantity < 0 then
	return 0
end

redis.call('HSET', key, field, quantity)
return 1
`)

// RedisAdapter keeps idempotency keys and a per-SKU availability snapshot.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) SetAvailable(ctx context.Context, sku, batchRef string, qty int) error {
	key := availableKeyPrefix + sku

	result, err := setAvailableScript.Run(ctx, r.client, []string{key}, batchRef, qty).Int()
	if err != nil {
		return err
	}
	if result != 1 {
		return fmt.Errorf("%w: batch %s got %d", ErrNegativeAvailable, batchRef, qty)
	}

	return nil
}

func (r *RedisAdapter) GetAvailable(ctx context.Context, sku string) (map[string]int, error) {
	values, err := r.client.HGetAll(ctx, availableKeyPrefix+sku).Result()
	if err != nil {
		return nil, err
	}

	available := make(map[string]int, len(values))
	for ref, raw := range values {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse availability of %s: %w", ref, err)
		}
		available[ref] = qty
	}
	return available, nil
}
