package ticket

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// BucketTTL keeps a reservation for roughly one month bucket.
const BucketTTL = 122 * 24 * time.Hour

// RedisReserver reserves codes with SETNX.
type RedisReserver struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisReserver creates a reserver storing keys as "<prefix><code>".
func NewRedisReserver(client *redis.Client, prefix string) *RedisReserver {
	if prefix == "" {
		prefix = "ticket:"
	}
	return &RedisReserver{client: client, prefix: prefix, ttl: BucketTTL}
}

// Reserve claims code, returning false if another ticket holds it.
func (r *RedisReserver) Reserve(ctx context.Context, code string) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+code, time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
}
