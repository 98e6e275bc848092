package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisKeeper shares claims across processes via SET NX. Redis failures
// fail open: an unreachable broker must not stall action execution, at the
// cost of a possible duplicate while it is down.
type RedisKeeper struct {
	client *redis.Client
	prefix string
}

func NewRedisKeeper(client *redis.Client) *RedisKeeper {
	return &RedisKeeper{client: client, prefix: "idem:"}
}

func (k *RedisKeeper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	won, err := k.client.SetNX(ctx, k.prefix+key, "1", ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("idempotency claim failed, allowing execution")
		return true, nil
	}
	return won, nil
}
