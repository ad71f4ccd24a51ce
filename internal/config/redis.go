package config

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens the redis client used by the idempotency middleware.
// A missing REDIS_ADDR is not an error: idempotency is simply disabled.
func ConnectRedis(cfg *Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		log.Println("⚠️ REDIS_ADDR not set — idempotency disabled")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("✅ Redis connected [%s]", cfg.Redis.Addr)
	return rdb, nil
}
