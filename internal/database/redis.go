package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/config"

	"github.com/redis/go-redis/v9"
)

// OpenRedis returns nil when REDIS_ADDR is unset. Callers then fall back to
// process local caches.
func OpenRedis(cfg *config.Config, log *slog.Logger) (redis.UniversalClient, error) {
	if cfg.RedisAddr == "" {
		log.Info("redis disabled, using in-process caches")
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info("redis connected", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return client, nil
}
