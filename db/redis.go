package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens a redis client and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr, password string, database int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("db: empty redis addr")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       database,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("db: ping redis: %w", err)
	}
	return rdb, nil
}
