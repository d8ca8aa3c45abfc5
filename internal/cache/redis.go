package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis builds a Redis client and verifies it with a ping. Redis backs
// the rate-limit bookkeeping, the task queue, and the mock email inbox used
// by integration tests.
func ConnectRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	log.Printf("Connected to Redis at %s.", addr)
	return rdb, nil
}

// DisconnectRedis closes the client. Safe to call with nil.
func DisconnectRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	log.Println("Redis connection closed.")
	return nil
}
