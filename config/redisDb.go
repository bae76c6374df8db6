package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// RedisConfigured reports whether REDIS_ADDRESS is set. Redis is optional for
// rebuild runs; it only backs the run lock.
func RedisConfigured() bool {
	return os.Getenv("REDIS_ADDRESS") != ""
}

// ConnectRedisWithRetry connects and sets the global Redis client + lock client.
func ConnectRedisWithRetry(ctx context.Context, maxAttempts int) (*redislock.Client, error) {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
		log.Printf("REDIS_ADDRESS not set; defaulting to %s", redisAddr)
	}

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       intFromEnv("REDIS_DB", 0),
			PoolSize: 10,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			rdb = client
			locker = redislock.New(rdb)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return locker, nil
		}
		_ = client.Close()

		if maxAttempts > 0 && attempt >= maxAttempts {
			return nil, fmt.Errorf("connect redis %s after %d attempts: %w", redisAddr, attempt, err)
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}
