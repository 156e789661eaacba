package support

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisURL = "redis://localhost:6379/0"

	redisPingTimeout  = 5 * time.Second
	redisPingAttempts = 3
	redisRetryBackoff = time.Second
)

var (
	redisMu     sync.Mutex
	redisClient *redis.Client
)

// GetRedisClient returns the shared client, dialing redisURL on first use.
// FAILGUARD_REDIS_URL overrides the configured URL. The first ping is retried
// so an agent started alongside redis does not fail immediately.
func GetRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	redisMu.Lock()
	defer redisMu.Unlock()

	if redisClient != nil {
		return redisClient, nil
	}

	opt, err := RedisOptions(GetEnv("FAILGUARD_REDIS_URL", redisURL))
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	if err := pingWithRetry(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opt.Addr, err)
	}

	redisClient = client
	return redisClient, nil
}

// RedisOptions parses redisURL and names the connection after this host.
func RedisOptions(redisURL string) (*redis.Options, error) {
	if redisURL == "" {
		redisURL = DefaultRedisURL
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opt.ClientName == "" {
		host, _ := os.Hostname()
		opt.ClientName = "failguard-" + host
	}
	return opt, nil
}

func pingWithRetry(ctx context.Context, client *redis.Client) error {
	var err error
	for attempt := 1; attempt <= redisPingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return nil
		}
		if attempt == redisPingAttempts {
			break
		}
		log.Warn("Redis not reachable, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(redisRetryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func CloseRedisClient() error {
	redisMu.Lock()
	defer redisMu.Unlock()

	if redisClient == nil {
		return nil
	}

	err := redisClient.Close()
	redisClient = nil
	return err
}
