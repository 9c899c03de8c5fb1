package attempts

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter and starts the window on first use.
// KEYS[1] = counter key
// ARGV[1] = window length in milliseconds
var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Redis shares attempt counters across service replicas.
type Redis struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedis(client redis.Scripter, limit int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: "esign:attempts:", limit: limit, window: window}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	n, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis attempt limiter: %w", err)
	}
	return n <= int64(l.limit), nil
}
