package pipeline

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const runLockKey = "consolidation:run-lock"

// releaseScript deletes the lock only when the caller still holds it, so a
// run that outlived its TTL cannot release a newer run's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock serializes consolidation runs across service instances. Only one
// writer may rebuild canonical records at a time.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RunLock{client: client, ttl: ttl}
}

func (l *RunLock) Acquire(ctx context.Context, token string) (bool, error) {
	return l.client.SetNX(ctx, runLockKey, token, l.ttl).Result()
}

func (l *RunLock) Release(ctx context.Context, token string) error {
	return releaseScript.Run(ctx, l.client, []string{runLockKey}, token).Err()
}
