package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseLease deletes the job key only while it still holds the lease token.
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`)

// Locker hands out per-job leases in redis so a sweep runs on one replica
// at a time. Every lease lives for the configured lock TTL.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Lease is a held job lock.
type Lease struct {
	locker *Locker
	job    string
	token  string
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultConfig().LockTTL
	}
	return &Locker{client: client, ttl: ttl, prefix: "allotment:scheduler:"}
}

// Acquire returns a lease on job, or nil when another replica holds it.
func (l *Locker) Acquire(ctx context.Context, job string) (*Lease, error) {
	if l == nil {
		return nil, errors.New("scheduler lock not configured")
	}
	if job == "" {
		return nil, errors.New("scheduler lock job is empty")
	}

	token := uuid.NewString()
	err := l.client.SetArgs(ctx, l.prefix+job, token, redis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &Lease{locker: l, job: job, token: token}, nil
}

func (l *Lease) Job() string { return l.job }

// Release drops the lease unless it expired and another replica took the job.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseLease.Run(ctx, l.locker.client, []string{l.locker.prefix + l.job}, l.token).Err()
}
