package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const snapshotKey = "allotment:catalog:services"

type redisSnapshot struct {
	client *redis.Client
	key    string
}

// NewRedisSnapshot stores the catalog as one JSON value. A nil client yields
// a nil Snapshot.
func NewRedisSnapshot(client *redis.Client) Snapshot {
	if client == nil {
		return nil
	}
	return &redisSnapshot{client: client, key: snapshotKey}
}

func (s *redisSnapshot) Load(ctx context.Context) ([]Service, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var services []Service
	if err := json.Unmarshal(raw, &services); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *redisSnapshot) Save(ctx context.Context, services []Service, ttl time.Duration) error {
	raw, err := json.Marshal(services)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, raw, ttl).Err()
}
